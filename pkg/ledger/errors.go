package ledger

import "errors"

// Operation errors. Callers classify with [errors.Is].
var (
	// ErrInvalidSpot reports a spot id that is not in the [Catalog].
	ErrInvalidSpot = errors.New("invalid spot")

	// ErrAlreadyReserved reports a book on an occupied spot.
	ErrAlreadyReserved = errors.New("spot already reserved")

	// ErrNotFound reports an edit on a free spot.
	ErrNotFound = errors.New("reservation not found")

	// ErrUnauthorized reports a privileged operation attempted without privilege.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrExhausted reports a quick book with no free spot left.
	ErrExhausted = errors.New("no free spot")

	// ErrInvalidReservation reports reservation fields that cannot be stored,
	// e.g. an empty occupant.
	ErrInvalidReservation = errors.New("invalid reservation")

	// ErrPersistenceFailed reports that the primary store could not be
	// written. The in-memory mutation has been rolled back.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrReadOnly reports that the ledger stopped accepting mutations after
	// repeated persistence failures. It always wraps [ErrPersistenceFailed].
	ErrReadOnly = errors.New("ledger is read-only")

	// ErrClosed reports use of a ledger after [Ledger.Close].
	ErrClosed = errors.New("ledger closed")

	// ErrLocked reports that another process owns the store directory.
	ErrLocked = errors.New("store locked by another process")

	// ErrStoreCorrupt reports a primary store that exists but cannot be
	// decoded. Load returns an empty state alongside it.
	ErrStoreCorrupt = errors.New("store corrupt")
)

// Catalog errors.
var (
	ErrCatalogEmpty   = errors.New("catalog has no spots")
	ErrCatalogInvalid = errors.New("invalid catalog")
)
