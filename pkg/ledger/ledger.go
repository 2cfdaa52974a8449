package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/calvinalkan/spotledger/pkg/fs"
)

// Defaults applied by [Open].
const (
	DefaultMaxCommitFailures = 3
	DefaultLockTimeout       = 2 * time.Second

	// QuickBookOccupant is the occupant recorded by [Ledger.QuickBook] when
	// the caller leaves it empty.
	QuickBookOccupant = "Quick Booking"

	dateLayout = "2006-01-02"
)

// Config configures [Open].
type Config struct {
	// Dir is the store directory. Required.
	Dir string

	// Catalog is the set of bookable spots. Required.
	Catalog *Catalog

	// FS is used for the lock file and the default store and audit trail.
	// Defaults to [fs.NewReal].
	FS fs.FS

	// Store overrides the default [FileStore] in Dir.
	Store Store

	// Audit overrides the default [FileAudit] at Dir/audit.jsonl.
	Audit Audit

	// Logger is the diagnostic channel: corrupt stores, failed backups,
	// failed audit appends and read-only transitions are reported here.
	// Defaults to discarding.
	Logger *slog.Logger

	// Now is the ledger clock. Defaults to [time.Now].
	Now func() time.Time

	// BackupKeep is passed to the default [FileStore].
	BackupKeep int

	// MaxCommitFailures is how many consecutive failed commits switch the
	// ledger to read-only. Defaults to [DefaultMaxCommitFailures].
	MaxCommitFailures int

	// LockTimeout bounds waiting for another process to release the store.
	// Defaults to [DefaultLockTimeout].
	LockTimeout time.Duration
}

// Stats summarizes ledger state.
type Stats struct {
	Spots          int
	Occupied       int
	Free           int
	ReadOnly       bool
	CommitFailures int
}

// Ledger is the authoritative map of spots to reservations.
//
// # Concurrency
//
// Safe for concurrent use. Every mutation runs validate, mutate, commit,
// snapshot and audit as one critical section under the write lock, so two
// concurrent books of the same spot resolve to exactly one success. Readers
// take the read lock only long enough to copy what they return.
//
// Across processes the ledger holds an exclusive flock on the store
// directory from [Open] until [Ledger.Close]; a second process cannot open
// the same store and bypass the critical section.
type Ledger struct {
	catalog     *Catalog
	store       Store
	audit       Audit
	log         *slog.Logger
	now         func() time.Time
	maxFailures int
	lock        *fs.Lock

	// mu guards everything below.
	mu       sync.RWMutex
	state    State
	failures int
	readOnly bool
	closed   bool
}

// Open locks the store directory, loads the persisted state once and returns
// the ledger.
//
// A missing store starts empty. A malformed store also starts empty; the
// event is logged at error level and the bad file is kept aside by the
// store. Any other load failure is returned.
func Open(cfg Config) (*Ledger, error) {
	if cfg.Dir == "" {
		return nil, errors.New("Config.Dir is required")
	}

	if cfg.Catalog == nil {
		return nil, errors.New("Config.Catalog is required")
	}

	if cfg.FS == nil {
		cfg.FS = fs.NewReal()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.MaxCommitFailures <= 0 {
		cfg.MaxCommitFailures = DefaultMaxCommitFailures
	}

	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}

	dir := filepath.Clean(cfg.Dir)

	if cfg.Store == nil {
		cfg.Store = NewFileStore(cfg.FS, dir, FileStoreOptions{BackupKeep: cfg.BackupKeep, Now: cfg.Now})
	}

	if cfg.Audit == nil {
		cfg.Audit = NewFileAudit(cfg.FS, filepath.Join(dir, AuditFileName))
	}

	err := cfg.FS.MkdirAll(dir, storeDirPerm)
	if err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	lock, err := fs.NewLocker(cfg.FS).LockWithTimeout(filepath.Join(dir, lockRelPath), cfg.LockTimeout)
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}

		return nil, fmt.Errorf("lock store: %w", err)
	}

	state, err := cfg.Store.Load()
	if err != nil {
		if !errors.Is(err, ErrStoreCorrupt) {
			return nil, errors.Join(fmt.Errorf("load store: %w", err), lock.Close())
		}

		cfg.Logger.Error("store corrupt, starting empty", "dir", dir, "err", err)

		state = State{}
	}

	for spot := range state {
		if !cfg.Catalog.Contains(spot) {
			cfg.Logger.Warn("stored reservation for spot not in catalog", "spot", spot)
		}
	}

	return &Ledger{
		catalog:     cfg.Catalog,
		store:       cfg.Store,
		audit:       cfg.Audit,
		log:         cfg.Logger,
		now:         cfg.Now,
		maxFailures: cfg.MaxCommitFailures,
		lock:        lock,
		state:       state,
	}, nil
}

// Close releases the store lock. Close is idempotent.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true

	return l.lock.Close()
}

// Catalog returns the ledger's spot catalog.
func (l *Ledger) Catalog() *Catalog {
	return l.catalog
}

// Book reserves a specific spot. Naming the spot requires privilege.
//
// Fails with [ErrUnauthorized], [ErrInvalidSpot], [ErrInvalidReservation]
// or [ErrAlreadyReserved] before anything changes, and with
// [ErrPersistenceFailed] after rolling back if the commit fails.
func (l *Ledger) Book(spot, occupant, date string, privileged bool) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkWritable(); err != nil {
		return Reservation{}, err
	}

	if !privileged {
		return Reservation{}, fmt.Errorf("%w: booking a named spot", ErrUnauthorized)
	}

	if err := l.checkSpot(spot); err != nil {
		return Reservation{}, err
	}

	return l.bookLocked(spot, occupant, date)
}

// QuickBook reserves the first free spot in catalog order. It needs no
// privilege. An empty occupant becomes [QuickBookOccupant] and an empty date
// becomes today's date.
func (l *Ledger) QuickBook(occupant, date string) (Reservation, error) {
	if strings.TrimSpace(occupant) == "" {
		occupant = QuickBookOccupant
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkWritable(); err != nil {
		return Reservation{}, err
	}

	if date == "" {
		date = l.now().Format(dateLayout)
	}

	for _, spot := range l.catalog.ids {
		if _, taken := l.state[spot]; !taken {
			return l.bookLocked(spot, occupant, date)
		}
	}

	return Reservation{}, ErrExhausted
}

func (l *Ledger) bookLocked(spot, occupant, date string) (Reservation, error) {
	occupant, err := normalizeOccupant(occupant)
	if err != nil {
		return Reservation{}, err
	}

	if current, taken := l.state[spot]; taken {
		return Reservation{}, fmt.Errorf("%w: %s (by %s)", ErrAlreadyReserved, spot, current.Occupant)
	}

	r := Reservation{
		Spot:      spot,
		Occupant:  occupant,
		Date:      date,
		CreatedAt: l.now().UTC(),
	}

	err = l.apply(ActionBook, spot, &r)
	if err != nil {
		return Reservation{}, err
	}

	return r, nil
}

// Edit replaces the occupant and date of an existing reservation.
// The creation time is kept.
func (l *Ledger) Edit(spot, occupant, date string, privileged bool) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkWritable(); err != nil {
		return Reservation{}, err
	}

	if !privileged {
		return Reservation{}, fmt.Errorf("%w: editing a reservation", ErrUnauthorized)
	}

	if err := l.checkSpot(spot); err != nil {
		return Reservation{}, err
	}

	occupant, err := normalizeOccupant(occupant)
	if err != nil {
		return Reservation{}, err
	}

	current, ok := l.state[spot]
	if !ok {
		return Reservation{}, fmt.Errorf("%w: %s", ErrNotFound, spot)
	}

	current.Occupant = occupant
	current.Date = date
	current.UpdatedAt = l.now().UTC()

	err = l.apply(ActionEdit, spot, &current)
	if err != nil {
		return Reservation{}, err
	}

	return current, nil
}

// Release frees a spot. Releasing a free spot is a successful no-op that
// neither persists nor audits, so Release is idempotent.
func (l *Ledger) Release(spot string, privileged bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkWritable(); err != nil {
		return err
	}

	if !privileged {
		return fmt.Errorf("%w: releasing a reservation", ErrUnauthorized)
	}

	if err := l.checkSpot(spot); err != nil {
		return err
	}

	if _, ok := l.state[spot]; !ok {
		return nil
	}

	return l.apply(ActionRelease, spot, nil)
}

// QueryAll returns every catalog spot in catalog order with its reservation,
// or a nil reservation if the spot is free.
func (l *Ledger) QueryAll() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, 0, len(l.catalog.ids))

	for _, spot := range l.catalog.ids {
		entry := Entry{Spot: spot}

		if r, ok := l.state[spot]; ok {
			entry.Reservation = &r
		}

		entries = append(entries, entry)
	}

	return entries
}

// Get returns the reservation for spot and whether it exists.
func (l *Ledger) Get(spot string) (Reservation, bool, error) {
	if err := l.checkSpot(spot); err != nil {
		return Reservation{}, false, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.state[spot]

	return r, ok, nil
}

// Stats returns occupancy counts and health flags.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	occupied := 0

	for _, spot := range l.catalog.ids {
		if _, ok := l.state[spot]; ok {
			occupied++
		}
	}

	return Stats{
		Spots:          len(l.catalog.ids),
		Occupied:       occupied,
		Free:           len(l.catalog.ids) - occupied,
		ReadOnly:       l.readOnly,
		CommitFailures: l.failures,
	}
}

// Recover reloads state from the primary store and leaves read-only mode.
// It is the only way, besides [Open], that the ledger reads its store.
func (l *Ledger) Recover() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	state, err := l.store.Load()
	if err != nil {
		if !errors.Is(err, ErrStoreCorrupt) {
			return fmt.Errorf("recover: %w", err)
		}

		l.log.Error("store corrupt during recovery, starting empty", "err", err)

		state = State{}
	}

	l.state = state
	l.failures = 0

	if l.readOnly {
		l.readOnly = false
		l.log.Info("ledger writable again after recovery")
	}

	return nil
}

// apply installs next for spot (or removes spot if next is nil), commits,
// and on success writes the backup snapshot and the audit record.
// On commit failure the previous value is restored. Caller holds mu.
func (l *Ledger) apply(action Action, spot string, next *Reservation) error {
	prev, had := l.state[spot]

	if next == nil {
		delete(l.state, spot)
	} else {
		l.state[spot] = *next
	}

	err := l.store.Commit(l.state)
	if err != nil {
		if had {
			l.state[spot] = prev
		} else {
			delete(l.state, spot)
		}

		return l.commitFailed(action, spot, err)
	}

	l.failures = 0

	snapErr := l.store.Snapshot(l.state)
	if snapErr != nil {
		l.log.Warn("backup snapshot failed", "action", action, "spot", spot, "err", snapErr)
	}

	rec, err := newRecord(action, spot, l.now())
	if err == nil {
		err = l.audit.Append(rec)
	}

	if err != nil {
		l.log.Warn("audit append failed", "action", action, "spot", spot, "err", err)
	}

	return nil
}

func (l *Ledger) commitFailed(action Action, spot string, err error) error {
	l.failures++

	l.log.Error("commit failed, mutation rolled back",
		"action", action, "spot", spot, "failures", l.failures, "err", err)

	if l.failures >= l.maxFailures && !l.readOnly {
		l.readOnly = true
		l.log.Error("ledger switched to read-only", "failures", l.failures)
	}

	return fmt.Errorf("%w: %s %s: %w", ErrPersistenceFailed, action, spot, err)
}

func (l *Ledger) checkWritable() error {
	if l.closed {
		return ErrClosed
	}

	if l.readOnly {
		return fmt.Errorf("%w: %w after %d failed commits", ErrReadOnly, ErrPersistenceFailed, l.failures)
	}

	return nil
}

func (l *Ledger) checkSpot(spot string) error {
	if !l.catalog.Contains(spot) {
		return fmt.Errorf("%w: %q", ErrInvalidSpot, spot)
	}

	return nil
}

func normalizeOccupant(occupant string) (string, error) {
	occupant = strings.TrimSpace(occupant)
	if occupant == "" {
		return "", fmt.Errorf("%w: occupant is empty", ErrInvalidReservation)
	}

	return occupant, nil
}
