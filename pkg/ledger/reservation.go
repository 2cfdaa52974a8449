package ledger

import (
	"encoding/json"
	"maps"
	"time"
)

// Reservation binds an occupant and a date to a spot.
//
// Spot is not serialized; the store keys reservations by spot id and fills
// it in on load.
type Reservation struct {
	Spot      string    `json:"-"`
	Occupant  string    `json:"occupant"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// UnmarshalJSON also accepts the short keys "n" and "d" used by older
// data.json files, so such a file can be adopted as the store.
func (r *Reservation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Occupant   string    `json:"occupant"`
		Date       string    `json:"date"`
		CreatedAt  time.Time `json:"created_at"`
		UpdatedAt  time.Time `json:"updated_at"`
		LegacyName string    `json:"n"`
		LegacyDate string    `json:"d"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Occupant == "" {
		raw.Occupant = raw.LegacyName
	}

	if raw.Date == "" {
		raw.Date = raw.LegacyDate
	}

	*r = Reservation{
		Spot:      r.Spot,
		Occupant:  raw.Occupant,
		Date:      raw.Date,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}

	return nil
}

// State maps spot ids to their reservations. A spot is occupied iff its key
// is present.
type State map[string]Reservation

// Clone returns a copy that shares nothing mutable with s.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}

	return maps.Clone(s)
}

// Entry is one row of [Ledger.QueryAll]. Reservation is nil for a free spot.
type Entry struct {
	Spot        string
	Reservation *Reservation
}

// Free reports whether the spot has no reservation.
func (e Entry) Free() bool {
	return e.Reservation == nil
}
