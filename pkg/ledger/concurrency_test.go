package ledger_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/spotledger/pkg/ledger"
)

func Test_Ledger_Concurrent_Books_Of_Same_Spot_Resolve_To_Exactly_One_Winner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	const workers = 32

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		winner    atomic.Value
		start     = make(chan struct{})
	)

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			<-start

			name := fmt.Sprintf("worker-%d", i)

			_, err := f.ledger.Book("B2", name, "2025-01-01", true)

			switch {
			case err == nil:
				successes.Add(1)
				winner.Store(name)
			case errors.Is(err, ledger.ErrAlreadyReserved):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())

	got, ok, err := f.ledger.Get("B2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, winner.Load(), got.Occupant)

	assert.Len(t, f.audit(t), 1)
}

func Test_Ledger_Concurrent_QuickBooks_Never_Share_A_Spot(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	workers := len(ledger.DefaultSpots) + 5

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		booked    = map[string]string{}
		exhausted atomic.Int32
	)

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			name := fmt.Sprintf("driver-%d", i)

			r, err := f.ledger.QuickBook(name, "")
			if errors.Is(err, ledger.ErrExhausted) {
				exhausted.Add(1)

				return
			}

			if err != nil {
				t.Errorf("QuickBook(%s): %v", name, err)

				return
			}

			mu.Lock()
			defer mu.Unlock()

			if prev, dup := booked[r.Spot]; dup {
				t.Errorf("spot %s handed to %s and %s", r.Spot, prev, name)
			}

			booked[r.Spot] = name
		}()
	}

	wg.Wait()

	assert.Len(t, booked, len(ledger.DefaultSpots))
	assert.Equal(t, int32(5), exhausted.Load())
	assert.Equal(t, booked, occupants(f.ledger.QueryAll()))
}

func Test_Ledger_QueryAll_Reflects_Net_Effect_With_Concurrent_Readers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	spots := ledger.DefaultSpots

	done := make(chan struct{})

	var readers sync.WaitGroup

	for range 4 {
		readers.Add(1)

		go func() {
			defer readers.Done()

			for {
				select {
				case <-done:
					return
				default:
				}

				entries := f.ledger.QueryAll()
				if len(entries) != len(spots) {
					t.Errorf("QueryAll returned %d entries, want %d", len(entries), len(spots))

					return
				}

				for i, e := range entries {
					if e.Spot != spots[i] {
						t.Errorf("entry %d spot=%s, want %s", i, e.Spot, spots[i])

						return
					}
				}
			}
		}()
	}

	var writers sync.WaitGroup

	for i, spot := range spots {
		writers.Add(1)

		go func() {
			defer writers.Done()

			_, err := f.ledger.Book(spot, "first-"+spot, "2025-01-01", true)
			if err != nil {
				t.Errorf("Book(%s): %v", spot, err)

				return
			}

			if i%2 == 0 {
				if err := f.ledger.Release(spot, true); err != nil {
					t.Errorf("Release(%s): %v", spot, err)
				}

				return
			}

			if _, err := f.ledger.Edit(spot, "final-"+spot, "2025-01-02", true); err != nil {
				t.Errorf("Edit(%s): %v", spot, err)
			}
		}()
	}

	writers.Wait()
	close(done)
	readers.Wait()

	want := map[string]string{}

	for i, spot := range spots {
		if i%2 == 1 {
			want[spot] = "final-" + spot
		}
	}

	assert.Equal(t, want, occupants(f.ledger.QueryAll()))
}
