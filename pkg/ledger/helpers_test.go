package ledger_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/spotledger/pkg/fs"
	"github.com/calvinalkan/spotledger/pkg/ledger"
)

var fixedNow = time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

type fixture struct {
	dir    string
	fs     *fs.Faulty
	logs   *syncBuffer
	ledger *ledger.Ledger
}

type fixtureOption func(*ledger.Config)

func withSpots(ids ...string) fixtureOption {
	return func(cfg *ledger.Config) {
		c, err := ledger.NewCatalog(ids...)
		if err != nil {
			panic(err)
		}

		cfg.Catalog = c
	}
}

func withMaxCommitFailures(n int) fixtureOption {
	return func(cfg *ledger.Config) { cfg.MaxCommitFailures = n }
}

// newFixture opens a ledger in a fresh temp dir over a [fs.Faulty] that
// starts without rules.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	return openFixture(t, t.TempDir(), opts...)
}

func openFixture(t *testing.T, dir string, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		dir:  dir,
		fs:   fs.NewFaulty(fs.NewReal()),
		logs: &syncBuffer{},
	}

	cfg := ledger.Config{
		Dir:         dir,
		Catalog:     ledger.DefaultCatalog(),
		FS:          f.fs,
		Logger:      slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Now:         fixedClock,
		LockTimeout: 50 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	l, err := ledger.Open(cfg)
	require.NoError(t, err, "open ledger")

	t.Cleanup(func() { _ = l.Close() })

	f.ledger = l

	return f
}

func (f *fixture) readPrimary(t *testing.T) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(f.dir, ledger.PrimaryFileName))
	require.NoError(t, err, "read primary store")

	return string(data)
}

func (f *fixture) audit(t *testing.T) []ledger.Record {
	t.Helper()

	records, err := ledger.ReadAudit(fs.NewReal(), filepath.Join(f.dir, ledger.AuditFileName))
	require.NoError(t, err, "read audit")

	return records
}

// occupants maps spot to occupant for occupied spots, for compact diffs.
func occupants(entries []ledger.Entry) map[string]string {
	out := make(map[string]string)

	for _, e := range entries {
		if !e.Free() {
			out[e.Spot] = e.Reservation.Occupant
		}
	}

	return out
}
