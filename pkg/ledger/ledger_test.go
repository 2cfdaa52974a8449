package ledger_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/spotledger/pkg/fs"
	"github.com/calvinalkan/spotledger/pkg/ledger"
)

func Test_Ledger_Book_Rejects_Second_Booking_Of_Same_Spot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, withSpots("A1", "A2"))

	r, err := f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)
	assert.Equal(t, ledger.Reservation{Spot: "A1", Occupant: "Alice", Date: "2025-01-01", CreatedAt: fixedNow}, r)

	_, err = f.ledger.Book("A1", "Bob", "2025-01-02", true)
	require.ErrorIs(t, err, ledger.ErrAlreadyReserved)

	got := occupants(f.ledger.QueryAll())
	if diff := cmp.Diff(map[string]string{"A1": "Alice"}, got); diff != "" {
		t.Fatalf("occupants mismatch (-want +got):\n%s", diff)
	}

	assert.Len(t, f.audit(t), 1, "rejected book must not be audited")
}

func Test_Ledger_QuickBook_Takes_First_Free_Spot_In_Catalog_Order(t *testing.T) {
	t.Parallel()

	f := newFixture(t, withSpots("A1", "A2"))

	_, err := f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)

	r, err := f.ledger.QuickBook("Carol", "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, "A2", r.Spot)
	assert.Equal(t, "Carol", r.Occupant)

	_, err = f.ledger.QuickBook("Dave", "2025-01-01")
	require.ErrorIs(t, err, ledger.ErrExhausted)
}

func Test_Ledger_QuickBook_Fills_Defaults_When_Fields_Empty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	r, err := f.ledger.QuickBook("  ", "")
	require.NoError(t, err)

	assert.Equal(t, "A1", r.Spot)
	assert.Equal(t, ledger.QuickBookOccupant, r.Occupant)
	assert.Equal(t, "2025-01-01", r.Date)
}

func Test_Ledger_Book_Rolls_Back_When_Commit_Fails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, withSpots("A1", "A2"))
	f.fs.FailOn(fs.Rule{Op: fs.OpWriteAtomic, Pattern: ledger.PrimaryFileName, Times: 1})

	_, err := f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.ErrorIs(t, err, ledger.ErrPersistenceFailed)

	entries := f.ledger.QueryAll()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Free(), "A1 must still be free after rollback")

	_, ok, err := f.ledger.Get("A1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Empty(t, f.audit(t), "failed commit must not be audited")
	assert.Contains(t, f.logs.String(), "commit failed")

	_, err = f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err, "book succeeds once storage recovers")
	assert.Equal(t, 0, f.ledger.Stats().CommitFailures)
}

func Test_Ledger_Edit_And_Release_Roll_Back_When_Commit_Fails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	original, err := f.ledger.Book("B1", "Bob", "2025-01-01", true)
	require.NoError(t, err)

	f.fs.FailOn(fs.Rule{Op: fs.OpWriteAtomic, Pattern: ledger.PrimaryFileName, Times: 2})

	_, err = f.ledger.Edit("B1", "Robert", "2025-02-02", true)
	require.ErrorIs(t, err, ledger.ErrPersistenceFailed)

	err = f.ledger.Release("B1", true)
	require.ErrorIs(t, err, ledger.ErrPersistenceFailed)

	got, ok, err := f.ledger.Get("B1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, original, got)
}

func Test_Open_Starts_Empty_And_Reports_When_Store_Corrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ledger.PrimaryFileName), []byte("{{{"), 0o600))

	f := openFixture(t, dir)

	for _, e := range f.ledger.QueryAll() {
		assert.True(t, e.Free(), "spot %s", e.Spot)
	}

	logs := f.logs.String()
	assert.Contains(t, logs, "level=ERROR")
	assert.Contains(t, logs, "store corrupt")

	matches, err := filepath.Glob(filepath.Join(dir, ledger.PrimaryFileName+".corrupt-*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1, "corrupt file kept aside")
}

func Test_Open_Returns_Error_When_Store_Unreadable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ledger.PrimaryFileName), []byte("{}"), 0o600))

	faulty := fs.NewFaulty(fs.NewReal()).FailOn(fs.Rule{Op: fs.OpReadFile, Pattern: ledger.PrimaryFileName})

	_, err := ledger.Open(ledger.Config{Dir: dir, Catalog: ledger.DefaultCatalog(), FS: faulty})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrStoreCorrupt)

	// The failed open must not keep the store locked.
	l, err := ledger.Open(ledger.Config{Dir: dir, Catalog: ledger.DefaultCatalog()})
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func Test_Ledger_Release_Is_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.ledger.Book("C1", "Carol", "2025-01-01", true)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Release("C1", true))
	after := f.ledger.QueryAll()

	require.NoError(t, f.ledger.Release("C1", true))
	assert.Equal(t, after, f.ledger.QueryAll())

	assert.Len(t, f.audit(t), 2, "no-op release is not audited")
}

func Test_Ledger_Edit_Returns_ErrNotFound_When_Spot_Free(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.ledger.Edit("A1", "Alice", "2025-01-01", true)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func Test_Ledger_Edit_Replaces_Fields_And_Keeps_Creation_Time(t *testing.T) {
	t.Parallel()

	now := fixedNow
	dir := t.TempDir()

	l, err := ledger.Open(ledger.Config{
		Dir:     dir,
		Catalog: ledger.DefaultCatalog(),
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	_, err = l.Book("A2", "Alice", "2025-01-01", true)
	require.NoError(t, err)

	now = now.Add(time.Hour)

	r, err := l.Edit("A2", " Alicia ", "2025-01-05", true)
	require.NoError(t, err)

	want := ledger.Reservation{
		Spot:      "A2",
		Occupant:  "Alicia",
		Date:      "2025-01-05",
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow.Add(time.Hour),
	}
	assert.Equal(t, want, r)

	got, ok, err := l.Get("A2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func Test_Ledger_Privileged_Operations_Return_ErrUnauthorized_Without_Privilege(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.ledger.Book("A1", "Alice", "2025-01-01", false)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)

	_, err = f.ledger.Edit("A1", "Mallory", "2025-01-01", false)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	err = f.ledger.Release("A1", false)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	got, ok, err := f.ledger.Get("A1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice", got.Occupant)

	_, err = f.ledger.QuickBook("Eve", "")
	require.NoError(t, err, "quick book needs no privilege")
}

func Test_Ledger_Returns_ErrInvalidSpot_When_Spot_Not_In_Catalog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.ledger.Book("Z9", "Alice", "2025-01-01", true)
	require.ErrorIs(t, err, ledger.ErrInvalidSpot)

	_, err = f.ledger.Edit("Z9", "Alice", "2025-01-01", true)
	require.ErrorIs(t, err, ledger.ErrInvalidSpot)

	err = f.ledger.Release("Z9", true)
	require.ErrorIs(t, err, ledger.ErrInvalidSpot)

	_, _, err = f.ledger.Get("Z9")
	require.ErrorIs(t, err, ledger.ErrInvalidSpot)
}

func Test_Ledger_Book_Returns_ErrInvalidReservation_When_Occupant_Empty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.ledger.Book("A1", " \t", "2025-01-01", true)
	require.ErrorIs(t, err, ledger.ErrInvalidReservation)

	assert.Equal(t, 0, f.ledger.Stats().Occupied)
}

func Test_Ledger_State_Survives_Reopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first := openFixture(t, dir)

	_, err := first.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)
	_, err = first.ledger.QuickBook("Carol", "2025-01-02")
	require.NoError(t, err)
	_, err = first.ledger.Book("B1", "Bob", "2025-01-03", true)
	require.NoError(t, err)
	require.NoError(t, first.ledger.Release("B1", true))

	want := first.ledger.QueryAll()
	require.NoError(t, first.ledger.Close())

	second := openFixture(t, dir)

	if diff := cmp.Diff(want, second.ledger.QueryAll()); diff != "" {
		t.Fatalf("state after reopen mismatch (-want +got):\n%s", diff)
	}
}

func Test_Ledger_Backups_Follow_Every_Commit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)
	_, err = f.ledger.Book("A2", "Bob", "2025-01-01", true)
	require.NoError(t, err)

	backups, err := filepath.Glob(filepath.Join(f.dir, ledger.BackupDirName, "ledger-*.json"))
	require.NoError(t, err)
	require.Len(t, backups, 2)

	latest, err := os.ReadFile(backups[1])
	require.NoError(t, err)
	assert.Equal(t, f.readPrimary(t), string(latest), "newest backup equals primary")
}

func Test_Ledger_Mutation_Succeeds_When_Backup_Fails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fs.FailOn(fs.Rule{Op: fs.OpWriteAtomic, Pattern: "ledger-*.json"})

	_, err := f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)

	assert.Contains(t, f.readPrimary(t), "Alice")
	assert.Contains(t, f.logs.String(), "backup snapshot failed")
	assert.Len(t, f.audit(t), 1)
}

func Test_Ledger_Mutation_Succeeds_When_Audit_Fails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fs.FailOn(fs.Rule{Op: fs.OpOpenFile, Pattern: ledger.AuditFileName})

	_, err := f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)

	assert.Contains(t, f.readPrimary(t), "Alice")
	assert.Contains(t, f.logs.String(), "audit append failed")
}

func Test_Ledger_Audit_Records_Each_Accepted_Mutation_In_Order(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)
	_, err = f.ledger.QuickBook("Carol", "")
	require.NoError(t, err)
	_, err = f.ledger.Edit("A1", "Alicia", "2025-01-02", true)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Release("A2", true))

	type row struct {
		Action ledger.Action
		Spot   string
	}

	var got []row
	for _, rec := range f.audit(t) {
		got = append(got, row{rec.Action, rec.Spot})
		assert.True(t, rec.Time.Equal(fixedNow))
	}

	want := []row{
		{ledger.ActionBook, "A1"},
		{ledger.ActionBook, "A2"},
		{ledger.ActionEdit, "A1"},
		{ledger.ActionRelease, "A2"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("audit mismatch (-want +got):\n%s", diff)
	}
}

func Test_Ledger_Becomes_ReadOnly_After_Repeated_Commit_Failures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, withMaxCommitFailures(2))
	f.fs.FailOn(fs.Rule{Op: fs.OpWriteAtomic, Pattern: ledger.PrimaryFileName})

	for range 2 {
		_, err := f.ledger.Book("A1", "Alice", "2025-01-01", true)
		require.ErrorIs(t, err, ledger.ErrPersistenceFailed)
	}

	stats := f.ledger.Stats()
	assert.True(t, stats.ReadOnly)
	assert.Equal(t, 2, stats.CommitFailures)

	hitsBefore := f.fs.Hits(fs.OpWriteAtomic)

	_, err := f.ledger.QuickBook("Carol", "")
	require.ErrorIs(t, err, ledger.ErrReadOnly)
	require.ErrorIs(t, err, ledger.ErrPersistenceFailed)
	assert.Equal(t, hitsBefore, f.fs.Hits(fs.OpWriteAtomic), "read-only ledger must not touch storage")

	assert.Len(t, f.ledger.QueryAll(), len(ledger.DefaultSpots), "queries still work")
	assert.Contains(t, f.logs.String(), "read-only")

	f.fs.Clear()
	require.NoError(t, f.ledger.Recover())
	assert.False(t, f.ledger.Stats().ReadOnly)

	_, err = f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)
}

func Test_Ledger_Recover_Reloads_Committed_State(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)

	want := f.ledger.QueryAll()

	require.NoError(t, f.ledger.Recover())

	if diff := cmp.Diff(want, f.ledger.QueryAll()); diff != "" {
		t.Fatalf("state after recover mismatch (-want +got):\n%s", diff)
	}
}

func Test_Open_Returns_ErrLocked_When_Store_Already_Open(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := ledger.Open(ledger.Config{
		Dir:         f.dir,
		Catalog:     ledger.DefaultCatalog(),
		LockTimeout: 20 * time.Millisecond,
	})
	require.ErrorIs(t, err, ledger.ErrLocked)

	require.NoError(t, f.ledger.Close())

	l, err := ledger.Open(ledger.Config{Dir: f.dir, Catalog: ledger.DefaultCatalog()})
	require.NoError(t, err, "open after close")
	require.NoError(t, l.Close())
}

func Test_Open_Returns_Error_When_Config_Incomplete(t *testing.T) {
	t.Parallel()

	_, err := ledger.Open(ledger.Config{Catalog: ledger.DefaultCatalog()})
	require.Error(t, err)

	_, err = ledger.Open(ledger.Config{Dir: t.TempDir()})
	require.Error(t, err)
}

func Test_Ledger_Returns_ErrClosed_After_Close(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	require.NoError(t, f.ledger.Close())
	require.NoError(t, f.ledger.Close(), "close is idempotent")

	_, err := f.ledger.Book("A1", "Alice", "", true)
	require.ErrorIs(t, err, ledger.ErrClosed)

	_, err = f.ledger.QuickBook("Alice", "")
	require.ErrorIs(t, err, ledger.ErrClosed)

	err = f.ledger.Release("A1", true)
	require.ErrorIs(t, err, ledger.ErrClosed)

	require.ErrorIs(t, f.ledger.Recover(), ledger.ErrClosed)
}

func Test_Open_Warns_When_Store_Holds_Spot_Outside_Catalog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := `{"Z9": {"occupant": "Zed", "date": "2025-01-01"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ledger.PrimaryFileName), []byte(content), 0o600))

	f := openFixture(t, dir)

	assert.Contains(t, f.logs.String(), "not in catalog")
	assert.Equal(t, 0, f.ledger.Stats().Occupied)

	_, err := f.ledger.Book("A1", "Alice", "2025-01-01", true)
	require.NoError(t, err)

	assert.Contains(t, f.readPrimary(t), "Zed", "reservations outside the catalog are preserved")
}
