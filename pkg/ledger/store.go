package ledger

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/calvinalkan/spotledger/pkg/fs"
)

// Store is the persistence adapter behind a [Ledger].
//
// The ledger calls every method with its writer lock held and never retains
// the state after the call returns; implementations must not retain it either.
type Store interface {
	// Load returns the persisted state. A missing store is an empty state.
	// A malformed store is an empty state plus an error matching
	// [ErrStoreCorrupt]. Any other error means the state is unknown.
	Load() (State, error)

	// Commit replaces the primary store with state in one atomic step.
	Commit(state State) error

	// Snapshot writes a best-effort backup copy of state.
	Snapshot(state State) error
}

// File names inside the store directory.
const (
	PrimaryFileName = "ledger.json"
	AuditFileName   = "audit.jsonl"
	BackupDirName   = "backups"
	lockRelPath     = ".locks/ledger.lock"

	backupPrefix     = "ledger-"
	backupSuffix     = ".json"
	backupSeqWidth   = 12
	backupTimeLayout = "20060102T150405.000000000Z"

	storeDirPerm  = 0o750
	storeFilePerm = 0o644
)

// FileStoreOptions configures a [FileStore].
type FileStoreOptions struct {
	// BackupKeep is how many backup snapshots are retained. Zero keeps
	// [DefaultBackupKeep]; negative disables pruning.
	BackupKeep int

	// Now is the clock used for backup and quarantine names.
	// Defaults to [time.Now].
	Now func() time.Time
}

// DefaultBackupKeep is the default number of retained backups.
const DefaultBackupKeep = 5

// FileStore persists a [State] as a single JSON document under dir.
//
// Layout:
//
//	<dir>/ledger.json                   primary store, replaced atomically
//	<dir>/ledger.json.corrupt-<ts>-<n>  malformed primary moved aside by Load
//	<dir>/backups/ledger-<seq>-<ts>.json
//
// Backups are ordered by seq, never by timestamp: the clock may step
// backwards, seq does not.
type FileStore struct {
	fs   fs.FS
	dir  string
	keep int
	now  func() time.Time

	mu  sync.Mutex
	seq uint64 // last backup seq written by this store
}

// NewFileStore returns a store rooted at dir. Panics if fsys is nil.
func NewFileStore(fsys fs.FS, dir string, opts FileStoreOptions) *FileStore {
	if fsys == nil {
		panic("fs is nil")
	}

	if opts.BackupKeep == 0 {
		opts.BackupKeep = DefaultBackupKeep
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &FileStore{
		fs:   fsys,
		dir:  filepath.Clean(dir),
		keep: opts.BackupKeep,
		now:  opts.Now,
	}
}

// PrimaryPath returns the path of the primary store file.
func (s *FileStore) PrimaryPath() string {
	return filepath.Join(s.dir, PrimaryFileName)
}

// BackupDir returns the directory backup snapshots are written to.
func (s *FileStore) BackupDir() string {
	return filepath.Join(s.dir, BackupDirName)
}

// Load reads the primary store.
//
// A malformed file is renamed to ledger.json.corrupt-<ts>-<n> before Load
// returns, so the next Commit cannot overwrite the only copy. n counts up
// from 1 until the name is unused.
func (s *FileStore) Load() (State, error) {
	path := s.PrimaryPath()

	data, err := s.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}

		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	state, decodeErr := decodeState(data)
	if decodeErr == nil {
		return state, nil
	}

	corruptErr := fmt.Errorf("%w: %s: %w", ErrStoreCorrupt, path, decodeErr)

	aside, err := s.asidePath(path)
	if err != nil {
		return State{}, errors.Join(corruptErr, err)
	}

	renameErr := s.fs.Rename(path, aside)
	if renameErr != nil {
		return State{}, errors.Join(corruptErr, fmt.Errorf("move aside: %w", renameErr))
	}

	return State{}, fmt.Errorf("%w (moved to %s)", corruptErr, filepath.Base(aside))
}

func (s *FileStore) asidePath(path string) (string, error) {
	base := path + ".corrupt-" + s.now().UTC().Format(backupTimeLayout)

	for n := 1; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)

		_, err := s.fs.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}

		if err != nil {
			return "", fmt.Errorf("move aside: %w", err)
		}
	}
}

// Commit writes state to the primary store atomically.
func (s *FileStore) Commit(state State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	err = s.fs.MkdirAll(s.dir, storeDirPerm)
	if err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	err = s.fs.WriteFileAtomic(s.PrimaryPath(), data, storeFilePerm)
	if err != nil {
		return fmt.Errorf("write %s: %w", s.PrimaryPath(), err)
	}

	return nil
}

// Snapshot writes state to a new backup file and prunes the oldest backups
// beyond the retention limit. A new snapshot supersedes the previous ones;
// it never merges with them.
//
// The first Snapshot of a store resumes numbering after the highest seq
// already on disk, so backups from earlier processes sort before it.
func (s *FileStore) Snapshot(state State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.BackupDir()

	err = s.fs.MkdirAll(dir, storeDirPerm)
	if err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	existing, err := s.listBackups()
	if err != nil {
		return err
	}

	next := s.seq
	if n := len(existing); n > 0 {
		next = max(next, existing[n-1].seq)
	}

	next++

	name := fmt.Sprintf("%s%0*d-%s%s",
		backupPrefix, backupSeqWidth, next, s.now().UTC().Format(backupTimeLayout), backupSuffix)
	path := filepath.Join(dir, name)

	err = s.fs.WriteFileAtomic(path, data, storeFilePerm)
	if err != nil {
		return fmt.Errorf("write backup %s: %w", name, err)
	}

	s.seq = next

	return s.prune(existing, path)
}

// Backups returns backup file paths, oldest first.
func (s *FileStore) Backups() ([]string, error) {
	files, err := s.listBackups()
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.path)
	}

	return paths, nil
}

type backupFile struct {
	path string
	seq  uint64
}

// listBackups returns the backups in dir sorted by seq. Files whose name
// carries no seq are not backups written by this store and are skipped.
func (s *FileStore) listBackups() ([]backupFile, error) {
	entries, err := s.fs.ReadDir(s.BackupDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("list backups: %w", err)
	}

	var files []backupFile

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		seq, ok := parseBackupSeq(e.Name())
		if !ok {
			continue
		}

		files = append(files, backupFile{path: filepath.Join(s.BackupDir(), e.Name()), seq: seq})
	}

	slices.SortFunc(files, func(a, b backupFile) int {
		return cmp.Or(cmp.Compare(a.seq, b.seq), strings.Compare(a.path, b.path))
	})

	return files, nil
}

func parseBackupSeq(name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, backupPrefix)
	if !ok || !strings.HasSuffix(rest, backupSuffix) {
		return 0, false
	}

	digits, _, ok := strings.Cut(rest, "-")
	if !ok || digits == "" {
		return 0, false
	}

	seq, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}

	return seq, true
}

// prune removes the oldest older backups until at most keep remain,
// counting written. written itself is never removed.
func (s *FileStore) prune(older []backupFile, written string) error {
	if s.keep < 0 {
		return nil
	}

	older = slices.DeleteFunc(older, func(f backupFile) bool { return f.path == written })

	var errs []error

	for len(older)+1 > s.keep && len(older) > 0 {
		rmErr := s.fs.Remove(older[0].path)
		if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("prune %s: %w", filepath.Base(older[0].path), rmErr))
		}

		older = older[1:]
	}

	return errors.Join(errs...)
}

func encodeState(state State) ([]byte, error) {
	if state == nil {
		state = State{}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	return append(data, '\n'), nil
}

func decodeState(data []byte) (State, error) {
	var state State

	err := json.Unmarshal(data, &state)
	if err != nil {
		return nil, err
	}

	if state == nil {
		return State{}, nil
	}

	for spot, r := range state {
		if strings.TrimSpace(spot) == "" {
			return nil, errors.New("empty spot key")
		}

		if strings.TrimSpace(r.Occupant) == "" {
			return nil, fmt.Errorf("spot %q: empty occupant", spot)
		}

		r.Spot = spot
		state[spot] = r
	}

	return state, nil
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)
