package fs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// Op names a filesystem operation that [Faulty] can fail.
type Op string

// Operations understood by [Faulty.FailOn].
const (
	OpOpen        Op = "open"
	OpOpenFile    Op = "openfile"
	OpReadFile    Op = "readfile"
	OpWriteAtomic Op = "writeatomic"
	OpReadDir     Op = "readdir"
	OpMkdirAll    Op = "mkdirall"
	OpStat        Op = "stat"
	OpRemove      Op = "remove"
	OpRename      Op = "rename"
)

// InjectedError marks an error as intentionally injected by [Faulty].
// It wraps the underlying *os.PathError so errors.Is/As keep working.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) came from [Faulty].
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Rule describes one injected failure.
type Rule struct {
	// Op is the operation to fail.
	Op Op

	// Pattern is matched against the full path and against its base name
	// with [filepath.Match]. Empty matches every path.
	Pattern string

	// Errno is the error returned, wrapped in an *os.PathError.
	// Defaults to EIO.
	Errno syscall.Errno

	// Times limits how often the rule fires. Zero or negative means always.
	Times int
}

// Faulty wraps an [FS] and fails operations selected by [Rule]s.
//
// Unlike random fault injection, Faulty is deterministic: a rule fires on
// every matching call until it is used up or cleared. That makes it suitable
// for asserting exact rollback behavior.
type Faulty struct {
	fs FS

	mu    sync.Mutex
	rules []*Rule
	hits  map[Op]int
}

// NewFaulty wraps fs. With no rules it behaves exactly like fs.
func NewFaulty(fs FS) *Faulty {
	return &Faulty{fs: fs, hits: make(map[Op]int)}
}

// FailOn adds a rule and returns the receiver for chaining.
func (f *Faulty) FailOn(rule Rule) *Faulty {
	if rule.Errno == 0 {
		rule.Errno = syscall.EIO
	}

	f.mu.Lock()
	f.rules = append(f.rules, &rule)
	f.mu.Unlock()

	return f
}

// Clear removes all rules.
func (f *Faulty) Clear() {
	f.mu.Lock()
	f.rules = nil
	f.mu.Unlock()
}

// Hits returns how many failures were injected for op.
func (f *Faulty) Hits(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.hits[op]
}

func (f *Faulty) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, rule := range f.rules {
		if rule.Op != op || !matchPath(rule.Pattern, path) {
			continue
		}

		if rule.Times > 0 {
			rule.Times--
			if rule.Times == 0 {
				f.rules = append(f.rules[:i:i], f.rules[i+1:]...)
			}
		}

		f.hits[op]++

		return &InjectedError{Err: &os.PathError{Op: string(op), Path: path, Err: rule.Errno}}
	}

	return nil
}

func matchPath(pattern, path string) bool {
	if pattern == "" || pattern == path {
		return true
	}

	if ok, _ := filepath.Match(pattern, path); ok {
		return true
	}

	ok, _ := filepath.Match(pattern, filepath.Base(path))

	return ok
}

func (f *Faulty) Open(path string) (File, error) {
	if err := f.check(OpOpen, path); err != nil {
		return nil, err
	}

	return f.fs.Open(path)
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(OpOpenFile, path); err != nil {
		return nil, err
	}

	return f.fs.OpenFile(path, flag, perm)
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.check(OpReadFile, path); err != nil {
		return nil, err
	}

	return f.fs.ReadFile(path)
}

func (f *Faulty) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := f.check(OpWriteAtomic, path); err != nil {
		return err
	}

	return f.fs.WriteFileAtomic(path, data, perm)
}

func (f *Faulty) ReadDir(path string) ([]os.DirEntry, error) {
	if err := f.check(OpReadDir, path); err != nil {
		return nil, err
	}

	return f.fs.ReadDir(path)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}

	return f.fs.MkdirAll(path, perm)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.fs.Stat(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}

	return f.fs.Remove(path)
}

func (f *Faulty) Rename(oldpath, newpath string) error {
	if err := f.check(OpRename, oldpath); err != nil {
		return err
	}

	return f.fs.Rename(oldpath, newpath)
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
