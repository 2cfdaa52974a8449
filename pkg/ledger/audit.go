package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/spotledger/pkg/fs"
)

// Action is the kind of an accepted mutation.
type Action string

// Audited actions.
const (
	ActionBook    Action = "book"
	ActionEdit    Action = "edit"
	ActionRelease Action = "release"
)

// Record is one immutable audit trail entry.
type Record struct {
	ID     string    `json:"id"`
	Action Action    `json:"action"`
	Spot   string    `json:"spot"`
	Time   time.Time `json:"time"`
}

// newRecord stamps a record with a UUIDv7 so ids sort by creation time.
func newRecord(action Action, spot string, at time.Time) (Record, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Record{}, fmt.Errorf("generate uuidv7: %w", err)
	}

	return Record{ID: id.String(), Action: action, Spot: spot, Time: at.UTC()}, nil
}

// Audit is the append-only trail of accepted mutations.
// The ledger writes to it and never reads it back.
type Audit interface {
	Append(rec Record) error
}

// ErrAuditCorrupt reports an audit line that cannot be decoded.
var ErrAuditCorrupt = errors.New("audit trail corrupt")

// FileAudit appends records as JSON lines to a single file.
type FileAudit struct {
	fs   fs.FS
	path string
}

// NewFileAudit returns an audit trail writing to path.
func NewFileAudit(fsys fs.FS, path string) *FileAudit {
	if fsys == nil {
		panic("fs is nil")
	}

	return &FileAudit{fs: fsys, path: path}
}

// Path returns the audit file path.
func (a *FileAudit) Path() string {
	return a.path
}

// Append writes rec as one line. The file is opened with O_APPEND so lines
// are never rewritten.
func (a *FileAudit) Append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}

	line = append(line, '\n')

	err = a.fs.MkdirAll(filepath.Dir(a.path), storeDirPerm)
	if err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	f, err := a.fs.OpenFile(a.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, storeFilePerm)
	if err != nil {
		return fmt.Errorf("open audit: %w", err)
	}

	_, writeErr := f.Write(line)
	closeErr := f.Close()

	if writeErr != nil {
		return errors.Join(fmt.Errorf("append audit: %w", writeErr), closeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close audit: %w", closeErr)
	}

	return nil
}

// ReadAudit returns all records in path, oldest first. It is meant for
// operational tooling.
//
// A missing file is an empty trail. A final line without a trailing newline
// is a torn append from a crash and is skipped; any other undecodable line
// is an error matching [ErrAuditCorrupt].
func ReadAudit(fsys fs.FS, path string) ([]Record, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read audit: %w", err)
	}

	lines := bytes.Split(data, []byte{'\n'})

	// The last element is empty for a complete file and a torn append otherwise.
	lines = lines[:len(lines)-1]

	var records []Record

	for i, raw := range lines {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}

		var rec Record

		decodeErr := json.Unmarshal(line, &rec)
		if decodeErr != nil {
			return records, fmt.Errorf("%w: line %d: %w", ErrAuditCorrupt, i+1, decodeErr)
		}

		records = append(records, rec)
	}

	return records, nil
}
