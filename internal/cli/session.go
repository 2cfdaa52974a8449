package cli

import (
	"fmt"
	"log/slog"

	"github.com/calvinalkan/spotledger/internal/gate"
	"github.com/calvinalkan/spotledger/pkg/ledger"
)

// session is the state shared by the commands of one invocation, or of one
// shell. The ledger is opened on first use and stays open (and locked) until
// close.
type session struct {
	cfg   Config
	env   map[string]string
	gate  *gate.Gate
	token string

	io     *IO
	logger *slog.Logger
	ledger *ledger.Ledger

	// shell keeps the ledger open between commands.
	shell bool
}

func newSession(cfg Config, env map[string]string, token string) (*session, error) {
	g, err := gate.New(cfg.AdminTokenHash)
	if err != nil {
		return nil, fmt.Errorf("%w: admin_token_hash: %w", ErrConfigInvalid, err)
	}

	s := &session{cfg: cfg, env: env, gate: g, token: token}
	s.logger = newLogger(func() *IO { return s.io })

	return s, nil
}

// privileged reports whether the session's token passes the gate.
func (s *session) privileged() bool {
	return s.gate.Privileged(s.token)
}

// open returns the session ledger, opening it on first call.
func (s *session) open() (*ledger.Ledger, error) {
	if s.ledger != nil {
		return s.ledger, nil
	}

	catalog, err := s.cfg.Catalog()
	if err != nil {
		return nil, err
	}

	l, err := ledger.Open(ledger.Config{
		Dir:               s.cfg.StoreDirAbs,
		Catalog:           catalog,
		Logger:            s.logger,
		BackupKeep:        s.cfg.BackupKeep,
		MaxCommitFailures: s.cfg.MaxCommitFailures,
		LockTimeout:       s.cfg.LockTimeoutDur,
	})
	if err != nil {
		return nil, err
	}

	s.ledger = l

	return l, nil
}

func (s *session) close() error {
	if s.ledger == nil {
		return nil
	}

	err := s.ledger.Close()
	s.ledger = nil

	return err
}
