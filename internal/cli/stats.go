package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/calvinalkan/spotledger/pkg/ledger"

	flag "github.com/spf13/pflag"
)

// statsCmd returns the stats command.
func statsCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("stats", flag.ContinueOnError),
		Usage: "stats",
		Short: "Show occupancy and ledger health",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: %s", ErrTooManyArgs, args[0])
			}

			l, err := s.open()
			if err != nil {
				return err
			}

			st := l.Stats()

			o.Println("spots=" + strconv.Itoa(st.Spots))
			o.Println("occupied=" + strconv.Itoa(st.Occupied))
			o.Println("free=" + strconv.Itoa(st.Free))
			o.Println("read_only=" + strconv.FormatBool(st.ReadOnly))
			o.Println("commit_failures=" + strconv.Itoa(st.CommitFailures))

			return nil
		},
	}
}

// recoverCmd returns the recover command.
func recoverCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("recover", flag.ContinueOnError),
		Usage: "recover",
		Short: "Reload the store and leave read-only mode (admin)",
		Long: `Reload the primary store from disk, discarding in-memory state, and make
the ledger writable again after repeated commit failures.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: %s", ErrTooManyArgs, args[0])
			}

			if !s.privileged() {
				return s.explain(fmt.Errorf("%w: recovering the ledger", ledger.ErrUnauthorized))
			}

			l, err := s.open()
			if err != nil {
				return err
			}

			err = l.Recover()
			if err != nil {
				return err
			}

			o.Printf("recovered: %d reservations loaded\n", l.Stats().Occupied)

			return nil
		},
	}
}
