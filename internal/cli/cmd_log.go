package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/calvinalkan/spotledger/pkg/fs"
	"github.com/calvinalkan/spotledger/pkg/ledger"

	flag "github.com/spf13/pflag"
)

const defaultLogLimit = 20

// logCmd returns the log command.
func logCmd(s *session) *Command {
	flags := flag.NewFlagSet("log", flag.ContinueOnError)
	flags.IntP("limit", "l", defaultLogLimit, "Show at most `N` records (0 for all)")
	flags.String("spot", "", "Only records for `spot`")

	return &Command{
		Flags: flags,
		Usage: "log [--limit N] [--spot <spot>]",
		Short: "Show the audit trail",
		Long: `Show the most recent audit records, oldest first.

The audit trail is read without taking the store lock.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execLog(o, s, flags, args)
		},
	}
}

func execLog(o *IO, s *session, flags *flag.FlagSet, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s", ErrTooManyArgs, args[0])
	}

	limit, _ := flags.GetInt("limit")
	if limit < 0 {
		return fmt.Errorf("--limit must be >= 0, got %d", limit)
	}

	spot, _ := flags.GetString("spot")
	spot = strings.TrimSpace(spot)

	records, err := ledger.ReadAudit(fs.NewReal(), filepath.Join(s.cfg.StoreDirAbs, ledger.AuditFileName))
	if err != nil {
		// Print what could be read before the bad line.
		printRecords(o, filterRecords(records, spot, limit))

		return err
	}

	records = filterRecords(records, spot, limit)
	if len(records) == 0 {
		o.Println("no audit records")

		return nil
	}

	printRecords(o, records)

	return nil
}

func filterRecords(records []ledger.Record, spot string, limit int) []ledger.Record {
	if spot != "" {
		kept := records[:0:0]

		for _, rec := range records {
			if rec.Spot == spot {
				kept = append(kept, rec)
			}
		}

		records = kept
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	return records
}

func printRecords(o *IO, records []ledger.Record) {
	for _, rec := range records {
		o.Printf("%s  %-7s  %-6s %s\n", rec.Time.Format(time.RFC3339), rec.Action, rec.Spot, rec.ID)
	}
}
