package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// lsCmd returns the ls command.
func lsCmd(s *session) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.Bool("free", false, "Only free spots")
	fs.Bool("taken", false, "Only reserved spots")

	return &Command{
		Flags: fs,
		Usage: "ls [--free | --taken]",
		Short: "List spots in catalog order",
		Long:  "List every spot in catalog order with its occupant and date, or \"free\".",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execLs(o, s, fs, args)
		},
	}
}

func execLs(o *IO, s *session, fs *flag.FlagSet, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s", ErrTooManyArgs, args[0])
	}

	onlyFree, _ := fs.GetBool("free")
	onlyTaken, _ := fs.GetBool("taken")

	if onlyFree && onlyTaken {
		return fmt.Errorf("%w: --free and --taken", errConflictingFlags)
	}

	l, err := s.open()
	if err != nil {
		return err
	}

	for _, e := range l.QueryAll() {
		switch {
		case e.Free() && !onlyTaken:
			o.Printf("%-6s free\n", e.Spot)
		case !e.Free() && !onlyFree:
			o.Printf("%-6s %s  %s\n", e.Spot, e.Reservation.Occupant, e.Reservation.Date)
		}
	}

	return nil
}
