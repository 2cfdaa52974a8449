package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// bookCmd returns the book command.
func bookCmd(s *session) *Command {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	fs.StringP("name", "n", "", "Occupant name (required)")
	fs.StringP("date", "d", "", "Reservation date (default: today)")

	return &Command{
		Flags: fs,
		Usage: "book <spot> -n <name> [-d <date>]",
		Short: "Reserve a specific spot (admin)",
		Long: `Reserve a named spot for an occupant.

Booking a specific spot requires the admin token. Use "quick" to take the
first free spot without one.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execBook(o, s, fs, args)
		},
	}
}

func execBook(o *IO, s *session, fs *flag.FlagSet, args []string) error {
	spot, err := spotArg(args)
	if err != nil {
		return err
	}

	name, _ := fs.GetString("name")

	date, _ := fs.GetString("date")
	if date == "" {
		date = today()
	}

	l, err := s.open()
	if err != nil {
		return err
	}

	r, err := l.Book(spot, name, date, s.privileged())
	if err != nil {
		return s.explain(err)
	}

	o.Println("booked", formatReservation(r))

	return nil
}

// quickCmd returns the quick command.
func quickCmd(s *session) *Command {
	fs := flag.NewFlagSet("quick", flag.ContinueOnError)
	fs.StringP("name", "n", "", "Occupant name (default: \"Quick Booking\")")
	fs.StringP("date", "d", "", "Reservation date (default: today)")

	return &Command{
		Flags: fs,
		Usage: "quick [-n <name>] [-d <date>]",
		Short: "Reserve the first free spot",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execQuick(o, s, fs, args)
		},
	}
}

func execQuick(o *IO, s *session, fs *flag.FlagSet, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s", ErrTooManyArgs, args[0])
	}

	name, _ := fs.GetString("name")
	date, _ := fs.GetString("date")

	l, err := s.open()
	if err != nil {
		return err
	}

	r, err := l.QuickBook(name, date)
	if err != nil {
		return err
	}

	o.Println("booked", formatReservation(r))

	return nil
}
