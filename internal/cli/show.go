package cli

import (
	"context"
	"time"

	flag "github.com/spf13/pflag"
)

// showCmd returns the show command.
func showCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("show", flag.ContinueOnError),
		Usage: "show <spot>",
		Short: "Show one spot",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execShow(o, s, args)
		},
	}
}

func execShow(o *IO, s *session, args []string) error {
	spot, err := spotArg(args)
	if err != nil {
		return err
	}

	l, err := s.open()
	if err != nil {
		return err
	}

	r, ok, err := l.Get(spot)
	if err != nil {
		return err
	}

	o.Println("spot=" + spot)

	if !ok {
		o.Println("status=free")

		return nil
	}

	o.Println("status=reserved")
	o.Println("occupant=" + r.Occupant)
	o.Println("date=" + r.Date)

	if !r.CreatedAt.IsZero() {
		o.Println("created_at=" + r.CreatedAt.Format(time.RFC3339))
	}

	if !r.UpdatedAt.IsZero() {
		o.Println("updated_at=" + r.UpdatedAt.Format(time.RFC3339))
	}

	return nil
}
