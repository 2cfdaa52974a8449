package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// releaseCmd returns the release command.
func releaseCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("release", flag.ContinueOnError),
		Usage: "release <spot>",
		Short: "Free a spot (admin)",
		Long:  "Free a reserved spot. Releasing a spot that is already free succeeds and changes nothing.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execRelease(o, s, args)
		},
	}
}

func execRelease(o *IO, s *session, args []string) error {
	spot, err := spotArg(args)
	if err != nil {
		return err
	}

	l, err := s.open()
	if err != nil {
		return err
	}

	if !s.privileged() {
		return s.explain(l.Release(spot, false))
	}

	_, wasTaken, err := l.Get(spot)
	if err != nil {
		return err
	}

	err = l.Release(spot, true)
	if err != nil {
		return s.explain(err)
	}

	if wasTaken {
		o.Println("released", spot)
	} else {
		o.Println(spot, "is already free")
	}

	return nil
}
