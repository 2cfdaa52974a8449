package cli

import (
	"context"
	"fmt"

	"github.com/calvinalkan/spotledger/internal/gate"

	flag "github.com/spf13/pflag"
)

// hashTokenCmd returns the hash-token command.
func hashTokenCmd(s *session) *Command {
	fs := flag.NewFlagSet("hash-token", flag.ContinueOnError)
	fs.Int("cost", gate.DefaultCost, "bcrypt cost")

	return &Command{
		Flags: fs,
		Usage: "hash-token [<token>]",
		Short: "Print the admin_token_hash for a token",
		Long: `Print the bcrypt hash to put in admin_token_hash.

Without an argument the token from --token or $` + EnvToken + ` is hashed.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			token := s.token

			switch len(args) {
			case 0:
			case 1:
				token = args[0]
			default:
				return fmt.Errorf("%w: %s", ErrTooManyArgs, args[1])
			}

			if token == "" {
				return ErrTokenRequired
			}

			cost, _ := fs.GetInt("cost")

			hash, err := gate.HashToken(token, cost)
			if err != nil {
				return err
			}

			o.Println(hash)

			return nil
		},
	}
}
