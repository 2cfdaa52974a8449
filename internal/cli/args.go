package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calvinalkan/spotledger/pkg/ledger"
)

const dateLayout = "2006-01-02"

// spotArg returns the single positional spot argument.
func spotArg(args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrSpotRequired
	}

	if len(args) > 1 {
		return "", fmt.Errorf("%w: %s", ErrTooManyArgs, strings.Join(args[1:], " "))
	}

	return strings.TrimSpace(args[0]), nil
}

func today() string {
	return time.Now().Format(dateLayout)
}

// explain adds a hint to errors a user can act on.
func (s *session) explain(err error) error {
	if !errors.Is(err, ledger.ErrUnauthorized) {
		return err
	}

	switch {
	case !s.gate.Configured():
		return fmt.Errorf("%w (no admin_token_hash configured)", err)
	case s.token == "":
		return fmt.Errorf("%w (pass --token or set %s)", err, EnvToken)
	default:
		return fmt.Errorf("%w (token rejected)", err)
	}
}

func formatReservation(r ledger.Reservation) string {
	return fmt.Sprintf("%s for %s on %s", r.Spot, r.Occupant, r.Date)
}
