// Package gate decides whether a caller is privileged.
//
// The ledger never computes privilege itself; callers ask a [Gate] and pass
// the resulting boolean along with each operation.
package gate

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used by [HashToken].
const DefaultCost = bcrypt.DefaultCost

// ErrEmptyToken is returned when hashing an empty token.
var ErrEmptyToken = errors.New("token is empty")

// Gate checks capability tokens against a bcrypt hash.
// The zero Gate, or one built from an empty hash, grants privilege to nobody.
type Gate struct {
	hash []byte
}

// New returns a gate for the given bcrypt hash. An empty hash is allowed and
// yields a gate that denies everyone.
func New(hash string) (*Gate, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &Gate{}, nil
	}

	_, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return nil, fmt.Errorf("invalid admin token hash: %w", err)
	}

	return &Gate{hash: []byte(hash)}, nil
}

// Privileged reports whether token matches the configured hash.
// The comparison is constant-time within bcrypt.
func (g *Gate) Privileged(token string) bool {
	if g == nil || len(g.hash) == 0 || token == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword(g.hash, []byte(token)) == nil
}

// Configured reports whether any token can be privileged.
func (g *Gate) Configured() bool {
	return g != nil && len(g.hash) > 0
}

// HashToken returns the bcrypt hash to store as admin_token_hash.
func HashToken(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}

	b, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}

	return string(b), nil
}
