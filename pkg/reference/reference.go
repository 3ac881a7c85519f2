// Package reference issues the idempotency token attached to each purchase attempt.
package reference

import (
	"strings"

	"github.com/google/uuid"
)

// Generator produces purchase references.
type Generator interface {
	New() (string, error)
}

// UUIDGenerator issues random (version 4) UUIDs read from crypto/rand.
type UUIDGenerator struct{}

// New returns a fresh reference or the entropy error; there is no weaker fallback.
func (UUIDGenerator) New() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Short is the first block of a reference, used in human-facing instruction text.
func Short(ref string) string {
	head, _, _ := strings.Cut(ref, "-")
	return strings.ToUpper(head)
}
