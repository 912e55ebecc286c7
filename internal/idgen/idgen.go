// Package idgen generates short opaque work item identifiers.
//
// IDs look like tdb-x7k2m: a fixed prefix plus a random lowercase
// alphanumeric token. The token space at five characters is 36^5
// (about 60 million), plenty for a single-node store; on the unlikely
// run of collisions the generator widens to six characters rather
// than failing.
package idgen

import (
	"crypto/rand"
	"fmt"
)

// Prefix is the fixed work item id prefix.
const Prefix = "tdb-"

const (
	alphabet    = "abcdefghijklmnopqrstuvwxyz0123456789"
	tokenLen    = 5
	maxAttempts = 8
)

// ExistsFunc reports whether an id is already taken.
type ExistsFunc func(id string) (bool, error)

// NewWorkItemID generates a fresh work item id, consulting exists to
// avoid collisions. After maxAttempts collisions at the standard
// length it widens the token by one character.
func NewWorkItemID(exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, err := randomID(tokenLen)
		if err != nil {
			return "", err
		}
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}

	id, err := randomID(tokenLen + 1)
	if err != nil {
		return "", err
	}
	taken, err := exists(id)
	if err != nil {
		return "", err
	}
	if taken {
		return "", fmt.Errorf("id space exhausted after %d attempts", maxAttempts+1)
	}
	return id, nil
}

func randomID(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	token := make([]byte, n)
	for i, b := range buf {
		token[i] = alphabet[int(b)%len(alphabet)]
	}
	return Prefix + string(token), nil
}

// Valid reports whether a string has the shape of a generated id.
func Valid(id string) bool {
	if len(id) < len(Prefix)+tokenLen || len(id) > len(Prefix)+tokenLen+1 {
		return false
	}
	if id[:len(Prefix)] != Prefix {
		return false
	}
	for _, c := range id[len(Prefix):] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
