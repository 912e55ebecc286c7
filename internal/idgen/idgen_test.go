package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func never(string) (bool, error) { return false, nil }

func TestNewWorkItemIDShape(t *testing.T) {
	id, err := NewWorkItemID(never)
	require.NoError(t, err)
	assert.Len(t, id, len(Prefix)+tokenLen)
	assert.True(t, Valid(id), "generated id %q should validate", id)
}

func TestNewWorkItemIDWidensOnCollision(t *testing.T) {
	calls := 0
	exists := func(id string) (bool, error) {
		calls++
		// Every standard-length id collides; the widened one is free.
		return len(id) == len(Prefix)+tokenLen, nil
	}
	id, err := NewWorkItemID(exists)
	require.NoError(t, err)
	assert.Len(t, id, len(Prefix)+tokenLen+1)
	assert.Equal(t, maxAttempts+1, calls)
}

func TestNewWorkItemIDExhausted(t *testing.T) {
	always := func(string) (bool, error) { return true, nil }
	_, err := NewWorkItemID(always)
	assert.Error(t, err)
}

func TestNewWorkItemIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewWorkItemID(never)
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("tdb-ab12c"))
	assert.True(t, Valid("tdb-ab12cd"))
	assert.False(t, Valid("tdb-AB12C"))
	assert.False(t, Valid("tdb-ab1"))
	assert.False(t, Valid("bd-ab12c"))
	assert.False(t, Valid("tdb-ab12cde"))
	assert.False(t, Valid(""))
}
