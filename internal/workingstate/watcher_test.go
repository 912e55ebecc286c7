package workingstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitResult(t *testing.T, w *Watcher) *Result {
	t.Helper()
	select {
	case result, ok := <-w.Results():
		require.True(t, ok, "result channel closed")
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for detection pass")
		return nil
	}
}

func TestWatcherDetectsEdit(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.seedFile(t, "a.txt", "A")
	ws := t.TempDir()
	write(t, ws, "a.txt", "A")

	w, err := Watch(ctx, f.detector, f.project.ID, f.branch.ID, ws, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	write(t, ws, "a.txt", "AA")

	result := waitResult(t, w)
	assert.Equal(t, 1, result.Modified)
	assert.True(t, result.Changed())
}

func TestWatcherDebouncesBursts(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := t.TempDir()
	w, err := Watch(ctx, f.detector, f.project.ID, f.branch.ID, ws, 200*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	// A burst of writes inside one debounce window yields a single pass
	// that already sees every file.
	write(t, ws, "one.txt", "1")
	write(t, ws, "two.txt", "2")
	write(t, ws, "three.txt", "3")

	result := waitResult(t, w)
	assert.Equal(t, 3, result.Added)

	select {
	case extra := <-w.Results():
		t.Fatalf("unexpected second pass: %+v", extra)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherSeesNewDirectories(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := t.TempDir()
	w, err := Watch(ctx, f.detector, f.project.ID, f.branch.ID, ws, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	write(t, ws, "nested/deep/file.txt", "x")

	result := waitResult(t, w)
	assert.Equal(t, 1, result.Added)
}

func TestWatcherStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	ws := t.TempDir()
	w, err := Watch(ctx, f.detector, f.project.ID, f.branch.ID, ws, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	cancel()

	select {
	case _, ok := <-w.Results():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("result channel did not close after cancel")
	}
}
