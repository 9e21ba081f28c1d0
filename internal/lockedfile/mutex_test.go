//go:build unix

package lockedfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Cellar", ".brewer.lock")

	// flock locks belong to the open file description, so two opens in one
	// process contend just like two processes would.
	unlock, err := MutexAt(path).TryLock()
	require.NoError(t, err)

	_, err = MutexAt(path).TryLock()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	unlock()

	unlock, err = MutexAt(path).TryLock()
	require.NoError(t, err)
	unlock()
}

func TestUnlockReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".brewer.lock")
	for i := 0; i < 3; i++ {
		unlock, err := MutexAt(path).TryLock()
		require.NoError(t, err, "attempt %d", i)
		unlock()
	}
}

func TestEmptyPath(t *testing.T) {
	_, err := (&Mutex{}).TryLock()
	assert.Error(t, err)
}
