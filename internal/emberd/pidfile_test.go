package emberd

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFileWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "daemon.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.Write())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFileReadMissingFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "daemon.pid"))
	_, err := pf.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
}

func TestPIDFileIsRunningForOwnProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	pf := NewPIDFile(path)
	require.NoError(t, pf.Write())
	assert.True(t, pf.IsRunning())
}

func TestPIDFileIsRunningFalseForMissingFile(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "daemon.pid"))
	assert.False(t, pf.IsRunning())
}

func TestPIDFileRemoveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	pf := NewPIDFile(path)
	require.NoError(t, pf.Write())
	require.NoError(t, pf.Remove())
	require.NoError(t, pf.Remove())
}

func TestPIDFileSignalZeroOnSelf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	pf := NewPIDFile(path)
	require.NoError(t, pf.Write())
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}
