package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammcvicker/ember/internal/indexer"
)

func TestParseModeDefaultsToWorktree(t *testing.T) {
	mode, err := parseMode("", "")
	require.NoError(t, err)
	assert.Equal(t, indexer.WorktreeMode(), mode)
}

func TestParseModeStaged(t *testing.T) {
	mode, err := parseMode("staged", "")
	require.NoError(t, err)
	assert.Equal(t, indexer.StagedMode(), mode)
}

func TestParseModeRevRequiresRevFlag(t *testing.T) {
	_, err := parseMode("rev", "")
	require.Error(t, err)
}

func TestParseModeRev(t *testing.T) {
	mode, err := parseMode("rev", "abc123")
	require.NoError(t, err)
	assert.Equal(t, indexer.RevMode("abc123"), mode)
}

func TestParseModeRejectsUnknown(t *testing.T) {
	_, err := parseMode("bogus", "")
	require.Error(t, err)
}
