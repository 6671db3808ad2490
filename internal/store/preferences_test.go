package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferences_Defaults(t *testing.T) {
	p, err := OpenPreferences(filepath.Join(t.TempDir(), "preferences.json"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, p.Player().Volume)
	assert.False(t, p.Player().Muted)
	assert.False(t, p.CompressionEnabled(OriginStream))
}

func TestPreferences_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.json")

	p, err := OpenPreferences(path)
	require.NoError(t, err)
	require.NoError(t, p.SetPlayer(0.25, true))
	require.NoError(t, p.SetCompression(OriginFull, true))

	reopened, err := OpenPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, reopened.Player().Volume)
	assert.True(t, reopened.Player().Muted)
	assert.True(t, reopened.CompressionEnabled(OriginFull))
	assert.False(t, reopened.CompressionEnabled(OriginTrim))
}

func TestPreferences_Validation(t *testing.T) {
	p, err := OpenPreferences(filepath.Join(t.TempDir(), "preferences.json"))
	require.NoError(t, err)

	assert.Error(t, p.SetPlayer(1.5, false))
	assert.Error(t, p.SetPlayer(-0.1, false))
	assert.Error(t, p.SetCompression("torrent", true))
}
