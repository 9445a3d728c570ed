package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWatchlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.yaml")
	require.NoError(t, writeFile(path, "vendors:\n  - Apache\n  - microsoft\nproducts:\n  - OpenSSL\n"))

	wl, err := LoadWatchlist(path)
	require.NoError(t, err)

	assert.True(t, wl.Matches([]string{"apache"}, nil))
	assert.True(t, wl.Matches([]string{"MICROSOFT"}, nil))
	assert.True(t, wl.Matches(nil, []string{"openssl"}))
	assert.False(t, wl.Matches([]string{"Apache Software Foundation"}, nil))
	assert.False(t, wl.Matches(nil, nil))
}

func TestLoadWatchlistMissingFile(t *testing.T) {
	_, err := LoadWatchlist(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatchlistExactMatchOnly(t *testing.T) {
	wl := NewWatchlist([]string{"cisco"}, []string{"ios"})

	assert.True(t, wl.Matches([]string{"Cisco"}, nil))
	assert.True(t, wl.Matches(nil, []string{"IOS"}))
	// Substrings never match.
	assert.False(t, wl.Matches([]string{"cisco systems"}, nil))
	assert.False(t, wl.Matches(nil, []string{"ios xe"}))
}

func TestWatchlistEmptyNeverMatches(t *testing.T) {
	var wl *Watchlist
	assert.False(t, wl.Matches([]string{"apache"}, nil))
	assert.False(t, NewWatchlist(nil, nil).Matches([]string{"apache"}, nil))
}
