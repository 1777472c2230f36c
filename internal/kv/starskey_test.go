package kv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStarskey(t *testing.T, dir string) *StarskeyStore {
	t.Helper()
	store, err := NewStarskeyStore(dir)
	require.NoError(t, err)
	return store
}

func TestStarskeyStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store := openTestStarskey(t, dir)

	type state struct {
		Service string   `json:"service"`
		Repos   []string `json:"repos"`
	}
	want := state{Service: "https://registry.example.com", Repos: []string{"team/app"}}
	require.NoError(t, SetJSON(store, "p.r1.state", want))
	require.NoError(t, store.Set("p.r2.state", []byte(`{"service":"other"}`)))

	var got state
	ok, err := GetJSON(store, "p.r1.state", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, err = store.Get("p.missing.state")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err = GetJSON(store, "p.missing.state", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Delete("p.r2.state"))
	_, err = store.Get("p.r2.state")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Close())

	// Starskey diagnostics land in the log file, not on stderr.
	_, err = os.Stat(dir + ".log")
	assert.NoError(t, err)

	reopened := openTestStarskey(t, dir)
	t.Cleanup(func() { _ = reopened.Close() })

	got = state{}
	ok, err = GetJSON(reopened, "p.r1.state", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, err = reopened.Get("p.r2.state")
	assert.ErrorIs(t, err, ErrNotFound)
}
