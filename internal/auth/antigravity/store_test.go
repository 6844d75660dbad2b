package antigravity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnvSources(t *testing.T) {
	t.Helper()
	for i := 1; i <= maxEnvSources; i++ {
		t.Setenv(fmt.Sprintf("%s%d", envSourcePrefix, i), "")
	}
}

func writeCredsFile(t *testing.T, recs any) string {
	t.Helper()
	data, err := json.Marshal(recs)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestStoreLoadsEnvSourcesInOrder(t *testing.T) {
	clearEnvSources(t)
	t.Setenv("AG_CREDS_1", `[{"refresh_token":"rt-a"},{"refresh_token":"rt-b"}]`)
	raw := `[{"refresh_token":"rt-b"},{"refresh_token":"rt-c"}]`
	t.Setenv("AG_CREDS_3", base64.StdEncoding.EncodeToString([]byte(raw)))

	store := NewStore(filepath.Join(t.TempDir(), "unused.json"), time.Minute)
	recs := store.LoadAll(true)
	require.Len(t, recs, 3, "duplicate identity keys collapse to the first source")
	assert.Equal(t, "rt-a", recs[0].Key())
	assert.Equal(t, "rt-b", recs[1].Key())
	assert.Equal(t, "rt-c", recs[2].Key())
	assert.Equal(t, "env:1", recs[0].Provenance)
	assert.Equal(t, "env:3", recs[2].Provenance)
}

func TestStoreFileFallback(t *testing.T) {
	clearEnvSources(t)
	path := writeCredsFile(t, []*CredentialRecord{
		{RefreshToken: "rt-file"},
	})
	store := NewStore(path, time.Minute)
	recs := store.LoadAll(true)
	require.Len(t, recs, 1)
	assert.Equal(t, "rt-file", recs[0].Key())
	assert.Equal(t, "file", recs[0].Provenance)
}

func TestStoreEnvWinsOverFile(t *testing.T) {
	clearEnvSources(t)
	t.Setenv("AG_CREDS_1", `[{"refresh_token":"rt-env"}]`)
	path := writeCredsFile(t, []*CredentialRecord{{RefreshToken: "rt-file"}})
	store := NewStore(path, time.Minute)
	recs := store.LoadAll(true)
	require.Len(t, recs, 1)
	assert.Equal(t, "rt-env", recs[0].Key())
}

func TestStoreBrokenSourceYieldsEmptySet(t *testing.T) {
	clearEnvSources(t)
	t.Setenv("AG_CREDS_1", "not json and not base64!!")
	store := NewStore(filepath.Join(t.TempDir(), "unused.json"), time.Minute)
	assert.Empty(t, store.LoadAll(true))
}

func TestStoreReloadPreservesRecordPointers(t *testing.T) {
	clearEnvSources(t)
	path := writeCredsFile(t, []*CredentialRecord{
		{RefreshToken: "rt-a"},
		{RefreshToken: "rt-b"},
	})
	store := NewStore(path, time.Minute)
	first := store.LoadAll(true)
	require.Len(t, first, 2)

	until := time.Now().Add(time.Hour)
	first[0].CooldownUntil = &until

	second := store.LoadAll(true)
	require.Len(t, second, 2)
	assert.Same(t, first[0], second[0], "surviving identities keep their live record")
	assert.NotNil(t, second[0].CooldownUntil)
}

func TestStoreEligibleFiltersDisabledAndCooling(t *testing.T) {
	clearEnvSources(t)
	off := false
	path := writeCredsFile(t, []*CredentialRecord{
		{RefreshToken: "rt-ok"},
		{RefreshToken: "rt-off", Enabled: &off},
		{RefreshToken: "rt-cool"},
	})
	store := NewStore(path, time.Minute)
	recs := store.LoadAll(true)
	require.Len(t, recs, 3)
	now := time.Now()
	until := now.Add(time.Minute)
	recs[2].CooldownUntil = &until

	eligible := store.Eligible(now)
	require.Len(t, eligible, 1)
	assert.Equal(t, "rt-ok", eligible[0].Key())

	eligible = store.Eligible(until.Add(time.Second))
	assert.Len(t, eligible, 2, "cooldown expiry restores eligibility")
}

func TestStorePersistPassesUnknownRowsThrough(t *testing.T) {
	clearEnvSources(t)
	path := writeCredsFile(t, []map[string]any{
		{"refresh_token": "rt-a", "access_token": "at-stale"},
		{"note": "row without identity"},
		{"refresh_token": "rt-foreign"},
	})
	store := NewStore(path, time.Minute)
	// Only rt-a is known to the store for this test.
	t.Setenv("AG_CREDS_1", "")
	recs := store.LoadAll(true)
	require.Len(t, recs, 3)
	recs[0].AccessToken = "at-fresh"
	store.mu.Lock()
	store.records = recs[:1]
	store.mu.Unlock()

	require.NoError(t, store.Persist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "at-fresh", rows[0]["access_token"])
	assert.Equal(t, "row without identity", rows[1]["note"])
	assert.Equal(t, "rt-foreign", rows[2]["refresh_token"])
}

func TestStorePersistIsNoOpForEnvSources(t *testing.T) {
	clearEnvSources(t)
	t.Setenv("AG_CREDS_1", `[{"refresh_token":"rt-env"}]`)
	path := filepath.Join(t.TempDir(), "creds.json")
	store := NewStore(path, time.Minute)
	store.LoadAll(true)
	require.NoError(t, store.Persist())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "environment-backed sets never touch the file")
}

func TestStoreInvalidateForcesReload(t *testing.T) {
	clearEnvSources(t)
	path := writeCredsFile(t, []*CredentialRecord{{RefreshToken: "rt-a"}})
	store := NewStore(path, time.Hour)
	require.Len(t, store.LoadAll(false), 1)

	more, err := json.Marshal([]*CredentialRecord{{RefreshToken: "rt-a"}, {RefreshToken: "rt-b"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, more, 0o600))

	assert.Len(t, store.LoadAll(false), 1, "cache still warm")
	store.Invalidate()
	assert.Len(t, store.LoadAll(false), 2)
}
