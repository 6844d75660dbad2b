package antigravity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoolOptions() PoolOptions {
	return PoolOptions{
		CacheInterval:     15 * time.Second,
		GenericCooldown:   time.Minute,
		AuthCooldown:      5 * time.Minute,
		RateLimitCooldown: 10 * time.Minute,
	}
}

// newTestPool builds a pool over n fresh file-backed credentials and a
// controllable clock.
func newTestPool(t *testing.T, keys []string, refresher *Refresher) (*PoolManager, *time.Time) {
	t.Helper()
	clearEnvSources(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := make([]*CredentialRecord, 0, len(keys))
	for _, key := range keys {
		recs = append(recs, &CredentialRecord{
			RefreshToken: key,
			AccessToken:  "at-" + key,
			Timestamp:    now.UnixMilli(),
			ExpiresIn:    24 * 3600,
		})
	}
	path := writeCredsFile(t, recs)
	store := NewStore(path, time.Minute)
	if refresher != nil {
		refresher.store = store
	}
	pool := NewPoolManager(store, refresher, testPoolOptions())
	pool.now = func() time.Time { return now }
	return pool, &now
}

func TestPoolRoundRobin(t *testing.T) {
	pool, _ := newTestPool(t, []string{"rt-a", "rt-b", "rt-c"}, nil)
	ctx := context.Background()

	var order []string
	for i := 0; i < 4; i++ {
		rec, err := pool.SelectNext(ctx)
		require.NoError(t, err)
		order = append(order, rec.Key())
	}
	assert.Equal(t, []string{"rt-a", "rt-b", "rt-c", "rt-a"}, order)
}

func TestPoolCooldownClasses(t *testing.T) {
	pool, now := newTestPool(t, []string{"rt-a", "rt-b", "rt-c", "rt-d"}, nil)
	recs := pool.store.LoadAll(false)
	require.Len(t, recs, 4)

	pool.ReportFailure(recs[0], http.StatusTooManyRequests)
	pool.ReportFailure(recs[1], http.StatusForbidden)
	pool.ReportFailure(recs[2], http.StatusInternalServerError)
	pool.ReportFailure(recs[3], http.StatusUnauthorized)

	opts := testPoolOptions()
	assert.Equal(t, now.Add(opts.RateLimitCooldown), *recs[0].CooldownUntil)
	assert.Equal(t, now.Add(opts.AuthCooldown), *recs[1].CooldownUntil)
	assert.Equal(t, now.Add(opts.GenericCooldown), *recs[2].CooldownUntil)
	assert.Equal(t, now.Add(opts.GenericCooldown), *recs[3].CooldownUntil,
		"auth rejection on a live token gets the short cooldown")
}

func TestPoolExhaustionAndRecovery(t *testing.T) {
	pool, now := newTestPool(t, []string{"rt-a", "rt-b", "rt-c"}, nil)
	ctx := context.Background()

	first, err := pool.SelectNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rt-a", first.Key())

	for _, rec := range pool.store.LoadAll(false) {
		pool.ReportFailure(rec, http.StatusInternalServerError)
	}

	// The snapshot is still warm, so the failed rotation walks all three
	// and leaves the cursor where it started.
	_, err = pool.SelectNext(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	_, err = pool.SelectNext(ctx)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	*now = now.Add(2 * time.Minute) // past the generic cooldown and the caches
	pool.Invalidate()
	rec, err := pool.SelectNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rt-b", rec.Key(), "rotation resumes where it left off")
}

func TestPoolSelectByIndexStableSnapshot(t *testing.T) {
	pool, _ := newTestPool(t, []string{"rt-a", "rt-b", "rt-c"}, nil)
	ctx := context.Background()

	a := pool.SelectByIndex(ctx, 0)
	require.NotNil(t, a)
	assert.Equal(t, "rt-a", a.Key())

	// Cooling the first credential must not shift the later indices while
	// the snapshot is warm.
	pool.ReportFailure(a, http.StatusTooManyRequests)
	assert.Nil(t, pool.SelectByIndex(ctx, 0), "cooled entry is skipped in place")

	b := pool.SelectByIndex(ctx, 1)
	require.NotNil(t, b)
	assert.Equal(t, "rt-b", b.Key())

	c := pool.SelectByIndex(ctx, 2)
	require.NotNil(t, c)
	assert.Equal(t, "rt-c", c.Key())

	assert.Nil(t, pool.SelectByIndex(ctx, 3), "walk ends past the snapshot")
	assert.Nil(t, pool.SelectByIndex(ctx, -1))
}

func TestPoolRefreshesExpiredCredential(t *testing.T) {
	refreshed := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshed++
		_, _ = w.Write([]byte(`{"access_token":"at-renewed","expires_in":3600}`))
	}))
	defer server.Close()

	pool, now := newTestPool(t, []string{"rt-a"}, nil)
	recs := pool.store.LoadAll(false)
	require.Len(t, recs, 1)
	recs[0].Timestamp = now.Add(-48 * time.Hour).UnixMilli()
	recs[0].ExpiresIn = 3600

	refresher := NewRefresher(pool.store, server.Client())
	refresher.tokenURL = server.URL
	pool.refresher = refresher

	rec, err := pool.SelectNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, "at-renewed", rec.AccessToken)
	assert.False(t, rec.IsExpired(*now))

	// A fresh token is handed out again without another exchange.
	_, err = pool.SelectNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
}

func TestPoolRefreshFailureCoolsAndSkips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	pool, now := newTestPool(t, []string{"rt-dead", "rt-live"}, nil)
	recs := pool.store.LoadAll(false)
	require.Len(t, recs, 2)
	recs[0].Timestamp = 0
	recs[0].ExpiresIn = 0

	refresher := NewRefresher(pool.store, server.Client())
	refresher.tokenURL = server.URL
	pool.refresher = refresher

	rec, err := pool.SelectNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rt-live", rec.Key(), "rotation skips past the failed refresh")

	opts := testPoolOptions()
	require.NotNil(t, recs[0].CooldownUntil)
	assert.Equal(t, now.Add(opts.AuthCooldown), *recs[0].CooldownUntil,
		"invalid_grant is an auth-class failure")
}

func TestPoolTryAllScenario(t *testing.T) {
	// Three credentials, one request: the first answers 429, the second
	// 500, the third succeeds. Each failure is reported as it happens and
	// the by-index walk still reaches the third credential.
	pool, now := newTestPool(t, []string{"rt-a", "rt-b", "rt-c"}, nil)
	ctx := context.Background()

	statuses := map[string]int{"rt-a": http.StatusTooManyRequests, "rt-b": http.StatusInternalServerError}
	var winner string
	for i := 0; ; i++ {
		rec := pool.SelectByIndex(ctx, i)
		if rec == nil {
			if i >= pool.EligibleCount() {
				break
			}
			continue
		}
		if status, failing := statuses[rec.Key()]; failing {
			pool.ReportFailure(rec, status)
			continue
		}
		winner = rec.Key()
		break
	}
	require.Equal(t, "rt-c", winner)

	opts := testPoolOptions()
	recs := pool.store.LoadAll(false)
	assert.Equal(t, now.Add(opts.RateLimitCooldown), *recs[0].CooldownUntil)
	assert.Equal(t, now.Add(opts.GenericCooldown), *recs[1].CooldownUntil)
	assert.Nil(t, recs[2].CooldownUntil)
}

func TestPoolStatsMasksKeys(t *testing.T) {
	pool, _ := newTestPool(t, []string{"rt-secret-material-1234"}, nil)
	_, err := pool.SelectNext(context.Background())
	require.NoError(t, err)

	stats := pool.Stats()
	require.Len(t, stats, 1)
	assert.NotContains(t, stats[0].Key, "secret-material")
	assert.Equal(t, int64(1), stats[0].Usage.Requests)
}
