package antigravity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/util"
)

// ErrPoolExhausted reports that no credential is currently eligible.
var ErrPoolExhausted = errors.New("credential pool exhausted")

// UsageStat tracks per-credential request accounting since startup.
type UsageStat struct {
	Requests  int64     `json:"requests"`
	Failures  int64     `json:"failures"`
	LastUsed  time.Time `json:"last_used"`
	LastError int       `json:"last_error,omitempty"`
}

// CredentialStatus is a redacted view of one pool entry for inspection
// endpoints.
type CredentialStatus struct {
	Key          string    `json:"key"`
	Email        string    `json:"email,omitempty"`
	Provenance   string    `json:"provenance"`
	Enabled      bool      `json:"enabled"`
	Expired      bool      `json:"expired"`
	CoolingUntil time.Time `json:"cooling_until,omitempty"`
	Usage        UsageStat `json:"usage"`
}

// PoolOptions carries the tunables a PoolManager needs.
type PoolOptions struct {
	CacheInterval     time.Duration
	GenericCooldown   time.Duration
	AuthCooldown      time.Duration
	RateLimitCooldown time.Duration
}

// PoolManager hands out credentials round-robin across the eligible set,
// refreshing expired access tokens on the way out and quarantining failing
// credentials for a class-dependent cooldown.
//
// The eligible set is recomputed at most once per cache interval. Within
// that window the set is a stable snapshot, so a caller walking it by index
// sees a consistent ordering even as cooldowns land mid-walk.
type PoolManager struct {
	mu        sync.Mutex
	store     *Store
	refresher *Refresher
	opts      PoolOptions

	cursor     int
	eligible   []*CredentialRecord
	eligibleAt time.Time
	usage      map[string]*UsageStat

	now func() time.Time
}

// NewPoolManager builds a pool over the given store and refresher.
func NewPoolManager(store *Store, refresher *Refresher, opts PoolOptions) *PoolManager {
	if opts.CacheInterval <= 0 {
		opts.CacheInterval = 15 * time.Second
	}
	if opts.GenericCooldown <= 0 {
		opts.GenericCooldown = time.Minute
	}
	if opts.AuthCooldown <= 0 {
		opts.AuthCooldown = 5 * time.Minute
	}
	if opts.RateLimitCooldown <= 0 {
		opts.RateLimitCooldown = 10 * time.Minute
	}
	registerMetrics()
	return &PoolManager{
		store:     store,
		refresher: refresher,
		opts:      opts,
		usage:     make(map[string]*UsageStat),
		now:       time.Now,
	}
}

// refreshEligibleLocked recomputes the eligible snapshot when it is stale.
// The cursor is clamped, not reset, so rotation position survives the
// recomputation.
func (p *PoolManager) refreshEligibleLocked(now time.Time, force bool) {
	if !force && !p.eligibleAt.IsZero() && now.Sub(p.eligibleAt) < p.opts.CacheInterval {
		return
	}
	p.eligible = p.store.Eligible(now)
	p.eligibleAt = now
	if len(p.eligible) == 0 {
		p.cursor = 0
	} else {
		p.cursor = p.cursor % len(p.eligible)
	}
	eligibleGauge.Set(float64(len(p.eligible)))
}

// SelectNext returns the next usable credential in rotation. Expired access
// tokens are renewed before the credential is handed out; a failed renewal
// cools the credential down and rotation continues. The cursor advances past
// every record it inspects, so a full failed rotation leaves it back where
// it started. Returns ErrPoolExhausted when no eligible credential remains.
func (p *PoolManager) SelectNext(ctx context.Context) (*CredentialRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.refreshEligibleLocked(now, false)
	n := len(p.eligible)
	if n == 0 {
		return nil, ErrPoolExhausted
	}

	for i := 0; i < n; i++ {
		idx := p.cursor
		p.cursor = (idx + 1) % n
		rec := p.eligible[idx]
		if !rec.IsEnabled() || rec.InCooldown(now) {
			continue
		}
		if got := p.ensureFreshLocked(ctx, rec, now); got != nil {
			p.touchLocked(rec, now)
			return rec, nil
		}
	}
	return nil, ErrPoolExhausted
}

// SelectByIndex returns the i-th credential of the current eligible
// snapshot, renewing its access token when expired. It returns nil once i
// runs past the snapshot, which is the caller's signal that every
// credential has been tried. The snapshot is only recomputed when the cache
// interval has elapsed, so one request's retry walk indexes a fixed set.
func (p *PoolManager) SelectByIndex(ctx context.Context, i int) *CredentialRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.refreshEligibleLocked(now, false)
	if i < 0 || i >= len(p.eligible) {
		return nil
	}
	rec := p.eligible[i]
	if !rec.IsEnabled() || rec.InCooldown(now) {
		return nil
	}
	if got := p.ensureFreshLocked(ctx, rec, now); got == nil {
		return nil
	}
	p.touchLocked(rec, now)
	return rec
}

// ensureFreshLocked renews rec's access token when expired. A failed
// renewal cools the credential and returns nil. Holding the pool lock
// through the refresh serializes concurrent renewals of the same record.
func (p *PoolManager) ensureFreshLocked(ctx context.Context, rec *CredentialRecord, now time.Time) *CredentialRecord {
	if !rec.IsExpired(now) {
		return rec
	}
	if p.refresher == nil {
		log.Warnf("credential %s expired and no refresher is configured", util.MaskToken(rec.Key()))
		p.coolLocked(rec, classGeneric, now)
		return nil
	}
	if err := p.refresher.Refresh(ctx, rec); err != nil {
		class := classifyRefreshError(err)
		log.Warnf("credential %s refresh failed (%s cooldown): %v", util.MaskToken(rec.Key()), class, err)
		p.coolLocked(rec, class, now)
		return nil
	}
	return rec
}

// ReportFailure quarantines rec after a failed upstream call, choosing the
// cooldown length from the response status.
func (p *PoolManager) ReportFailure(rec *CredentialRecord, statusCode int) {
	if rec == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	class := classifyStatus(statusCode)
	p.coolLocked(rec, class, now)
	if stat := p.usage[rec.Key()]; stat != nil {
		stat.Failures++
		stat.LastError = statusCode
	}
	log.Infof("credential %s cooling down for %s after status %d",
		util.MaskToken(rec.Key()), p.cooldownFor(class), statusCode)
}

// EligibleCount reports the size of the current eligible snapshot.
func (p *PoolManager) EligibleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshEligibleLocked(p.now(), false)
	return len(p.eligible)
}

// Invalidate drops the eligibility snapshot and the store's load cache so
// the next selection re-reads every source.
func (p *PoolManager) Invalidate() {
	p.store.Invalidate()
	p.mu.Lock()
	p.eligibleAt = time.Time{}
	p.mu.Unlock()
}

// Cursor returns the current rotation position.
func (p *PoolManager) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Stats returns a redacted status row per known credential.
func (p *PoolManager) Stats() []CredentialStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	records := p.store.LoadAll(false)
	out := make([]CredentialStatus, 0, len(records))
	for _, rec := range records {
		status := CredentialStatus{
			Key:        util.MaskToken(rec.Key()),
			Email:      rec.Email,
			Provenance: rec.Provenance,
			Enabled:    rec.IsEnabled(),
			Expired:    rec.IsExpired(now),
		}
		if rec.InCooldown(now) {
			status.CoolingUntil = *rec.CooldownUntil
		}
		if stat := p.usage[rec.Key()]; stat != nil {
			status.Usage = *stat
		}
		out = append(out, status)
	}
	return out
}

const (
	classGeneric   = "generic"
	classAuth      = "auth"
	classRateLimit = "rate_limit"
)

func classifyStatus(statusCode int) string {
	switch statusCode {
	case http.StatusTooManyRequests:
		return classRateLimit
	case http.StatusForbidden:
		return classAuth
	default:
		return classGeneric
	}
}

func classifyRefreshError(err error) string {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return classGeneric
	}
	switch authErr.StatusCode {
	case http.StatusTooManyRequests:
		return classRateLimit
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return classAuth
	default:
		return classGeneric
	}
}

func (p *PoolManager) cooldownFor(class string) time.Duration {
	switch class {
	case classRateLimit:
		return p.opts.RateLimitCooldown
	case classAuth:
		return p.opts.AuthCooldown
	default:
		return p.opts.GenericCooldown
	}
}

func (p *PoolManager) coolLocked(rec *CredentialRecord, class string, now time.Time) {
	until := now.Add(p.cooldownFor(class))
	rec.CooldownUntil = &until
	recordCooldown(class)
}

func (p *PoolManager) touchLocked(rec *CredentialRecord, now time.Time) {
	stat := p.usage[rec.Key()]
	if stat == nil {
		stat = &UsageStat{}
		p.usage[rec.Key()] = stat
	}
	stat.Requests++
	stat.LastUsed = now
}
