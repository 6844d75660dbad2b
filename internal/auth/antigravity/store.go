package antigravity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/util"
)

const (
	// envSourcePrefix names the ordered external credential inputs:
	// AG_CREDS_1 is primary, AG_CREDS_2..AG_CREDS_8 are supplementary.
	envSourcePrefix = "AG_CREDS_"
	maxEnvSources   = 8
)

// DefaultCredentialsPath returns the file-backed fallback location.
func DefaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".antigravity-gateway", "creds.json")
	}
	return filepath.Join(home, ".antigravity-gateway", "creds.json")
}

// Store loads credential records from the configured sources and exposes the
// working subset. Loads are cached for a minimum interval to bound I/O cost;
// Invalidate forces the next load to bypass the cache.
//
// Source order is fixed: environment sources first (AG_CREDS_1..AG_CREDS_8,
// each holding a raw or base64-encoded JSON array of records), then the
// file-backed fallback, used only when no environment source is present.
// Later sources append; they never overwrite an identity key seen earlier.
type Store struct {
	mu            sync.Mutex
	filePath      string
	cacheInterval time.Duration

	records   []*CredentialRecord
	loadedAt  time.Time
	immutable bool // true when records came from environment sources
}

// NewStore builds a store reading from the environment and the given file
// path (empty selects the default path).
func NewStore(filePath string, cacheInterval time.Duration) *Store {
	if filePath == "" {
		filePath = DefaultCredentialsPath()
	}
	return &Store{filePath: filePath, cacheInterval: cacheInterval}
}

// LoadAll returns every known credential record in source order, reloading
// from the sources when the cache interval has elapsed or force is set.
// Load failures yield an empty set and are logged, never propagated.
func (s *Store) LoadAll(force bool) []*CredentialRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(force, time.Now())
	out := make([]*CredentialRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Eligible returns the records that are enabled and not cooling down at now.
func (s *Store) Eligible(now time.Time) []*CredentialRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(false, now)
	eligible := make([]*CredentialRecord, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.IsEnabled() || rec.InCooldown(now) {
			continue
		}
		eligible = append(eligible, rec)
	}
	return eligible
}

// Invalidate discards the load cache so the next access re-reads sources.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

// Persist durably rewrites the file-backed record set. It is a no-op when
// the in-memory records originated from environment sources, which are
// immutable. Rows in the file whose identity key is unknown to the store
// are passed through unchanged.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.immutable {
		return nil
	}
	byKey := make(map[string]*CredentialRecord, len(s.records))
	for _, rec := range s.records {
		byKey[rec.Key()] = rec
	}

	var existing []json.RawMessage
	if data, err := os.ReadFile(s.filePath); err == nil {
		if errUnmarshal := json.Unmarshal(data, &existing); errUnmarshal != nil {
			log.Warnf("credential store: existing file %s is not a JSON array, rewriting: %v", s.filePath, errUnmarshal)
			existing = nil
		}
	}

	out := make([]any, 0, len(existing)+len(s.records))
	seen := make(map[string]struct{}, len(s.records))
	for _, raw := range existing {
		var probe CredentialRecord
		if err := json.Unmarshal(raw, &probe); err != nil || probe.RefreshToken == "" {
			out = append(out, raw)
			continue
		}
		if rec, ok := byKey[probe.RefreshToken]; ok {
			out = append(out, rec)
			seen[probe.RefreshToken] = struct{}{}
			continue
		}
		out = append(out, raw)
	}
	for _, rec := range s.records {
		if _, ok := seen[rec.Key()]; ok {
			continue
		}
		out = append(out, rec)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential records: %w", err)
	}
	if err = util.WriteFileAtomic(s.filePath, data, 0o600); err != nil {
		return fmt.Errorf("persist credential records: %w", err)
	}
	return nil
}

// loadLocked refreshes s.records from the sources when the cache is stale.
// Existing record pointers are kept for identity keys that survive a reload
// so cooldown state and in-flight references stay valid.
func (s *Store) loadLocked(force bool, now time.Time) {
	if !force && !s.loadedAt.IsZero() && now.Sub(s.loadedAt) < s.cacheInterval {
		return
	}

	loaded, immutable := s.readSources()
	prev := make(map[string]*CredentialRecord, len(s.records))
	for _, rec := range s.records {
		prev[rec.Key()] = rec
	}

	merged := make([]*CredentialRecord, 0, len(loaded))
	seen := make(map[string]struct{}, len(loaded))
	for _, rec := range loaded {
		key := rec.Key()
		if key == "" {
			continue
		}
		// At most one in-memory record per identity key; first source wins.
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if old, ok := prev[key]; ok {
			// Keep the live record, adopting only the passive fields a
			// source edit may have changed.
			old.Enabled = rec.Enabled
			old.Provenance = rec.Provenance
			if old.AccessToken == "" {
				old.AccessToken = rec.AccessToken
				old.Timestamp = rec.Timestamp
				old.ExpiresIn = rec.ExpiresIn
				old.Expired = rec.Expired
			}
			if rec.ProjectID != "" {
				old.ProjectID = rec.ProjectID
			}
			merged = append(merged, old)
			continue
		}
		merged = append(merged, rec)
	}

	s.records = merged
	s.immutable = immutable
	s.loadedAt = now
}

// readSources materializes records from every configured source in fixed
// order. The second return value reports whether environment sources were
// used, making the set immutable for Persist.
func (s *Store) readSources() ([]*CredentialRecord, bool) {
	var records []*CredentialRecord
	envUsed := false
	for i := 1; i <= maxEnvSources; i++ {
		name := fmt.Sprintf("%s%d", envSourcePrefix, i)
		value := strings.TrimSpace(os.Getenv(name))
		if value == "" {
			continue
		}
		envUsed = true
		recs, err := decodeRecords([]byte(value))
		if err != nil {
			log.Errorf("credential store: failed to decode %s: %v", name, err)
			continue
		}
		for _, rec := range recs {
			rec.Provenance = fmt.Sprintf("env:%d", i)
		}
		records = append(records, recs...)
	}
	if envUsed {
		return records, true
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Errorf("credential store: failed to read %s: %v", s.filePath, err)
		}
		return nil, false
	}
	recs, err := decodeRecords(data)
	if err != nil {
		log.Errorf("credential store: failed to decode %s: %v", s.filePath, err)
		return nil, false
	}
	for _, rec := range recs {
		rec.Provenance = "file"
	}
	return recs, false
}

// decodeRecords accepts a JSON array of records, a single record object, or
// a base64 encoding of either.
func decodeRecords(data []byte) ([]*CredentialRecord, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	if trimmed[0] != '[' && trimmed[0] != '{' {
		decoded, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("neither JSON nor base64: %w", err)
		}
		trimmed = strings.TrimSpace(string(decoded))
	}
	if strings.HasPrefix(trimmed, "{") {
		var rec CredentialRecord
		if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
			return nil, err
		}
		return []*CredentialRecord{&rec}, nil
	}
	var recs []*CredentialRecord
	if err := json.Unmarshal([]byte(trimmed), &recs); err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, rec := range recs {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
