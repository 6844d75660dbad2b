// Package antigravity manages the rotating pool of Antigravity OAuth
// credentials: loading records from environment and file sources, refreshing
// expired bearer tokens against the Google OAuth endpoint, and selecting the
// next usable credential with failure-driven cooldowns.
package antigravity

import (
	"time"
)

// refreshSkew is subtracted from the true expiry so tokens are refreshed
// proactively before they stop working.
const refreshSkew = 5 * time.Minute

// CredentialRecord is one rotatable bearer-token identity with refresh
// material. The refresh token is the stable identity key across refreshes;
// the access token, timestamp and TTL are replaced in place on refresh.
type CredentialRecord struct {
	// AccessToken is the current bearer token.
	AccessToken string `json:"access_token"`

	// RefreshToken is the OAuth refresh material and the record's identity key.
	RefreshToken string `json:"refresh_token"`

	// Timestamp is the token issue time in unix milliseconds.
	Timestamp int64 `json:"timestamp,omitempty"`

	// ExpiresIn is the token lifetime in seconds from Timestamp.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// Expired is a legacy RFC3339 expiry field tolerated on load. When both
	// forms are present, Timestamp+ExpiresIn wins.
	Expired string `json:"expired,omitempty"`

	// Enabled disables the record without deleting it. nil means enabled.
	Enabled *bool `json:"enabled,omitempty"`

	// ProjectID is the Google Cloud project attached to this credential.
	ProjectID string `json:"project_id,omitempty"`

	// Email is the account email, if known. Informational only.
	Email string `json:"email,omitempty"`

	// Provenance names the source the record was loaded from (env:N or file).
	Provenance string `json:"-"`

	// CooldownUntil excludes the record from selection until the given time.
	// Entries self-expire: eligibility checks merely compare against now.
	CooldownUntil *time.Time `json:"-"`
}

// Key returns the record's stable identity key.
func (r *CredentialRecord) Key() string { return r.RefreshToken }

// IsEnabled reports whether the record may be selected at all.
func (r *CredentialRecord) IsEnabled() bool {
	return r != nil && (r.Enabled == nil || *r.Enabled)
}

// Expiry returns the true token expiry time, or the zero time when unknown.
func (r *CredentialRecord) Expiry() time.Time {
	if r == nil {
		return time.Time{}
	}
	if r.Timestamp > 0 && r.ExpiresIn > 0 {
		return time.UnixMilli(r.Timestamp).Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	if r.Expired != "" {
		if parsed, err := time.Parse(time.RFC3339, r.Expired); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// IsExpired reports whether the token needs a refresh at now. The refresh
// skew makes the boundary inclusive: a record whose adjusted expiry equals
// now is already expired. A record with unknown expiry counts as expired so
// the first use forces a refresh.
func (r *CredentialRecord) IsExpired(now time.Time) bool {
	expiry := r.Expiry()
	if expiry.IsZero() {
		return true
	}
	return !now.Before(expiry.Add(-refreshSkew))
}

// InCooldown reports whether the record is excluded from selection at now.
func (r *CredentialRecord) InCooldown(now time.Time) bool {
	return r != nil && r.CooldownUntil != nil && now.Before(*r.CooldownUntil)
}

// ApplyToken installs a freshly issued token, keeping the identity key
// unless the provider rotated it.
func (r *CredentialRecord) ApplyToken(accessToken, refreshToken string, expiresIn int64, now time.Time) {
	r.AccessToken = accessToken
	if refreshToken != "" {
		r.RefreshToken = refreshToken
	}
	r.ExpiresIn = expiresIn
	r.Timestamp = now.UnixMilli()
	r.Expired = now.Add(time.Duration(expiresIn) * time.Second).Format(time.RFC3339)
}
