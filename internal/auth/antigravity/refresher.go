package antigravity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/util"
)

const (
	oauthTokenURL     = "https://oauth2.googleapis.com/token"
	oauthClientID     = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"
	oauthClientSecret = "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"

	userAgent = "antigravity/1.11.5 windows/amd64"
)

// AuthError reports a failed token refresh with the upstream status so the
// caller can classify the cooldown.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token refresh failed: status %d: %s", e.StatusCode, e.Body)
}

// Refresher exchanges a refresh token for a fresh access token and persists
// the outcome through the store.
type Refresher struct {
	client   *http.Client
	tokenURL string
	store    *Store
}

// NewRefresher builds a refresher over the given store. A nil client
// selects a default with a 30 second timeout.
func NewRefresher(store *Store, client *http.Client) *Refresher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Refresher{client: client, tokenURL: oauthTokenURL, store: store}
}

// Refresh renews rec's access token in place. On success the rotated tokens
// are applied to the record and written back through the store. Failures
// with an upstream status are returned as *AuthError.
func (r *Refresher) Refresh(ctx context.Context, rec *CredentialRecord) error {
	form := url.Values{}
	form.Set("client_id", oauthClientID)
	form.Set("client_secret", oauthClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", rec.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read token refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		recordRefresh("failure")
		log.Warnf("token refresh for %s failed with status %d", util.MaskToken(rec.Key()), resp.StatusCode)
		return &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	access := gjson.GetBytes(body, "access_token").String()
	if access == "" {
		recordRefresh("failure")
		return &AuthError{StatusCode: resp.StatusCode, Body: "response missing access_token"}
	}
	rotated := gjson.GetBytes(body, "refresh_token").String()
	expiresIn := gjson.GetBytes(body, "expires_in").Int()

	rec.ApplyToken(access, rotated, expiresIn, time.Now())
	recordRefresh("success")
	log.Debugf("refreshed access token for %s, expires in %ds", util.MaskToken(rec.Key()), expiresIn)

	if err = r.store.Persist(); err != nil {
		log.Warnf("failed to persist refreshed credential %s: %v", util.MaskToken(rec.Key()), err)
	}
	return nil
}
