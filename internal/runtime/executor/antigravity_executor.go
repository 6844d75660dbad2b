// Package executor issues generate-content calls against the upstream API
// with credentials drawn from the pool, trying every eligible credential
// exactly once before surfacing a failure.
package executor

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/1-Tawsif-1/Antigravity-great-2/internal/auth/antigravity"
	"github.com/1-Tawsif-1/Antigravity-great-2/internal/util"
)

const (
	// DefaultBaseURL is the daily release channel of the upstream API.
	DefaultBaseURL = "https://daily-cloudcode-pa.googleapis.com"

	streamPath   = "/v1internal:streamGenerateContent?alt=sse"
	generatePath = "/v1internal:generateContent"
	modelsPath   = "/v1internal:fetchAvailableModels"

	userAgent      = "antigravity/1.11.5 windows/amd64"
	apiClient      = "gl-node/22.17.0"
	clientMetadata = "ideType=IDE_UNSPECIFIED,platform=PLATFORM_UNSPECIFIED,pluginType=GEMINI"

	// scanner buffer for upstream SSE lines, which can carry large inline
	// payloads.
	scannerBufferSize = 10 * 1024 * 1024

	defaultReadIdle = 5 * time.Minute
)

// StatusError is an upstream rejection carried with its HTTP status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Message)
}

// StatusCode returns the upstream HTTP status.
func (e *StatusError) StatusCode() int { return e.Code }

// IsRetryable reports whether a status code marks a failure worth trying on
// another credential.
func IsRetryable(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusForbidden,
		http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// StreamChunk is one upstream SSE payload or a terminal read error.
type StreamChunk struct {
	Payload []byte
	Err     error
}

// Options carries the executor tunables.
type Options struct {
	BaseURL         string
	ReadIdleTimeout time.Duration
	Client          *http.Client
}

// Executor owns the upstream HTTP calls and the try-all-then-fail retry
// walk over the credential pool.
type Executor struct {
	pool     *antigravity.PoolManager
	client   *http.Client
	baseURL  string
	readIdle time.Duration
}

// New builds an executor over the given pool.
func New(pool *antigravity.PoolManager, opts Options) *Executor {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ReadIdleTimeout <= 0 {
		opts.ReadIdleTimeout = defaultReadIdle
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: opts.ReadIdleTimeout},
		}
	}
	registerMetrics()
	return &Executor{
		pool:     pool,
		client:   opts.Client,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		readIdle: opts.ReadIdleTimeout,
	}
}

func (e *Executor) buildRequest(ctx context.Context, path, token string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("X-Goog-Api-Client", apiClient)
	req.Header.Set("Client-Metadata", clientMetadata)
	return req, nil
}

// decodeBody unwraps the response body, handling the gzip encoding we asked
// for explicitly.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		return struct {
			io.Reader
			io.Closer
		}{zr, resp.Body}, nil
	}
	return resp.Body, nil
}

// doWithPool walks every eligible credential exactly once and returns the
// first successful open response. Failures are reported to the pool as they
// happen; only the last error is surfaced, and only after the walk ends.
// Zero eligible credentials at entry is reported immediately as
// ErrPoolExhausted.
func (e *Executor) doWithPool(ctx context.Context, path string, body []byte) (*http.Response, error) {
	total := e.pool.EligibleCount()
	if total == 0 {
		return nil, antigravity.ErrPoolExhausted
	}

	var lastErr error
	for i := 0; i < total; i++ {
		rec := e.pool.SelectByIndex(ctx, i)
		if rec == nil {
			continue
		}
		attempt := body
		if body != nil && rec.ProjectID != "" {
			attempt, _ = sjson.SetBytes(body, "project", rec.ProjectID)
		}
		req, err := e.buildRequest(ctx, path, rec.AccessToken, attempt)
		if err != nil {
			return nil, err
		}
		resp, err := e.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("upstream request: %w", err)
			log.Warnf("upstream call with credential %s failed: %v", util.MaskToken(rec.Key()), err)
			e.pool.ReportFailure(rec, 0)
			recordRetry()
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		msg := readErrorBody(resp)
		_ = resp.Body.Close()
		lastErr = &StatusError{Code: resp.StatusCode, Message: msg}
		if IsRetryable(resp.StatusCode) {
			log.Debugf("credential %s got retryable status %d, rotating", util.MaskToken(rec.Key()), resp.StatusCode)
		} else {
			log.Warnf("credential %s got status %d, rotating anyway", util.MaskToken(rec.Key()), resp.StatusCode)
		}
		e.pool.ReportFailure(rec, resp.StatusCode)
		recordRetry()
	}
	if lastErr == nil {
		lastErr = antigravity.ErrPoolExhausted
	}
	return nil, lastErr
}

func readErrorBody(resp *http.Response) string {
	reader, err := decodeBody(resp)
	if err != nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(reader, 64*1024))
	return strings.TrimSpace(string(data))
}

// Execute issues a non-streaming generate call and returns the response
// document.
func (e *Executor) Execute(ctx context.Context, body []byte) ([]byte, error) {
	resp, err := e.doWithPool(ctx, generatePath, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	reader, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}

// ExecuteStream opens a streaming generate call and returns a channel of
// SSE payloads. The channel closes when the upstream stream ends, the
// context is cancelled, or no data arrives within the read-idle timeout.
func (e *Executor) ExecuteStream(ctx context.Context, body []byte) (<-chan StreamChunk, error) {
	// The stream context backs the upstream request so the idle timer can
	// abort a stalled body read, not just the channel send.
	streamCtx, cancel := context.WithCancel(ctx)
	resp, err := e.doWithPool(streamCtx, streamPath, body)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer cancel()
		defer func() { _ = resp.Body.Close() }()

		reader, err := decodeBody(resp)
		if err != nil {
			out <- StreamChunk{Err: err}
			return
		}

		idle := time.AfterFunc(e.readIdle, cancel)
		defer idle.Stop()

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 1024*1024), scannerBufferSize)
		for scanner.Scan() {
			idle.Reset(e.readIdle)
			line := scanner.Bytes()
			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			payload := bytes.TrimSpace(line[len("data: "):])
			if len(payload) == 0 {
				continue
			}
			chunk := make([]byte, len(payload))
			copy(chunk, payload)
			select {
			case out <- StreamChunk{Payload: chunk}:
			case <-streamCtx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && streamCtx.Err() == nil {
			out <- StreamChunk{Err: fmt.Errorf("read upstream stream: %w", err)}
		}
	}()
	return out, nil
}

// FetchModels issues the no-body models listing call and returns the raw
// response document.
func (e *Executor) FetchModels(ctx context.Context) ([]byte, error) {
	resp, err := e.doWithPool(ctx, modelsPath, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	reader, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(reader)
}
