// Package util provides small shared helpers for the gateway: secret
// masking for logs and introspection output, and atomic file writes for
// the credential store.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaskToken shortens a secret for safe inclusion in logs and stats output.
// It keeps enough of the prefix to distinguish records without exposing
// usable material.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return token[:1] + "..."
	}
	return token[:6] + "..." + token[len(token)-2:]
}

// MaskSensitiveQuery hides values of sensitive query parameters (key, token,
// api_key) while keeping the parameter names visible.
func MaskSensitiveQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	for i, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "key", "token", "api_key", "apikey", "access_token":
			parts[i] = kv[0] + "=" + MaskToken(kv[1])
		}
	}
	return strings.Join(parts, "&")
}

// WriteFileAtomic writes data to path via a temporary file in the same
// directory followed by a rename, so concurrent readers never observe a
// partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
