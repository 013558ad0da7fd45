// Package util provides utility functions for the storefront client.
// It includes helpers for log level management, path resolution and masking of
// credentials before they reach the logs.
package util

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/lojinha-app/storefront/internal/config"
	log "github.com/sirupsen/logrus"
)

// SetLogLevel configures the logrus log level based on the configuration.
// It sets the log level to DebugLevel if debug mode is enabled, otherwise to InfoLevel.
func SetLogLevel(cfg *config.Config) {
	currentLevel := log.GetLevel()
	newLevel := log.InfoLevel
	if cfg != nil && cfg.Debug {
		newLevel = log.DebugLevel
	}
	if currentLevel != newLevel {
		log.SetLevel(newLevel)
		log.Debugf("log level changed from %s to %s", currentLevel, newLevel)
	}
}

// ResolveSessionDir normalizes the session directory path.
// It expands a leading tilde (~) to the user's home directory and returns a cleaned path.
func ResolveSessionDir(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve session dir: %w", err)
		}
		remainder := strings.TrimLeft(strings.TrimPrefix(dir, "~"), "/\\")
		if remainder == "" {
			return filepath.Clean(home), nil
		}
		normalized := strings.ReplaceAll(remainder, "\\", "/")
		return filepath.Clean(filepath.Join(home, filepath.FromSlash(normalized))), nil
	}
	return filepath.Clean(dir), nil
}

// WritablePath returns the cleaned WRITABLE_PATH environment variable when it is set.
// It accepts both uppercase and lowercase variants.
func WritablePath() string {
	for _, key := range []string{"WRITABLE_PATH", "writable_path"} {
		if value, ok := os.LookupEnv(key); ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return filepath.Clean(trimmed)
			}
		}
	}
	return ""
}

// HideSecret keeps the first and last characters of a token and elides the rest.
func HideSecret(secret string) string {
	switch {
	case len(secret) > 8:
		return secret[:4] + "..." + secret[len(secret)-4:]
	case len(secret) > 4:
		return secret[:2] + "..." + secret[len(secret)-2:]
	case len(secret) > 2:
		return secret[:1] + "..." + secret[len(secret)-1:]
	}
	return secret
}

// MaskSensitiveQuery masks values of credential-like query parameters such as
// code, state and token so OAuth callbacks can be logged.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	changed := false
	for key, vals := range values {
		if !isSensitiveQueryParam(key) {
			continue
		}
		for i := range vals {
			vals[i] = HideSecret(vals[i])
		}
		changed = true
	}
	if !changed {
		return raw
	}
	return values.Encode()
}

func isSensitiveQueryParam(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	switch key {
	case "code", "state", "token", "access_token", "id_token", "refresh_token", "x-amz-signature", "x-amz-credential":
		return true
	}
	return strings.Contains(key, "secret") || strings.Contains(key, "password")
}

// MaskURL masks the sensitive query parameters of a full URL.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	u.RawQuery = MaskSensitiveQuery(u.RawQuery)
	return u.String()
}
