// Package store persists the signed-in session of the storefront client.
//
// Every backend keeps a local mirror file so the identity watcher can follow sign-ins
// made by other processes regardless of where the session is stored remotely.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/lojinha-app/storefront/sdk/session"
)

// DefaultProfile names the session when no profile is configured.
const DefaultProfile = "default"

// SessionFileName is the name of the local session file.
const SessionFileName = "session.json"

// ErrNotFound is returned by Load when no session is stored.
var ErrNotFound = errors.New("store: session not found")

// Record is the persisted form of a signed-in session.
type Record struct {
	Profile      string            `json:"profile,omitempty"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	IDToken      string            `json:"id_token,omitempty"`
	TokenType    string            `json:"token_type,omitempty"`
	Expiry       time.Time         `json:"expiry,omitempty"`
	Username     string            `json:"username,omitempty"`
	Subject      string            `json:"sub,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	SavedAt      time.Time         `json:"saved_at,omitempty"`
}

// Expired reports whether the access token is past its expiry, with a small skew.
func (r *Record) Expired(now time.Time) bool {
	if r == nil || r.Expiry.IsZero() {
		return false
	}
	return !now.Add(30 * time.Second).Before(r.Expiry)
}

// Identity returns the user the record belongs to.
func (r *Record) Identity() *session.Identity {
	if r == nil {
		return nil
	}
	identity := &session.Identity{Username: r.Username, Subject: r.Subject, Attributes: r.Attributes}
	return identity.Clone()
}

// DecodeRecord parses a session file body. Empty bodies and records without an access
// token report ErrNotFound.
func DecodeRecord(data []byte) (*Record, error) {
	return unmarshalRecord(data)
}

// SessionStore abstracts where the session lives.
type SessionStore interface {
	// Load returns the stored session or ErrNotFound.
	Load(ctx context.Context) (*Record, error)
	// Save persists the session and returns the local mirror path.
	Save(ctx context.Context, record *Record) (string, error)
	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context) error
	// Path is the local session file followed by the watcher.
	Path() string
}

func marshalRecord(record *Record) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(record.AccessToken) == "" {
		return nil, fmt.Errorf("record has no access token")
	}
	return json.MarshalIndent(record, "", "  ")
}

func unmarshalRecord(data []byte) (*Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNotFound
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if strings.TrimSpace(record.AccessToken) == "" {
		return nil, ErrNotFound
	}
	return &record, nil
}

// readRecordFile reads a session file, mapping a missing or empty file to ErrNotFound.
func readRecordFile(path string) (*Record, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	record, err := unmarshalRecord(data)
	return record, data, err
}

// writeFileAtomic writes data through a temp file and rename. It reports false when
// the file already holds equivalent JSON and nothing was written.
func writeFileAtomic(path string, data []byte) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("create dir: %w", err)
	}
	if existing, errRead := os.ReadFile(path); errRead == nil {
		if jsonEqual(existing, data) {
			return false, nil
		}
	} else if !errors.Is(errRead, fs.ErrNotExist) {
		return false, fmt.Errorf("read existing: %w", errRead)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return false, fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("rename: %w", err)
	}
	return true, nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func jsonEqual(a, b []byte) bool {
	var objA, objB any
	if err := json.Unmarshal(a, &objA); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &objB); err != nil {
		return false
	}
	return reflect.DeepEqual(objA, objB)
}

func normalizeProfile(profile string) string {
	profile = strings.ToLower(strings.TrimSpace(profile))
	if profile == "" {
		return DefaultProfile
	}
	var b strings.Builder
	for _, r := range profile {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
