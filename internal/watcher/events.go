package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lojinha-app/storefront/internal/store"
	"github.com/lojinha-app/storefront/sdk/session"
	log "github.com/sirupsen/logrus"
)

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("file watcher error: %v", errWatch)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := normalizePath(event.Name)
	isSessionEvent := name == normalizePath(w.sessionPath)
	isConfigEvent := w.configPath != "" && name == normalizePath(w.configPath) &&
		event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
	if !isSessionEvent && !isConfigEvent {
		return
	}
	log.Debugf("file system event detected: %s %s", event.Op.String(), event.Name)

	if isConfigEvent {
		w.scheduleConfigReload()
		return
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if w.shouldDebounceRemove(time.Now()) {
			log.Debugf("debouncing remove event for %s", filepath.Base(event.Name))
			return
		}
		time.Sleep(replaceCheckDelay)
		if _, statErr := os.Stat(w.sessionPath); statErr == nil {
			w.sessionWritten()
			return
		}
		w.sessionRemoved()
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		w.sessionWritten()
	}
}

// sessionWritten publishes signedIn when the session file holds a new valid session.
func (w *Watcher) sessionWritten() {
	data, errRead := os.ReadFile(w.sessionPath)
	if errRead != nil {
		if !errors.Is(errRead, os.ErrNotExist) {
			log.WithError(errRead).Warn("failed to read session file")
		}
		return
	}
	if len(data) == 0 {
		// Truncate before write; the following Write event carries the content.
		return
	}
	hash := hashBytes(data)

	w.mu.Lock()
	if hash == w.lastSessionHash {
		w.mu.Unlock()
		log.Debug("session file unchanged (hash match), skipping")
		return
	}
	w.mu.Unlock()

	record, errDecode := store.DecodeRecord(data)
	if errDecode != nil {
		log.WithError(errDecode).Debug("session file is not a usable session yet")
		return
	}

	if record.Expired(w.now()) && record.RefreshToken == "" {
		// Nothing can revive this session; treat it like a removed file.
		w.mu.Lock()
		known := w.lastSessionHash != ""
		w.lastSessionHash = ""
		w.mu.Unlock()
		if !known {
			log.Debug("session file holds an expired session, skipping")
			return
		}
		seq := w.publisher.Publish(session.EventSignedOut, nil)
		log.WithFields(log.Fields{"event": session.EventSignedOut, "seq": seq}).Info("session file expired")
		return
	}

	w.mu.Lock()
	w.lastSessionHash = hash
	w.mu.Unlock()

	identity := record.Identity()
	seq := w.publisher.Publish(session.EventSignedIn, identity)
	log.WithFields(log.Fields{"event": session.EventSignedIn, "seq": seq, "user": identity.ID()}).Info("session file changed")
}

// sessionRemoved publishes signedOut once per known session.
func (w *Watcher) sessionRemoved() {
	w.mu.Lock()
	if w.lastSessionHash == "" {
		w.mu.Unlock()
		log.Debug("ignoring remove of unknown session file")
		return
	}
	w.lastSessionHash = ""
	w.mu.Unlock()

	seq := w.publisher.Publish(session.EventSignedOut, nil)
	log.WithFields(log.Fields{"event": session.EventSignedOut, "seq": seq}).Info("session file removed")
}

func (w *Watcher) shouldDebounceRemove(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.lastRemoveTime.IsZero() && now.Sub(w.lastRemoveTime) < removeDebounceWindow && w.lastSessionHash == "" {
		return true
	}
	w.lastRemoveTime = now
	return false
}

func fileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	return hashBytes(data), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	cleaned := filepath.Clean(trimmed)
	if runtime.GOOS == "windows" {
		cleaned = strings.TrimPrefix(cleaned, `\\?\`)
		cleaned = strings.ToLower(cleaned)
	}
	return cleaned
}
