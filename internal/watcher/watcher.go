// Package watcher follows the session file and the configuration file.
// A session written by another process (for example `storefront -login`) becomes a
// signedIn event, a removed session file becomes signedOut, and configuration edits
// are hot reloaded.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lojinha-app/storefront/internal/config"
	"github.com/lojinha-app/storefront/sdk/session"
	log "github.com/sirupsen/logrus"
)

// Publisher receives the events derived from session file changes.
type Publisher interface {
	Publish(kind session.EventKind, identity *session.Identity) uint64
}

const (
	// replaceCheckDelay lets an atomic replace (rename) settle before a Remove is
	// treated as a real deletion.
	replaceCheckDelay    = 50 * time.Millisecond
	configReloadDebounce = 150 * time.Millisecond
	removeDebounceWindow = 1 * time.Second
)

// Watcher manages file watching for the session and configuration files.
type Watcher struct {
	configPath     string
	sessionPath    string
	publisher      Publisher
	reloadCallback func(*config.Config)
	watcher        *fsnotify.Watcher
	now            func() time.Time

	mu              sync.Mutex
	config          *config.Config
	lastSessionHash string
	lastConfigHash  string
	lastRemoveTime  time.Time

	configReloadMu    sync.Mutex
	configReloadTimer *time.Timer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher for sessionPath. configPath may be empty, in which
// case configuration reload is disabled.
func NewWatcher(configPath, sessionPath string, publisher Publisher, reloadCallback func(*config.Config)) (*Watcher, error) {
	if strings.TrimSpace(sessionPath) == "" {
		return nil, fmt.Errorf("watcher: session path is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("watcher: publisher is required")
	}
	fsw, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}
	return &Watcher{
		configPath:     strings.TrimSpace(configPath),
		sessionPath:    filepath.Clean(sessionPath),
		publisher:      publisher,
		reloadCallback: reloadCallback,
		watcher:        fsw,
		now:            time.Now,
	}, nil
}

// SetConfig records the configuration currently in use; reloads are diffed against it.
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
}

// Start begins watching. The current session file content is taken as the baseline,
// so an already present session does not produce an event.
func (w *Watcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dir := filepath.Dir(w.sessionPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("watcher: create session directory: %w", err)
	}
	if errAdd := w.watcher.Add(dir); errAdd != nil {
		log.Errorf("failed to watch session directory %s: %v", dir, errAdd)
		return errAdd
	}
	log.Debugf("watching session directory: %s", dir)

	if w.configPath != "" {
		if _, errStat := os.Stat(w.configPath); errStat == nil {
			if errAdd := w.watcher.Add(w.configPath); errAdd != nil {
				log.Warnf("failed to watch config file %s: %v", w.configPath, errAdd)
			} else {
				log.Debugf("watching config file: %s", w.configPath)
			}
			if hash, errHash := fileHash(w.configPath); errHash == nil {
				w.lastConfigHash = hash
			}
		}
	}

	if hash, errHash := fileHash(w.sessionPath); errHash == nil {
		w.mu.Lock()
		w.lastSessionHash = hash
		w.mu.Unlock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.processEvents(runCtx)
	return nil
}

// Stop stops the file watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.stopConfigReloadTimer()
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	if w.done != nil {
		<-w.done
	}
	return err
}
