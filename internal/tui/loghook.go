package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lojinha-app/storefront/internal/logging"
	log "github.com/sirupsen/logrus"
)

// logEntry is one captured log line.
type logEntry struct {
	level log.Level
	line  string
	// session marks session state changes, auth events and navigation.
	session bool
}

// LogHook is a logrus hook that captures log entries for the logs tab. While the TUI owns
// the terminal, logrus output is discarded and lines reach the screen through this hook.
type LogHook struct {
	ch        chan logEntry
	formatter log.Formatter
	mu        sync.Mutex
	levels    []log.Level
	maxLevel  log.Level
}

// NewLogHook creates a hook with a buffered channel of the given size. Entries above
// maxLevel (more verbose) are not captured.
func NewLogHook(bufSize int, maxLevel log.Level) *LogHook {
	if bufSize <= 0 {
		bufSize = 1
	}
	levels := make([]log.Level, 0, len(log.AllLevels))
	for _, level := range log.AllLevels {
		if level <= maxLevel {
			levels = append(levels, level)
		}
	}
	return &LogHook{
		ch:        make(chan logEntry, bufSize),
		formatter: &logging.LogFormatter{},
		levels:    levels,
		maxLevel:  maxLevel,
	}
}

// SetFormatter sets a custom formatter for the hook.
func (h *LogHook) SetFormatter(f log.Formatter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.formatter = f
}

// Levels returns the log levels this hook should fire on.
func (h *LogHook) Levels() []log.Level {
	return h.levels
}

// Fire formats the entry and queues it. When the buffer is full the oldest line is dropped.
func (h *LogHook) Fire(entry *log.Entry) error {
	h.mu.Lock()
	f := h.formatter
	h.mu.Unlock()

	line := fmt.Sprintf("[%s] %s", entry.Level, entry.Message)
	if f != nil {
		if b, err := f.Format(entry); err == nil {
			line = strings.TrimRight(string(b), "\n\r")
		}
	}

	captured := logEntry{level: entry.Level, line: line, session: isSessionEntry(entry.Data)}
	select {
	case h.ch <- captured:
	default:
		select {
		case <-h.ch:
		default:
		}
		select {
		case h.ch <- captured:
		default:
		}
	}
	return nil
}

// isSessionEntry reports whether fields come from the session gate, the auth event
// stream or the router.
func isSessionEntry(fields log.Fields) bool {
	if component, ok := fields["component"].(string); ok && component == "session" {
		return true
	}
	_, hasEvent := fields["event"]
	_, hasRoute := fields["route"]
	return hasEvent || hasRoute
}

// Chan returns the channel to read captured entries from.
func (h *LogHook) Chan() <-chan logEntry {
	return h.ch
}
