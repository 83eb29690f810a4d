// Package deadletter appends per-item pipeline failures to a JSONL file.
// Entries are written for later inspection and are never replayed by the
// service itself.
package deadletter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/tibialore/boss-sync/internal/boss"
)

// MaxSnippetLength caps the raw-input snapshot stored per entry.
const MaxSnippetLength = 500

// Logger is an append-only JSONL sink. Safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// New creates the log directory if needed and returns a Logger writing to
// path.
func New(path string, logger *zap.Logger) (*Logger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dead letter directory: %w", err)
		}
	}
	return &Logger{path: path, logger: logger}, nil
}

// Append writes one entry as a single JSON line. The raw snippet is
// truncated to MaxSnippetLength with an ellipsis marker.
func (l *Logger) Append(entry boss.DeadLetterEntry) error {
	entry.RawDataSnippet = Truncate(entry.RawDataSnippet, MaxSnippetLength)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead letter entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dead letter log: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			l.logger.Warn("close dead letter log", zap.Error(closeErr))
		}
	}()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write dead letter entry: %w", err)
	}
	l.logger.Debug("dead letter entry written", zap.String("item", entry.ItemName))
	return nil
}

// Count returns the number of entries currently in the log file.
func (l *Logger) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read dead letter log: %w", err)
	}
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	return count, nil
}

// Truncate caps text at max characters, appending "..." when cut. The cut
// lands on a rune boundary so multi-byte input never yields a mangled tail.
func Truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
