// Package journal persists failed parameter combinations, one JSON file per
// tool, de-duplicated by input.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/me/galaxyprobe/internal/logging"
)

// TimestampLayout is the entry timestamp format (YYYY-MM-DD HH:MM:SS).
const TimestampLayout = "2006-01-02 15:04:05"

// FileSuffix is appended to the tool name to form the journal file name.
const FileSuffix = "_incorrect_combination.json"

// Entry is one recorded failure.
type Entry struct {
	Timestamp    string `json:"timestamp"`
	ErrorMessage string `json:"error_message"`
	Input        any    `json:"input"`
}

// Journal writes entries under a directory.
type Journal struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New creates a journal rooted at dir. The directory is created on first
// write.
func New(dir string, logger *slog.Logger) *Journal {
	logger = logging.OrDiscard(logger)
	return &Journal{
		dir:    dir,
		logger: logger.With("component", "journal"),
		now:    time.Now,
	}
}

// Dir returns the journal directory.
func (j *Journal) Dir() string { return j.dir }

// Path returns the journal file for a tool.
func (j *Journal) Path(toolName string) string {
	return filepath.Join(j.dir, FileName(toolName))
}

// FileName maps a tool name to its journal file name. Path separators in the
// name are replaced.
func FileName(toolName string) string {
	name := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(toolName)
	return name + FileSuffix
}

// Record appends an entry for input unless one with an equal input already
// exists. It reports whether an entry was written.
func (j *Journal) Record(toolName string, input any, message string) (bool, error) {
	normalized, err := normalize(input)
	if err != nil {
		return false, fmt.Errorf("journal %s: %w", toolName, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.read(toolName)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if reflect.DeepEqual(e.Input, normalized) {
			j.logger.Debug("duplicate entry skipped", "tool", toolName)
			return false, nil
		}
	}

	entries = append(entries, Entry{
		Timestamp:    j.now().Format(TimestampLayout),
		ErrorMessage: message,
		Input:        normalized,
	})
	if err := j.write(toolName, entries); err != nil {
		return false, err
	}
	j.logger.Info("recorded failure", "tool", toolName, "error", message, "entries", len(entries))
	return true, nil
}

// Entries returns the recorded entries for a tool. A missing journal yields
// an empty list.
func (j *Journal) Entries(toolName string) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.read(toolName)
}

func (j *Journal) read(toolName string) ([]Entry, error) {
	data, err := os.ReadFile(j.Path(toolName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal %s: %w", toolName, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A journal that is not a list is replaced on the next write.
		j.logger.Warn("unreadable journal, starting over", "tool", toolName, "error", err)
		return nil, nil
	}
	return entries, nil
}

func (j *Journal) write(toolName string, entries []Entry) error {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal %s: %w", toolName, err)
	}
	path := j.Path(toolName)
	tmp, err := os.CreateTemp(j.dir, ".journal-*")
	if err != nil {
		return fmt.Errorf("write journal %s: %w", toolName, err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write journal %s: %w", toolName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write journal %s: %w", toolName, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write journal %s: %w", toolName, err)
	}
	return nil
}

// normalize round-trips v through JSON so it compares equal to what was read
// back from disk.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
