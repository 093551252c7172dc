package logbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// FileName is the log file created inside the configured log directory.
const FileName = "project-creator.log"

const defaultKeep = 200

// Logbook appends leveled lines to a file and keeps the most recent ones in
// memory so the form can show them without re-reading the file.
type Logbook struct {
	shared *book
	scope  string
}

type book struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	recent []string
	keep   int
	total  int
	now    func() time.Time
}

// Open creates (or appends to) the log file inside dir.
func Open(dir string) (*Logbook, error) {
	return New(filepath.Join(dir, FileName))
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logbook: open %s: %w", path, err)
	}
	return &Logbook{shared: &book{
		path: path,
		file: f,
		keep: defaultKeep,
		now:  time.Now,
	}}, nil
}

// With returns a logbook writing to the same file whose lines are tagged
// with scope, e.g. "[submit] project created".
func (l *Logbook) With(scope string) *Logbook {
	if l == nil {
		return nil
	}
	return &Logbook{shared: l.shared, scope: strings.TrimSpace(scope)}
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.shared.path
}

// Close releases the file handle. Scoped logbooks share it.
func (l *Logbook) Close() error {
	if l == nil {
		return nil
	}
	b := l.shared
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	message = strings.TrimSpace(message)
	if l.scope != "" {
		message = "[" + l.scope + "] " + message
	}
	b := l.shared
	b.mu.Lock()
	defer b.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s", b.now().UTC().Format(time.RFC3339), string(level), message)
	b.total++
	b.recent = append(b.recent, line)
	if len(b.recent) > b.keep {
		b.recent = b.recent[len(b.recent)-b.keep:]
	}
	if b.file != nil {
		_, _ = b.file.WriteString(line + "\n")
	}
}

// Tail returns up to maxLines of the most recent entries written in this
// process, plus the number of entries written so far.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	b := l.shared
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := b.recent
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	out := make([]string, len(lines))
	copy(out, lines)
	return out, b.total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
