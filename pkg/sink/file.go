package sink

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mash-protocol/logrelay/pkg/display"
)

// FileConfig configures a FileSink.
type FileConfig struct {
	// Path of the log file. Defaults to DefaultPath.
	Path string

	// Serializer renders messages. Defaults to YAMLSerializer.
	Serializer Serializer

	// Location the prefix timestamp is rendered in. Defaults to time.Local.
	Location *time.Location

	// Logger receives the first write failure.
	Logger *slog.Logger
}

// FileSink appends formatted records to a file.
// The file is opened for each write so external rotation is picked up.
type FileSink struct {
	config FileConfig

	mu       sync.Mutex
	warned   bool
	failures int
	written  int
	closed   bool
}

// NewFileSink creates a FileSink. Nothing is opened until the first write.
func NewFileSink(config FileConfig) *FileSink {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.Serializer == nil {
		config.Serializer = YAMLSerializer{}
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &FileSink{config: config}
}

// Path returns the file path.
func (s *FileSink) Path() string {
	return s.config.Path
}

// Format renders rec as it is written to the file.
func (s *FileSink) Format(rec Record) string {
	prefix := display.Prefix(rec.Severity, rec.Channel, rec.Time.In(s.config.Location))

	parts := make([]string, len(rec.Messages))
	for i, msg := range rec.Messages {
		text, err := s.config.Serializer.Serialize(msg)
		if err != nil {
			text = msg.Text()
		}
		parts[i] = text
	}
	return prefix + " " + strings.Join(parts, "\n") + "\n"
}

// Write appends rec. It always returns nil; failures are counted and the
// first one is logged.
func (s *FileSink) Write(rec Record) error {
	entry := s.Format(rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if err := s.appendLocked(entry); err != nil {
		s.failures++
		if !s.warned {
			s.warned = true
			s.config.Logger.Warn("failed to write to log file",
				"path", s.config.Path,
				"error", err)
		}
		return nil
	}
	s.written++
	return nil
}

func (s *FileSink) appendLocked(entry string) error {
	f, err := os.OpenFile(s.config.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(entry); err != nil {
		_ = f.Close()
		return fmt.Errorf("append: %w", err)
	}
	return f.Close()
}

// Failures returns the number of failed writes.
func (s *FileSink) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Written returns the number of records appended.
func (s *FileSink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Close stops further writes. It is safe to call more than once.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
