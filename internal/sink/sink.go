// Package sink implements the append-only JSON-lines output streams that
// receive success and failure records from the dispatcher.
package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Sink is a mutex-serialized, buffered JSON-lines writer. Writes are never
// batched across requests: each call writes one line and the buffer is
// flushed immediately, trading a little throughput for durability of each
// individual outcome.
type Sink struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	logger *zap.Logger
}

// Open creates or truncates path and returns a Sink writing to it. A nil
// Sink (path == "") is valid and silently discards every write, for the
// optional --output/--errors flags.
func Open(path string, logger *zap.Logger) (*Sink, error) {
	if path == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open sink file %q: %w", path, err)
	}

	return &Sink{
		file:   f,
		writer: bufio.NewWriter(f),
		logger: logger,
	}, nil
}

// Write appends one JSON-encoded line. A marshal or I/O failure is logged
// and swallowed: sinks are best-effort and must never abort the dispatcher
// (§7 Sink I/O error).
func (s *Sink) Write(v any) {
	if s == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("sink: marshal record failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(data); err != nil {
		s.logger.Error("sink: write failed", zap.Error(err))
		return
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		s.logger.Error("sink: write failed", zap.Error(err))
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.logger.Error("sink: flush failed", zap.Error(err))
	}
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush sink: %w", err)
	}
	return s.file.Close()
}
