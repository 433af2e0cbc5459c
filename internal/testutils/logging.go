package testutils

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/Daw588/lavender/internal/logging"
)

// NewTestLogger returns a debug-level logger that discards output.
func NewTestLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelDebug,
		Format: "text",
		Output: io.Discard,
	})
}

// LogBuffer is a goroutine-safe log sink.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything logged so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Contains reports whether the log contains s.
func (b *LogBuffer) Contains(s string) bool {
	return strings.Contains(b.String(), s)
}

// NewBufferLogger returns a debug-level text logger writing into a LogBuffer.
func NewBufferLogger() (logging.Logger, *LogBuffer) {
	buf := &LogBuffer{}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelDebug,
		Format: "text",
		Output: buf,
	})
	return logger, buf
}
