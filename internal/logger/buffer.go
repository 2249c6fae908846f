package logger

import (
	"bytes"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// LogEntry represents a single log entry in the buffer
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Buffer keeps the most recent log entries in a ring. It is an io.Writer
// that accepts the JSON lines produced by a zap core.
type Buffer struct {
	mu      sync.Mutex
	ring    []LogEntry
	next    int
	wrapped bool
	total   uint64
}

// NewBuffer creates a ring of the given capacity (minimum 1).
func NewBuffer(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{ring: make([]LogEntry, size)}
}

// Write implements io.Writer. Lines that are not JSON objects are kept as
// plain messages.
func (b *Buffer) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimSpace(p), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		b.add(parseEntry(line))
	}
	return len(p), nil
}

func parseEntry(line []byte) LogEntry {
	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return LogEntry{Timestamp: time.Now().UTC(), Level: "INFO", Message: string(line)}
	}

	entry := LogEntry{}
	if ts, ok := raw["timestamp"].(string); ok {
		if parsed, err := time.Parse("2006-01-02T15:04:05.000Z0700", ts); err == nil {
			entry.Timestamp = parsed
		}
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Level, _ = raw["level"].(string)
	entry.Logger, _ = raw["logger"].(string)
	entry.Message, _ = raw["msg"].(string)

	for _, key := range []string{"timestamp", "level", "logger", "msg", "caller", "stacktrace"} {
		delete(raw, key)
	}
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry
}

func (b *Buffer) add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring[b.next] = entry
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.wrapped = true
	}
	b.total++
}

// Recent returns up to limit entries, oldest first. limit <= 0 returns all.
func (b *Buffer) Recent(limit int) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	count, start := b.next, 0
	if b.wrapped {
		count, start = len(b.ring), b.next
	}
	if limit > 0 && limit < count {
		start += count - limit
		count = limit
	}

	out := make([]LogEntry, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}

// Total returns how many entries were ever written.
func (b *Buffer) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
