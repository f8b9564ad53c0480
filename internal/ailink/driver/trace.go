package driver

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TraceEntry is one provider call. Entries are written as NDJSON, one per line,
// in the order the calls finish.
type TraceEntry struct {
	Seq         uint64          `json:"seq"`
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint"`
	Method      string          `json:"method"`
	Model       string          `json:"model,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

type traceSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	seq  uint64
}

var activeSink atomic.Pointer[traceSink]

// EnableTracing appends provider traces to path until the returned cleanup
// runs. Request bodies carry goal text, so the file is created 0600. A second
// call replaces the previous sink.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	sink := &traceSink{file: f, enc: json.NewEncoder(f)}
	if prev := activeSink.Swap(sink); prev != nil {
		prev.close()
	}

	return func() {
		if activeSink.CompareAndSwap(sink, nil) {
			sink.close()
		}
	}, nil
}

// Tracing reports whether provider calls are currently being recorded.
func Tracing() bool {
	return activeSink.Load() != nil
}

// Trace records entry when tracing is enabled and is a no-op otherwise.
func Trace(entry TraceEntry) {
	sink := activeSink.Load()
	if sink == nil {
		return
	}
	sink.write(entry)
}

func (s *traceSink) write(entry TraceEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}
	s.seq++
	entry.Seq = s.seq
	_ = s.enc.Encode(entry)
}

func (s *traceSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}
