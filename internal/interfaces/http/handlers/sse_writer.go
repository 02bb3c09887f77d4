package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/turtacn/molecule-search/internal/domain/answer"
)

// DoneSentinel terminates every chat stream.
const DoneSentinel = "[DONE]"

// SetSSEHeaders prepares w for a text/event-stream response and disables
// proxy buffering.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// ChunkFrame is the wire form of a chunk event.
type ChunkFrame struct {
	Content string `json:"content"`
	Replace bool   `json:"replace,omitempty"`
}

// MetadataFrame is the wire form of the metadata event.
type MetadataFrame struct {
	Type string `json:"type"`
	*answer.Metadata
}

// ErrorFrame is rendered in place of the answer when the stream fails.
type ErrorFrame struct {
	Error   bool   `json:"error"`
	Content string `json:"content"`
}

// SSEWriter writes "data:" frames and flushes after each one.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	frames  int
}

func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent renders one reconciler event. Empty non-replace chunks are
// skipped.
func (s *SSEWriter) WriteEvent(ev answer.Event) error {
	switch ev.Type {
	case answer.EventChunk:
		if ev.Text == "" && !ev.Replace {
			return nil
		}
		return s.writeJSON(ChunkFrame{Content: ev.Text, Replace: ev.Replace})
	case answer.EventMetadata:
		if ev.Metadata == nil {
			return nil
		}
		return s.writeJSON(MetadataFrame{Type: "metadata", Metadata: ev.Metadata})
	case answer.EventDone:
		return s.WriteDone()
	}
	return nil
}

func (s *SSEWriter) WriteError(msg string) error {
	return s.writeJSON(ErrorFrame{Error: true, Content: msg})
}

func (s *SSEWriter) WriteDone() error {
	return s.write([]byte(DoneSentinel))
}

// Frames is the number of frames written.
func (s *SSEWriter) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *SSEWriter) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return s.write(data)
}

func (s *SSEWriter) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.flusher.Flush()
	s.frames++
	return nil
}
