package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

type flusher interface {
	Flush() error
}

// Writer emits one JSON value per line. It is the only path to the output
// channel; diagnostics must never be written through it.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write marshals v and writes it with its trailing newline in one call to
// the underlying writer, then flushes it if it buffers.
func (w *Writer) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.w.Write(data)
	if err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("write response: %w", io.ErrShortWrite)
	}
	if f, ok := w.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush response: %w", err)
		}
	}
	return nil
}
