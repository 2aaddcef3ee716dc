// Package wire frames requests on the input channel and serializes
// responses on the output channel.
package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/loqalabs/loqa-whisper/internal/apierror"
)

// DefaultMaxDocumentBytes bounds one request document.
const DefaultMaxDocumentBytes = 64 << 20

// Reader returns one self-delimiting JSON document per call. An object or
// array ends at its matching close bracket; any other top-level value ends
// at the next newline. Bytes are not interpreted beyond that framing.
type Reader struct {
	r        *bufio.Reader
	maxBytes int
}

func NewReader(r io.Reader, maxBytes int) *Reader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	return &Reader{r: bufio.NewReaderSize(r, 64<<10), maxBytes: maxBytes}
}

// scanState tracks open brackets. A close that does not match the innermost
// open bracket turns the rest of the line into part of the same malformed
// document, so one bad request yields one error and framing resumes on the
// next line.
type scanState struct {
	open     []byte
	inString bool
	escaped  bool
	bracket  bool
}

// step consumes b and reports whether the document is complete.
func (s *scanState) step(b byte) bool {
	if !s.bracket {
		return b == '\n'
	}
	if s.inString {
		switch {
		case s.escaped:
			s.escaped = false
		case b == '\\':
			s.escaped = true
		case b == '"':
			s.inString = false
		}
		return false
	}
	switch b {
	case '"':
		s.inString = true
	case '{':
		s.open = append(s.open, '}')
	case '[':
		s.open = append(s.open, ']')
	case '}', ']':
		if len(s.open) == 0 || s.open[len(s.open)-1] != b {
			s.bracket = false
			s.open = nil
			return false
		}
		s.open = s.open[:len(s.open)-1]
		return len(s.open) == 0
	}
	return false
}

// Next blocks until a complete document is available.
//
// It returns io.EOF when the input ends between documents. When the input
// ends inside a document the partial bytes are dropped and an
// IncompletePayload error is returned; the following call returns io.EOF.
// An oversized document is skipped and reported as PayloadTooLarge. Read
// failures are returned wrapped.
func (r *Reader) Next() ([]byte, error) {
	first, err := r.skipSpace()
	if err != nil {
		return nil, err
	}

	state := scanState{bracket: first == '{' || first == '['}
	if state.bracket {
		state.step(first)
	}
	buf := []byte{first}
	overflow := false

	for {
		b, err := r.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				switch {
				case state.bracket:
					return nil, apierror.New(apierror.IncompletePayload,
						"incomplete JSON payload: input closed before the document ended; resend the complete payload")
				case overflow:
					return nil, r.tooLarge()
				default:
					return buf, nil
				}
			}
			return nil, fmt.Errorf("read request: %w", err)
		}
		done := state.step(b)
		if !overflow {
			if len(buf) >= r.maxBytes {
				overflow = true
				buf = nil
			} else {
				buf = append(buf, b)
			}
		}
		if done {
			if overflow {
				return nil, r.tooLarge()
			}
			if !state.bracket {
				buf = buf[:len(buf)-1]
			}
			return buf, nil
		}
	}
}

func (r *Reader) tooLarge() error {
	return apierror.New(apierror.PayloadTooLarge, "request exceeds the %d byte limit", r.maxBytes).
		WithDetail("limit", r.maxBytes)
}

func (r *Reader) skipSpace() (byte, error) {
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("read request: %w", err)
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, nil
	}
}
