package stt

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/loqalabs/loqa-whisper/internal/apierror"
	"github.com/loqalabs/loqa-whisper/internal/protocol"
	"github.com/loqalabs/loqa-whisper/internal/validate"
)

// Dispatcher runs validated requests through the engine and builds the
// success result. It holds no per-request state.
type Dispatcher struct {
	engine   Engine
	defaults Options
	now      func() time.Time
}

func NewDispatcher(engine Engine, defaults Options) *Dispatcher {
	return &Dispatcher{engine: engine, defaults: defaults, now: time.Now}
}

// Options returns the resolved options a request would run with.
func (d *Dispatcher) Options(req validate.Validated) Options {
	return Resolve(d.defaults, req.Options)
}

// Dispatch transcribes req. A non-nil error is always an *apierror.Error in
// the engine band.
func (d *Dispatcher) Dispatch(ctx context.Context, req validate.Validated) (protocol.TranscriptionResult, error) {
	opts := d.Options(req)

	start := d.now()
	out, err := d.engine.Transcribe(ctx, PCM(req.PCM), opts)
	elapsed := d.now().Sub(start)
	if err != nil {
		return protocol.TranscriptionResult{}, engineError(err)
	}

	durationMS := elapsed.Milliseconds()
	result := protocol.TranscriptionResult{
		Text:       strings.TrimSpace(out.Text),
		Success:    true,
		DurationMS: &durationMS,
		Timestamp:  protocol.Timestamp(d.now()),
	}
	if lang := resultLanguage(out.Language, opts.Language); lang != "" {
		result.Language = &lang
	}
	if opts.WantSegments() {
		result.Segments = make([]protocol.Segment, 0, len(out.Segments))
		for _, s := range out.Segments {
			result.Segments = append(result.Segments, protocol.Segment{
				Start:      s.Start,
				End:        s.End,
				Text:       strings.TrimSpace(s.Text),
				Confidence: s.Confidence,
			})
		}
	}
	return result, nil
}

func resultLanguage(detected, requested string) string {
	if detected != "" {
		return detected
	}
	return requested
}

func engineError(err error) *apierror.Error {
	if errors.Is(err, ErrModel) {
		return apierror.Wrap(apierror.ModelError, err, "model error")
	}
	return apierror.Wrap(apierror.TranscriptionFailed, err, "transcription failed")
}
