package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-whisper/internal/config"
)

// ErrModel marks failures of the loaded model itself, as opposed to a
// failure to process one particular input.
var ErrModel = errors.New("model error")

// SampleRate is the only rate engines are fed.
const SampleRate = 16000

// Segment is a timed span produced by an engine. Times are in seconds.
type Segment struct {
	Start      float64
	End        float64
	Text       string
	Confidence *float64
}

// Outcome is what an engine returns for one buffer of audio.
type Outcome struct {
	Text     string
	Language string
	Segments []Segment
}

// ModelInfo describes the loaded engine for the startup announcement.
type ModelInfo struct {
	Provider     string
	ModelType    string
	GPUAvailable bool
	GPUEnabled   bool
}

// Engine abstracts the speech recognition backend. Calls are serialized by
// the caller; implementations need not be safe for concurrent use.
type Engine interface {
	Transcribe(ctx context.Context, pcm PCM, opts Options) (Outcome, error)
	Info() ModelInfo
	Close() error
}

// NewEngine builds the backend selected by cfg.Mode.
func NewEngine(cfg config.EngineConfig, logger *slog.Logger) (Engine, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockEngine(), nil
	case "exec":
		return NewExecEngine(cfg, logger)
	case "whisper":
		return NewWhisperEngine(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
