//go:build !whisper

package stt

import (
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-whisper/internal/config"
)

// NewWhisperEngine reports that native support was not compiled in.
func NewWhisperEngine(cfg config.EngineConfig, _ *slog.Logger) (Engine, error) {
	return nil, fmt.Errorf("%w: binary built without whisper support (rebuild with -tags whisper) for %s", ErrModel, cfg.ModelPath)
}
