package stt

import (
	"context"
	"fmt"
)

type mockEngine struct{}

// NewMockEngine returns an engine that describes its input instead of
// recognizing it. Silent audio yields empty text.
func NewMockEngine() Engine {
	return &mockEngine{}
}

func (m *mockEngine) Transcribe(ctx context.Context, pcm PCM, opts Options) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	if silent(pcm) {
		return Outcome{Language: lang}, nil
	}
	text := fmt.Sprintf("[transcript samples=%d]", pcm.Len())
	out := Outcome{Text: text, Language: lang}
	if opts.WantSegments() {
		out.Segments = []Segment{{Start: 0, End: pcm.Seconds(), Text: text}}
	}
	return out, nil
}

func (m *mockEngine) Info() ModelInfo {
	return ModelInfo{Provider: "mock", ModelType: "whisper"}
}

func (m *mockEngine) Close() error { return nil }

func silent(pcm PCM) bool {
	for _, b := range pcm {
		if b != 0 {
			return false
		}
	}
	return true
}
