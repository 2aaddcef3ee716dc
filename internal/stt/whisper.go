//go:build whisper

package stt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-whisper/internal/config"
)

// whisperEngine owns the loaded whisper.cpp model for the process lifetime.
// Each request gets a fresh decoding context so per-request options never
// leak into the next request.
type whisperEngine struct {
	model  whisper.Model
	cfg    config.EngineConfig
	logger *slog.Logger
}

// NewWhisperEngine loads the model at cfg.ModelPath through the cgo
// bindings. Build with -tags whisper and the whisper.cpp library available.
func NewWhisperEngine(cfg config.EngineConfig, logger *slog.Logger) (Engine, error) {
	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrModel, cfg.ModelPath, err)
	}
	logger = logger.With(slog.String("component", "whisper-engine"))
	logger.Info("whisper model loaded",
		slog.String("model", cfg.ModelPath),
		slog.Bool("multilingual", model.IsMultilingual()))
	return &whisperEngine{model: model, cfg: cfg, logger: logger}, nil
}

func (e *whisperEngine) Transcribe(_ context.Context, pcm PCM, opts Options) (Outcome, error) {
	wctx, err := e.model.NewContext()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: create context: %v", ErrModel, err)
	}

	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return Outcome{}, fmt.Errorf("set language %q: %w", lang, err)
	}
	wctx.SetTranslate(opts.TranslateToEnglish)
	if opts.Threads > 0 {
		wctx.SetThreads(uint(opts.Threads))
	}
	wctx.SetTemperature(float32(opts.Temperature))
	if beam := opts.EffectiveBeamSize(); beam > 0 {
		wctx.SetBeamSize(beam)
	}
	if opts.MaxTokens > 0 {
		wctx.SetMaxTokensPerSegment(uint(opts.MaxTokens))
	}
	wctx.SetTokenTimestamps(opts.WordTimestamps)
	if !opts.SuppressBlank {
		e.logger.Debug("suppress_blank=false is not exposed by the bindings; using engine default")
	}

	var (
		texts    []string
		segments []Segment
	)
	collect := func(seg whisper.Segment) {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			return
		}
		texts = append(texts, text)
		segments = append(segments, Segment{
			Start:      seg.Start.Seconds(),
			End:        seg.End.Seconds(),
			Text:       text,
			Confidence: tokenConfidence(seg.Tokens),
		})
	}
	if err := wctx.Process(pcm.Float32(), nil, collect, nil); err != nil {
		return Outcome{}, fmt.Errorf("process audio: %w", err)
	}

	out := Outcome{Text: strings.Join(texts, " "), Language: wctx.DetectedLanguage()}
	if opts.WantSegments() {
		out.Segments = segments
	}
	return out, nil
}

func tokenConfidence(tokens []whisper.Token) *float64 {
	if len(tokens) == 0 {
		return nil
	}
	var sum float64
	for _, t := range tokens {
		sum += float64(t.P)
	}
	c := sum / float64(len(tokens))
	return &c
}

func (e *whisperEngine) Info() ModelInfo {
	// The Go bindings do not report accelerator state.
	return ModelInfo{Provider: "whisper.cpp", ModelType: "whisper"}
}

func (e *whisperEngine) Close() error {
	return e.model.Close()
}
