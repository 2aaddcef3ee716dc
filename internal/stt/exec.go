package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-whisper/internal/config"
	"github.com/mattn/go-shellwords"
)

// execEngine runs an external recognizer once per request. The audio is
// handed over as a WAV file and the command prints one JSON object.
type execEngine struct {
	cmd    []string
	cfg    config.EngineConfig
	logger *slog.Logger
}

type execSegment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

type execResult struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Segments []execSegment `json:"segments"`
	Error    string        `json:"error"`
}

func NewExecEngine(cfg config.EngineConfig, logger *slog.Logger) (Engine, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("engine command %q: %w", args[0], err)
	}
	return &execEngine{
		cmd:    args,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "exec-engine")),
	}, nil
}

func (e *execEngine) Transcribe(ctx context.Context, pcm PCM, opts Options) (Outcome, error) {
	file, err := os.CreateTemp("", "loqa_whisper_*.wav")
	if err != nil {
		return Outcome{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm); err != nil {
		return Outcome{}, err
	}

	args := append(append([]string{}, e.cmd[1:]...), e.args(file.Name(), opts)...)
	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	e.logger.Debug("running engine command", slog.String("command", e.cmd[0]), slog.Int("samples", pcm.Len()))
	if err := command.Run(); err != nil {
		return Outcome{}, fmt.Errorf("engine command failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Outcome{}, fmt.Errorf("decode engine response: %w", err)
	}
	if resp.Error != "" {
		return Outcome{}, fmt.Errorf("engine reported: %s", resp.Error)
	}

	out := Outcome{Text: resp.Text, Language: resp.Language}
	for _, s := range resp.Segments {
		out.Segments = append(out.Segments, Segment(s))
	}
	return out, nil
}

func (e *execEngine) args(audioPath string, opts Options) []string {
	args := []string{"--audio", audioPath, "--model", e.cfg.ModelPath}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.TranslateToEnglish {
		args = append(args, "--translate")
	}
	if opts.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(opts.Threads))
	}
	if e.cfg.CPUOnly {
		args = append(args, "--cpu-only")
	}
	args = append(args, "--temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64))
	if beam := opts.EffectiveBeamSize(); beam > 0 {
		args = append(args, "--beam-size", strconv.Itoa(beam))
	}
	if opts.MaxTokens > 0 {
		args = append(args, "--max-tokens", strconv.Itoa(opts.MaxTokens))
	}
	if opts.IncludeTimestamps {
		args = append(args, "--timestamps")
	}
	if opts.WordTimestamps {
		args = append(args, "--word-timestamps")
	}
	if !opts.SuppressBlank {
		args = append(args, "--no-suppress-blank")
	}
	return args
}

func (e *execEngine) Info() ModelInfo {
	return ModelInfo{Provider: "exec:" + e.cmd[0], ModelType: "whisper"}
}

func (e *execEngine) Close() error { return nil }

func writePCMToWav(w io.WriteSeeker, pcm PCM) error {
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: SampleRate},
		Data:           pcm.Ints(),
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(w, SampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
