package protocol

import (
	"encoding/json"
	"strconv"
	"time"
)

// AudioFormat is the only sample layout the server accepts.
const AudioFormat = "16kHz mono PCM"

// AudioData is the audio_data union. Implementations are Base64Audio and
// BinaryAudio; consumers switch on the concrete type.
type AudioData interface {
	audioVariant() string
	FormatHint() string
}

// Base64Audio carries standard base64 text.
type Base64Audio struct {
	Data   string
	Format string
}

// BinaryAudio carries a JSON array of byte values, not yet range checked.
type BinaryAudio struct {
	Elements []json.RawMessage
	Format   string
}

func (Base64Audio) audioVariant() string { return "base64" }
func (BinaryAudio) audioVariant() string { return "binary" }

func (a Base64Audio) FormatHint() string { return a.Format }
func (a BinaryAudio) FormatHint() string { return a.Format }

// Variant names the union member, for diagnostics.
func Variant(a AudioData) string {
	if a == nil {
		return ""
	}
	return a.audioVariant()
}

// TranscriptionOptions holds the per-request options. A nil field means the
// caller did not set it and the server default applies.
type TranscriptionOptions struct {
	Language           *string  `json:"language,omitempty"`
	TranslateToEnglish *bool    `json:"translate_to_english,omitempty"`
	IncludeTimestamps  *bool    `json:"include_timestamps,omitempty"`
	MaxTokens          *int     `json:"max_tokens,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	UseBeamSearch      *bool    `json:"use_beam_search,omitempty"`
	BeamSize           *int     `json:"beam_size,omitempty"`
	SuppressBlank      *bool    `json:"suppress_blank,omitempty"`
	WordTimestamps     *bool    `json:"word_timestamps,omitempty"`
}

// Segment is a timed span of transcribed text. Times are in seconds.
type Segment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// TranscriptionResult is the single response written for every request.
type TranscriptionResult struct {
	Text         string         `json:"text"`
	Language     *string        `json:"language"`
	Segments     []Segment      `json:"segments"`
	Success      bool           `json:"success"`
	Error        *string        `json:"error"`
	ErrorCode    int            `json:"error_code,omitempty"`
	ErrorKind    string         `json:"error_kind,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
	DurationMS   *int64         `json:"duration_ms"`
	Timestamp    string         `json:"timestamp"`
}

// ServerInfo is announced once on the response channel at startup.
type ServerInfo struct {
	Provider   string           `json:"provider"`
	ModelName  string           `json:"model_name"`
	Version    string           `json:"version"`
	Attributes ModelAttributes  `json:"attributes"`
	Parameters ServerParameters `json:"parameters"`
}

type ModelAttributes struct {
	FileSize     int64  `json:"file_size"`
	ModelType    string `json:"model_type"`
	GPUAvailable bool   `json:"gpu_available"`
	GPUEnabled   bool   `json:"gpu_enabled"`
}

type ServerParameters struct {
	Threads     *int   `json:"threads"`
	CPUOnly     bool   `json:"cpu_only"`
	AudioFormat string `json:"audio_format"`
}

// Timestamp renders t the way results report it: unix seconds.
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
