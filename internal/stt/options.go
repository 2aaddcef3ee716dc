package stt

import (
	"github.com/loqalabs/loqa-whisper/internal/config"
	"github.com/loqalabs/loqa-whisper/internal/protocol"
)

// Options is the fully resolved configuration for one transcription.
// Language is empty for auto-detection. MaxTokens and BeamSize are zero
// when unset.
type Options struct {
	Language           string
	TranslateToEnglish bool
	IncludeTimestamps  bool
	MaxTokens          int
	Temperature        float64
	UseBeamSearch      bool
	BeamSize           int
	SuppressBlank      bool
	WordTimestamps     bool
	Threads            int
}

// DefaultBeamSize is used when beam search is requested without a size.
const DefaultBeamSize = 5

// OptionsFromConfig builds the server-wide defaults.
func OptionsFromConfig(t config.TranscriptionConfig, threads int) Options {
	return Options{
		Language:           normalizeLanguage(t.Language),
		TranslateToEnglish: t.TranslateToEnglish,
		IncludeTimestamps:  t.IncludeTimestamps,
		MaxTokens:          t.MaxTokens,
		Temperature:        t.Temperature,
		UseBeamSearch:      t.UseBeamSearch,
		BeamSize:           t.BeamSize,
		SuppressBlank:      t.SuppressBlank,
		WordTimestamps:     t.WordTimestamps,
		Threads:            threads,
	}
}

// Resolve overlays the request options on defaults.
func Resolve(defaults Options, o protocol.TranscriptionOptions) Options {
	out := defaults
	if o.Language != nil {
		out.Language = normalizeLanguage(*o.Language)
	}
	if o.TranslateToEnglish != nil {
		out.TranslateToEnglish = *o.TranslateToEnglish
	}
	if o.IncludeTimestamps != nil {
		out.IncludeTimestamps = *o.IncludeTimestamps
	}
	if o.MaxTokens != nil {
		out.MaxTokens = *o.MaxTokens
	}
	if o.Temperature != nil {
		out.Temperature = *o.Temperature
	}
	if o.UseBeamSearch != nil {
		out.UseBeamSearch = *o.UseBeamSearch
	}
	if o.BeamSize != nil {
		out.BeamSize = *o.BeamSize
	}
	if o.SuppressBlank != nil {
		out.SuppressBlank = *o.SuppressBlank
	}
	if o.WordTimestamps != nil {
		out.WordTimestamps = *o.WordTimestamps
	}
	return out
}

// EffectiveBeamSize is the beam width engines should use, or zero for
// greedy decoding.
func (o Options) EffectiveBeamSize() int {
	if !o.UseBeamSearch {
		return 0
	}
	if o.BeamSize > 0 {
		return o.BeamSize
	}
	return DefaultBeamSize
}

// WantSegments reports whether timed segments belong in the result.
func (o Options) WantSegments() bool {
	return o.IncludeTimestamps || o.WordTimestamps
}

func normalizeLanguage(lang string) string {
	if lang == "auto" {
		return ""
	}
	return lang
}
