package validate

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/loqalabs/loqa-whisper/internal/apierror"
	"github.com/loqalabs/loqa-whisper/internal/protocol"
)

// SupportedLanguages lists the accepted language codes. "auto" asks the
// engine to detect the language.
var SupportedLanguages = []string{
	"en", "auto", "zh", "de", "es", "ru", "ko", "fr", "ja", "pt", "tr", "pl", "ca",
}

const (
	MinTemperature = 0.0
	MaxTemperature = 1.0
	MinBeamSize    = 1
	MaxBeamSize    = 10
)

// Options decodes and checks the options object. Absent and null fields
// are left nil. Fields are checked in declaration order and the first
// failure is returned.
func Options(raw json.RawMessage) (protocol.TranscriptionOptions, error) {
	var opts protocol.TranscriptionOptions
	if raw == nil || isNull(raw) {
		return opts, nil
	}
	if !isObject(raw) {
		return opts, apierror.Field(apierror.InvalidType, "options", "options must be an object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return opts, apierror.Wrap(apierror.InvalidType, err, "options must be an object").WithDetail("field", "options")
	}

	var err error
	if opts.Language, err = decodeField[string](fields, "language", "a string"); err != nil {
		return opts, err
	}
	if opts.Language != nil && !slices.Contains(SupportedLanguages, *opts.Language) {
		return opts, apierror.Field(apierror.InvalidEnum, "language",
			"invalid language code: %s. Valid codes are: %s", *opts.Language, strings.Join(SupportedLanguages, ", ")).
			WithDetail("allowed", SupportedLanguages)
	}
	if opts.TranslateToEnglish, err = decodeField[bool](fields, "translate_to_english", "a boolean"); err != nil {
		return opts, err
	}
	if opts.IncludeTimestamps, err = decodeField[bool](fields, "include_timestamps", "a boolean"); err != nil {
		return opts, err
	}
	if opts.MaxTokens, err = decodeField[int](fields, "max_tokens", "an integer"); err != nil {
		return opts, err
	}
	if opts.MaxTokens != nil && *opts.MaxTokens < 1 {
		return opts, apierror.Field(apierror.OutOfRange, "max_tokens", "max_tokens must be greater than 0").
			WithDetail("value", *opts.MaxTokens)
	}
	if opts.Temperature, err = decodeField[float64](fields, "temperature", "a number"); err != nil {
		return opts, err
	}
	if t := opts.Temperature; t != nil && (*t < MinTemperature || *t > MaxTemperature) {
		return opts, apierror.Field(apierror.OutOfRange, "temperature", "temperature must be between 0.0 and 1.0").
			WithDetail("value", *t)
	}
	if opts.UseBeamSearch, err = decodeField[bool](fields, "use_beam_search", "a boolean"); err != nil {
		return opts, err
	}
	if opts.BeamSize, err = decodeField[int](fields, "beam_size", "an integer"); err != nil {
		return opts, err
	}
	if b := opts.BeamSize; b != nil && (*b < MinBeamSize || *b > MaxBeamSize) {
		return opts, apierror.Field(apierror.OutOfRange, "beam_size", "beam_size must be between 1 and 10").
			WithDetail("value", *b)
	}
	if opts.SuppressBlank, err = decodeField[bool](fields, "suppress_blank", "a boolean"); err != nil {
		return opts, err
	}
	if opts.WordTimestamps, err = decodeField[bool](fields, "word_timestamps", "a boolean"); err != nil {
		return opts, err
	}
	return opts, nil
}

func decodeField[T any](fields map[string]json.RawMessage, name, want string) (*T, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apierror.Field(apierror.InvalidType, name, "%s must be %s", name, want)
	}
	return &v, nil
}
