// Package validate turns one raw request document into decoded audio and
// checked options, or into exactly one taxonomy error.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/loqalabs/loqa-whisper/internal/apierror"
	"github.com/loqalabs/loqa-whisper/internal/protocol"
)

// Validated is a request that passed every check.
type Validated struct {
	PCM     []byte
	Options protocol.TranscriptionOptions
	Variant string
	Format  string
}

// Request validates doc. The returned error is always an *apierror.Error.
// Request keeps no state between calls.
func Request(doc []byte) (Validated, error) {
	audio, rawOptions, err := Payload(doc)
	if err != nil {
		return Validated{}, err
	}
	pcm, err := Audio(audio)
	if err != nil {
		return Validated{}, err
	}
	opts, err := Options(rawOptions)
	if err != nil {
		return Validated{}, err
	}
	return Validated{
		PCM:     pcm,
		Options: opts,
		Variant: protocol.Variant(audio),
		Format:  audio.FormatHint(),
	}, nil
}

// Payload checks the top-level shape and resolves the audio_data variant.
// The options object is returned undecoded.
func Payload(doc []byte) (protocol.AudioData, json.RawMessage, error) {
	if !json.Valid(doc) {
		return nil, nil, syntaxError(doc)
	}
	if !isObject(doc) {
		return nil, nil, apierror.Field(apierror.InvalidFormat, "$", "request must be a JSON object")
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(doc, &top); err != nil {
		return nil, nil, apierror.Wrap(apierror.InvalidFormat, err, "request must be a JSON object")
	}

	rawAudio, ok := top["audio_data"]
	if !ok || isNull(rawAudio) {
		return nil, nil, apierror.Field(apierror.MissingField, "audio_data", "missing required field: audio_data")
	}
	audio, err := audioVariant(rawAudio)
	if err != nil {
		return nil, nil, err
	}

	rawOptions := top["options"]
	if rawOptions != nil && !isNull(rawOptions) && !isObject(rawOptions) {
		return nil, nil, apierror.Field(apierror.InvalidType, "options", "options must be an object")
	}
	return audio, rawOptions, nil
}

func audioVariant(raw json.RawMessage) (protocol.AudioData, error) {
	if !isObject(raw) {
		return nil, apierror.Field(apierror.InvalidFormat, "audio_data", "audio_data must be an object with a data field")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apierror.Wrap(apierror.InvalidFormat, err, "audio_data must be an object with a data field")
	}

	var format string
	if rawFormat, ok := fields["format"]; ok && !isNull(rawFormat) {
		if err := json.Unmarshal(rawFormat, &format); err != nil {
			return nil, apierror.Field(apierror.InvalidType, "audio_data.format", "audio_data.format must be a string")
		}
	}

	data, ok := fields["data"]
	if !ok || isNull(data) {
		return nil, apierror.Field(apierror.InvalidFormat, "audio_data.data", "audio_data.data is required")
	}
	switch firstByte(data) {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return nil, apierror.Wrap(apierror.InvalidFormat, err, "audio_data.data is not a valid string")
		}
		return protocol.Base64Audio{Data: text, Format: format}, nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, apierror.Wrap(apierror.InvalidFormat, err, "audio_data.data is not a valid array")
		}
		return protocol.BinaryAudio{Elements: elems, Format: format}, nil
	default:
		return nil, apierror.Field(apierror.InvalidFormat, "audio_data.data",
			"audio_data.data must be a base64 string or an array of byte values")
	}
}

func syntaxError(doc []byte) error {
	err := json.Unmarshal(doc, new(any))
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return apierror.Wrap(apierror.MalformedJSON, err, "invalid JSON").WithDetail("offset", syn.Offset)
	}
	if err == nil {
		err = errors.New("unexpected end of JSON input")
	}
	return apierror.Wrap(apierror.MalformedJSON, err, "invalid JSON")
}

func firstByte(raw []byte) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func isObject(raw []byte) bool { return firstByte(raw) == '{' }

func isNull(raw []byte) bool { return bytes.Equal(bytes.TrimSpace(raw), []byte("null")) }
