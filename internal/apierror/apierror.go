// Package apierror defines the stable error taxonomy reported to peers.
//
// Every failure surfaced on the response channel carries exactly one Kind.
// Kinds are grouped into numeric bands by Category so that peers can branch
// on the thousands digit without knowing every individual code.
package apierror

import (
	"errors"
	"fmt"
)

// Category groups kinds into a numeric band.
type Category string

const (
	CategorySyntax     Category = "syntax"
	CategoryValidation Category = "validation"
	CategoryAudioData  Category = "audio_data"
	CategoryEngine     Category = "engine"
)

// Kind identifies one failure mode. Its numeric value is the wire code.
type Kind int

const (
	MalformedJSON     Kind = 1001
	IncompletePayload Kind = 1002
	PayloadTooLarge   Kind = 1003

	MissingField  Kind = 2001
	InvalidFormat Kind = 2002
	InvalidEnum   Kind = 2003
	OutOfRange    Kind = 2004
	InvalidType   Kind = 2005

	EmptyAudio       Kind = 3001
	InvalidBase64    Kind = 3002
	InvalidByteValue Kind = 3003
	MisalignedAudio  Kind = 3004

	ModelError          Kind = 4001
	TranscriptionFailed Kind = 4002
)

var kindNames = map[Kind]string{
	MalformedJSON:       "malformed_json",
	IncompletePayload:   "incomplete_payload",
	PayloadTooLarge:     "payload_too_large",
	MissingField:        "missing_field",
	InvalidFormat:       "invalid_format",
	InvalidEnum:         "invalid_enum",
	OutOfRange:          "out_of_range",
	InvalidType:         "invalid_type",
	EmptyAudio:          "empty_audio",
	InvalidBase64:       "invalid_base64",
	InvalidByteValue:    "invalid_byte_value",
	MisalignedAudio:     "misaligned_audio",
	ModelError:          "model_error",
	TranscriptionFailed: "transcription_failed",
}

// Code returns the stable numeric wire code.
func (k Kind) Code() int { return int(k) }

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Category derives the band from the thousands digit.
func (k Kind) Category() Category {
	switch int(k) / 1000 {
	case 1:
		return CategorySyntax
	case 2:
		return CategoryValidation
	case 3:
		return CategoryAudioData
	case 4:
		return CategoryEngine
	default:
		return ""
	}
}

// Error is a protocol-level failure. It is built at the site that detects
// the problem and consumed once by the response builder.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that keeps cause in the chain.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Field creates a validation error bound to a request field.
func Field(kind Kind, field, format string, args ...any) *Error {
	e := New(kind, format, args...)
	e.Field = field
	return e
}

// WithDetail returns e with key set in its details.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// DetailMap returns the structured context, including the field name.
func (e *Error) DetailMap() map[string]any {
	if e.Field == "" && len(e.Details) == 0 {
		return nil
	}
	out := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		out[k] = v
	}
	if e.Field != "" {
		out["field"] = e.Field
	}
	return out
}

// As extracts an *Error from err. Errors outside the taxonomy are reported
// as TranscriptionFailed so every failure maps to exactly one kind.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Wrap(TranscriptionFailed, err, "transcription failed")
}
