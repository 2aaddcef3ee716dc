package apierror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindsAreStable(t *testing.T) {
	cases := []struct {
		kind     Kind
		code     int
		name     string
		category Category
	}{
		{MalformedJSON, 1001, "malformed_json", CategorySyntax},
		{IncompletePayload, 1002, "incomplete_payload", CategorySyntax},
		{PayloadTooLarge, 1003, "payload_too_large", CategorySyntax},
		{MissingField, 2001, "missing_field", CategoryValidation},
		{InvalidFormat, 2002, "invalid_format", CategoryValidation},
		{InvalidEnum, 2003, "invalid_enum", CategoryValidation},
		{OutOfRange, 2004, "out_of_range", CategoryValidation},
		{InvalidType, 2005, "invalid_type", CategoryValidation},
		{EmptyAudio, 3001, "empty_audio", CategoryAudioData},
		{InvalidBase64, 3002, "invalid_base64", CategoryAudioData},
		{InvalidByteValue, 3003, "invalid_byte_value", CategoryAudioData},
		{MisalignedAudio, 3004, "misaligned_audio", CategoryAudioData},
		{ModelError, 4001, "model_error", CategoryEngine},
		{TranscriptionFailed, 4002, "transcription_failed", CategoryEngine},
	}
	require.Len(t, kindNames, len(cases))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, tc.kind.Code())
			assert.Equal(t, tc.name, tc.kind.String())
			assert.Equal(t, tc.category, tc.kind.Category())
		})
	}
}

func TestUnknownKind(t *testing.T) {
	assert.Equal(t, "kind(9999)", Kind(9999).String())
	assert.Equal(t, Category(""), Kind(9999).Category())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ModelError, cause, "model error")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "model error: boom", err.Error())
}

func TestDetailMapIncludesField(t *testing.T) {
	err := Field(OutOfRange, "temperature", "too hot").WithDetail("value", 2.0)
	assert.Equal(t, map[string]any{"field": "temperature", "value": 2.0}, err.DetailMap())
	assert.Nil(t, New(EmptyAudio, "empty").DetailMap())
}

func TestAs(t *testing.T) {
	assert.Nil(t, As(nil))

	orig := New(InvalidEnum, "bad language")
	wrapped := fmt.Errorf("validate: %w", orig)
	assert.Same(t, orig, As(wrapped))

	plain := errors.New("disk on fire")
	got := As(plain)
	require.NotNil(t, got)
	assert.Equal(t, TranscriptionFailed, got.Kind)
	assert.ErrorIs(t, got, plain)
}
