package protocol

import (
	"time"

	"github.com/loqalabs/loqa-whisper/internal/apierror"
)

// ErrorResult builds the failure response for err. Text is always empty so
// peers never mistake a rejection for a silent transcription.
func ErrorResult(err *apierror.Error, now time.Time) TranscriptionResult {
	msg := err.Error()
	return TranscriptionResult{
		Text:         "",
		Success:      false,
		Error:        &msg,
		ErrorCode:    err.Kind.Code(),
		ErrorKind:    err.Kind.String(),
		ErrorDetails: err.DetailMap(),
		Timestamp:    Timestamp(now),
	}
}
