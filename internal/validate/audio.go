package validate

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-whisper/internal/apierror"
	"github.com/loqalabs/loqa-whisper/internal/protocol"
)

// SampleWidth is the byte width of one 16-bit PCM sample.
const SampleWidth = 2

// Audio decodes either audio_data variant into raw PCM bytes. Sample rate
// and channel layout are not inspected; the peer must send 16 kHz mono.
func Audio(a protocol.AudioData) ([]byte, error) {
	var pcm []byte
	switch v := a.(type) {
	case protocol.Base64Audio:
		// The decoder skips CR and LF; wrapped base64 is not accepted.
		if i := strings.IndexAny(v.Data, "\r\n"); i >= 0 {
			return nil, apierror.New(apierror.InvalidBase64,
				"failed to decode base64 audio data: line break at offset %d", i).
				WithDetail("field", "audio_data.data").
				WithDetail("offset", i)
		}
		decoded, err := base64.StdEncoding.DecodeString(v.Data)
		if err != nil {
			return nil, apierror.Wrap(apierror.InvalidBase64, err, "failed to decode base64 audio data").
				WithDetail("field", "audio_data.data")
		}
		pcm = decoded
	case protocol.BinaryAudio:
		decoded, err := bytesFromElements(v.Elements)
		if err != nil {
			return nil, err
		}
		pcm = decoded
	default:
		return nil, apierror.Field(apierror.InvalidFormat, "audio_data", "unsupported audio_data variant")
	}

	if len(pcm) == 0 {
		return nil, apierror.New(apierror.EmptyAudio, "audio data is empty")
	}
	if len(pcm)%SampleWidth != 0 {
		return nil, apierror.New(apierror.MisalignedAudio,
			"audio data length %d is not a multiple of the %d-byte sample width", len(pcm), SampleWidth).
			WithDetail("length", len(pcm))
	}
	return pcm, nil
}

func bytesFromElements(elems []json.RawMessage) ([]byte, error) {
	out := make([]byte, len(elems))
	for i, el := range elems {
		text := string(bytes.TrimSpace(el))
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil || n < 0 || n > 255 {
			return nil, apierror.New(apierror.InvalidByteValue,
				"audio byte at index %d must be an integer between 0 and 255, got %s", i, text).
				WithDetail("index", i).
				WithDetail("value", text)
		}
		out[i] = byte(n)
	}
	return out, nil
}
