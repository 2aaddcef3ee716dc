package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-whisper/internal/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *Reader) ([]string, []error) {
	t.Helper()
	var docs []string
	var errs []error
	for i := 0; i < 100; i++ {
		doc, err := r.Next()
		if errors.Is(err, io.EOF) {
			return docs, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, string(doc))
	}
	t.Fatal("reader did not reach EOF")
	return nil, nil
}

func TestReaderSplitsDocuments(t *testing.T) {
	input := `{"a":1}{"b":[1,2,{"c":"}"}]}
  [1,2]
{"s":"brace { and quote \" inside"}`
	docs, errs := readAll(t, NewReader(strings.NewReader(input), 0))
	assert.Empty(t, errs)
	assert.Equal(t, []string{
		`{"a":1}`,
		`{"b":[1,2,{"c":"}"}]}`,
		`[1,2]`,
		`{"s":"brace { and quote \" inside"}`,
	}, docs)
}

func TestReaderMultiLineDocument(t *testing.T) {
	input := "{\n  \"audio_data\": {\n    \"data\": [1, 2]\n  }\n}\n"
	docs, errs := readAll(t, NewReader(strings.NewReader(input), 0))
	assert.Empty(t, errs)
	require.Len(t, docs, 1)
	assert.True(t, json.Valid([]byte(docs[0])))
}

func TestReaderScalarEndsAtNewline(t *testing.T) {
	docs, errs := readAll(t, NewReader(strings.NewReader("garbage here\n{\"ok\":true}\n"), 0))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"garbage here", `{"ok":true}`}, docs)
}

func TestReaderScalarAtEOF(t *testing.T) {
	docs, errs := readAll(t, NewReader(strings.NewReader("42"), 0))
	assert.Empty(t, errs)
	assert.Equal(t, []string{"42"}, docs)
}

func TestReaderIncompletePayload(t *testing.T) {
	r := NewReader(strings.NewReader(`{"audio_data":{"data":[1,2`), 0)
	_, err := r.Next()
	apiErr := apierror.As(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.IncompletePayload, apiErr.Kind)
	assert.Contains(t, apiErr.Error(), "resend")

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderMismatchedCloseEndsDocument(t *testing.T) {
	input := `{"audio_data":{"data":[1,2}}` + "\n" + `{"ok":true}` + "\n" + `[1}` + " trailing\n" + `[2]`
	docs, errs := readAll(t, NewReader(strings.NewReader(input), 0))
	assert.Empty(t, errs)
	assert.Equal(t, []string{
		`{"audio_data":{"data":[1,2}}`,
		`{"ok":true}`,
		`[1} trailing`,
		`[2]`,
	}, docs)
	assert.False(t, json.Valid([]byte(docs[0])))
}

func TestReaderMismatchedCloseAtEOF(t *testing.T) {
	docs, errs := readAll(t, NewReader(strings.NewReader(`{"a":[1}`), 0))
	assert.Empty(t, errs)
	assert.Equal(t, []string{`{"a":[1}`}, docs)
}

func TestReaderEmptyInput(t *testing.T) {
	_, err := NewReader(strings.NewReader(" \n\t "), 0).Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderOversizedDocumentIsSkipped(t *testing.T) {
	big := `{"audio_data":{"data":"` + strings.Repeat("A", 200) + `"}}`
	r := NewReader(strings.NewReader(big+`{"ok":1}`), 64)

	_, err := r.Next()
	apiErr := apierror.As(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, apierror.PayloadTooLarge, apiErr.Kind)
	assert.Equal(t, 64, apiErr.Details["limit"])

	doc, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"ok":1}`, string(doc))
}

func TestReaderDocumentAtLimit(t *testing.T) {
	doc := `{"k":"` + strings.Repeat("x", 10) + `"}`
	got, err := NewReader(strings.NewReader(doc), len(doc)).Next()
	require.NoError(t, err)
	assert.Equal(t, doc, string(got))
}

func TestReaderReadError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewReader(io.MultiReader(strings.NewReader(`{"a":`), errReader{boom}), 0).Next()
	assert.ErrorIs(t, err, boom)
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

type countingWriter struct {
	bytes.Buffer
	writes  int
	flushes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.writes++
	return c.Buffer.Write(p)
}

func (c *countingWriter) Flush() error {
	c.flushes++
	return nil
}

func TestWriterOneLinePerValue(t *testing.T) {
	out := &countingWriter{}
	w := NewWriter(out)
	require.NoError(t, w.Write(map[string]any{"text": "a\nb", "success": true}))
	require.NoError(t, w.Write(map[string]any{"text": "", "success": false}))

	assert.Equal(t, 2, out.writes)
	assert.Equal(t, 2, out.flushes)
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), line)
	}
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestWriterShortWrite(t *testing.T) {
	err := NewWriter(shortWriter{}).Write(map[string]int{"a": 1})
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestWriterClosedOutput(t *testing.T) {
	r, w := io.Pipe()
	require.NoError(t, r.Close())
	err := NewWriter(w).Write(map[string]int{"a": 1})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
