// ABOUTME: Tests for the stream decoder
// ABOUTME: Covers line reassembly, keep-alives, malformed frames, and abnormal close

package client

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain reads events until the decoder is exhausted
func drain(t *testing.T, d *Decoder) ([]StreamEvent, error) {
	t.Helper()

	var events []StreamEvent
	for {
		event, err := d.Next()
		if err != nil {
			return events, err
		}
		events = append(events, event)
		if event.terminal() {
			// One more read confirms the end-of-sequence error
			_, err := d.Next()
			return events, err
		}
	}
}

func TestDecoder_ChunksThenComplete(t *testing.T) {
	stream := "data: {\"chunk\":\"Hel\"}\n\n" +
		"data: {\"chunk\":\"lo, \"}\n\n" +
		"data: {\"chunk\":\"world\"}\n\n" +
		"data: {\"complete\":true}\n\n"

	d := NewDecoder(strings.NewReader(stream), nil)
	events, err := drain(t, d)

	require.Equal(t, io.EOF, err, "clean completion ends with EOF")
	require.Len(t, events, 4)

	var text strings.Builder
	for _, e := range events[:3] {
		text.WriteString(e.Chunk)
	}
	assert.Equal(t, "Hello, world", text.String())
	assert.True(t, events[3].Complete)
}

func TestDecoder_KeepAlivesIgnored(t *testing.T) {
	stream := "\n\n\n" +
		"data: {\"chunk\":\"hi\"}\n" +
		"\n\n" +
		"data: {\"complete\":true}\n"

	d := NewDecoder(strings.NewReader(stream), nil)
	events, err := drain(t, d)

	require.Equal(t, io.EOF, err)
	require.Len(t, events, 2)
	assert.Equal(t, "hi", events[0].Chunk)
	assert.True(t, events[1].Complete)
}

func TestDecoder_MalformedFrameSkipped(t *testing.T) {
	// An unparseable line between two valid chunks must not abort the stream
	stream := "data: {\"chunk\":\"first\"}\n" +
		"data: {not json at all\n" +
		"random noise without prefix\n" +
		"data: {\"chunk\":\"second\"}\n" +
		"data: {\"complete\":true}\n"

	d := NewDecoder(strings.NewReader(stream), nil)
	events, err := drain(t, d)

	require.Equal(t, io.EOF, err)
	require.Len(t, events, 3)
	assert.Equal(t, "first", events[0].Chunk)
	assert.Equal(t, "second", events[1].Chunk)
}

func TestDecoder_ErrorFrameIsTerminal(t *testing.T) {
	stream := "data: {\"chunk\":\"partial\"}\n" +
		"data: {\"error\":\"model exploded\"}\n" +
		"data: {\"chunk\":\"never seen\"}\n"

	d := NewDecoder(strings.NewReader(stream), nil)

	event, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "partial", event.Chunk)

	event, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, "model exploded", event.Error)

	// Nothing after the terminal frame is surfaced
	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_AbnormalClose(t *testing.T) {
	// Transport ends without a terminal frame
	stream := "data: {\"chunk\":\"Hel\"}\n" +
		"data: {\"chunk\":\"lo\"}\n"

	d := NewDecoder(strings.NewReader(stream), nil)

	for i := 0; i < 2; i++ {
		if _, err := d.Next(); err != nil {
			t.Fatalf("chunk %d: unexpected error %v", i, err)
		}
	}

	_, err := d.Next()
	assert.ErrorIs(t, err, ErrIncompleteStream)

	// Error is sticky
	_, err = d.Next()
	assert.ErrorIs(t, err, ErrIncompleteStream)
}

func TestDecoder_EmptyStream(t *testing.T) {
	d := NewDecoder(strings.NewReader(""), nil)

	_, err := d.Next()
	assert.ErrorIs(t, err, ErrIncompleteStream)
}

func TestDecoder_FinalUnterminatedLine(t *testing.T) {
	// A terminal frame without a trailing newline still counts
	stream := "data: {\"chunk\":\"hi\"}\n" +
		"data: {\"complete\":true}"

	d := NewDecoder(strings.NewReader(stream), nil)

	event, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "hi", event.Chunk)

	event, err = d.Next()
	require.NoError(t, err)
	assert.True(t, event.Complete)

	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_SessionAndChunkOnOneFrame(t *testing.T) {
	stream := "data: {\"session_id\":\"3fa85f64-5717-4562-b3fc-2c963f66afa6\",\"chunk\":\"hi\"}\n" +
		"data: {\"complete\":true}\n"

	d := NewDecoder(strings.NewReader(stream), nil)

	event, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "3fa85f64-5717-4562-b3fc-2c963f66afa6", event.SessionID)
	assert.Equal(t, "hi", event.Chunk)
}

// fragmentedReader delivers the stream in tiny arbitrary pieces to exercise
// partial-line buffering
type fragmentedReader struct {
	data []byte
	pos  int
	size int
}

func (r *fragmentedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func TestDecoder_PartialLineBuffering(t *testing.T) {
	stream := "data: {\"chunk\":\"Hello, \"}\n" +
		"data: {\"chunk\":\"world\"}\n" +
		"data: {\"complete\":true}\n"

	// 3 bytes at a time splits every frame across many reads
	d := NewDecoder(&fragmentedReader{data: []byte(stream), size: 3}, nil)
	events, err := drain(t, d)

	require.Equal(t, io.EOF, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Hello, ", events[0].Chunk)
	assert.Equal(t, "world", events[1].Chunk)
	assert.True(t, events[2].Complete)
}

func TestDecoder_ReadError(t *testing.T) {
	d := NewDecoder(io.MultiReader(
		strings.NewReader("data: {\"chunk\":\"hi\"}\n"),
		&failingReader{},
	), nil)

	event, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "hi", event.Chunk)

	_, err = d.Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncompleteStream)
}

type failingReader struct{}

func (r *failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}
