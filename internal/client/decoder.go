// ABOUTME: Decoder for the line-framed JSON event stream
// ABOUTME: Buffers partial lines, skips malformed frames, and detects abnormal close

package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// ErrIncompleteStream means the transport closed before a complete or
// error frame arrived, or went silent long enough to be treated as closed.
// Distinct from clean completion; the caller may retry the whole exchange.
var ErrIncompleteStream = errors.New("stream ended without terminal event")

// eventPrefix starts every event line on the wire
const eventPrefix = "data: "

// StreamEvent is one decoded unit from the response stream. Fields are
// optional on the wire; at least one is set per event.
type StreamEvent struct {
	SessionID string `json:"session_id"`
	Chunk     string `json:"chunk"`
	Complete  bool   `json:"complete"`
	Error     string `json:"error"`
}

// terminal reports whether the event ends the assistant turn
func (e StreamEvent) terminal() bool {
	return e.Complete || e.Error != ""
}

// Decoder consumes an open response body and produces a forward-only
// sequence of StreamEvents. Not restartable: a new stream requires a new
// request. The decoder owns line reassembly; input may arrive in arbitrary
// chunk boundaries.
type Decoder struct {
	reader      *bufio.Reader
	exhausted   bool
	sawTerminal bool
	logger      *slog.Logger
}

// NewDecoder wraps an open stream body
func NewDecoder(body io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		reader: bufio.NewReader(body),
		logger: logger.With("component", "decoder"),
	}
}

// Next returns the next decoded event. It blocks until a complete event line
// has been assembled. Blank keep-alive lines and malformed lines are skipped.
// The sequence ends with io.EOF after a terminal event, or with
// ErrIncompleteStream if the transport closed without one.
func (d *Decoder) Next() (StreamEvent, error) {
	if d.exhausted {
		return StreamEvent{}, d.endError()
	}

	for {
		line, err := d.reader.ReadString('\n')
		if err != nil {
			d.exhausted = true
			if err != io.EOF {
				return StreamEvent{}, err
			}
			// EOF: a final unterminated line may still hold one frame
			if event, ok := d.parseLine(line); ok {
				if event.terminal() {
					d.sawTerminal = true
				}
				return event, nil
			}
			return StreamEvent{}, d.endError()
		}

		event, ok := d.parseLine(line)
		if !ok {
			continue
		}
		if event.terminal() {
			d.exhausted = true
			d.sawTerminal = true
		}
		return event, nil
	}
}

// parseLine decodes one raw line into an event. Blank keep-alives, lines
// without the event prefix, and unparseable payloads all report !ok; one bad
// frame never aborts the stream.
func (d *Decoder) parseLine(line string) (StreamEvent, bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return StreamEvent{}, false
	}

	if !strings.HasPrefix(line, eventPrefix) {
		d.logger.Debug("skipping unrecognized stream line", "line", truncate(line, 80))
		return StreamEvent{}, false
	}

	var event StreamEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, eventPrefix)), &event); err != nil {
		d.logger.Debug("skipping malformed frame", "error", err)
		return StreamEvent{}, false
	}
	return event, true
}

// endError distinguishes a clean end of sequence from an abnormal close
func (d *Decoder) endError() error {
	if d.sawTerminal {
		return io.EOF
	}
	return ErrIncompleteStream
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
