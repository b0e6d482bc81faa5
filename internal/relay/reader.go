// Package relay implements the vendor-agnostic streaming plumbing: an
// incremental line reader over the upstream SSE body and the uniform
// downstream event writer. The relay forwards events as they arrive
// and never buffers a full response.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/modelrelay/modelrelay/gateway/internal/provider"
	"github.com/rs/zerolog/log"
)

// doneSentinel is the literal payload vendors send to close an
// OpenAI-style stream.
const doneSentinel = "[DONE]"

// LineReader reassembles complete lines from an incremental byte
// stream. Bytes after the last newline stay buffered until more bytes
// arrive, so a JSON payload split across TCP chunks is never surfaced
// early. Flush returns the unterminated tail at EOF.
type LineReader struct {
	buf []byte
}

// Feed appends a chunk and returns every complete line it unlocked,
// stripped of the trailing newline and one optional carriage return.
func (r *LineReader) Feed(chunk []byte) []string {
	r.buf = append(r.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			return lines
		}
		line := r.buf[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		lines = append(lines, string(line))
		r.buf = r.buf[i+1:]
	}
}

// Flush returns the buffered tail, if any, and resets the reader.
func (r *LineReader) Flush() (string, bool) {
	if len(r.buf) == 0 {
		return "", false
	}
	line := r.buf
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	r.buf = nil
	return string(line), true
}

// Frame is one upstream SSE data payload.
type Frame struct {
	Payload []byte
	Done    bool
}

// ParseLine classifies one complete line. ok is false for blank lines,
// ":" comments, event names and anything else that is not a data line;
// those are discarded silently per the SSE protocol.
func ParseLine(line string) (Frame, bool) {
	if line == "" || strings.HasPrefix(line, ":") {
		return Frame{}, false
	}
	if !strings.HasPrefix(line, "data:") {
		return Frame{}, false
	}
	payload := strings.TrimSpace(line[len("data:"):])
	if payload == doneSentinel {
		return Frame{Done: true}, true
	}
	return Frame{Payload: []byte(payload)}, true
}

// Stream drains one upstream SSE body: it reassembles lines, filters
// data frames, parses them through the adapter and hands each event to
// onEvent in arrival order. It returns nil when the upstream signals
// completion (the [DONE] sentinel, a dialect end event, or EOF), and
// the first error from the context, the body, or onEvent otherwise.
//
// A complete line that fails to parse is skipped: unlike a split chunk,
// waiting for more bytes can never repair it.
func Stream(ctx context.Context, body io.Reader, adapter provider.Adapter, onEvent func(provider.Event) error) error {
	reader := &LineReader{}
	buf := make([]byte, 4096)

	deliver := func(line string) (done bool, err error) {
		frame, ok := ParseLine(line)
		if !ok {
			return false, nil
		}
		if frame.Done {
			return true, nil
		}
		ev, perr := adapter.ParseEvent(frame.Payload)
		if perr != nil {
			log.Debug().Err(perr).Msg("Skipping unparseable stream event")
			return false, nil
		}
		if ev.Delta != "" || len(ev.ToolCalls) > 0 {
			if eerr := onEvent(ev); eerr != nil {
				return false, eerr
			}
		}
		return ev.Done, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range reader.Feed(buf[:n]) {
				done, derr := deliver(line)
				if derr != nil {
					return derr
				}
				if done {
					return nil
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				if tail, ok := reader.Flush(); ok {
					if _, derr := deliver(tail); derr != nil {
						return derr
					}
				}
				return nil
			}
			return fmt.Errorf("read upstream stream: %w", err)
		}
	}
}
