package relay

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelrelay/modelrelay/gateway/pkg/models"
)

// Writer emits uniform SSE events to one downstream consumer. Headers
// are written lazily on the first event so that failures before any
// output can still carry a proper HTTP status code.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewWriter wraps a ResponseWriter. Fails when the writer cannot flush
// incrementally (streaming would silently buffer otherwise).
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// Started reports whether SSE headers have been written. Once true,
// errors can no longer change the HTTP status.
func (sw *Writer) Started() bool { return sw.started }

func (sw *Writer) start() {
	if sw.started {
		return
	}
	sw.w.Header().Set("Content-Type", "text/event-stream")
	sw.w.Header().Set("Cache-Control", "no-cache")
	sw.w.Header().Set("Connection", "keep-alive")
	sw.w.Header().Set("X-Accel-Buffering", "no")
	sw.w.WriteHeader(http.StatusOK)
	sw.flusher.Flush()
	sw.started = true
}

// Send writes one normalized chunk as a data event and flushes it.
func (sw *Writer) Send(chunk models.StreamChunk) error {
	sw.start()
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal stream chunk: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Done writes the terminal [DONE] marker and flushes. Safe to call on
// a stream that produced no deltas: headers go out first.
func (sw *Writer) Done() error {
	sw.start()
	if _, err := fmt.Fprint(sw.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Fail writes an error event for failures that happen after streaming
// began. The stream ends without the [DONE] marker so clients do not
// mistake the turn for a completed one.
func (sw *Writer) Fail(message string) {
	if !sw.started {
		return
	}
	payload, _ := json.Marshal(map[string]string{"error": message})
	fmt.Fprintf(sw.w, "data: %s\n\n", payload)
	sw.flusher.Flush()
}
