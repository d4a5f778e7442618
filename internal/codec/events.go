package codec

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/danielflataker/usv-autopilot/internal/usverr"
)

// Event is one line of the companion line-delimited JSON event stream:
// a timestamp, a short event type tag, and a free-form detail payload.
type Event struct {
	TUs     uint64          `json:"t_us"`
	Type    string          `json:"type"`
	Detail  json.RawMessage `json:"detail,omitempty"`
	Message string          `json:"message,omitempty"`
}

// EventWriter appends Event values to w as one JSON object per line.
type EventWriter struct {
	w io.Writer
}

// NewEventWriter constructs an EventWriter over w.
func NewEventWriter(w io.Writer) *EventWriter {
	return &EventWriter{w: w}
}

// Write appends one event as a single JSON line.
func (ew *EventWriter) Write(e Event) error {
	const component = "codec.EventWriter.Write"
	b, err := json.Marshal(e)
	if err != nil {
		return usverr.Wrap(err, usverr.InvalidArgument, component, "marshal failed")
	}
	if _, err := ew.w.Write(append(b, '\n')); err != nil {
		return usverr.Wrap(err, usverr.InvalidArgument, component, "write failed")
	}
	return nil
}

// ReadEvents parses a full line-delimited JSON event stream from r.
// Blank lines are skipped; a malformed JSON line is fatal.
func ReadEvents(r io.Reader) ([]Event, error) {
	const component = "codec.ReadEvents"
	var out []Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, usverr.Wrap(err, usverr.InvalidArgument, component,
				fmt.Sprintf("malformed event at line %d", lineNo))
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, usverr.Wrap(err, usverr.InvalidArgument, component, "scan failed")
	}
	return out, nil
}
