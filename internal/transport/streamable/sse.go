package streamable

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Event is one parsed SSE event.
type Event struct {
	ID    string
	Event string
	Data  string
}

// EventCallback is invoked once per delivered SSE event, in wire order.
type EventCallback func(Event)

// readEvent reads a single SSE event terminated by a blank line (either
// "\n\n" or "\r\n\r\n", since ReadString('\n') already strips the
// distinction down to empty lines). Multiple "data:" lines are joined
// with "\n", matching the wire format's documented accumulation rule.
func readEvent(ctx context.Context, r *bufio.Reader) (Event, error) {
	var ev Event
	var dataLines []string
	haveField := false

	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF && haveField {
				// A field arrived but the stream ended before the
				// terminating blank line: per the spec this event is
				// not delivered until the blank line arrives, so this
				// partial event is discarded, not returned.
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !haveField {
				continue
			}
			ev.Data = strings.Join(dataLines, "\n")
			return ev, nil
		}

		switch {
		case strings.HasPrefix(line, "id:"):
			ev.ID = strings.TrimPrefix(strings.TrimPrefix(line, "id:"), " ")
			haveField = true
		case strings.HasPrefix(line, "event:"):
			ev.Event = strings.TrimPrefix(strings.TrimPrefix(line, "event:"), " ")
			haveField = true
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			haveField = true
		default:
			// Unrecognized field names are ignored per the SSE spec.
		}
	}
}
