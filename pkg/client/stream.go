package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/harun/toolrun/pkg/eventbus"
	"github.com/harun/toolrun/pkg/toolexecutor"
)

// Stream reads the server's event stream and hands each event to handle
// until ctx is done or the server closes the stream. Payloads of known
// kinds are decoded into their eventbus types.
func (c *Client) Stream(ctx context.Context, handle func(eventbus.Event)) error {
	path := "/events"
	resp, err := c.do(ctx, c.stream, http.MethodGet, path, nil, http.Header{"Accept": {"text/event-stream"}})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &toolexecutor.TransportError{URL: c.base + path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errorMapping{}.apply(resp)
	}

	c.logger.Debug().Str("url", c.base+path).Msg("Event stream connected")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var (
		ev   eventbus.Event
		data strings.Builder
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if ev.Kind != "" {
				decoded, err := decodeEvent(ev, data.String())
				if err != nil {
					c.logger.Warn().Err(err).Str("event", string(ev.Kind)).Msg("Skipping malformed event")
				} else {
					handle(decoded)
				}
			}
			ev, data = eventbus.Event{}, strings.Builder{}
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Kind = eventbus.Kind(value)
		case "id":
			ev.Seq, _ = strconv.ParseInt(value, 10, 64)
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return &toolexecutor.TransportError{URL: c.base + path, Err: err}
	}
	if ctx.Err() != nil {
		return nil
	}
	return &toolexecutor.TransportError{URL: c.base + path, Err: errors.New("event stream closed by server")}
}

func decodeEvent(ev eventbus.Event, data string) (eventbus.Event, error) {
	raw := []byte(data)
	var err error
	switch ev.Kind {
	case eventbus.KindHello:
		var p eventbus.Hello
		err = json.Unmarshal(raw, &p)
		ev.Data, ev.Timestamp = p, p.Time
	case eventbus.KindRunFinished:
		var p eventbus.RunFinished
		err = json.Unmarshal(raw, &p)
		ev.Data, ev.RunID = p, p.RunID
	case eventbus.KindRunError:
		var p eventbus.RunError
		err = json.Unmarshal(raw, &p)
		ev.Data, ev.RunID = p, p.RunID
	case eventbus.KindUIOpen, eventbus.KindUIUpdate, eventbus.KindUILoading, eventbus.KindUIClose:
		var p eventbus.UIHint
		err = json.Unmarshal(raw, &p)
		ev.Data, ev.RunID, ev.Tool = p, p.RunID, p.Tool
	default:
		var p any
		err = json.Unmarshal(raw, &p)
		ev.Data = p
	}
	if err != nil {
		return ev, fmt.Errorf("decode %s payload: %w", ev.Kind, err)
	}
	return ev, nil
}
