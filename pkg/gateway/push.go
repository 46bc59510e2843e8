package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/toolrun/pkg/eventbus"
)

func helloEvent() eventbus.Event {
	now := time.Now().UnixMilli()
	return eventbus.Event{
		Kind:      eventbus.KindHello,
		Timestamp: now,
		Data:      eventbus.Hello{Time: now},
	}
}

// writeSSE writes one frame as
//
//	event: <kind>
//	id: <seq>
//	data: <json>
//
// The id line is omitted for per-connection events such as hello.
func writeSSE(w io.Writer, ev eventbus.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}
	if ev.Seq > 0 {
		_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.Kind, ev.Seq, data)
	} else {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	}
	return err
}

// handleEvents streams bus events as server-sent events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sub := s.bus.Subscribe(pushKinds...)
	defer sub.Close()
	s.metrics.SubscriberAdded()
	defer s.metrics.SubscriberRemoved()

	logger := s.logger.With().Str("subscriber", sub.ID).Str("transport", "sse").Logger()
	logger.Debug().Str("ip", r.RemoteAddr).Msg("Push subscriber connected")
	defer logger.Debug().Msg("Push subscriber disconnected")

	if err := writeSSE(w, helloEvent()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := writeSSE(w, helloEvent()); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				logger.Warn().Err(err).Str("event", string(ev.Kind)).Msg("Failed to write event")
				return
			}
			flusher.Flush()
		}
	}
}

// handleWebSocket streams bus events as JSON text frames
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	clientID, _ := gonanoid.New()
	sub := s.bus.Subscribe(pushKinds...)
	defer sub.Close()
	s.metrics.SubscriberAdded()
	defer s.metrics.SubscriberRemoved()

	logger := s.logger.With().Str("clientId", clientID).Str("transport", "ws").Logger()
	logger.Info().Str("ip", r.RemoteAddr).Msg("Client connected")
	defer logger.Info().Msg("Client disconnected")

	// Inbound frames are ignored; reading surfaces the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(newEventMessage(helloEvent())); err != nil {
		return
	}

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if err := conn.WriteJSON(newEventMessage(helloEvent())); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(newEventMessage(ev)); err != nil {
				logger.Warn().Err(err).Str("event", string(ev.Kind)).Msg("Failed to write event")
				return
			}
		}
	}
}
