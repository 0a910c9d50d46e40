package events

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// StreamConfig tunes the SSE endpoint.
type StreamConfig struct {
	RetryDelay        time.Duration
	KeepaliveInterval time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 10 * time.Second
	}
	return c
}

// Initial produces the first event sent on a fresh (non-replay) stream.
type Initial func(r *http.Request) (eventType string, data []byte, err error)

// Stream serves the session's events as server-sent events. keyOf maps
// the request to the session key. On reconnect the client's Last-Event-ID
// (header or lastEventId query) selects the replayed messages; otherwise
// initial, when set, is sent first.
func (b *Broker) Stream(cfg StreamConfig, keyOf func(r *http.Request) string, initial Initial) http.HandlerFunc {
	cfg = cfg.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		key := keyOf(r)
		if key == "" {
			http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
			return
		}

		lastEventID := int64(0)
		idHeader := r.Header.Get("Last-Event-ID")
		if idHeader == "" {
			idHeader = r.URL.Query().Get("lastEventId")
		}
		if idHeader != "" {
			if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
				lastEventID = parsed
			}
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		if _, err := fmt.Fprintf(w, "retry: %d\n\n", cfg.RetryDelay.Milliseconds()); err != nil {
			slog.Warn("failed to write SSE retry header", "error", err, "key", key)
			return
		}
		flusher.Flush()

		sub, missed := b.Subscribe(key, lastEventID)
		defer func() {
			b.Unsubscribe(sub)
			slog.Info("SSE connection closed", "key", key)
		}()

		sent := lastEventID
		for _, msg := range missed {
			if err := writeMessage(w, msg); err != nil {
				return
			}
			sent = msg.ID
		}
		if lastEventID == 0 && initial != nil {
			eventType, data, err := initial(r)
			if err != nil {
				slog.Warn("failed to build initial SSE event", "error", err, "key", key)
			} else if err := writeSSE(w, eventType, data); err != nil {
				return
			}
		}
		flusher.Flush()

		slog.Info("SSE connection established", "key", key, "reconnect", lastEventID > 0, "replayed", len(missed))

		keepalive := time.NewTicker(cfg.KeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case msg := <-sub.C:
				if msg.ID <= sent {
					continue
				}
				if err := writeMessage(w, msg); err != nil {
					slog.Warn("failed to write SSE event", "error", err, "key", key)
					return
				}
				sent = msg.ID
				flusher.Flush()
			case <-keepalive.C:
				if err := writeSSE(w, "ping", []byte(`{"status":"alive"}`)); err != nil {
					slog.Warn("failed to write SSE keepalive ping", "error", err, "key", key)
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeMessage(w io.Writer, msg Message) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", msg.ID, msg.Type, msg.Data)
	return err
}
