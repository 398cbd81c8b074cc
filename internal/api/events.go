package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clipdesk/clipdesk/internal/controller"
)

const (
	eventBuffer       = 256
	heartbeatInterval = 15 * time.Second
)

// eventsHandler streams controller events as text/event-stream. The first
// message is a "state" event carrying the full view. Slow readers lose
// events rather than stall the controller.
func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "streaming unsupported", "INTERNAL_ERROR")
			return
		}

		events := make(chan controller.Event, eventBuffer)
		unsubscribe := cfg.Workflow.Subscribe(func(ev controller.Event) {
			select {
			case events <- ev:
			default:
				cfg.Logger.Warn("dropping event for slow subscriber", "type", ev.Type)
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		if err := writeEvent(w, "state", cfg.Workflow.View()); err != nil {
			return
		}
		flusher.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev := <-events:
				if err := writeEvent(w, string(ev.Type), ev); err != nil {
					return
				}
				flusher.Flush()
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
