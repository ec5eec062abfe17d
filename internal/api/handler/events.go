package handler

import (
	"context"
	"net/http"
	"time"

	mw "github.com/kiranshivaraju/dashactyl/internal/api/middleware"
	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/internal/events"
)

// EventSource registers user change handlers.
type EventSource interface {
	Subscribe(fn events.Handler) (unsubscribe func())
}

const keepAliveInterval = 25 * time.Second

// NewEventsHandler returns an http.HandlerFunc for GET /api/events. It
// streams userUpdate events for the logged-in user only.
func NewEventsHandler(source EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, ok := mw.GetUserEmail(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Not logged in", nil)
			return
		}

		updates := make(chan events.UserUpdated, 8)
		unsubscribe := source.Subscribe(func(_ context.Context, ev events.UserUpdated) {
			if ev.Email != email {
				return
			}
			select {
			case updates <- ev:
			default:
			}
		})
		defer unsubscribe()

		stream, ok := startSSE(w)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming unsupported", nil)
			return
		}

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev := <-updates:
				if err := stream.event("userUpdate", ev); err != nil {
					return
				}
			case <-keepAlive.C:
				if err := stream.comment("keep-alive"); err != nil {
					return
				}
			}
		}
	}
}
