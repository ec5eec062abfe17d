package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/dashactyl/internal/afk"
	mw "github.com/kiranshivaraju/dashactyl/internal/api/middleware"
	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// SettingsReader loads the dashboard settings.
type SettingsReader interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
}

// AFKEarner starts AFK reward sessions.
type AFKEarner interface {
	Begin(ctx context.Context, email string, intervalSeconds, reward int) (*afk.Session, error)
}

type afkSettings struct {
	AFKInterval int `json:"afk_interval"`
	AFKCoins    int `json:"afk_coins"`
}

// NewAFKSettingsHandler returns an http.HandlerFunc for GET /api/afk. The
// body is not enveloped; the AFK card reads the two fields directly.
func NewAFKSettingsHandler(settings SettingsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := settings.GetSettings(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Raw(w, http.StatusOK, afkSettings{AFKInterval: s.AFKInterval, AFKCoins: s.AFKCoins})
	}
}

// NewAFKStreamHandler returns an http.HandlerFunc for GET /api/afk/stream.
func NewAFKStreamHandler(settings SettingsReader, earner AFKEarner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, ok := mw.GetUserEmail(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Not logged in", nil)
			return
		}

		s, err := settings.GetSettings(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}

		sess, err := earner.Begin(r.Context(), email, s.AFKInterval, s.AFKCoins)
		switch {
		case errors.Is(err, afk.ErrDisabled):
			response.Error(w, http.StatusConflict, "AFK_DISABLED", "AFK rewards are disabled", nil)
			return
		case errors.Is(err, afk.ErrAlreadyActive):
			response.Error(w, http.StatusConflict, "AFK_ALREADY_ACTIVE",
				"An AFK session is already open for this account", nil)
			return
		case err != nil:
			writeError(w, r, err)
			return
		}
		defer sess.Close()

		stream, ok := startSSE(w)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming unsupported", nil)
			return
		}
		if err := stream.event("connected", afkSettings{AFKInterval: s.AFKInterval, AFKCoins: s.AFKCoins}); err != nil {
			return
		}

		err = sess.Run(r.Context(), func(t afk.Tick) error {
			return stream.event("tick", t)
		})
		if err != nil && r.Context().Err() == nil {
			slog.Warn("afk stream ended", "email", email, "error", err)
		}
	}
}
