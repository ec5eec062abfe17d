package handler

import (
	"net/http"

	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/internal/store"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// NewGetSettingsHandler returns an http.HandlerFunc for GET /api/v1/settings.
func NewGetSettingsHandler(settings store.SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := settings.GetSettings(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, s)
	}
}

// NewUpdateSettingsHandler returns an http.HandlerFunc for PUT /api/v1/settings.
// Every whitelisted field is replaced; name and default_package are ignored.
func NewUpdateSettingsHandler(settings store.SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.SettingsUpdate
		if !decode(w, r, &req) {
			return
		}
		if err := settings.SetSettings(r.Context(), req); err != nil {
			writeError(w, r, err)
			return
		}
		s, err := settings.GetSettings(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, s)
	}
}
