package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/internal/apikey"
	"github.com/kiranshivaraju/dashactyl/internal/store"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// SessionCookie is the name of the dashboard login cookie.
const SessionCookie = "dashactyl_session"

const bootstrapPrefix = "bootstrap"

// KeyAuthenticator resolves raw bearer keys.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.APIKey, error)
}

// SessionLookup resolves session tokens.
type SessionLookup interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
}

// Auth provides API-key and session authentication middleware.
type Auth struct {
	keys         KeyAuthenticator
	sessions     SessionLookup
	bootstrapKey string
}

// NewAuth creates a new Auth middleware. bootstrapKey, when non-empty, is
// accepted as an API key so the first real key can be created.
func NewAuth(keys KeyAuthenticator, sessions SessionLookup, bootstrapKey string) *Auth {
	return &Auth{keys: keys, sessions: sessions, bootstrapKey: bootstrapKey}
}

// Authenticate validates the Bearer token and sets the key id and prefix in
// the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if a.bootstrapKey != "" &&
			subtle.ConstantTimeCompare([]byte(rawKey), []byte(a.bootstrapKey)) == 1 {
			r = r.WithContext(setKeyPrefix(r.Context(), bootstrapPrefix))
			next.ServeHTTP(w, r)
			return
		}

		if len(rawKey) < apikey.LookupPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		key, err := a.keys.Authenticate(r.Context(), rawKey)
		if errors.Is(err, apikey.ErrInvalidKey) {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		ctx := setAPIKeyID(r.Context(), key.ID)
		ctx = setKeyPrefix(ctx, key.KeyPrefix)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession rejects requests without a live dashboard session and sets
// the owner's email in the request context.
func (a *Auth) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHENTICATED", "Not logged in", nil)
			return
		}

		sess, err := a.sessions.GetSession(r.Context(), cookie.Value)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHENTICATED", "Session expired", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to load session", nil)
			return
		}

		ctx := SetUserEmail(r.Context(), sess.Email)
		ctx = setSessionID(ctx, sess.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
