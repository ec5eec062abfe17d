package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	apiKeyIDKey  contextKey = "api_key_id"
	keyPrefixKey contextKey = "key_prefix"
	userEmailKey contextKey = "user_email"
	sessionIDKey contextKey = "session_id"
)

func setAPIKeyID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, apiKeyIDKey, id)
}

// GetAPIKeyID returns the id of the API key that authenticated the request.
// The bootstrap key has no id.
func GetAPIKeyID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(apiKeyIDKey).(uuid.UUID)
	return id, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

// SetUserEmail stores the session owner's email in ctx.
func SetUserEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, userEmailKey, email)
}

// GetUserEmail returns the email of the logged-in user.
func GetUserEmail(r *http.Request) (string, bool) {
	email, ok := r.Context().Value(userEmailKey).(string)
	return email, ok && email != ""
}

func setSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// GetSessionID returns the session token of the request.
func GetSessionID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(sessionIDKey).(string)
	return id, ok
}

// ClientIP returns the request's remote address without the port. Behind
// chi's RealIP middleware this is the forwarded client address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
