package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// KeyManager creates, lists and revokes API keys.
type KeyManager interface {
	Create(ctx context.Context, description string) (*models.APIKey, string, error)
	List(ctx context.Context) ([]*models.APIKey, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type createKeyRequest struct {
	Description string `json:"description" validate:"max=255"`
}

type keyResponse struct {
	ID          uuid.UUID `json:"id"`
	KeyPrefix   string    `json:"key_prefix"`
	Description string    `json:"description"`
	LastUsed    string    `json:"last_used"`
	CreatedAt   time.Time `json:"created_at"`
}

type createdKeyResponse struct {
	keyResponse
	Key string `json:"key"`
}

func toKeyResponse(k *models.APIKey) keyResponse {
	return keyResponse{
		ID:          k.ID,
		KeyPrefix:   k.KeyPrefix,
		Description: k.Description,
		LastUsed:    k.LastUsedLabel(),
		CreatedAt:   k.CreatedAt,
	}
}

// NewListKeysHandler returns an http.HandlerFunc for GET /api/v1/keys.
func NewListKeysHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := keys.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]keyResponse, 0, len(list))
		for _, k := range list {
			out = append(out, toKeyResponse(k))
		}
		response.JSON(w, out)
	}
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/keys.
// The plaintext key appears in this response only.
func NewCreateKeyHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createKeyRequest
		if !decode(w, r, &req) {
			return
		}
		k, raw, err := keys.Create(r.Context(), req.Description)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, createdKeyResponse{keyResponse: toKeyResponse(k), Key: raw})
	}
}

// NewDeleteKeyHandler returns an http.HandlerFunc for DELETE /api/v1/keys/{id}.
func NewDeleteKeyHandler(keys KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "id must be a UUID", nil)
			return
		}
		if err := keys.Delete(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}
