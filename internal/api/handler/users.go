package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// UserAdmin is the account surface exposed to API-key callers.
type UserAdmin interface {
	GetUser(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, email, password string) error
	AddUsed(ctx context.Context, email string, cpu, ram, disk int) (*models.User, error)
	SetUsed(ctx context.Context, email string, cpu, ram, disk int) (*models.User, error)
	UpdateCoins(ctx context.Context, email string, coins int) error
	UpdateExtraRAM(ctx context.Context, email string, ram int) error
	UpdateExtraCPU(ctx context.Context, email string, cpu int) error
	UpdateExtraDisk(ctx context.Context, email string, disk int) error
	SetExternalID(ctx context.Context, username, id string) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// UserParam is the path parameter naming the target user. It carries the
// email everywhere except the pterodactyl-id route, where it is the username.
const UserParam = "user"

type passwordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type usedRequest struct {
	CPU  int `json:"cpu"`
	RAM  int `json:"ram"`
	Disk int `json:"disk"`
}

type coinsRequest struct {
	Coins *int `json:"coins" validate:"required,gte=0,max=2147483647"`
}

type extraRequest struct {
	RAM  *int `json:"ram"  validate:"omitempty,gte=0,max=2147483647"`
	CPU  *int `json:"cpu"  validate:"omitempty,gte=0,max=2147483647"`
	Disk *int `json:"disk" validate:"omitempty,gte=0,max=2147483647"`
}

type externalIDRequest struct {
	PterodactylID string `json:"pterodactyl_id" validate:"required,max=64"`
}

// NewGetUserHandler returns an http.HandlerFunc for GET /api/v1/users/{user}.
func NewGetUserHandler(users UserAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := users.GetUser(r.Context(), chi.URLParam(r, UserParam))
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}

// NewUpdatePasswordHandler returns an http.HandlerFunc for PUT /api/v1/users/{user}/password.
func NewUpdatePasswordHandler(users UserAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passwordRequest
		if !decode(w, r, &req) {
			return
		}
		if err := users.UpdatePassword(r.Context(), chi.URLParam(r, UserParam), req.Password); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

// NewAddUsedHandler returns an http.HandlerFunc for POST /api/v1/users/{user}/used.
// Values may be negative to release resources.
func NewAddUsedHandler(users UserAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req usedRequest
		if !decode(w, r, &req) {
			return
		}
		u, err := users.AddUsed(r.Context(), chi.URLParam(r, UserParam), req.CPU, req.RAM, req.Disk)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}

// NewSetUsedHandler returns an http.HandlerFunc for PUT /api/v1/users/{user}/used.
func NewSetUsedHandler(users UserAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req usedRequest
		if !decode(w, r, &req) {
			return
		}
		u, err := users.SetUsed(r.Context(), chi.URLParam(r, UserParam), req.CPU, req.RAM, req.Disk)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}

// NewUpdateCoinsHandler returns an http.HandlerFunc for PUT /api/v1/users/{user}/coins.
func NewUpdateCoinsHandler(users UserAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req coinsRequest
		if !decode(w, r, &req) {
			return
		}
		email := chi.URLParam(r, UserParam)
		if err := users.UpdateCoins(r.Context(), email, *req.Coins); err != nil {
			writeError(w, r, err)
			return
		}
		respondUser(w, r, users, email)
	}
}

// NewUpdateExtraHandler returns an http.HandlerFunc for PUT /api/v1/users/{user}/extra.
// Only the fields present in the body are changed.
func NewUpdateExtraHandler(users UserAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extraRequest
		if !decode(w, r, &req) {
			return
		}
		if req.RAM == nil && req.CPU == nil && req.Disk == nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"At least one of ram, cpu or disk is required", nil)
			return
		}

		ctx := r.Context()
		email := chi.URLParam(r, UserParam)
		if req.RAM != nil {
			if err := users.UpdateExtraRAM(ctx, email, *req.RAM); err != nil {
				writeError(w, r, err)
				return
			}
		}
		if req.CPU != nil {
			if err := users.UpdateExtraCPU(ctx, email, *req.CPU); err != nil {
				writeError(w, r, err)
				return
			}
		}
		if req.Disk != nil {
			if err := users.UpdateExtraDisk(ctx, email, *req.Disk); err != nil {
				writeError(w, r, err)
				return
			}
		}
		respondUser(w, r, users, email)
	}
}

// NewSetExternalIDHandler returns an http.HandlerFunc for
// PUT /api/v1/users/{user}/pterodactyl-id, keyed by username.
func NewSetExternalIDHandler(users UserAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req externalIDRequest
		if !decode(w, r, &req) {
			return
		}
		username := chi.URLParam(r, UserParam)
		if err := users.SetExternalID(r.Context(), username, req.PterodactylID); err != nil {
			writeError(w, r, err)
			return
		}
		u, err := users.GetUserByUsername(r.Context(), username)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}

func respondUser(w http.ResponseWriter, r *http.Request, users UserAdmin, email string) {
	u, err := users.GetUser(r.Context(), email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, u)
}
