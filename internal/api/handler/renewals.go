package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/dashactyl/internal/api/middleware"
	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/internal/billing"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// Renewals is the billing surface the renewal handlers use.
type Renewals interface {
	AddRenewal(ctx context.Context, email string, serverID int) (*models.Renewal, error)
	RemoveRenewal(ctx context.Context, serverID int) error
	GetRenewal(ctx context.Context, serverID int) (*models.Renewal, error)
	ListRenewals(ctx context.Context) ([]*models.Renewal, error)
	ListUserRenewals(ctx context.Context, email string) ([]*models.Renewal, error)
	UpdateRenewal(ctx context.Context, serverID int, renewBy int64) error
	Renew(ctx context.Context, serverID int) (*models.Renewal, error)
}

type createRenewalRequest struct {
	Email    string `json:"email"     validate:"required,email"`
	ServerID int    `json:"server_id" validate:"gt=0,max=2147483647"`
}

type updateRenewalRequest struct {
	RenewBy *int64 `json:"renew_by" validate:"required,gte=0"`
}

// NewListRenewalsHandler returns an http.HandlerFunc for GET /api/v1/renewals.
func NewListRenewalsHandler(renewals Renewals) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := renewals.ListRenewals(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, list)
	}
}

// NewCreateRenewalHandler returns an http.HandlerFunc for POST /api/v1/renewals.
func NewCreateRenewalHandler(renewals Renewals) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRenewalRequest
		if !decode(w, r, &req) {
			return
		}
		rn, err := renewals.AddRenewal(r.Context(), req.Email, req.ServerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, rn)
	}
}

// NewGetRenewalHandler returns an http.HandlerFunc for GET /api/v1/renewals/{serverID}.
func NewGetRenewalHandler(renewals Renewals) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInt(w, r, "serverID")
		if !ok {
			return
		}
		rn, err := renewals.GetRenewal(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, rn)
	}
}

// NewUpdateRenewalHandler returns an http.HandlerFunc for PATCH /api/v1/renewals/{serverID}.
func NewUpdateRenewalHandler(renewals Renewals) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInt(w, r, "serverID")
		if !ok {
			return
		}
		var req updateRenewalRequest
		if !decode(w, r, &req) {
			return
		}
		if err := renewals.UpdateRenewal(r.Context(), id, *req.RenewBy); err != nil {
			writeError(w, r, err)
			return
		}
		rn, err := renewals.GetRenewal(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, rn)
	}
}

// NewDeleteRenewalHandler returns an http.HandlerFunc for DELETE /api/v1/renewals/{serverID}.
func NewDeleteRenewalHandler(renewals Renewals) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInt(w, r, "serverID")
		if !ok {
			return
		}
		if err := renewals.RemoveRenewal(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

// NewUserRenewalsHandler returns an http.HandlerFunc for GET /api/v1/users/{user}/renewals.
func NewUserRenewalsHandler(renewals Renewals) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := renewals.ListUserRenewals(r.Context(), chi.URLParam(r, UserParam))
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, list)
	}
}

// NewMyRenewalsHandler returns an http.HandlerFunc for GET /api/me/renewals.
func NewMyRenewalsHandler(renewals Renewals) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, ok := mw.GetUserEmail(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Not logged in", nil)
			return
		}
		list, err := renewals.ListUserRenewals(r.Context(), email)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, list)
	}
}

// NewRenewHandler returns an http.HandlerFunc for POST /api/me/renewals/{serverID}/renew.
// Servers owned by someone else are reported as missing.
func NewRenewHandler(renewals Renewals) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, ok := mw.GetUserEmail(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Not logged in", nil)
			return
		}
		id, ok := pathInt(w, r, "serverID")
		if !ok {
			return
		}

		ctx := r.Context()
		current, err := renewals.GetRenewal(ctx, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if current.Email != email {
			writeError(w, r, billing.ErrRenewalNotFound)
			return
		}

		rn, err := renewals.Renew(ctx, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, rn)
	}
}
