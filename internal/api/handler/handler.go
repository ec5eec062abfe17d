// Package handler contains the HTTP handlers for the dashboard and the
// external API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kiranshivaraju/dashactyl/internal/account"
	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/internal/billing"
	"github.com/kiranshivaraju/dashactyl/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// decode reads a JSON body into v and validates it. On failure it writes the
// error response and returns false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request", fieldErrors(verrs))
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request", nil)
		return false
	}
	return true
}

func fieldErrors(verrs validator.ValidationErrors) map[string][]string {
	details := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = append(details[fe.Field()], describe(fe))
	}
	return details
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "gte":
		return fe.Field() + " must be " + fe.Param() + " or greater"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

// pathInt parses an integer URL parameter. On failure it writes a 400 and
// returns false.
func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be an integer", nil)
		return 0, false
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" is out of range", nil)
		return 0, false
	}
	return v, true
}

// writeError maps domain and store errors to the response envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *account.ConflictError
	switch {
	case errors.As(err, &conflict):
		response.Error(w, http.StatusConflict, "CONFLICT", conflict.Message,
			map[string]string{"field": conflict.Field})
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "CONFLICT", "Resource already exists", nil)
	case errors.Is(err, account.ErrUserNotFound), errors.Is(err, billing.ErrUserNotFound):
		response.Error(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
	case errors.Is(err, billing.ErrPackageNotFound):
		response.Error(w, http.StatusNotFound, "PACKAGE_NOT_FOUND", "Package not found", nil)
	case errors.Is(err, billing.ErrRenewalNotFound):
		response.Error(w, http.StatusNotFound, "RENEWAL_NOT_FOUND", "Renewal not found", nil)
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrInvalidValue):
		response.Error(w, http.StatusBadRequest, "INVALID_VALUE", "Value out of range", nil)
	case errors.Is(err, billing.ErrInsufficientCoins):
		response.Error(w, http.StatusPaymentRequired, "INSUFFICIENT_COINS", "Not enough coins", nil)
	case errors.Is(err, billing.ErrRenewalDisabled):
		response.Error(w, http.StatusConflict, "RENEWAL_DISABLED", "Renewals are disabled for this server", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
