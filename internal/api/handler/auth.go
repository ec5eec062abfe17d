package handler

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/dashactyl/internal/account"
	mw "github.com/kiranshivaraju/dashactyl/internal/api/middleware"
	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/internal/metrics"
	"github.com/kiranshivaraju/dashactyl/internal/reputation"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// Accounts is the account surface the session handlers use.
type Accounts interface {
	CreateUser(ctx context.Context, username, email, password, ip string) (*models.User, error)
	VerifyPassword(ctx context.Context, email, password string) error
	GetUser(ctx context.Context, email string) (*models.User, error)
	CheckAltsByRegisteredIP(ctx context.Context, ip string) (bool, error)
	CheckAltsByLastLoginIP(ctx context.Context, ip string) (bool, error)
	UpdateLastLoginIP(ctx context.Context, email, ip string) error
}

// Sessions creates and removes login sessions.
type Sessions interface {
	CreateSession(ctx context.Context, sess *models.Session) error
	DeleteSession(ctx context.Context, id string) error
}

// SessionConfig controls the issued cookie.
type SessionConfig struct {
	TTL    time.Duration
	Secure bool
}

func issueSession(ctx context.Context, w http.ResponseWriter, sessions Sessions, cfg SessionConfig, email string) error {
	now := time.Now().UTC()
	sess := &models.Session{
		ID:        rand.Text(),
		Email:     email,
		ExpiresAt: now.Add(cfg.TTL),
		CreatedAt: now,
	}
	if err := sessions.CreateSession(ctx, sess); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     mw.SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// RegisterOptions configures the registration gate.
type RegisterOptions struct {
	Classifier   reputation.Classifier
	BlockProxies bool
	AllowAlts    bool
	Session      SessionConfig
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// NewRegisterHandler returns an http.HandlerFunc for POST /api/auth/register.
func NewRegisterHandler(accounts Accounts, sessions Sessions, opts RegisterOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decode(w, r, &req) {
			metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
			return
		}

		ctx := r.Context()
		ip := mw.ClientIP(r)

		if opts.BlockProxies && opts.Classifier != nil {
			risky, err := opts.Classifier.IsRiskyIP(ctx, ip)
			switch {
			case err != nil:
				slog.Warn("ip reputation lookup failed, allowing registration", "ip", ip, "error", err)
			case risky:
				metrics.RegistrationsTotal.WithLabelValues("proxy").Inc()
				response.Error(w, http.StatusForbidden, "PROXY_DETECTED",
					"Registrations from proxies and hosting providers are not allowed.", nil)
				return
			}
		}

		if !opts.AllowAlts {
			alt, err := isAlt(ctx, accounts, ip)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if alt {
				metrics.RegistrationsTotal.WithLabelValues("alt").Inc()
				response.Error(w, http.StatusForbidden, "ALT_ACCOUNT",
					"An account has already been created from this address.", nil)
				return
			}
		}

		u, err := accounts.CreateUser(ctx, req.Username, req.Email, req.Password, ip)
		if err != nil {
			var conflict *account.ConflictError
			if errors.As(err, &conflict) {
				metrics.RegistrationsTotal.WithLabelValues("conflict").Inc()
			}
			writeError(w, r, err)
			return
		}
		metrics.RegistrationsTotal.WithLabelValues("created").Inc()

		if err := issueSession(ctx, w, sessions, opts.Session, u.Email); err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, u)
	}
}

func isAlt(ctx context.Context, accounts Accounts, ip string) (bool, error) {
	found, err := accounts.CheckAltsByRegisteredIP(ctx, ip)
	if err != nil || found {
		return found, err
	}
	return accounts.CheckAltsByLastLoginIP(ctx, ip)
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// NewLoginHandler returns an http.HandlerFunc for POST /api/auth/login.
func NewLoginHandler(accounts Accounts, sessions Sessions, cfg SessionConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decode(w, r, &req) {
			return
		}

		ctx := r.Context()
		if err := accounts.VerifyPassword(ctx, req.Email, req.Password); err != nil {
			if errors.Is(err, account.ErrInvalidCredential) {
				response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS",
					"Invalid email or password", nil)
				return
			}
			writeError(w, r, err)
			return
		}

		if err := accounts.UpdateLastLoginIP(ctx, req.Email, mw.ClientIP(r)); err != nil {
			writeError(w, r, err)
			return
		}
		if err := issueSession(ctx, w, sessions, cfg, req.Email); err != nil {
			writeError(w, r, err)
			return
		}

		u, err := accounts.GetUser(ctx, req.Email)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}

// NewLogoutHandler returns an http.HandlerFunc for POST /api/auth/logout.
func NewLogoutHandler(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id, ok := mw.GetSessionID(r); ok {
			if err := sessions.DeleteSession(r.Context(), id); err != nil {
				writeError(w, r, err)
				return
			}
		}
		http.SetCookie(w, &http.Cookie{
			Name:     mw.SessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		response.NoContent(w)
	}
}

// NewMeHandler returns an http.HandlerFunc for GET /api/me.
func NewMeHandler(accounts Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, ok := mw.GetUserEmail(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Not logged in", nil)
			return
		}
		u, err := accounts.GetUser(r.Context(), email)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, u)
	}
}
