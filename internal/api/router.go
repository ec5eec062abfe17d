package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kiranshivaraju/dashactyl/internal/api/handler"
	mw "github.com/kiranshivaraju/dashactyl/internal/api/middleware"
	"github.com/kiranshivaraju/dashactyl/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	Metrics    http.Handler

	HealthHandler http.HandlerFunc

	// Dashboard (session cookie)
	RegisterHandler http.HandlerFunc
	LoginHandler    http.HandlerFunc
	LogoutHandler   http.HandlerFunc
	MeHandler       http.HandlerFunc
	MyRenewals      http.HandlerFunc
	RenewHandler    http.HandlerFunc
	AFKSettings     http.HandlerFunc
	AFKStream       http.HandlerFunc
	EventsHandler   http.HandlerFunc

	// External API (bearer key)
	GetSettings          http.HandlerFunc
	UpdateSettings       http.HandlerFunc
	ListPackages         http.HandlerFunc
	CreatePackage        http.HandlerFunc
	GetDefaultPackage    http.HandlerFunc
	GetPackage           http.HandlerFunc
	ListEggs             http.HandlerFunc
	CreateEgg            http.HandlerFunc
	GetEgg               http.HandlerFunc
	ListLocations        http.HandlerFunc
	CreateLocation       http.HandlerFunc
	GetLocation          http.HandlerFunc
	UpdateLocationStatus http.HandlerFunc
	GetUser              http.HandlerFunc
	UpdatePassword       http.HandlerFunc
	AddUsed              http.HandlerFunc
	SetUsed              http.HandlerFunc
	UpdateCoins          http.HandlerFunc
	UpdateExtra          http.HandlerFunc
	SetExternalID        http.HandlerFunc
	UserRenewals         http.HandlerFunc
	ListRenewals         http.HandlerFunc
	CreateRenewal        http.HandlerFunc
	GetRenewal           http.HandlerFunc
	UpdateRenewal        http.HandlerFunc
	DeleteRenewal        http.HandlerFunc
	ListKeysHandler      http.HandlerFunc
	CreateKeyHandler     http.HandlerFunc
	DeleteKeyHandler     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/health", orNotImplemented(deps.HealthHandler))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// Public auth routes
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.LimitByIP)

		r.Post("/api/auth/register", orNotImplemented(deps.RegisterHandler))
		r.Post("/api/auth/login", orNotImplemented(deps.LoginHandler))
	})

	// Dashboard routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireSession)

		r.Post("/api/auth/logout", orNotImplemented(deps.LogoutHandler))
		r.Get("/api/me", orNotImplemented(deps.MeHandler))
		r.Get("/api/me/renewals", orNotImplemented(deps.MyRenewals))
		r.Post("/api/me/renewals/{serverID}/renew", orNotImplemented(deps.RenewHandler))
		r.Get("/api/afk", orNotImplemented(deps.AFKSettings))
		r.Get("/api/afk/stream", orNotImplemented(deps.AFKStream))
		r.Get("/api/events", orNotImplemented(deps.EventsHandler))
	})

	// External API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/settings", orNotImplemented(deps.GetSettings))
		r.Put("/settings", orNotImplemented(deps.UpdateSettings))

		r.Get("/packages", orNotImplemented(deps.ListPackages))
		r.Post("/packages", orNotImplemented(deps.CreatePackage))
		r.Get("/packages/default", orNotImplemented(deps.GetDefaultPackage))
		r.Get("/packages/{name}", orNotImplemented(deps.GetPackage))

		r.Get("/eggs", orNotImplemented(deps.ListEggs))
		r.Post("/eggs", orNotImplemented(deps.CreateEgg))
		r.Get("/eggs/{name}", orNotImplemented(deps.GetEgg))

		r.Get("/locations", orNotImplemented(deps.ListLocations))
		r.Post("/locations", orNotImplemented(deps.CreateLocation))
		r.Get("/locations/{id}", orNotImplemented(deps.GetLocation))
		r.Patch("/locations/{id}", orNotImplemented(deps.UpdateLocationStatus))

		r.Route("/users/{"+handler.UserParam+"}", func(r chi.Router) {
			r.Get("/", orNotImplemented(deps.GetUser))
			r.Put("/password", orNotImplemented(deps.UpdatePassword))
			r.Post("/used", orNotImplemented(deps.AddUsed))
			r.Put("/used", orNotImplemented(deps.SetUsed))
			r.Put("/coins", orNotImplemented(deps.UpdateCoins))
			r.Put("/extra", orNotImplemented(deps.UpdateExtra))
			r.Put("/pterodactyl-id", orNotImplemented(deps.SetExternalID))
			r.Get("/renewals", orNotImplemented(deps.UserRenewals))
		})

		r.Get("/renewals", orNotImplemented(deps.ListRenewals))
		r.Post("/renewals", orNotImplemented(deps.CreateRenewal))
		r.Get("/renewals/{serverID}", orNotImplemented(deps.GetRenewal))
		r.Patch("/renewals/{serverID}", orNotImplemented(deps.UpdateRenewal))
		r.Delete("/renewals/{serverID}", orNotImplemented(deps.DeleteRenewal))

		r.Get("/keys", orNotImplemented(deps.ListKeysHandler))
		r.Post("/keys", orNotImplemented(deps.CreateKeyHandler))
		r.Delete("/keys/{id}", orNotImplemented(deps.DeleteKeyHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
