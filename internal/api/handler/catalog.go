package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kiranshivaraju/dashactyl/internal/api/response"
	"github.com/kiranshivaraju/dashactyl/internal/store"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// --- Packages ---

type packageRequest struct {
	Name           string `json:"name"            validate:"required,max=64"`
	RAM            int    `json:"ram"             validate:"gte=0,max=2147483647"`
	CPU            int    `json:"cpu"             validate:"gte=0,max=2147483647"`
	Disk           int    `json:"disk"            validate:"gte=0,max=2147483647"`
	Price          int    `json:"price"           validate:"gte=0,max=2147483647"`
	RenewalEnabled bool   `json:"renewal_enabled"`
	RenewalTime    int64  `json:"renewal_time"    validate:"gte=0"`
	RenewalPrice   int    `json:"renewal_price"   validate:"gte=0,max=2147483647"`
}

// NewListPackagesHandler returns an http.HandlerFunc for GET /api/v1/packages.
func NewListPackagesHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pkgs, err := catalog.ListPackages(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, pkgs)
	}
}

// NewGetPackageHandler returns an http.HandlerFunc for GET /api/v1/packages/{name}.
func NewGetPackageHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		pkg, err := catalog.GetPackage(r.Context(), name)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, pkg)
	}
}

// NewGetDefaultPackageHandler returns an http.HandlerFunc for GET /api/v1/packages/default.
func NewGetDefaultPackageHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pkg, err := catalog.GetDefaultPackage(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, pkg)
	}
}

// NewCreatePackageHandler returns an http.HandlerFunc for POST /api/v1/packages.
func NewCreatePackageHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req packageRequest
		if !decode(w, r, &req) {
			return
		}
		pkg := &models.Package{
			Name:           req.Name,
			RAM:            req.RAM,
			CPU:            req.CPU,
			Disk:           req.Disk,
			Price:          req.Price,
			RenewalEnabled: req.RenewalEnabled,
			RenewalTime:    req.RenewalTime,
			RenewalPrice:   req.RenewalPrice,
		}
		if err := catalog.CreatePackage(r.Context(), pkg); err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, pkg)
	}
}

// --- Eggs ---

type eggRequest struct {
	Name        string            `json:"name"         validate:"required,max=64"`
	EggID       int               `json:"id"           validate:"gt=0,max=2147483647"`
	DockerImage string            `json:"docker_image" validate:"required"`
	Startup     string            `json:"startup"      validate:"required"`
	Databases   int               `json:"databases"    validate:"gte=0,max=2147483647"`
	Backups     int               `json:"backups"      validate:"gte=0,max=2147483647"`
	Environment map[string]string `json:"environment"`
}

// NewListEggsHandler returns an http.HandlerFunc for GET /api/v1/eggs.
func NewListEggsHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eggs, err := catalog.ListEggs(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, eggs)
	}
}

// NewGetEggHandler returns an http.HandlerFunc for GET /api/v1/eggs/{name}.
func NewGetEggHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		egg, err := catalog.GetEgg(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, egg)
	}
}

// NewCreateEggHandler returns an http.HandlerFunc for POST /api/v1/eggs.
func NewCreateEggHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req eggRequest
		if !decode(w, r, &req) {
			return
		}
		env := req.Environment
		if env == nil {
			env = map[string]string{}
		}
		egg := &models.Egg{
			Name:        req.Name,
			EggID:       req.EggID,
			DockerImage: req.DockerImage,
			Startup:     req.Startup,
			Databases:   req.Databases,
			Backups:     req.Backups,
			Environment: env,
		}
		if err := catalog.CreateEgg(r.Context(), egg); err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, egg)
	}
}

// --- Locations ---

type locationRequest struct {
	ID      int    `json:"id"      validate:"gt=0,max=2147483647"`
	Name    string `json:"name"    validate:"required,max=64"`
	Enabled bool   `json:"enabled"`
}

type locationStatusRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// NewListLocationsHandler returns an http.HandlerFunc for GET /api/v1/locations.
// With ?name= it returns the single matching location instead.
func NewListLocationsHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if name := r.URL.Query().Get("name"); name != "" {
			loc, err := catalog.GetLocation(r.Context(), name)
			if err != nil {
				writeError(w, r, err)
				return
			}
			response.JSON(w, loc)
			return
		}
		locs, err := catalog.ListLocations(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, locs)
	}
}

// NewGetLocationHandler returns an http.HandlerFunc for GET /api/v1/locations/{id}.
func NewGetLocationHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInt(w, r, "id")
		if !ok {
			return
		}
		loc, err := catalog.GetLocationByID(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, loc)
	}
}

// NewCreateLocationHandler returns an http.HandlerFunc for POST /api/v1/locations.
func NewCreateLocationHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req locationRequest
		if !decode(w, r, &req) {
			return
		}
		loc := &models.Location{ID: req.ID, Name: req.Name, Enabled: req.Enabled}
		if err := catalog.CreateLocation(r.Context(), loc); err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, loc)
	}
}

// NewUpdateLocationStatusHandler returns an http.HandlerFunc for PATCH /api/v1/locations/{id}.
func NewUpdateLocationStatusHandler(catalog store.CatalogStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathInt(w, r, "id")
		if !ok {
			return
		}
		var req locationStatusRequest
		if !decode(w, r, &req) {
			return
		}
		if err := catalog.SetLocationEnabled(r.Context(), id, *req.Enabled); err != nil {
			writeError(w, r, err)
			return
		}
		loc, err := catalog.GetLocationByID(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, loc)
	}
}
