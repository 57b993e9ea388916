package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/premunia/leadline/internal/auth"
	"github.com/premunia/leadline/internal/lead"
	"github.com/premunia/leadline/internal/metrics"
	"github.com/premunia/leadline/internal/ratelimit"
	"github.com/premunia/leadline/internal/settings"
	"github.com/premunia/leadline/internal/user"
)

// UserService is the account surface the router needs. *user.Service
// implements it.
type UserService interface {
	Signup(ctx context.Context, in user.SignupInput) (*user.Session, error)
	Signin(ctx context.Context, in user.SigninInput) (*user.Session, error)
	Me(ctx context.Context, id *auth.Identity) (*user.User, error)
	SetRole(ctx context.Context, userID, role string) (*user.User, error)
}

// LeadService is implemented by *lead.Service.
type LeadService interface {
	Create(ctx context.Context, in lead.CreateLeadInput) (*lead.Lead, error)
	List(ctx context.Context) ([]*lead.Lead, error)
	Get(ctx context.Context, id string) (*lead.Lead, error)
	Update(ctx context.Context, id string, in lead.UpdateLeadInput) (*lead.Lead, error)
	Delete(ctx context.Context, id string) error
}

// SettingsService is implemented by *settings.Service.
type SettingsService interface {
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)
	Get(ctx context.Context, key string) (*settings.Setting, error)
	Set(ctx context.Context, key string, value json.RawMessage, id *auth.Identity) (*settings.Setting, error)
	SetMany(ctx context.Context, values map[string]json.RawMessage, id *auth.Identity) (map[string]json.RawMessage, error)
	GetSMTP(ctx context.Context) (*settings.SMTPView, error)
	SetSMTP(ctx context.Context, in settings.SMTPConfig, id *auth.Identity) (*settings.SMTPView, error)
}

// Pinger reports database reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Users    UserService
	Leads    LeadService
	Settings SettingsService
	Tokens   auth.Verifier
	DB       Pinger

	// Metrics and Limiter are optional.
	Metrics *metrics.Metrics
	Limiter *ratelimit.Limiter

	AllowedOrigins []string
	// AdminOnly restricts back-office routes to the admin role.
	AdminOnly bool
	// BasePath additionally mounts every route under this prefix, e.g. "/api".
	BasePath string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware. CORS runs before routing so OPTIONS never reaches
	// a handler.
	r.Use(requestIDMiddleware)
	r.Use(recoverer)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(secureHeaders)
	r.Use(slogRequestLogger)
	r.Use(metricsMiddleware(deps.Metrics))
	if deps.Tokens != nil {
		r.Use(auth.Authenticate(deps.Tokens))
	}

	// Set before mounting so the base-path subrouter inherits them.
	r.NotFound(endpointNotFound)
	r.MethodNotAllowed(endpointNotFound)

	routes := buildRoutes(deps)
	routes(r)

	if base := strings.TrimRight(deps.BasePath, "/"); base != "" {
		r.Route(base, routes)
	}

	return r
}

// buildRoutes returns the route table so it can be mounted more than once.
func buildRoutes(deps RouterDeps) func(chi.Router) {
	health := newHealthHandler(deps.DB)
	authH := newAuthHandler(deps.Users, deps.Metrics)
	leads := newLeadsHandler(deps.Leads, deps.Metrics)
	cfg := newSettingsHandler(deps.Settings)

	backOffice := auth.RequireIdentity(deps.AdminOnly)
	adminOnly := auth.RequireIdentity(true)
	publicWrite := ratelimit.Middleware(deps.Limiter, func() {
		deps.Metrics.IncRateLimitRejection("public_write")
	})

	return func(r chi.Router) {
		r.Get("/health", health.Check)

		if deps.Metrics != nil {
			r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
			r.With(backOffice).Get("/admin/metrics", deps.Metrics.Handler())
		}

		r.Route("/auth", func(ar chi.Router) {
			ar.With(publicWrite).Post("/signup", authH.Signup)
			ar.With(publicWrite).Post("/signin", authH.Signin)
			ar.With(auth.RequireIdentity(false)).Get("/me", authH.Me)
		})

		r.With(adminOnly).Put("/users/{id}/role", authH.SetRole)

		r.Route("/leads", func(lr chi.Router) {
			lr.With(publicWrite).Post("/", leads.Create)
			lr.Group(func(pr chi.Router) {
				pr.Use(backOffice)
				pr.Get("/", leads.List)
				pr.Get("/{id}", leads.Get)
				pr.Put("/{id}", leads.Update)
				pr.Delete("/{id}", leads.Delete)
			})
		})

		r.Get("/settings", cfg.GetAll)
		r.With(backOffice).Put("/settings", cfg.SetAll)
		r.Get("/settings/{key}", cfg.Get)
		r.With(backOffice).Put("/settings/{key}", cfg.Set)

		r.Group(func(sr chi.Router) {
			sr.Use(backOffice)
			sr.Get("/smtp-config", cfg.GetSMTP)
			sr.Put("/smtp-config", cfg.SetSMTP)
		})
	}
}

func endpointNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "Endpoint not found")
}
