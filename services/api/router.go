package api

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	presignURLExpiry  = 15 * time.Minute
	defaultMaxUpload  = 10 << 20
	defaultReputation = 10
)

// Config controls runtime behaviour for the API handlers.
type Config struct {
	ArtifactBucket      string
	MaxUploadBytes      int64
	ReputationIncrement int
	SessionTTL          time.Duration
	CookieSecure        bool
	AllowedOrigins      []string
}

// API wires dependencies, session authority, and configuration for HTTP handlers.
type API struct {
	store          *Store
	authority      *Authority
	config         Config
	exchangeLocks  *entityLocks
	workspaceLocks *entityLocks
}

// New initialises the API layer with sane defaults applied to the provided configuration.
func New(store *Store, authority *Authority, cfg Config) (*API, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.ORM == nil {
		return nil, errors.New("store ORM is required")
	}
	if authority == nil {
		return nil, errors.New("authority is required")
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.ReputationIncrement <= 0 {
		cfg.ReputationIncrement = defaultReputation
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.ArtifactBucket == "" {
		cfg.ArtifactBucket = os.Getenv("S3_BUCKET")
	}
	if cfg.ArtifactBucket == "" {
		return nil, errors.New("artifact bucket is required")
	}

	return &API{
		store:          store,
		authority:      authority,
		config:         cfg,
		exchangeLocks:  newEntityLocks(),
		workspaceLocks: newEntityLocks(),
	}, nil
}

// Authority exposes the session authority so sibling services can verify tokens.
func (a *API) Authority() *Authority {
	return a.authority
}

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Use(httprate.Limit(100, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", a.handleReady)

	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.Post("/login", a.handleLogin)

			r.Group(func(r chi.Router) {
				r.Use(a.requireAuth)
				r.Post("/logout", a.handleLogout)
				r.Get("/me", a.handleMe)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Route("/exchanges", func(r chi.Router) {
				r.Post("/", a.handleCreateExchange)
				r.Get("/", a.handleListExchanges)
				r.Patch("/{id}/status", a.handleExchangeStatus)
				r.Delete("/{id}", a.handleDeleteExchange)
			})

			r.Get("/messages/{exchangeId}", a.handleListMessages)

			r.Route("/workspaces", func(r chi.Router) {
				r.Get("/{exchangeId}", a.handleGetWorkspace)
				r.Post("/{id}/artifacts", a.handleUploadArtifact)
				r.Get("/{id}/artifacts/{artifactId}/download", a.handleArtifactDownload)
			})
		})
	})

	return r, nil
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.store.DB != nil {
		ctx, cancel := withTimeout(r.Context())
		defer cancel()
		if err := a.store.DB.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, errors.New("database unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
