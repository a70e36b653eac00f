package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/PetoAdam/homenavi/readings-service/internal/auth"
	"github.com/PetoAdam/homenavi/readings-service/internal/observability"
	"github.com/PetoAdam/homenavi/readings-service/internal/patch"
	"github.com/PetoAdam/homenavi/readings-service/internal/ratelimit"
	"github.com/PetoAdam/homenavi/readings-service/internal/store"
	apperrors "github.com/PetoAdam/homenavi/readings-service/pkg/errors"
	"github.com/PetoAdam/homenavi/readings-service/pkg/roles"
)

type Options struct {
	// RouteRoles overrides endpoint ceilings by endpoint name.
	RouteRoles                map[string]string
	AllowBatchAccounts        bool
	PrecipitationWindowMonths int
	AllowedOrigins            []string
	Telemetry                 *observability.Telemetry
	Limiter                   ratelimit.Bucket
}

type Server struct {
	repo     *store.Repo
	gate     *auth.Gate
	opts     Options
	ceilings map[string]roles.Role
}

func New(repo *store.Repo, gate *auth.Gate, opts Options) (*Server, error) {
	ceilings, err := ResolveCeilings(opts.RouteRoles)
	if err != nil {
		return nil, err
	}
	if opts.PrecipitationWindowMonths <= 0 {
		opts.PrecipitationWindowMonths = 5
	}
	return &Server{repo: repo, gate: gate, opts: opts, ceilings: ceilings}, nil
}

func (s *Server) require(name string) func(http.Handler) http.Handler {
	role, ok := s.ceilings[name]
	if !ok {
		panic(fmt.Sprintf("httpapi: endpoint %q has no role ceiling", name))
	}
	return s.gate.Require(role)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.opts.Telemetry != nil {
		r.Use(s.opts.Telemetry.Middleware)
	}
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", s.gate.Header()},
			MaxAge:         300,
		}))
	}
	if s.opts.Limiter != nil {
		r.Use(ratelimit.Middleware(s.opts.Limiter, ratelimit.KeyByCredentialOrIP(s.gate.Header())))
	}

	r.Get("/health", s.handleHealth)
	if s.opts.Telemetry != nil {
		r.Handle("/metrics", s.opts.Telemetry.Handler())
	}
	r.Route("/api", s.RegisterRoutes)
	return r
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.With(s.require("get_me")).Get("/me", s.handleMe)
		r.With(s.require("create_account")).Post("/", s.handleCreateAccount)
		if s.opts.AllowBatchAccounts {
			r.With(s.require("create_accounts")).Post("/batch", s.handleCreateAccounts)
		}
		r.With(s.require("patch_accounts")).Patch("/", s.handlePatchAccounts)
		r.With(s.require("delete_inactive_accounts")).Delete("/inactive", s.handleDeleteInactive)
		r.With(s.require("get_account")).Get("/{id}", s.handleGetAccount)
		r.With(s.require("replace_account")).Put("/{id}", s.handleReplaceAccount)
		r.With(s.require("delete_account")).Delete("/{id}", s.handleDeleteAccount)
	})

	r.Route("/readings", func(r chi.Router) {
		r.Get("/", s.handleListReadings)
		r.With(s.require("create_reading")).Post("/", s.handleCreateReading)
		r.With(s.require("create_readings")).Post("/batch", s.handleCreateReadings)
		r.With(s.require("patch_readings")).Patch("/", s.handlePatchReadings)
		r.With(s.require("delete_readings")).Delete("/", s.handleDeleteReadings)

		r.Route("/reports", func(r chi.Router) {
			r.With(s.require("report_max_temperature")).Get("/max-temperature", s.handleMaxTemperature)
			r.With(s.require("report_hour")).Get("/hour", s.handleHour)
			r.With(s.require("report_max_precipitation")).Get("/max-precipitation", s.handleMaxPrecipitation)
		})

		r.With(s.require("get_reading")).Get("/{id}", s.handleGetReading)
		r.With(s.require("replace_reading")).Put("/{id}", s.handleReplaceReading)
		r.With(s.require("patch_precipitation")).Patch("/{id}/precipitation", s.handlePatchPrecipitation)
		r.With(s.require("delete_reading")).Delete("/{id}", s.handleDeleteReading)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.repo.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// patchRequest names one property, its new value as a string, and the
// records to apply it to.
type patchRequest[C any] struct {
	PropertyName  string `json:"propertyName"`
	PropertyValue string `json:"propertyValue"`
	Filter        C      `json:"filter"`
}

type deletedResponse struct {
	Deleted int64 `json:"deleted"`
}

func (s *Server) recordPatch(r *http.Request, entity string, res patch.Result) {
	s.opts.Telemetry.RecordPatch(r.Context(), entity, res.Property, res.Affected)
	slog.Info("patch applied", "entity", entity, "property", res.Property, "affected", res.Affected)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs store failures and renders every error as JSON.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.KindOf(err) == apperrors.KindStoreFailure {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	apperrors.WriteError(w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.InvalidValue("invalid request body", err)
	}
	return nil
}

func queryTime(r *http.Request, name string, required bool) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		if required {
			return nil, apperrors.InvalidValue(name+" is required", nil)
		}
		return nil, nil
	}
	t, err := patch.ParseTime(raw)
	if err != nil {
		return nil, apperrors.InvalidValue("invalid "+name, err)
	}
	return &t, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
