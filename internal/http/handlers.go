package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/nurse-directory/internal/lifecycle"
	"github.com/kjstillabower/nurse-directory/internal/models"
	"github.com/kjstillabower/nurse-directory/internal/traffic"
	"github.com/kjstillabower/nurse-directory/internal/validation"
)

const (
	serviceName     = "nurse-directory"
	maxBodyBytes    = 4 << 10
	defaultWindow   = time.Minute
	healthHealthy   = "healthy"
	healthUnhealthy = "unhealthy"
)

// NurseFinder is the lookup the handlers serve. *service.NurseService implements it.
type NurseFinder interface {
	FindNurses(ctx context.Context, city string) ([]models.NurseRecord, error)
}

// Options configures request validation, error exposure and health thresholds.
type Options struct {
	MinCityLength  int
	MaxCityLength  int
	RequiredScript string
	// ExposeInternalErrors echoes the error text in 500 INTERNAL responses.
	ExposeInternalErrors bool

	HealthWindow      time.Duration
	DegradedErrorPct  int // 0 disables
	OverloadDeniedPct int // 0 disables
	Version           string
}

// HealthChecks are optional dependency probes for GET /health. Nil fields
// are left out of the checks map.
type HealthChecks struct {
	Dataset func() error
	Cache   func(ctx context.Context) error
	// CityAPI returns the city API circuit breaker state name.
	CityAPI func() string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	nurses  NurseFinder
	opts    Options
	checks  HealthChecks
	state   *lifecycle.State
	traffic *traffic.Tracker
	logger  *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker and state may be nil.
func NewHandler(
	nurses NurseFinder,
	opts Options,
	checks HealthChecks,
	state *lifecycle.State,
	tracker *traffic.Tracker,
	logger *zap.Logger,
) *Handler {
	if opts.HealthWindow <= 0 {
		opts.HealthWindow = defaultWindow
	}
	if state == nil {
		state = lifecycle.New()
	}
	if tracker == nil {
		tracker = traffic.New(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		nurses:  nurses,
		opts:    opts,
		checks:  checks,
		state:   state,
		traffic: tracker,
		logger:  logger,
	}
}

// GetRoot handles GET /.
func (h *Handler) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

// GetNurses handles GET /nurses/{city}.
func (h *Handler) GetNurses(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, mux.Vars(r)["city"])
}

// PostNurses handles POST /nurses with body {"city": "..."}.
func (h *Handler) PostNurses(w http.ResponseWriter, r *http.Request) {
	var req validation.CityRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		msg := "request body must be a JSON object"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", msg)
		return
	}
	if err := validation.ValidateRequest(req); err != nil {
		writeLookupError(w, r, err, h.opts.ExposeInternalErrors)
		return
	}
	h.lookup(w, r, req.City)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, raw string) {
	city, err := validation.ValidateCity(raw, h.opts.MinCityLength, h.opts.MaxCityLength, h.opts.RequiredScript)
	if err != nil {
		writeLookupError(w, r, err, h.opts.ExposeInternalErrors)
		return
	}

	nurses, err := h.nurses.FindNurses(r.Context(), city)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			h.traffic.RecordError()
		} else {
			h.traffic.RecordSuccess()
		}
		writeLookupError(w, r, err, h.opts.ExposeInternalErrors)
		return
	}
	h.traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, nurses)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":        result.status,
		"service":       serviceName,
		"version":       h.version(),
		"checks":        result.checks,
		"uptimeSeconds": int64(h.state.Uptime().Seconds()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) version() string {
	if h.opts.Version == "" {
		return "dev"
	}
	return h.opts.Version
}

// computeHealthStatus evaluates, in order: shutting-down > dataset unavailable >
// overloaded > degraded error rate > healthy. Only shutting-down returns 503;
// the other states are informational and keep the instance in rotation.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := h.runChecks(ctx)

	if h.state.ShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if checks["dataset"] == healthUnhealthy {
		return healthResult{"degraded", http.StatusOK, "dataset_unavailable", checks}
	}

	counts := h.traffic.Counts(h.opts.HealthWindow)
	if h.opts.OverloadDeniedPct > 0 && counts.Total() > 0 {
		if counts.Denied*100 >= h.opts.OverloadDeniedPct*counts.Total() {
			return healthResult{"overloaded", http.StatusOK, "rate_limit_denials", checks}
		}
	}
	if h.opts.DegradedErrorPct > 0 && counts.ErrorPct() >= float64(h.opts.DegradedErrorPct) {
		return healthResult{"degraded", http.StatusOK, "error_rate_breach", checks}
	}
	return healthResult{healthHealthy, http.StatusOK, "", checks}
}

func (h *Handler) runChecks(ctx context.Context) map[string]string {
	checks := make(map[string]string)
	if h.checks.Dataset != nil {
		checks["dataset"] = probe(h.checks.Dataset())
	}
	if h.checks.Cache != nil {
		checks["cache"] = probe(h.checks.Cache(ctx))
	}
	if h.checks.CityAPI != nil {
		switch state := h.checks.CityAPI(); state {
		case "open":
			checks["city_api"] = healthUnhealthy
		case "half_open":
			checks["city_api"] = "recovering"
		default:
			checks["city_api"] = healthHealthy
		}
	}
	return checks
}

func probe(err error) string {
	if err != nil {
		return healthUnhealthy
	}
	return healthHealthy
}
