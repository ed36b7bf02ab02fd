package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/nurse-directory/internal/auth"
	"github.com/kjstillabower/nurse-directory/internal/observability"
	"github.com/kjstillabower/nurse-directory/internal/traffic"
)

// RouterConfig wires the middleware around the nurse routes.
type RouterConfig struct {
	Gate           *auth.Gate
	Limiter        *rate.Limiter // nil disables rate limiting
	Tracker        *traffic.Tracker
	RequestTimeout time.Duration // 0 disables
	AllowedOrigins []string
}

// NewRouter builds the service's HTTP handler. CORS wraps the router so
// preflight requests are answered before route matching.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware)

	r.HandleFunc("/", h.GetRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	protect := func(next http.HandlerFunc) http.Handler {
		var handler http.Handler = next
		if cfg.RequestTimeout > 0 {
			handler = TimeoutMiddleware(cfg.RequestTimeout)(handler)
		}
		handler = APIKeyMiddleware(cfg.Gate)(handler)
		return RateLimitMiddleware(cfg.Limiter, cfg.Tracker)(handler)
	}
	r.Handle("/nurses/{city}", protect(h.GetNurses)).Methods(http.MethodGet)
	r.Handle("/nurses", protect(h.PostNurses)).Methods(http.MethodPost)

	r.NotFoundHandler = CorrelationIDMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, "NOT_FOUND", "no route for "+req.URL.Path)
	}))

	return CORSMiddleware(cfg.AllowedOrigins)(r)
}
