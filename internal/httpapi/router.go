package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"invigilens/internal/alerts"
	"invigilens/internal/httpmiddleware"
)

// EvidencePrefix is the URL prefix evidence files are served under.
const EvidencePrefix = "/evidence"

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Options wires the router's collaborators. Zero-valued optional fields
// disable the matching routes.
type Options struct {
	Alerts          *alerts.Service
	Relay           http.Handler
	Metrics         http.Handler
	Health          map[string]HealthCheck
	Logger          *slog.Logger
	RateLimitPerMin int
	EvidenceDir     string
	WebDir          string
}

// NewRouter builds the gin engine serving every HTTP route.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	r.GET("/healthz", healthHandler(opts.Health))

	api := r.Group("")
	if opts.RateLimitPerMin > 0 {
		api.Use(httpmiddleware.NewIPRateLimiter(opts.RateLimitPerMin, opts.RateLimitPerMin).GinMiddleware())
	}
	RegisterAlerts(api, opts.Alerts, logger)

	if opts.Relay != nil {
		r.GET("/ws", gin.WrapH(opts.Relay))
	}
	if opts.EvidenceDir != "" {
		r.Static(EvidencePrefix, opts.EvidenceDir)
	}
	if opts.WebDir != "" {
		if _, err := os.Stat(filepath.Join(opts.WebDir, "index.html")); err == nil {
			r.StaticFile("/", filepath.Join(opts.WebDir, "index.html"))
			r.Static("/static", filepath.Join(opts.WebDir, "static"))
		} else {
			logger.Info("dashboard assets not found, skipping", "dir", opts.WebDir)
		}
	}
	return r
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		body := gin.H{}
		status := http.StatusOK
		for name, check := range checks {
			ok := check(ctx) == nil
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		if status == http.StatusOK {
			body["status"] = "ok"
		} else {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	}
}
