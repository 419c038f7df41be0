package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-watchdog/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/attributes", func(r chi.Router) {
			r.Get("/", s.handleListAttributes)
			r.Get("/{name}", s.handleGetAttribute)
			r.With(s.authMiddleware, s.requirePermission(auth.PermAttributeWrite)).
				Put("/{name}", s.handleWriteAttribute)
		})

		r.Get("/fleet", s.handleFleet)

		// Device names contain slashes, so the remainder of the path is the name.
		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/*", s.handleGetDevice)

		r.Get("/instances", s.handleListInstances)

		r.With(s.authMiddleware, s.requirePermission(auth.PermDigestFlush)).
			Post("/digest", s.handleFlushDigest)

		r.With(s.authMiddleware, s.requirePermission(auth.PermAttributeRead)).
			Get("/audit", s.handleListAudit)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// healthTimeout bounds the component checks of one health request.
const healthTimeout = 3 * time.Second

// handleHealth reports each backing component. Any failing component makes
// the watchdog degraded (503).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	components := map[string]string{}
	healthy := true
	check := func(name string, c HealthChecker) {
		if err := c.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			healthy = false
			return
		}
		components[name] = "ok"
	}
	if s.bus != nil {
		check("mqtt", s.bus)
	}
	if s.telemetry != nil {
		check("influxdb", s.telemetry)
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
