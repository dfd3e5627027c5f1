package render

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/domshift/kit"
)

// Routes builds the HTTP API:
//
//	POST /render       {"html": "...", "widths": [375, 1280]}
//	GET  /breakpoints
//	GET  /healthz
//	GET  /metrics
func Routes(rd *Renderer, cfg *Config, m *Metrics, logger *slog.Logger) chi.Router {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if m == nil {
		m = NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(requestContext)
	r.Use(instrument(m))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rules": rd.RuleCount(), "version": rd.Version()})
	})
	r.Handle("/metrics", m.Handler())

	mw := kit.Chain(kit.Logging(logger, "render"))
	renderEP := mw(RenderEndpoint(rd))
	breakpointsEP := mw(BreakpointsEndpoint(rd))

	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(newClientLimiter(cfg.RateLimit, cfg.RateBurst).middleware)
		}
		r.With(maxBody(cfg.MaxBodyBytes)).Post("/render", func(w http.ResponseWriter, r *http.Request) {
			var req Request
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, err)
					return
				}
				writeError(w, http.StatusBadRequest, err)
				return
			}
			resp, err := renderEP(r.Context(), &req)
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})
		r.Get("/breakpoints", func(w http.ResponseWriter, r *http.Request) {
			resp, err := breakpointsEP(r.Context(), nil)
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})
	})
	return r
}

func statusOf(err error) int {
	if errors.Is(err, ErrInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
