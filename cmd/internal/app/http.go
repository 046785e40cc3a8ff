package app

import (
	"net/http"
	"strconv"

	"excuses/cmd/internal/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (a *App) routes() chi.Router {
	r := chi.NewRouter()

	// Set before any sub-router is mounted so they inherit both.
	r.NotFound(a.pages.Static().ServeHTTP)
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		a.pages.Fail(w, req, http.StatusNotFound, "not_found", "not found")
	})

	r.Use(func(next http.Handler) http.Handler { return WithRecovery(next, a.log, a.pages) })
	if a.metrics != nil {
		r.Use(a.metrics.Middleware)
	}
	r.Use(middleware.CleanPath)
	r.Use(middleware.GetHead)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if err := a.store.Ready(); err != nil {
			a.log.Info("readyz.store.not_ready", "err", err)
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	a.auth.Register(r)
	a.excuses.Register(r, a.auth.RequireSession)

	for _, status := range web.ErrorStatuses {
		r.Get("/"+strconv.Itoa(status), a.pages.ErrorPageHandler(status))
	}

	return r
}
