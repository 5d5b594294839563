package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewHTTPRouter assembles the public and admin routes.
func NewHTTPRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors)
	r.Use(chimiddleware.Timeout(app.Config.Server.ReadTimeout))

	h := NewHandlers(app)

	r.Get("/health", h.Health)
	r.Post("/chat", h.Chat)
	r.Get("/stats", h.Stats)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/clear-cache", h.ClearCache)
		r.Post("/rebuild", h.Rebuild)
		r.Get("/index-status", h.IndexStatus)
		r.Get("/log-activity", h.LogActivity)
	})

	return r
}

// cors allows browser clients from any origin and answers preflights.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Client-IP")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
