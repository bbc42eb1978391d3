package router

import (
	"net/http"

	docHandler "collabdocs/internal/document"
	"collabdocs/internal/document/service"
	"collabdocs/middleware"
	"collabdocs/socket"
	"collabdocs/store"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	AllowedOrigin string
	FacepileSize  int
}

func Setup(st *store.Store, hub *socket.Hub, opts Options) http.Handler {
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(opts.AllowedOrigin))

	r.Get("/health", healthCheck)
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket
	r.Get("/ws", socket.Handler(hub, opts.AllowedOrigin))

	// REST API
	docService := service.NewDocumentService(st, opts.FacepileSize)
	h := docHandler.NewDocumentHandler(docService)

	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.Me)
		r.Get("/presence", h.GetPresence)

		r.Get("/search", h.GetSearch)
		r.Put("/search", h.SetSearch)
		r.Get("/current", h.GetCurrent)
		r.Put("/current", h.SetCurrent)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.GetDocuments)
			r.Post("/", h.CreateDocument)
			r.Get("/public", h.GetPublicDocuments)
			r.Get("/private", h.GetPrivateDocuments)
			r.Get("/{id}", h.GetDocument)
			r.Patch("/{id}", h.UpdateDocument)
			r.Delete("/{id}", h.DeleteDocument)
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
