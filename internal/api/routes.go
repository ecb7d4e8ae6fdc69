package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks
	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/imports", func(r chi.Router) {
			r.Post("/", h.HandleUpload)
			r.Get("/", h.HandleListImports)
			r.Get("/{id}", h.HandleGetImport)
			r.Get("/{id}/progress", h.HandleImportProgress)
			r.Delete("/{id}", h.HandleDeleteImport)
		})

		r.Get("/classification/queue", h.HandleClassificationQueue)
		r.Post("/classification/results", h.HandleClassificationResults)
		r.Post("/records/{id}/reprocess", h.HandleReprocessRecord)
		r.Get("/records/{id}/analysis", h.HandleRecordAnalysis)

		r.Get("/schema/columns", h.HandleSchemaColumns)
	})

	return r
}
