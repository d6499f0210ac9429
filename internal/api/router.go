package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentoven/agentmarket/internal/api/handlers"
	"github.com/agentoven/agentmarket/internal/api/middleware"
	"github.com/agentoven/agentmarket/pkg/models"
)

// NewRouter creates the HTTP router with all API routes. auth may be nil.
func NewRouter(h *handlers.Handlers, auth *middleware.APIKeyAuth) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.CallerExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Caller", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id", models.ReceiptIDHeader, models.ReceiptStatusHeader, models.ErrorKindHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if auth != nil {
		r.Use(auth.Middleware)
	}

	// Health & info
	r.Get("/health", h.Health)
	r.Get("/version", h.GetVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/programs", h.Programs)

		// Identity registry
		r.Route("/identity", func(r chi.Router) {
			r.Get("/", h.GetIdentity)
			r.Post("/token", h.IssueToken)
			r.Get("/owners/{address}", h.GetAgentByOwner)
			r.Route("/agents", func(r chi.Router) {
				r.Post("/", h.RegisterAgent)
				r.Route("/{agentID}", func(r chi.Router) {
					r.Get("/", h.GetAgent)
					r.Put("/", h.UpdateAgent)

					r.Get("/metadata", h.ListMetadata)
					r.Put("/metadata", h.SetMetadata)
					r.Delete("/metadata", h.RemoveMetadata)
					r.Get("/metadata/{key}", h.GetMetadata)

					r.Get("/services", h.ListServices)
					r.Put("/services", h.SetServices)
					r.Delete("/services", h.RemoveServices)
					r.Get("/services/{serviceID}", h.GetService)
				})
			})
		})

		// Validation registry
		r.Route("/validation", func(r chi.Router) {
			r.Get("/identity-registry", h.GetValidationIdentityRegistry)
			r.Put("/identity-registry", h.SetValidationIdentityRegistry)
			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", h.ListJobs)
				r.Post("/", h.InitJob)
				r.Post("/clean", h.CleanJobs)
				r.Route("/{jobID}", func(r chi.Router) {
					r.Get("/", h.GetJob)
					r.Get("/verified", h.IsJobVerified)
					r.Post("/proof", h.SubmitProof)
				})
			})
			r.Post("/requests", h.RequestValidation)
			r.Get("/requests/{requestHash}", h.GetValidationStatus)
			r.Post("/requests/{requestHash}/response", h.RespondValidation)
			r.Get("/agents/{agentID}/requests", h.AgentValidations)
		})

		// Reputation registry
		r.Route("/reputation", func(r chi.Router) {
			r.Get("/registries", h.GetReputationRegistries)
			r.Put("/registries/validation", h.SetReputationValidationRegistry)
			r.Put("/registries/identity", h.SetReputationIdentityRegistry)
			r.Route("/jobs/{jobID}", func(r chi.Router) {
				r.Get("/", h.GetJobFeedback)
				r.Post("/rating", h.RateJob)
				r.Post("/response", h.AppendResponse)
			})
			r.Route("/agents/{agentID}", func(r chi.Router) {
				r.Get("/score", h.GetScore)
				r.Get("/clients", h.ListClients)
				r.Post("/feedback", h.GiveFeedback)
				r.Get("/feedback/{client}", h.GetLastIndex)
				r.Get("/feedback/{client}/{index}", h.ReadFeedback)
				r.Delete("/feedback/{client}/{index}", h.RevokeFeedback)
			})
		})

		// Escrow
		r.Route("/escrow", func(r chi.Router) {
			r.Get("/", h.ListEscrows)
			r.Post("/", h.Deposit)
			r.Get("/registries", h.GetEscrowRegistries)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", h.GetEscrow)
				r.Post("/release", h.Release)
				r.Post("/refund", h.Refund)
			})
		})

		// Balances
		r.Route("/bank", func(r chi.Router) {
			r.Post("/faucet", h.Faucet)
			r.Get("/{address}", h.ListHoldings)
			r.Get("/{address}/{token}", h.GetBalance)
		})

		// Event stream
		r.Get("/events", h.ListEvents)
		r.Get("/events/stream", h.StreamEvents)
	})

	return r
}
