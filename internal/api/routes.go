package api

import (
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/sentinel/mpc-engine/internal/events"
)

// Routes mounts the /api/v1 endpoints on r. hub may be nil.
func (s *Service) Routes(r chi.Router, submitLimit *rate.Limiter, hub *events.WSHub) {
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for completion events.
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}

		r.Get("/circuits", s.ListCircuits)
		r.Get("/cluster/key", s.ClusterKey)
		r.Get("/risk/tiers", s.RiskTiers)

		// Submission is rate limited; callbacks are not.
		r.With(RateLimit(submitLimit)).Post("/circuits/{circuit}/computations", s.Submit)

		r.Get("/jobs", s.ListJobs)
		r.Get("/jobs/{circuit}/{correlationID}", s.GetJob)
		r.Post("/jobs/{circuit}/{correlationID}/accept", s.AcceptJob)

		r.Post("/callbacks/{circuit}/{correlationID}", s.Callback)

		r.Get("/records/{kind}/{id}", s.GetRecord)
	})
}
