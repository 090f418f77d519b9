package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bodywise/scheduling-service/internal/scheduling"
)

type RouterConfig struct {
	Availability *scheduling.AvailabilityService
	Booking      *scheduling.BookingEngine
	Invitations  *scheduling.InvitationService
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Log          *logrus.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)

		// Availability management, practitioner only
		r.Route("/availability", func(r chi.Router) {
			r.Use(RequireRole(RolePractitioner))
			r.Post("/recurring", createRecurringHandler(cfg.Availability))
			r.Get("/recurring", listRecurringHandler(cfg.Availability))
			r.Delete("/recurring/{id}", deleteRecurringHandler(cfg.Availability))
			r.Post("/slots", createSlotsHandler(cfg.Availability))
			r.Post("/materialize", materializeSlotsHandler(cfg.Availability))
			r.Delete("/slots/{id}", deleteSlotHandler(cfg.Availability))
		})

		// Slot browsing, any authenticated caller
		r.Get("/practitioners/{id}/slots", listPractitionerSlotsHandler(cfg.Availability))

		// Consultations
		r.Route("/consultations", func(r chi.Router) {
			r.With(RequireRole(RolePatient)).Post("/", bookConsultationHandler(cfg.Booking))
			r.With(RequireRole(RolePatient)).Post("/adhoc", bookAdHocHandler(cfg.Booking))
			r.Get("/", listConsultationsHandler(cfg.Booking))
			r.Get("/{id}", getConsultationHandler(cfg.Booking))
			r.Post("/{id}/confirm", confirmConsultationHandler(cfg.Booking))
			r.Post("/{id}/cancel", cancelConsultationHandler(cfg.Booking))
		})

		// Invitations, patient only
		r.Route("/invitations", func(r chi.Router) {
			r.Use(RequireRole(RolePatient))
			r.Post("/", createInvitationHandler(cfg.Invitations))
			r.Get("/", listInvitationsHandler(cfg.Invitations))
			r.Post("/{id}/respond", respondInvitationHandler(cfg.Invitations))
		})
	})

	return r
}
