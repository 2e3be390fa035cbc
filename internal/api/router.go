package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/visit-scheduling/internal/auth"
	"github.com/clinicdesk/visit-scheduling/internal/visit"
)

type RouterConfig struct {
	Service      *visit.Service
	Verifier     *auth.Verifier
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Log          zerolog.Logger
	Env          string
	Version      string
	ScheduleDays int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	authErr := func(w http.ResponseWriter, status int, err error) {
		writeError(w, status, "unauthorized", err.Error())
	}

	patientOnly := auth.RequireRole(cfg.Verifier, authErr, auth.RolePatient)
	doctorOnly := auth.RequireRole(cfg.Verifier, authErr, auth.RoleDoctor)
	financeOnly := auth.RequireRole(cfg.Verifier, authErr, auth.RoleFinance)
	staffOnly := auth.RequireRole(cfg.Verifier, authErr, auth.RoleDoctor, auth.RoleFinance)

	// Patient surface
	r.Group(func(r chi.Router) {
		r.Use(patientOnly)
		r.Get("/doctors", listDoctorsHandler(cfg.Service, cfg.ScheduleDays))
		r.Get("/doctors/{id}/availability", availabilityHandler(cfg.Service))
		r.Post("/visits/reserve", reserveHandler(cfg.Service))
		r.Post("/visits/cancel", cancelHandler(cfg.Service))
	})

	// Doctor surface
	r.Group(func(r chi.Router) {
		r.Use(doctorOnly)
		r.Get("/visits/mine", myVisitsHandler(cfg.Service))
		r.Post("/visits/{id}/treatments", addTreatmentsHandler(cfg.Service))
	})

	// Finance surface
	r.Group(func(r chi.Router) {
		r.Use(financeOnly)
		r.Get("/finance/visits", searchVisitsHandler(cfg.Service))
		r.Post("/visits/{id}/paid", setPaidHandler(cfg.Service))
	})

	// Ledger repair, for operators
	r.Group(func(r chi.Router) {
		r.Use(staffOnly)
		r.Post("/doctors/{id}/schedule/{date}/rebuild", rebuildScheduleHandler(cfg.Service))
	})

	return r
}
