package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/carepulse/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/carepulse/internal/http/middleware"
	"github.com/wolfman30/carepulse/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger       *logging.Logger
	Appointments *handlers.AppointmentsHandler
	Patients     *handlers.PatientsHandler
	Health       http.Handler
	// AdminStream serves the websocket feed of appointment changes.
	AdminStream        http.Handler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
	// RateLimiter guards the public write endpoints when set.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	health := cfg.Health
	if health == nil {
		health = handlers.NewHealthHandler(nil)
	}
	r.Method(http.MethodGet, "/health", health)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Group(func(api chi.Router) {
		api.Use(middleware.Compress(5))

		if cfg.Patients != nil {
			api.Route("/users", func(users chi.Router) {
				users.With(limit(cfg.RateLimiter)).Post("/", cfg.Patients.CreateUser)
				users.Get("/{userID}", cfg.Patients.GetUser)
				users.Get("/{userID}/patient", cfg.Patients.GetPatient)
			})
			api.With(limit(cfg.RateLimiter)).Post("/patients", cfg.Patients.RegisterPatient)
		}

		if cfg.Appointments != nil {
			api.Route("/appointments", func(appts chi.Router) {
				appts.With(limit(cfg.RateLimiter)).Post("/", cfg.Appointments.Create)
				appts.Get("/{appointmentID}", cfg.Appointments.Get)
				appts.Patch("/{appointmentID}", cfg.Appointments.Update)
			})
		}
	})

	// Admin routes are only mounted when a signing secret is configured.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.Appointments != nil {
				admin.With(middleware.Compress(5)).Get("/appointments", cfg.Appointments.ListRecent)
			}
			if cfg.AdminStream != nil {
				admin.Method(http.MethodGet, "/appointments/stream", cfg.AdminStream)
			}
		})
	}

	return r
}

func limit(rl *httpmiddleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Middleware
}
