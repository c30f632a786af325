package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/auth"
	"github.com/frahmantamala/timecard-management/internal/timecard"
	"github.com/frahmantamala/timecard-management/internal/transport/middleware"
	"github.com/frahmantamala/timecard-management/internal/transport/swagger"
	"github.com/frahmantamala/timecard-management/internal/user"
	"github.com/go-chi/chi"
)

const APIPrefix = "/api/v1"

type Handlers struct {
	Auth     *auth.Handler
	RBAC     *auth.RBACAuthorization
	User     *user.Handler
	Timecard *timecard.Handler
	Health   *HealthHandler
}

type Options struct {
	AllowedOrigins string
	// nil disables rate limiting
	RateLimiter *middleware.RateLimiter
	// nil disables request validation
	Validator *middleware.RequestValidator
	Logger    *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options) {
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(opts.Logger))
	router.Use(middleware.Recovery(opts.Logger))
	router.Use(middleware.CORS(opts.AllowedOrigins))

	router.Get(swagger.SpecPath, swagger.SpecHandler)
	router.Handle("/swagger/*", swagger.Handler())

	rl := opts.RateLimiter

	// body validation runs after authentication and role checks
	validate := func(next http.Handler) http.Handler { return next }
	if opts.Validator != nil {
		validate = opts.Validator.Middleware
	}

	router.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", h.Health.healthCheckHandler)
		r.Get("/ping", h.Health.pingHandler)

		r.Route("/auth", func(ar chi.Router) {
			ar.With(h.Auth.AuthMiddleware).Get("/me", h.Auth.Me)

			ar.Group(func(pub chi.Router) {
				pub.Use(validate)
				pub.With(rl.Limit("login")).Post("/login", h.Auth.Login)
				pub.Post("/register", h.Auth.Register)
				pub.With(rl.Limit("forgot-password")).Post("/forgot-password", h.Auth.ForgotPassword)
				pub.Get("/verify-reset-token/{token}", h.Auth.VerifyResetToken)
				pub.Post("/reset-password", h.Auth.ResetPassword)
			})
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Route("/timecards", func(tr chi.Router) {
				workers := h.RBAC.Authorize(internal.RoleEmployee, internal.RoleEmployer)
				tr.With(workers, validate).Post("/", h.Timecard.SubmitEntry)
				tr.With(workers, validate).Get("/my-entries", h.Timecard.MyEntries)
				tr.With(h.RBAC.Authorize(internal.RoleEmployee), validate).Delete("/{id}", h.Timecard.DeleteEntry)
				tr.With(h.RBAC.Authorize(internal.RoleEmployer), validate).Get("/employer/entries", h.Timecard.EmployerEntries)

				tr.Group(func(adm chi.Router) {
					adm.Use(h.RBAC.RequireAdmin())
					adm.Use(validate)
					adm.Get("/admin/all-entries", h.Timecard.AllEntries)
					adm.Patch("/admin/{id}/lock", h.Timecard.LockEntry)
				})
			})

			pr.Route("/admin/users", func(ur chi.Router) {
				ur.Use(h.RBAC.RequireAdmin())
				ur.Use(validate)
				ur.Get("/", h.User.ListUsers)
				ur.Post("/", h.User.CreateUser)
				ur.Patch("/{id}/status", h.User.UpdateStatus)
				ur.Delete("/{id}", h.User.DeleteUser)
			})
		})
	})
}
