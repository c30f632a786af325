package auth

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/transport"
)

type RBACAuthorization struct {
	*transport.BaseHandler
	logger *slog.Logger
}

func NewRBACAuthorization(base *transport.BaseHandler) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: base,
		logger:      base.Logger,
	}
}

// Authorize admits requests whose principal holds one of roles. It must run after AuthMiddleware.
func (ra *RBACAuthorization) Authorize(roles ...internal.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := internal.UserFromContext(r.Context())
			if !ok {
				ra.logger.Warn("authorization check failed: user not found in context")
				ra.WriteAppError(w, internal.ErrUnauthenticated)
				return
			}

			if !u.HasRole(roles...) {
				ra.logger.WarnContext(r.Context(), "access denied: role not allowed",
					"user_id", u.ID,
					"role", u.Role,
					"required_roles", roles)
				ra.WriteAppError(w, internal.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (ra *RBACAuthorization) RequireAdmin() func(http.Handler) http.Handler {
	return ra.Authorize(internal.RoleAdmin)
}
