package auth

import (
	"context"
	"net/http"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/transport"
	"github.com/frahmantamala/timecard-management/internal/user"
	"github.com/frahmantamala/timecard-management/pkg/logger"
	"github.com/go-chi/chi"
)

// SyncKeyHeader carries the shared secret for email-driven password sync.
const SyncKeyHeader = "X-Identity-Sync-Key"

const forgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (*LoginResult, error)
	RequestPasswordReset(ctx context.Context, email string)
	VerifyResetToken(ctx context.Context, token string) (string, error)
	CompletePasswordReset(ctx context.Context, dto ResetPasswordDTO, syncKey string) error
	ValidateAccessToken(tokenString string) (*Claims, error)
	GetCurrentUser(ctx context.Context, userID int64) (*user.User, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
	}
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	result, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		Token:   result.Token,
		User:    result.User.ToProfile(),
	})
}

// Register handles POST /auth/register. Accounts are created by admins only.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	h.WriteAppError(w, ErrRegistrationDisabled)
}

// Me handles GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	u, err := h.Service.GetCurrentUser(r.Context(), principal.ID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, CurrentUserResponse{Success: true, User: u.ToProfile()})
}

// ForgotPassword handles POST /auth/forgot-password. The response never depends on whether the
// account exists.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var dto ForgotPasswordDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.Service.RequestPasswordReset(r.Context(), dto.Email)

	h.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: forgotPasswordMessage})
}

// VerifyResetToken handles GET /auth/verify-reset-token/{token}
func (h *Handler) VerifyResetToken(w http.ResponseWriter, r *http.Request) {
	email, err := h.Service.VerifyResetToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, VerifyResetTokenResponse{
		Success: true,
		User:    ResetTokenOwner{Email: email},
	})
}

// ResetPassword handles POST /auth/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var dto ResetPasswordDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	if err := h.Service.CompletePasswordReset(r.Context(), dto, r.Header.Get(SyncKeyHeader)); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Password has been reset successfully"})
}

// AuthMiddleware verifies the bearer token and stores the principal in the request context.
// No datastore access: the token is the whole session.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.WriteAppError(w, internal.ErrUnauthenticated)
			return
		}

		claims, err := h.Service.ValidateAccessToken(token)
		if err != nil {
			logger.From(r.Context()).Debug("token validation failed", "error", err)
			h.HandleServiceError(w, r, err)
			return
		}

		ctx := internal.ContextWithUser(r.Context(), claims.Principal())
		ctx = logger.With(ctx, "user_id", claims.UserID, "role", claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
