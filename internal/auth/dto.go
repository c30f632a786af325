package auth

import (
	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/core/common/validation"
	"github.com/frahmantamala/timecard-management/internal/user"
)

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	SelectedRole string `json:"selectedRole,omitempty"`
}

func (d LoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required()
	v.Field("password", d.Password).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ForgotPasswordDTO struct {
	Email string `json:"email"`
}

// ResetPasswordDTO covers both reset modes: token, or email with supabaseSync.
type ResetPasswordDTO struct {
	Token           string `json:"token,omitempty"`
	Email           string `json:"email,omitempty"`
	SupabaseSync    bool   `json:"supabaseSync,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (d ResetPasswordDTO) Validate() error {
	v := validation.NewValidator()
	if d.SupabaseSync {
		v.Field("email", d.Email).Required()
	} else {
		v.Field("token", d.Token).Required()
	}
	v.Field("password", d.Password).Required().MinLength(user.MinPasswordLength).MaxLength(user.MaxPasswordLength)
	v.Field("confirmPassword", d.ConfirmPassword).
		Required().
		Equals(d.Password, "Passwords do not match", internal.ErrCodePasswordMismatch)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type LoginResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    user.Profile `json:"user"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type VerifyResetTokenResponse struct {
	Success bool            `json:"success"`
	User    ResetTokenOwner `json:"user"`
}

type ResetTokenOwner struct {
	Email string `json:"email"`
}

type CurrentUserResponse struct {
	Success bool         `json:"success"`
	User    user.Profile `json:"user"`
}
