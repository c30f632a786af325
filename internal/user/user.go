package user

import (
	"strings"
	"time"

	"github.com/frahmantamala/timecard-management/internal"
	userDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/user"
)

type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         internal.Role
	EmployerID   *int64
	Designation  *string
	Department   *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public view of a user, never carries the password hash.
type Profile struct {
	ID          int64         `json:"id"`
	Email       string        `json:"email"`
	Name        string        `json:"name"`
	Role        internal.Role `json:"role"`
	EmployerID  *int64        `json:"employerId,omitempty"`
	Designation *string       `json:"designation,omitempty"`
	Department  *string       `json:"department,omitempty"`
	IsActive    bool          `json:"isActive"`
	CreatedAt   time.Time     `json:"createdAt"`
}

func (u *User) ToProfile() Profile {
	return Profile{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		EmployerID:  u.EmployerID,
		Designation: u.Designation,
		Department:  u.Department,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
	}
}

func (u *User) Principal() *internal.User {
	return &internal.User{ID: u.ID, Email: u.Email, Role: u.Role}
}

// NormalizeEmail is the canonical form used for storage and every lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	ErrUserNotFound     = internal.NewNotFoundError("User not found", internal.ErrCodeUserNotFound)
	ErrEmailTaken       = internal.NewConflictError("A user with this email already exists", internal.ErrCodeEmailTaken)
	ErrInvalidEmployer  = internal.NewValidationFieldError("employerId", "employerId must reference an active employer", internal.ErrCodeInvalidEmployer)
	ErrCannotDeleteSelf = internal.NewForbiddenError("Admins cannot delete their own account", internal.ErrCodeForbidden)
)

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		EmployerID:   u.EmployerID,
		Designation:  u.Designation,
		Department:   u.Department,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         internal.Role(u.Role),
		EmployerID:   u.EmployerID,
		Designation:  u.Designation,
		Department:   u.Department,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
