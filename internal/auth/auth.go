package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/user"
	"github.com/golang-jwt/jwt/v5"
)

// TokenGenerator creates and verifies bearer tokens.
type TokenGenerator interface {
	GenerateAccessToken(userID int64, email string, role internal.Role) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims carries only what authorization needs: who and which role.
type Claims struct {
	UserID int64         `json:"userId"`
	Email  string        `json:"email"`
	Role   internal.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Principal() *internal.User {
	return &internal.User{ID: c.UserID, Email: c.Email, Role: c.Role}
}

type JWTTokenGenerator struct {
	Secret         []byte
	AccessTokenTTL time.Duration
	Issuer         string
	now            func() time.Time
}

// ResetToken is a single-use credential recovery token.
type ResetToken struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

func (t *ResetToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type LoginResult struct {
	Token string
	User  *user.User
}

const (
	ResetModeToken = "token"
	ResetModeSync  = "sync"

	ResetTokenBytes = 32
)

var (
	ErrAccountNotFound    = internal.NewNotFoundError("No account found with this email", internal.ErrCodeAccountNotFound)
	ErrInvalidPassword    = internal.NewUnauthorizedError("Invalid password", internal.ErrCodeInvalidPassword)
	ErrAccountDeactivated = internal.NewForbiddenError("This account has been deactivated", internal.ErrCodeAccountDeactivated)
	ErrRoleMismatch       = internal.NewForbiddenError("This account does not have access to the selected portal", internal.ErrCodeRoleMismatch)

	ErrResetTokenInvalid = internal.NewValidationError("Invalid or already used reset token", internal.ErrCodeResetTokenInvalid)
	ErrResetTokenExpired = internal.NewValidationError("Reset token has expired", internal.ErrCodeResetTokenExpired)
	ErrSyncNotAllowed    = internal.NewForbiddenError("Password sync is not allowed", internal.ErrCodeSyncNotAllowed)
	ErrSyncAccount       = internal.NewValidationError("No active account for this email", internal.ErrCodeAccountNotFound)

	ErrRegistrationDisabled = internal.NewForbiddenError("Self-registration is disabled, contact an administrator", internal.ErrCodeRegistrationDisabled)
)

func NewJWTTokenGenerator(secret string, accessTTL time.Duration) *JWTTokenGenerator {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &JWTTokenGenerator{
		Secret:         []byte(secret),
		AccessTokenTTL: accessTTL,
		Issuer:         "timecard-management",
		now:            time.Now,
	}
}

// GenerateAccessToken creates a signed HS256 token
func (j *JWTTokenGenerator) GenerateAccessToken(userID int64, email string, role internal.Role) (string, error) {
	now := j.now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.Issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.AccessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(j.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken.WithCause(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 || !claims.Role.Valid() {
		return nil, internal.ErrInvalidToken
	}
	return claims, nil
}

// GenerateRandomToken generates a cryptographically secure random token
func GenerateRandomToken() (string, error) {
	bytes := make([]byte, ResetTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
