package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/timecard-management/api"
	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/auth"
	authPostgres "github.com/frahmantamala/timecard-management/internal/auth/postgres"
	resetDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/passwordreset"
	timecardDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/timecard"
	userDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/user"
	"github.com/frahmantamala/timecard-management/internal/mail"
	"github.com/frahmantamala/timecard-management/internal/timecard"
	timecardPostgres "github.com/frahmantamala/timecard-management/internal/timecard/postgres"
	"github.com/frahmantamala/timecard-management/internal/transport"
	"github.com/frahmantamala/timecard-management/internal/transport/middleware"
	"github.com/frahmantamala/timecard-management/internal/user"
	userPostgres "github.com/frahmantamala/timecard-management/internal/user/postgres"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type memoryCounter struct {
	mu   sync.Mutex
	hits map[string]int64
}

func (m *memoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[key]++
	return m.hits[key], window, nil
}

var _ = Describe("RegisterAllRoutes", func() {
	var (
		db     *gorm.DB
		router *chi.Mux
	)

	do := func(method, path, token string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.7:5555"
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	login := func(email string) string {
		rec := do(http.MethodPost, APIPrefix+"/auth/login", "", map[string]string{"email": email, "password": "secret1"})
		Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
		var resp auth.LoginResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		return resp.Token
	}

	BeforeEach(func() {
		var err error
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(&userDatamodel.User{}, &resetDatamodel.PasswordResetToken{}, &timecardDatamodel.TimeCard{})).To(Succeed())

		hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		employerID := int64(2)
		for _, u := range []*userDatamodel.User{
			{ID: 1, Email: "admin@example.com", Name: "Admin", Role: "admin"},
			{ID: 2, Email: "boss@example.com", Name: "Boss", Role: "employer"},
			{ID: 3, Email: "ana@example.com", Name: "Ana", Role: "employee", EmployerID: &employerID},
		} {
			u.PasswordHash = string(hash)
			u.IsActive = true
			Expect(db.Create(u).Error).To(Succeed())
		}

		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())

		base := transport.NewBaseHandler(lg)
		authService := auth.NewService(authPostgres.NewRepository(db), auth.NewJWTTokenGenerator(strings.Repeat("k", 32), time.Hour),
			mail.NewLogMailer(lg), nil, lg, auth.Options{BCryptCost: bcrypt.MinCost, FrontendURL: "http://localhost:3000"})
		userService := user.NewService(userPostgres.NewRepository(db), authService, nil, lg)
		timecardService := timecard.NewService(timecardPostgres.NewRepository(db), userService, nil, lg)

		validator, err := middleware.NewRequestValidator(api.Spec, APIPrefix)
		Expect(err).NotTo(HaveOccurred())

		router = chi.NewRouter()
		RegisterAllRoutes(router, Handlers{
			Auth:     auth.NewHandler(base, authService),
			RBAC:     auth.NewRBACAuthorization(base),
			User:     user.NewHandler(base, userService),
			Timecard: timecard.NewHandler(base, timecardService),
			Health:   NewHealthHandler(sqlDB),
		}, Options{
			AllowedOrigins: "http://localhost:3000",
			RateLimiter: middleware.NewRateLimiter(&memoryCounter{hits: map[string]int64{}},
				internal.RateLimitConfig{Enabled: true, Requests: 5, Window: time.Minute}, lg),
			Validator: validator,
			Logger:    lg,
		})
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	It("should answer liveness and readiness probes with a request id", func() {
		rec := do(http.MethodGet, APIPrefix+"/ping", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get(middleware.RequestIDHeader)).NotTo(BeEmpty())

		Expect(do(http.MethodGet, APIPrefix+"/health", "", nil).Code).To(Equal(http.StatusOK))
	})

	It("should serve the API description", func() {
		rec := do(http.MethodGet, "/openapi.yml", "", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("openapi: 3.0.3"))
	})

	It("should reject bodies that do not match the API description", func() {
		rec := do(http.MethodPost, APIPrefix+"/auth/forgot-password", "", map[string]string{})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should let an employee record time that the employer then sees", func() {
		ana := login("ana@example.com")

		rec := do(http.MethodPost, APIPrefix+"/timecards", ana, map[string]interface{}{"date": "2024-03-01", "hoursWorked": 8})
		Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())

		rec = do(http.MethodPost, APIPrefix+"/timecards", ana, map[string]interface{}{"date": "2024-03-01", "hoursWorked": 6.5, "notes": "left early"})
		Expect(rec.Code).To(Equal(http.StatusOK))

		boss := login("boss@example.com")
		rec = do(http.MethodGet, APIPrefix+"/timecards/employer/entries", boss, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var resp timecard.EntriesResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Count).To(Equal(1))
		Expect(resp.Entries[0].HoursWorked).To(Equal(6.5))
	})

	It("should enforce roles per route", func() {
		ana := login("ana@example.com")
		Expect(do(http.MethodGet, APIPrefix+"/timecards/admin/all-entries", ana, nil).Code).To(Equal(http.StatusForbidden))
		Expect(do(http.MethodGet, APIPrefix+"/admin/users", ana, nil).Code).To(Equal(http.StatusForbidden))

		admin := login("admin@example.com")
		Expect(do(http.MethodGet, APIPrefix+"/timecards/admin/all-entries", admin, nil).Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodPost, APIPrefix+"/timecards", admin, map[string]interface{}{"date": "2024-03-01", "hoursWorked": 1}).Code).To(Equal(http.StatusForbidden))
	})

	It("should require a token for protected routes", func() {
		Expect(do(http.MethodGet, APIPrefix+"/timecards/my-entries", "", nil).Code).To(Equal(http.StatusUnauthorized))
	})

	It("should check credentials before validating the body", func() {
		rec := do(http.MethodPost, APIPrefix+"/timecards", "", map[string]interface{}{})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))

		var resp internal.Response
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.ErrorCode).To(Equal(internal.ErrCodeUnauthenticated))
		Expect(resp.Errors).To(BeEmpty())

		admin := login("admin@example.com")
		Expect(do(http.MethodPost, APIPrefix+"/timecards", admin, map[string]interface{}{}).Code).To(Equal(http.StatusForbidden))

		ana := login("ana@example.com")
		rec = do(http.MethodPost, APIPrefix+"/timecards", ana, map[string]interface{}{})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.ErrorCode).To(Equal(internal.ErrCodeValidationFailed))
	})

	It("should throttle repeated login attempts from one address", func() {
		payload := map[string]string{"email": "ana@example.com", "password": "wrong"}
		for i := 0; i < 5; i++ {
			Expect(do(http.MethodPost, APIPrefix+"/auth/login", "", payload).Code).To(Equal(http.StatusUnauthorized))
		}

		rec := do(http.MethodPost, APIPrefix+"/auth/login", "", payload)
		Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
		Expect(rec.Header().Get("Retry-After")).NotTo(BeEmpty())
	})
})
