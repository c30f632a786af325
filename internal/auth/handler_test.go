package auth_test

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

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/auth"
	authPostgres "github.com/frahmantamala/timecard-management/internal/auth/postgres"
	resetDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/passwordreset"
	userDatamodel "github.com/frahmantamala/timecard-management/internal/core/datamodel/user"
	"github.com/frahmantamala/timecard-management/internal/mail"
	"github.com/frahmantamala/timecard-management/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type capturingMailer struct {
	mu   sync.Mutex
	sent []mail.PasswordResetMessage
}

func (c *capturingMailer) SendPasswordReset(_ context.Context, msg mail.PasswordResetMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *capturingMailer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// slowMailer stands in for an SMTP round trip.
type slowMailer struct {
	capturingMailer
	delay time.Duration
}

func (s *slowMailer) SendPasswordReset(ctx context.Context, msg mail.PasswordResetMessage) error {
	time.Sleep(s.delay)
	return s.capturingMailer.SendPasswordReset(ctx, msg)
}

func (c *capturingMailer) lastToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	Expect(c.sent).NotTo(BeEmpty())
	u := c.sent[len(c.sent)-1].ResetURL
	return u[strings.LastIndex(u, "/")+1:]
}

var _ = Describe("Auth Handler Integration", func() {
	const syncKey = "0123456789abcdef0123456789abcdef"

	var (
		db      *gorm.DB
		router  chi.Router
		mailer  *capturingMailer
		service *auth.Service
		slogger *slog.Logger
	)

	do := func(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decode := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var out map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
		return out
	}

	login := func(email, password string) string {
		rec := do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		return decode(rec)["token"].(string)
	}

	BeforeEach(func() {
		var err error
		slogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		Expect(err).NotTo(HaveOccurred())
		// every pooled connection to :memory: is a separate database
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&userDatamodel.User{}, &resetDatamodel.PasswordResetToken{})).To(Succeed())

		hash, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Create(&userDatamodel.User{ID: 1, Email: "admin@example.com", Name: "Admin", PasswordHash: string(hash), Role: "admin", IsActive: true}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.User{ID: 2, Email: "ana@example.com", Name: "Ana", PasswordHash: string(hash), Role: "employee", IsActive: true}).Error).To(Succeed())
		Expect(db.Create(&userDatamodel.User{ID: 3, Email: "old@example.com", Name: "Old", PasswordHash: string(hash), Role: "employee", IsActive: false}).Error).To(Succeed())

		mailer = &capturingMailer{}
		base := transport.NewBaseHandler(slogger)
		service = auth.NewService(authPostgres.NewRepository(db), auth.NewJWTTokenGenerator(strings.Repeat("k", 32), time.Hour), mailer, nil, slogger, auth.Options{
			BCryptCost:          bcrypt.MinCost,
			FrontendURL:         "https://app.example.com",
			IdentitySyncEnabled: true,
			IdentitySyncKey:     syncKey,
		})
		handler := auth.NewHandler(base, service)
		rbac := auth.NewRBACAuthorization(base)

		router = chi.NewRouter()
		router.Post("/auth/login", handler.Login)
		router.Post("/auth/register", handler.Register)
		router.Post("/auth/forgot-password", handler.ForgotPassword)
		router.Get("/auth/verify-reset-token/{token}", handler.VerifyResetToken)
		router.Post("/auth/reset-password", handler.ResetPassword)
		router.Group(func(r chi.Router) {
			r.Use(handler.AuthMiddleware)
			r.Get("/auth/me", handler.Me)
			r.With(rbac.RequireAdmin()).Get("/admin/ping", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})
	})

	AfterEach(func() {
		service.Wait()
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("POST /auth/login", func() {
		It("should return a token and the profile without the hash", func() {
			rec := do(http.MethodPost, "/auth/login", map[string]string{"email": "ana@example.com", "password": "secret1"}, nil)

			Expect(rec.Code).To(Equal(http.StatusOK))
			body := decode(rec)
			Expect(body["success"]).To(BeTrue())
			Expect(body["token"]).NotTo(BeEmpty())
			Expect(body["user"]).To(HaveKeyWithValue("role", "employee"))
			Expect(rec.Body.String()).NotTo(ContainSubstring("password"))
		})

		DescribeTable("should map credential failures to distinct codes",
			func(payload map[string]string, status int, code string) {
				rec := do(http.MethodPost, "/auth/login", payload, nil)

				Expect(rec.Code).To(Equal(status))
				Expect(decode(rec)).To(HaveKeyWithValue("errorCode", code))
			},
			Entry("unknown email", map[string]string{"email": "who@example.com", "password": "secret1"}, http.StatusNotFound, "ACCOUNT_NOT_FOUND"),
			Entry("wrong password", map[string]string{"email": "ana@example.com", "password": "nope"}, http.StatusUnauthorized, "INVALID_PASSWORD"),
			Entry("wrong portal", map[string]string{"email": "ana@example.com", "password": "secret1", "selectedRole": "admin"}, http.StatusForbidden, "ROLE_MISMATCH"),
		)

		It("should reject a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /auth/register", func() {
		It("should always refuse self-registration", func() {
			rec := do(http.MethodPost, "/auth/register", map[string]string{"email": "new@example.com"}, nil)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(decode(rec)).To(HaveKeyWithValue("errorCode", "REGISTRATION_DISABLED"))
		})
	})

	Describe("GET /auth/me", func() {
		It("should require a bearer token", func() {
			rec := do(http.MethodGet, "/auth/me", nil, nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should reject a forged token", func() {
			rec := do(http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer not.a.jwt"})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(decode(rec)).To(HaveKeyWithValue("errorCode", "INVALID_TOKEN"))
		})

		It("should return the caller's profile", func() {
			token := login("ana@example.com", "secret1")
			rec := do(http.MethodGet, "/auth/me", nil, map[string]string{"Authorization": "Bearer " + token})

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["user"]).To(HaveKeyWithValue("email", "ana@example.com"))
		})
	})

	Describe("role authorization", func() {
		It("should forbid a non-admin", func() {
			token := login("ana@example.com", "secret1")
			rec := do(http.MethodGet, "/admin/ping", nil, map[string]string{"Authorization": "Bearer " + token})
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("should admit an admin", func() {
			token := login("admin@example.com", "secret1")
			rec := do(http.MethodGet, "/admin/ping", nil, map[string]string{"Authorization": "Bearer " + token})
			Expect(rec.Code).To(Equal(http.StatusNoContent))
		})
	})

	Describe("password reset flow", func() {
		It("should answer identically whether or not the account exists", func() {
			known := do(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ana@example.com"}, nil)
			unknown := do(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "who@example.com"}, nil)
			service.Wait()

			Expect(known.Code).To(Equal(http.StatusOK))
			Expect(unknown.Code).To(Equal(http.StatusOK))
			Expect(known.Body.String()).To(Equal(unknown.Body.String()))
			Expect(mailer.count()).To(Equal(1))
		})

		It("should answer a deactivated account exactly like an unknown one", func() {
			inactive := do(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "old@example.com"}, nil)
			unknown := do(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "who@example.com"}, nil)
			service.Wait()

			Expect(inactive.Code).To(Equal(unknown.Code))
			Expect(inactive.Header().Get("Content-Type")).To(Equal(unknown.Header().Get("Content-Type")))
			Expect(inactive.Body.Bytes()).To(Equal(unknown.Body.Bytes()))
			Expect(mailer.count()).To(Equal(0))

			var stored int64
			Expect(db.Model(&resetDatamodel.PasswordResetToken{}).Count(&stored).Error).NotTo(HaveOccurred())
			Expect(stored).To(BeZero())
		})

		It("should not make a known email wait for mail delivery", func() {
			slow := &slowMailer{delay: 300 * time.Millisecond}
			slowService := auth.NewService(authPostgres.NewRepository(db), auth.NewJWTTokenGenerator(strings.Repeat("k", 32), time.Hour), slow, nil, slogger, auth.Options{
				BCryptCost: bcrypt.MinCost,
			})
			DeferCleanup(slowService.Wait)
			slowHandler := auth.NewHandler(transport.NewBaseHandler(slogger), slowService)

			timed := func(email string) (time.Duration, *httptest.ResponseRecorder) {
				var buf bytes.Buffer
				Expect(json.NewEncoder(&buf).Encode(map[string]string{"email": email})).To(Succeed())
				req := httptest.NewRequest(http.MethodPost, "/auth/forgot-password", &buf)
				req.Header.Set("Content-Type", "application/json")
				rec := httptest.NewRecorder()
				start := time.Now()
				slowHandler.ForgotPassword(rec, req)
				return time.Since(start), rec
			}

			known, knownRec := timed("ana@example.com")
			unknown, unknownRec := timed("who@example.com")

			Expect(knownRec.Code).To(Equal(http.StatusOK))
			Expect(knownRec.Body.String()).To(Equal(unknownRec.Body.String()))
			Expect(known).To(BeNumerically("<", slow.delay))
			Expect(known - unknown).To(BeNumerically("<", 50*time.Millisecond))

			slowService.Wait()
			Expect(slow.count()).To(Equal(1))
		})

		It("should verify then consume the mailed token", func() {
			do(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "ana@example.com"}, nil)
			service.Wait()
			token := mailer.lastToken()

			rec := do(http.MethodGet, "/auth/verify-reset-token/"+token, nil, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["user"]).To(HaveKeyWithValue("email", "ana@example.com"))

			rec = do(http.MethodPost, "/auth/reset-password", map[string]string{
				"token": token, "password": "brandnew", "confirmPassword": "brandnew",
			}, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			login("ana@example.com", "brandnew")

			rec = do(http.MethodGet, "/auth/verify-reset-token/"+token, nil, nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)).To(HaveKeyWithValue("errorCode", "TOKEN_INVALID"))
		})

		It("should report a password mismatch with its own code", func() {
			rec := do(http.MethodPost, "/auth/reset-password", map[string]string{
				"token": "abc", "password": "brandnew", "confirmPassword": "different",
			}, nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)).To(HaveKeyWithValue("errorCode", "PASSWORD_MISMATCH"))
		})

		It("should sync a password only for callers holding the key", func() {
			payload := map[string]interface{}{
				"email": "ana@example.com", "supabaseSync": true, "password": "fromidp", "confirmPassword": "fromidp",
			}

			rec := do(http.MethodPost, "/auth/reset-password", payload, nil)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
			Expect(decode(rec)).To(HaveKeyWithValue("errorCode", "SYNC_NOT_ALLOWED"))

			rec = do(http.MethodPost, "/auth/reset-password", payload, map[string]string{auth.SyncKeyHeader: syncKey})
			Expect(rec.Code).To(Equal(http.StatusOK))
			login("ana@example.com", "fromidp")
		})
	})

	Describe("AuthMiddleware principal", func() {
		It("should expose the token's identity to downstream handlers", func() {
			token := login("admin@example.com", "secret1")

			var seen *internal.User
			probe := chi.NewRouter()
			base := transport.NewBaseHandler(nil)
			svc := auth.NewService(authPostgres.NewRepository(db), auth.NewJWTTokenGenerator(strings.Repeat("k", 32), time.Hour), mailer, nil, base.Logger, auth.Options{})
			probe.With(auth.NewHandler(base, svc).AuthMiddleware).Get("/probe", func(w http.ResponseWriter, r *http.Request) {
				seen, _ = internal.UserFromContext(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			req.Header.Set("Authorization", "bearer "+token)
			probe.ServeHTTP(httptest.NewRecorder(), req)

			Expect(seen).NotTo(BeNil())
			Expect(seen.ID).To(Equal(int64(1)))
			Expect(seen.Role).To(Equal(internal.RoleAdmin))
		})
	})
})
