package user_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/transport"
	"github.com/frahmantamala/timecard-management/internal/user"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("User Handler", func() {
	var (
		repo   *mockUserRepository
		router chi.Router
		actor  *internal.User
	)

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		if actor != nil {
			req = req.WithContext(internal.ContextWithUser(req.Context(), actor))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		repo = newMockUserRepository()
		repo.users[1] = &user.User{ID: 1, Email: "admin@example.com", Role: internal.RoleAdmin, IsActive: true, PasswordHash: "hashed:x"}
		repo.users[2] = &user.User{ID: 2, Email: "boss@example.com", Role: internal.RoleEmployer, IsActive: true}

		handler := user.NewHandler(transport.NewBaseHandler(logger), user.NewService(repo, prefixHasher{}, nil, logger))
		router = chi.NewRouter()
		router.Get("/admin/users", handler.ListUsers)
		router.Post("/admin/users", handler.CreateUser)
		router.Patch("/admin/users/{id}/status", handler.UpdateStatus)
		router.Delete("/admin/users/{id}", handler.DeleteUser)

		actor = &internal.User{ID: 1, Email: "admin@example.com", Role: internal.RoleAdmin}
	})

	It("should list profiles without password hashes", func() {
		rec := do(http.MethodGet, "/admin/users", nil)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).NotTo(ContainSubstring("hashed:"))
		var resp user.UsersResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Users).To(HaveLen(2))
	})

	It("should create a user and answer 201", func() {
		rec := do(http.MethodPost, "/admin/users", map[string]interface{}{
			"email": "ana@example.com", "password": "secret1", "name": "Ana", "role": "employee", "employerId": 2,
		})

		Expect(rec.Code).To(Equal(http.StatusCreated))
		var resp user.UserResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.User.Email).To(Equal("ana@example.com"))
		Expect(*resp.User.EmployerID).To(Equal(int64(2)))
	})

	It("should require isActive when changing status", func() {
		rec := do(http.MethodPatch, "/admin/users/2/status", map[string]interface{}{})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))

		rec = do(http.MethodPatch, "/admin/users/2/status", map[string]interface{}{"isActive": false})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(repo.users[2].IsActive).To(BeFalse())
	})

	It("should reject a non-numeric id", func() {
		rec := do(http.MethodDelete, "/admin/users/abc", nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should delete another user but not the caller", func() {
		Expect(do(http.MethodDelete, "/admin/users/1", nil).Code).To(Equal(http.StatusForbidden))
		Expect(do(http.MethodDelete, "/admin/users/2", nil).Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodDelete, "/admin/users/2", nil).Code).To(Equal(http.StatusNotFound))
	})

	It("should refuse requests without a principal", func() {
		actor = nil
		Expect(do(http.MethodPost, "/admin/users", map[string]string{}).Code).To(Equal(http.StatusUnauthorized))
	})
})
