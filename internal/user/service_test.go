package user_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/core/events"
	"github.com/frahmantamala/timecard-management/internal/user"
)

type mockUserRepository struct {
	users     map[int64]*user.User
	nextID    int64
	createErr error
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[int64]*user.User), nextID: 100}
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *mockUserRepository) List(ctx context.Context) ([]*user.User, error) {
	out := make([]*user.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockUserRepository) Create(ctx context.Context, u *user.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	u.ID = m.nextID
	m.nextID++
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepository) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return user.ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

func (m *mockUserRepository) DeleteAndDetach(ctx context.Context, id int64) (int64, error) {
	if _, ok := m.users[id]; !ok {
		return 0, user.ErrUserNotFound
	}
	delete(m.users, id)
	var detached int64
	for _, u := range m.users {
		if u.EmployerID != nil && *u.EmployerID == id {
			u.EmployerID = nil
			detached++
		}
	}
	return detached, nil
}

type prefixHasher struct{}

func (prefixHasher) HashPassword(password string) (string, error) {
	return "hashed:" + password, nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
	p.events = append(p.events, evt)
	return nil
}

func int64Ptr(v int64) *int64 {
	return &v
}

var _ = Describe("UserService", func() {
	var (
		ctx       context.Context
		repo      *mockUserRepository
		publisher *recordingPublisher
		service   *user.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockUserRepository()
		repo.users[1] = &user.User{ID: 1, Email: "admin@example.com", Role: internal.RoleAdmin, IsActive: true}
		repo.users[2] = &user.User{ID: 2, Email: "boss@example.com", Role: internal.RoleEmployer, IsActive: true}
		repo.users[3] = &user.User{ID: 3, Email: "ana@example.com", Role: internal.RoleEmployee, EmployerID: int64Ptr(2), IsActive: true}
		repo.users[4] = &user.User{ID: 4, Email: "retired@example.com", Role: internal.RoleEmployer, IsActive: false}
		publisher = &recordingPublisher{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = user.NewService(repo, prefixHasher{}, publisher, logger)
	})

	Describe("Create", func() {
		It("should store a normalized, hashed, active account", func() {
			u, err := service.Create(ctx, 1, user.CreateUserDTO{
				Email:      "  New.Hire@Example.com ",
				Password:   "secret1",
				Name:       "New Hire",
				Role:       "Employee",
				EmployerID: int64Ptr(2),
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(u.Email).To(Equal("new.hire@example.com"))
			Expect(u.Role).To(Equal(internal.RoleEmployee))
			Expect(u.PasswordHash).To(Equal("hashed:secret1"))
			Expect(*u.EmployerID).To(Equal(int64(2)))
			Expect(u.IsActive).To(BeTrue())
			Expect(publisher.events).To(HaveLen(1))
			Expect(publisher.events[0].EventType()).To(Equal(events.EventTypeUserCreated))
		})

		It("should ignore an employer for non-employee roles", func() {
			u, err := service.Create(ctx, 1, user.CreateUserDTO{
				Email: "lead@example.com", Password: "secret1", Name: "Lead", Role: "employer", EmployerID: int64Ptr(2),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.EmployerID).To(BeNil())
		})

		DescribeTable("should reject an employer that cannot take employees",
			func(employerID int64) {
				_, err := service.Create(ctx, 1, user.CreateUserDTO{
					Email: "x@example.com", Password: "secret1", Name: "X", Role: "employee", EmployerID: int64Ptr(employerID),
				})
				Expect(errors.Is(err, user.ErrInvalidEmployer)).To(BeTrue())
			},
			Entry("unknown id", int64(99)),
			Entry("not an employer", int64(3)),
			Entry("deactivated employer", int64(4)),
		)

		It("should refuse a duplicate email", func() {
			_, err := service.Create(ctx, 1, user.CreateUserDTO{
				Email: "ANA@example.com", Password: "secret1", Name: "Ana Again", Role: "employee",
			})
			Expect(errors.Is(err, user.ErrEmailTaken)).To(BeTrue())
		})

		DescribeTable("should validate the payload",
			func(dto user.CreateUserDTO, code internal.ErrorCode) {
				_, err := service.Create(ctx, 1, dto)

				appErr, ok := internal.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(code))
				Expect(publisher.events).To(BeEmpty())
			},
			Entry("bad email", user.CreateUserDTO{Email: "nope", Password: "secret1", Name: "N", Role: "employee"}, internal.ErrCodeInvalidEmail),
			Entry("short password", user.CreateUserDTO{Email: "n@example.com", Password: "abc", Name: "N", Role: "employee"}, internal.ErrCodePasswordTooShort),
			Entry("unknown role", user.CreateUserDTO{Email: "n@example.com", Password: "secret1", Name: "N", Role: "owner"}, internal.ErrCodeInvalidRole),
			Entry("several problems", user.CreateUserDTO{Role: "employee"}, internal.ErrCodeValidationFailed),
		)
	})

	Describe("SetActive", func() {
		It("should toggle the flag and return the stored user", func() {
			u, err := service.SetActive(ctx, 1, 3, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.IsActive).To(BeFalse())
			Expect(publisher.events[0].Payload()).To(HaveKeyWithValue("is_active", false))
		})

		It("should report a missing user", func() {
			_, err := service.SetActive(ctx, 1, 99, true)
			Expect(errors.Is(err, user.ErrUserNotFound)).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("should detach the employer's employees", func() {
			Expect(service.Delete(ctx, 1, 2)).To(Succeed())

			Expect(repo.users).NotTo(HaveKey(int64(2)))
			Expect(repo.users[3].EmployerID).To(BeNil())
			Expect(publisher.events[0].EventType()).To(Equal(events.EventTypeUserDeleted))
		})

		It("should not let an admin delete themselves", func() {
			Expect(service.Delete(ctx, 1, 1)).To(MatchError(user.ErrCannotDeleteSelf))
			Expect(repo.users).To(HaveKey(int64(1)))
		})
	})
})
