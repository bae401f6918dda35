package directory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/pkg/apperror"
)

type mockRepo struct {
	users map[uuid.UUID]*User
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = time.Now()
	m.users[u.ID] = u
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return u, nil
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*User, error) {
	var out []*User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepo) Update(_ context.Context, u *User) error {
	m.users[u.ID] = u
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	var out []*User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockRepo) FindActive(_ context.Context, roles []string, facilityIDs []uuid.UUID) ([]*User, error) {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	var out []*User
	for _, u := range m.users {
		if !u.IsActive {
			continue
		}
		if len(roles) > 0 && !roleSet[u.Role] {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func seedUser(t *testing.T, svc *Service, name, role string) *User {
	t.Helper()
	u := &User{Name: name, Role: role}
	if err := svc.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestCreateUser_Validation(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if err := svc.CreateUser(ctx, &User{Role: RoleDoctor}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("missing name: err = %v", err)
	}
	if err := svc.CreateUser(ctx, &User{Name: "X"}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("missing role: err = %v", err)
	}
	if err := svc.CreateUser(ctx, &User{Name: "X", Role: "janitor"}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("unknown role: err = %v", err)
	}
}

func TestCreateUser_ActivatesByDefault(t *testing.T) {
	svc := NewService(newMockRepo())
	u := seedUser(t, svc, "Dr. Chen", RoleDoctor)
	if !u.IsActive {
		t.Error("new user should be active")
	}
}

func TestDeactivateUser(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	u := seedUser(t, svc, "Nurse Okafor", RoleNurse)

	if err := svc.DeactivateUser(context.Background(), u.ID); err != nil {
		t.Fatalf("DeactivateUser: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), u.ID)
	if got.IsActive {
		t.Error("user should be inactive")
	}

	if err := svc.DeactivateUser(context.Background(), uuid.New()); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("unknown user: err = %v", err)
	}
}

func TestFindActiveUsers_FiltersByRole(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	seedUser(t, svc, "Dr. Chen", RoleDoctor)
	seedUser(t, svc, "Nurse Okafor", RoleNurse)
	inactive := seedUser(t, svc, "Dr. Gone", RoleDoctor)
	svc.DeactivateUser(context.Background(), inactive.ID)

	users, err := svc.FindActiveUsers(context.Background(), []string{RoleDoctor}, nil)
	if err != nil {
		t.Fatalf("FindActiveUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 active doctor, got %d", len(users))
	}
	if users[0].Name != "Dr. Chen" {
		t.Errorf("user = %s", users[0].Name)
	}
}

func TestFindActiveUsers_RejectsUnknownRole(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, err := svc.FindActiveUsers(context.Background(), []string{"wizard"}, nil); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestUpdateUser_KeepsExistingFields(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	u := seedUser(t, svc, "Dr. Chen", RoleDoctor)

	if err := svc.UpdateUser(context.Background(), &User{ID: u.ID, IsActive: true}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), u.ID)
	if got.Name != "Dr. Chen" || got.Role != RoleDoctor {
		t.Errorf("fields not preserved: %+v", got)
	}
}
