package directory

import (
	"context"

	"github.com/google/uuid"

	"github.com/carelink/carelink/pkg/apperror"
)

var validRoles = map[string]bool{
	RoleSuperAdmin:    true,
	RoleHospitalAdmin: true,
	RoleDoctor:        true,
	RoleNurse:         true,
	RoleDispatcher:    true,
	RoleReceptionist:  true,
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateUser(ctx context.Context, u *User) error {
	if u.Name == "" {
		return apperror.Validationf("name is required")
	}
	if u.Role == "" {
		return apperror.Validationf("role is required")
	}
	if !validRoles[u.Role] {
		return apperror.Validationf("unknown role %q", u.Role)
	}
	u.IsActive = true
	return s.repo.Create(ctx, u)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.NotFoundf("user %s not found", id)
	}
	return u, nil
}

func (s *Service) GetUsers(ctx context.Context, ids []uuid.UUID) ([]*User, error) {
	return s.repo.GetByIDs(ctx, ids)
}

func (s *Service) UpdateUser(ctx context.Context, u *User) error {
	if u.Role != "" && !validRoles[u.Role] {
		return apperror.Validationf("unknown role %q", u.Role)
	}
	existing, err := s.repo.GetByID(ctx, u.ID)
	if err != nil {
		return apperror.NotFoundf("user %s not found", u.ID)
	}
	if u.Name == "" {
		u.Name = existing.Name
	}
	if u.Role == "" {
		u.Role = existing.Role
	}
	return s.repo.Update(ctx, u)
}

// DeactivateUser soft-deletes a user. Deactivated users stop receiving
// broadcasts and notifications but keep their message history.
func (s *Service) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return apperror.NotFoundf("user %s not found", id)
	}
	u.IsActive = false
	return s.repo.Update(ctx, u)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// FindActiveUsers resolves a broadcast audience: active users matching any of
// the given roles, optionally narrowed to facilities.
func (s *Service) FindActiveUsers(ctx context.Context, roles []string, facilityIDs []uuid.UUID) ([]*User, error) {
	for _, role := range roles {
		if !validRoles[role] {
			return nil, apperror.Validationf("unknown role %q", role)
		}
	}
	return s.repo.FindActive(ctx, roles, facilityIDs)
}
