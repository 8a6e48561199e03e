package records

import (
	"context"
	"fmt"
	"strings"

	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/repository"
	"opd/opd-service/internal/store"

	"github.com/google/uuid"
)

func (s *Service) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	if blank(input.Username) || blank(input.FullName) {
		return models.User{}, fmt.Errorf("%w: username and full name are required", store.ErrInvalidInput)
	}
	role, ok := models.ParseRole(string(input.Role))
	if !ok {
		return models.User{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, input.Role)
	}
	var department models.Department
	if input.Department != "" {
		if department, ok = models.ParseDepartment(string(input.Department)); !ok {
			return models.User{}, fmt.Errorf("%w: unknown department %q", store.ErrInvalidInput, input.Department)
		}
	}
	if role == models.RoleDoctor && department == "" {
		return models.User{}, fmt.Errorf("%w: doctors need a department", store.ErrInvalidInput)
	}

	now := s.timestamp()
	user := models.User{
		UserID:     uuid.NewString(),
		Username:   strings.ToLower(strings.TrimSpace(input.Username)),
		FullName:   strings.TrimSpace(input.FullName),
		Role:       role,
		Email:      input.Email,
		Department: department,
		Status:     models.UserActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	var (
		committed []models.User
		revision  uint64
	)
	err := s.sync.Update(ctx, []string{repository.KeyUsers}, func(tx *datasync.Tx) error {
		users, err := s.repos.Users.Load(tx)
		if err != nil {
			return err
		}
		for _, existing := range users {
			if existing.Username == user.Username {
				return store.ErrUsernameTaken
			}
		}
		users = append(users, user)
		if err := s.repos.Users.Store(tx, users); err != nil {
			return err
		}
		committed = users
		revision = s.repos.Users.Revision(tx)
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	s.users.Replace(committed, revision)
	s.logger.Info().Str("user_id", user.UserID).Str("role", string(user.Role)).Msg("user created")
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (models.User, error) {
	users, err := s.users.Snapshot(ctx)
	if err != nil {
		return models.User{}, err
	}
	for _, user := range users {
		if user.UserID == userID {
			return user, nil
		}
	}
	return models.User{}, store.ErrUserNotFound
}

// ListUsers filters by role and department; empty values match everything.
func (s *Service) ListUsers(ctx context.Context, role models.Role, department models.Department) ([]models.User, error) {
	users, err := s.users.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return filter(users, func(u models.User) bool {
		return (role == "" || u.Role == role) && (department == "" || u.Department == department)
	}), nil
}
