package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

// UserService manages student and teacher accounts. New students start at
// the pending level until intake assigns one.
type UserService struct {
	users repos.UserRepo
	log   *logger.Logger
}

func NewUserService(users repos.UserRepo, log *logger.Logger) *UserService {
	return &UserService{
		users: users,
		log:   log.With("service", "UserService"),
	}
}

func (s *UserService) Register(ctx context.Context, name, email, role, nativeLanguage string) (*types.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email required", apperr.ErrValidation)
	}
	if role == "" {
		role = "student"
	}
	if role != "student" && role != "teacher" {
		return nil, fmt.Errorf("%w: unknown role %q", apperr.ErrValidation, role)
	}
	if nativeLanguage == "" {
		nativeLanguage = "pl"
	}
	if existing, err := s.users.GetByEmail(ctx, nil, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered to user %d", apperr.ErrValidation, existing.ID)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}
	user, err := s.users.Create(ctx, nil, &types.User{
		Name:           name,
		Email:          email,
		Role:           role,
		NativeLanguage: nativeLanguage,
		CurrentLevel:   types.LevelPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("User registered", "user_id", user.ID, "role", role)
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*types.User, error) {
	return s.users.GetByID(ctx, nil, id)
}
