package services

import (
	"context"
	"errors"
	"testing"

	"github.com/derasmus-hub/intake-eval-school/internal/db"
	"github.com/derasmus-hub/intake-eval-school/internal/logger"
	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
	"github.com/derasmus-hub/intake-eval-school/internal/repos"
	"github.com/derasmus-hub/intake-eval-school/internal/types"
)

func TestRegisterDefaultsAndDuplicates(t *testing.T) {
	gdb, err := db.NewSQLiteMemory()
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	log := logger.NewNop()
	svc := NewUserService(repos.NewUserRepo(gdb, log), log)
	ctx := context.Background()

	user, err := svc.Register(ctx, "  Marek  ", "Marek@Example.com", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Name != "Marek" {
		t.Errorf("name = %q, want trimmed", user.Name)
	}
	if user.Email != "marek@example.com" {
		t.Errorf("email = %q, want lowercased", user.Email)
	}
	if user.Role != "student" || user.NativeLanguage != "pl" {
		t.Errorf("defaults not applied: role=%q lang=%q", user.Role, user.NativeLanguage)
	}
	if user.CurrentLevel != types.LevelPending {
		t.Errorf("level = %q, want pending", user.CurrentLevel)
	}

	if _, err := svc.Register(ctx, "Other", "marek@example.com", "student", "pl"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("duplicate email error = %v, want ErrValidation", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	gdb, err := db.NewSQLiteMemory()
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	log := logger.NewNop()
	svc := NewUserService(repos.NewUserRepo(gdb, log), log)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "", "x@y.pl", "student", "pl"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty name error = %v, want ErrValidation", err)
	}
	if _, err := svc.Register(ctx, "Ala", "ala@y.pl", "admin", "pl"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad role error = %v, want ErrValidation", err)
	}
	if _, err := svc.Get(ctx, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing user error = %v, want ErrNotFound", err)
	}
}
