package repos

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/derasmus-hub/intake-eval-school/internal/pkg/apperr"
)

// translateErr maps driver errors onto the engine's sentinel kinds so
// services can classify without knowing the database.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", apperr.ErrStoreConflict, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	// Postgres and sqlite phrase the violation differently.
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
