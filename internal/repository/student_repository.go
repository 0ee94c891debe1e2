package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/makerdesk/timeclock-api/internal/models"
)

const studentColumns = `id, badge_code, full_name, role, active, created_at, updated_at`

// StudentRepository loads student reference data.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID loads a student by identifier, nil when absent.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindByBadge resolves a card swipe's badge code to a student.
func (r *StudentRepository) FindByBadge(ctx context.Context, badgeCode string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE badge_code = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, badgeCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find student by badge: %w", err)
	}
	return &student, nil
}
