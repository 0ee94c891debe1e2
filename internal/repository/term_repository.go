package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/makerdesk/timeclock-api/internal/models"
)

const termColumns = `id, name, start_date, end_date, is_active, created_at, updated_at`

// TermRepository loads term reference data.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository instantiates a term repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// FindByID loads a term by identifier, nil when absent.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	query := fmt.Sprintf(`SELECT %s FROM terms WHERE id = $1`, termColumns)
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find term: %w", err)
	}
	return &term, nil
}

// FindActive returns the single active term, nil when no term is active.
func (r *TermRepository) FindActive(ctx context.Context) (*models.Term, error) {
	query := fmt.Sprintf(`SELECT %s FROM terms WHERE is_active = TRUE`, termColumns)
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active term: %w", err)
	}
	return &term, nil
}

// ListDaysOff returns the declared day-off ranges for a term.
func (r *TermRepository) ListDaysOff(ctx context.Context, termID string) ([]models.TermDayOff, error) {
	const query = `SELECT id, term_id, start_date, end_date, reason
FROM term_days_off WHERE term_id = $1 ORDER BY start_date ASC`
	var daysOff []models.TermDayOff
	if err := r.db.SelectContext(ctx, &daysOff, query, termID); err != nil {
		return nil, fmt.Errorf("list term days off: %w", err)
	}
	return daysOff, nil
}
