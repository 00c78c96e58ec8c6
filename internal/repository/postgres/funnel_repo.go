package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"analyticsadmin/internal/domain"
)

const constraintFunnelName = "funnels_name_site_id_index"

type funnelRepository struct {
	DB *sql.DB
}

func NewFunnelRepository(db *sql.DB) domain.FunnelRepository {
	return &funnelRepository{DB: db}
}

func (r *funnelRepository) Create(ctx context.Context, f *domain.Funnel) error {
	db := conn(ctx, r.DB)
	query := `
		INSERT INTO funnels (site_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := db.QueryRowContext(ctx, query, f.SiteID, f.Name, f.CreatedAt, f.UpdatedAt).Scan(&f.ID); err != nil {
		if name, ok := uniqueConstraint(err); ok && name == constraintFunnelName {
			return domain.NewValidationError("name", domain.MsgAlreadyTaken)
		}
		return err
	}
	stepQuery := `
		INSERT INTO funnel_steps (funnel_id, goal_id, step_order)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	for _, s := range f.Steps {
		s.FunnelID = f.ID
		if err := db.QueryRowContext(ctx, stepQuery, f.ID, s.GoalID, s.Position).Scan(&s.ID); err != nil {
			if _, ok := uniqueConstraint(err); ok {
				return domain.NewValidationError("steps", "goals must be unique within a funnel")
			}
			return err
		}
	}
	return nil
}

func (r *funnelRepository) GetForSite(ctx context.Context, funnelID int64, siteID string) (*domain.Funnel, error) {
	query := `
		SELECT id, site_id, name, created_at, updated_at
		FROM funnels
		WHERE id = $1 AND site_id = $2
	`
	f := &domain.Funnel{}
	err := conn(ctx, r.DB).QueryRowContext(ctx, query, funnelID, siteID).Scan(&f.ID, &f.SiteID, &f.Name, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrFunnelNotFound
		}
		return nil, err
	}
	if err := r.attachSteps(ctx, []*domain.Funnel{f}); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *funnelRepository) ListBySite(ctx context.Context, siteID string) ([]*domain.Funnel, error) {
	query := `
		SELECT id, site_id, name, created_at, updated_at
		FROM funnels
		WHERE site_id = $1
		ORDER BY id DESC
	`
	return r.list(ctx, query, siteID)
}

func (r *funnelRepository) ListByGoal(ctx context.Context, goalID int64) ([]*domain.Funnel, error) {
	query := `
		SELECT f.id, f.site_id, f.name, f.created_at, f.updated_at
		FROM funnels f
		WHERE EXISTS (SELECT 1 FROM funnel_steps s WHERE s.funnel_id = f.id AND s.goal_id = $1)
		ORDER BY f.id
	`
	return r.list(ctx, query, goalID)
}

func (r *funnelRepository) list(ctx context.Context, query string, arg any) ([]*domain.Funnel, error) {
	rows, err := conn(ctx, r.DB).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	funnels := make([]*domain.Funnel, 0)
	for rows.Next() {
		f := &domain.Funnel{}
		if err := rows.Scan(&f.ID, &f.SiteID, &f.Name, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		funnels = append(funnels, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachSteps(ctx, funnels); err != nil {
		return nil, err
	}
	return funnels, nil
}

// attachSteps loads the ordered steps, with their goals, of every funnel in one query.
func (r *funnelRepository) attachSteps(ctx context.Context, funnels []*domain.Funnel) error {
	if len(funnels) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Funnel, len(funnels))
	ids := make([]int64, 0, len(funnels))
	for _, f := range funnels {
		f.Steps = make([]*domain.FunnelStep, 0)
		byID[f.ID] = f
		ids = append(ids, f.ID)
	}
	query := `
		SELECT s.id, s.funnel_id, s.goal_id, s.step_order,
			g.id, g.site_id, g.event_name, g.page_path, g.currency, g.created_at, g.updated_at
		FROM funnel_steps s
		JOIN goals g ON g.id = s.goal_id
		WHERE s.funnel_id = ANY($1)
		ORDER BY s.funnel_id, s.step_order
	`
	rows, err := conn(ctx, r.DB).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		s := &domain.FunnelStep{Goal: &domain.Goal{}}
		var eventName, pagePath, currency sql.NullString
		g := s.Goal
		if err := rows.Scan(&s.ID, &s.FunnelID, &s.GoalID, &s.Position,
			&g.ID, &g.SiteID, &eventName, &pagePath, &currency, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return err
		}
		setGoalColumns(g, eventName, pagePath, currency)
		if f, ok := byID[s.FunnelID]; ok {
			f.Steps = append(f.Steps, s)
		}
	}
	return rows.Err()
}

func (r *funnelRepository) Delete(ctx context.Context, funnelID int64) error {
	query := `DELETE FROM funnels WHERE id = $1`
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, funnelID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrFunnelNotFound
	}
	return nil
}
