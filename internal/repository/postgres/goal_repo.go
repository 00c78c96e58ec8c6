package postgres

import (
	"context"
	"database/sql"
	"strings"

	"analyticsadmin/internal/domain"
)

const (
	constraintGoalEventName = "goals_event_name_unique"
	constraintGoalPagePath  = "goals_page_path_unique"
)

type goalRepository struct {
	DB *sql.DB
}

func NewGoalRepository(db *sql.DB) domain.GoalRepository {
	return &goalRepository{DB: db}
}

// goalError turns natural-key violations into a field error on the offending column.
func goalError(err error) error {
	name, ok := uniqueConstraint(err)
	if !ok {
		return err
	}
	switch name {
	case constraintGoalPagePath:
		return domain.NewValidationError("page_path", domain.MsgAlreadyTaken)
	default:
		return domain.NewValidationError("event_name", domain.MsgAlreadyTaken)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanGoal(row rowScanner) (*domain.Goal, error) {
	g := &domain.Goal{}
	var eventName, pagePath, currency sql.NullString
	if err := row.Scan(&g.ID, &g.SiteID, &eventName, &pagePath, &currency, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	setGoalColumns(g, eventName, pagePath, currency)
	return g, nil
}

// setGoalColumns fills the nullable goal columns. Legacy rows may carry surrounding whitespace.
func setGoalColumns(g *domain.Goal, eventName, pagePath, currency sql.NullString) {
	g.EventName = strings.TrimSpace(eventName.String)
	g.PagePath = strings.TrimSpace(pagePath.String)
	g.Currency = currency.String
}

func (r *goalRepository) Create(ctx context.Context, g *domain.Goal) error {
	query := `
		INSERT INTO goals (site_id, event_name, page_path, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := conn(ctx, r.DB).QueryRowContext(ctx, query,
		g.SiteID, nullString(g.EventName), nullString(g.PagePath), nullString(g.Currency), g.CreatedAt, g.UpdatedAt,
	).Scan(&g.ID)
	return goalError(err)
}

func (r *goalRepository) InsertIfAbsent(ctx context.Context, g *domain.Goal) (bool, error) {
	query := `
		INSERT INTO goals (site_id, event_name, page_path, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING id
	`
	err := conn(ctx, r.DB).QueryRowContext(ctx, query,
		g.SiteID, nullString(g.EventName), nullString(g.PagePath), nullString(g.Currency), g.CreatedAt, g.UpdatedAt,
	).Scan(&g.ID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, goalError(err)
	}
	return true, nil
}

func (r *goalRepository) GetByNaturalKey(ctx context.Context, siteID, eventName, pagePath string) (*domain.Goal, error) {
	var query string
	var key string
	if eventName != "" {
		query = `
			SELECT id, site_id, event_name, page_path, currency, created_at, updated_at
			FROM goals
			WHERE site_id = $1 AND event_name = $2
		`
		key = eventName
	} else {
		query = `
			SELECT id, site_id, event_name, page_path, currency, created_at, updated_at
			FROM goals
			WHERE site_id = $1 AND page_path = $2
		`
		key = pagePath
	}
	g, err := scanGoal(conn(ctx, r.DB).QueryRowContext(ctx, query, siteID, key))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrGoalNotFound
		}
		return nil, err
	}
	return g, nil
}

func (r *goalRepository) GetForSite(ctx context.Context, goalID int64, siteID string) (*domain.Goal, error) {
	query := `
		SELECT id, site_id, event_name, page_path, currency, created_at, updated_at
		FROM goals
		WHERE id = $1 AND site_id = $2
	`
	g, err := scanGoal(conn(ctx, r.DB).QueryRowContext(ctx, query, goalID, siteID))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrGoalNotFound
		}
		return nil, err
	}
	return g, nil
}

func (r *goalRepository) ListBySite(ctx context.Context, siteID string) ([]*domain.Goal, error) {
	query := `
		SELECT id, site_id, event_name, page_path, currency, created_at, updated_at
		FROM goals
		WHERE site_id = $1
		ORDER BY id DESC
	`
	rows, err := conn(ctx, r.DB).QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	goals := make([]*domain.Goal, 0)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (r *goalRepository) Delete(ctx context.Context, goalID int64) error {
	query := `DELETE FROM goals WHERE id = $1`
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, goalID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}
