package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"analyticsadmin/internal/domain"
)

const siteColumns = `id, domain, locked, conversions_enabled, funnels_enabled, props_enabled, created_at, updated_at`

// featureColumns maps toggleable features to their sites column. Features without a column
// cannot be toggled per site.
var featureColumns = map[domain.Feature]string{
	domain.FeatureGoals:   "conversions_enabled",
	domain.FeatureFunnels: "funnels_enabled",
	domain.FeatureProps:   "props_enabled",
}

type siteRepository struct {
	DB *sql.DB
}

func NewSiteRepository(db *sql.DB) domain.SiteRepository {
	return &siteRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*domain.Site, error) {
	s := &domain.Site{}
	err := row.Scan(&s.ID, &s.Domain, &s.Locked, &s.ConversionsEnabled, &s.FunnelsEnabled, &s.PropsEnabled, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *siteRepository) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = $1`
	s, err := scanSite(conn(ctx, r.DB).QueryRowContext(ctx, query, id))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrSiteNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *siteRepository) ListOwnedBy(ctx context.Context, userID string) ([]*domain.Site, error) {
	query := `
		SELECT s.id, s.domain, s.locked, s.conversions_enabled, s.funnels_enabled, s.props_enabled, s.created_at, s.updated_at
		FROM sites s
		JOIN site_memberships m ON m.site_id = s.id
		WHERE m.user_id = $1 AND m.role = 'owner'
		ORDER BY s.domain
	`
	rows, err := conn(ctx, r.DB).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sites := make([]*domain.Site, 0)
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

func (r *siteRepository) SetLockedForOwner(ctx context.Context, userID string, locked bool) error {
	query := `
		UPDATE sites SET locked = $2
		WHERE id IN (SELECT site_id FROM site_memberships WHERE user_id = $1 AND role = 'owner')
	`
	_, err := conn(ctx, r.DB).ExecContext(ctx, query, userID, locked)
	return err
}

func (r *siteRepository) Touch(ctx context.Context, siteID string, at time.Time) error {
	query := `
		UPDATE sites SET updated_at = GREATEST($2, updated_at + INTERVAL '1 microsecond')
		WHERE id = $1
	`
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, siteID, at)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrSiteNotFound
	}
	return nil
}

func (r *siteRepository) SetFeatureEnabled(ctx context.Context, siteID string, feature domain.Feature, enabled bool) error {
	column, ok := featureColumns[feature]
	if !ok {
		return domain.ErrInvalidInput
	}
	query := fmt.Sprintf(`UPDATE sites SET %s = $2, updated_at = NOW() WHERE id = $1`, column)
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, siteID, enabled)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrSiteNotFound
	}
	return nil
}
