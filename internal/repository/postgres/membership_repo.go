package postgres

import (
	"context"
	"database/sql"
	"time"

	"analyticsadmin/internal/domain"
)

const (
	constraintSiteUser = "site_memberships_site_user_key"
	constraintOneOwner = "site_memberships_one_owner"
)

type membershipRepository struct {
	DB *sql.DB
}

func NewMembershipRepository(db *sql.DB) domain.MembershipRepository {
	return &membershipRepository{DB: db}
}

func membershipError(err error) error {
	if name, ok := uniqueConstraint(err); ok {
		if name == constraintOneOwner {
			return domain.ErrOwnerExists
		}
		return domain.ErrAlreadyMember
	}
	return err
}

func (r *membershipRepository) Get(ctx context.Context, siteID, userID string) (*domain.Membership, error) {
	query := `
		SELECT id, site_id, user_id, role, created_at, updated_at
		FROM site_memberships
		WHERE site_id = $1 AND user_id = $2
	`
	return r.getOne(ctx, query, siteID, userID)
}

func (r *membershipRepository) GetOwner(ctx context.Context, siteID string) (*domain.Membership, error) {
	query := `
		SELECT id, site_id, user_id, role, created_at, updated_at
		FROM site_memberships
		WHERE site_id = $1 AND role = 'owner'
		FOR UPDATE
	`
	return r.getOne(ctx, query, siteID)
}

func (r *membershipRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Membership, error) {
	m := &domain.Membership{}
	var role string
	err := conn(ctx, r.DB).QueryRowContext(ctx, query, args...).Scan(&m.ID, &m.SiteID, &m.UserID, &role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	m.Role = domain.Role(role)
	return m, nil
}

func (r *membershipRepository) ListBySite(ctx context.Context, siteID string) ([]*domain.Membership, error) {
	query := `
		SELECT m.id, m.site_id, m.user_id, m.role, m.created_at, m.updated_at, u.email, u.name
		FROM site_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.site_id = $1
		ORDER BY m.created_at, m.id
	`
	rows, err := conn(ctx, r.DB).QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := make([]*domain.Membership, 0)
	for rows.Next() {
		m := &domain.Membership{User: &domain.User{}}
		var role string
		var name sql.NullString
		if err := rows.Scan(&m.ID, &m.SiteID, &m.UserID, &role, &m.CreatedAt, &m.UpdatedAt, &m.User.Email, &name); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		m.User.ID = m.UserID
		m.User.Name = name.String
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *membershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO site_memberships (site_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := conn(ctx, r.DB).QueryRowContext(ctx, query, m.SiteID, m.UserID, string(m.Role), m.CreatedAt, m.UpdatedAt).Scan(&m.ID)
	return membershipError(err)
}

func (r *membershipRepository) SetRole(ctx context.Context, m *domain.Membership, role domain.Role) error {
	query := `
		UPDATE site_memberships SET role = $2, updated_at = $3
		WHERE id = $1
	`
	now := time.Now().UTC()
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, m.ID, string(role), now)
	if err != nil {
		return membershipError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrMembershipNotFound
	}
	m.Role = role
	m.UpdatedAt = now
	return nil
}

func (r *membershipRepository) Upsert(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO site_memberships (site_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (site_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	err := conn(ctx, r.DB).QueryRowContext(ctx, query, m.SiteID, m.UserID, string(m.Role), m.CreatedAt, m.UpdatedAt).Scan(&m.ID, &m.CreatedAt)
	return membershipError(err)
}

func (r *membershipRepository) InsertIfAbsent(ctx context.Context, m *domain.Membership) (*domain.Membership, error) {
	query := `
		INSERT INTO site_memberships (site_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (site_id, user_id) DO NOTHING
	`
	if _, err := conn(ctx, r.DB).ExecContext(ctx, query, m.SiteID, m.UserID, string(m.Role), m.CreatedAt, m.UpdatedAt); err != nil {
		return nil, membershipError(err)
	}
	return r.Get(ctx, m.SiteID, m.UserID)
}
