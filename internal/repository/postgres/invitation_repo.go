package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"analyticsadmin/internal/domain"
)

type invitationRepository struct {
	DB *sql.DB
}

func NewInvitationRepository(db *sql.DB) domain.InvitationRepository {
	return &invitationRepository{DB: db}
}

func (r *invitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	if inv.Token == "" {
		inv.Token = uuid.NewString()
	}
	inv.Email = strings.TrimSpace(strings.ToLower(inv.Email))
	query := `
		INSERT INTO invitations (token, site_id, inviter_id, email, role, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return conn(ctx, r.DB).QueryRowContext(ctx, query, inv.Token, inv.SiteID, inv.InviterID, inv.Email, string(inv.Role), inv.ExpiresAt, inv.CreatedAt).
		Scan(&inv.ID)
}

// FindForUser loads the invitation with its site and inviter. An invitation addressed to an
// email the user no longer has is reported as not found.
func (r *invitationRepository) FindForUser(ctx context.Context, token string, user *domain.User) (*domain.Invitation, error) {
	query := `
		SELECT i.id, i.token, i.site_id, i.inviter_id, i.email, i.role, i.expires_at, i.created_at,
			s.id, s.domain, s.locked, s.conversions_enabled, s.funnels_enabled, s.props_enabled, s.created_at, s.updated_at,
			u.id, u.email, u.name
		FROM invitations i
		JOIN sites s ON s.id = i.site_id
		JOIN users u ON u.id = i.inviter_id
		WHERE i.token = $1 AND LOWER(i.email) = LOWER($2)
	`
	inv := &domain.Invitation{Site: &domain.Site{}, Inviter: &domain.User{}}
	var role string
	var inviterName sql.NullString
	s := inv.Site
	err := conn(ctx, r.DB).QueryRowContext(ctx, query, token, strings.TrimSpace(user.Email)).Scan(
		&inv.ID, &inv.Token, &inv.SiteID, &inv.InviterID, &inv.Email, &role, &inv.ExpiresAt, &inv.CreatedAt,
		&s.ID, &s.Domain, &s.Locked, &s.ConversionsEnabled, &s.FunnelsEnabled, &s.PropsEnabled, &s.CreatedAt, &s.UpdatedAt,
		&inv.Inviter.ID, &inv.Inviter.Email, &inviterName,
	)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, err
	}
	inv.Role = domain.Role(role)
	inv.Inviter.Name = inviterName.String
	return inv, nil
}

func (r *invitationRepository) Delete(ctx context.Context, inv *domain.Invitation) error {
	query := `DELETE FROM invitations WHERE id = $1`
	result, err := conn(ctx, r.DB).ExecContext(ctx, query, inv.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrInvitationNotFound
	}
	return nil
}
