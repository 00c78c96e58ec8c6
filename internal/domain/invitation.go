package domain

import (
	"context"
	"time"
)

// Invitation is a proposed role grant on a site, addressed to an email.
// swagger:model Invitation
type Invitation struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	SiteID    string    `json:"site_id"`
	InviterID string    `json:"inviter_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
	Site      *Site     `json:"site,omitempty"`
	Inviter   *User     `json:"inviter,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InvitationRepository defines storage operations for pending invitations.
type InvitationRepository interface {
	Create(ctx context.Context, inv *Invitation) error
	// FindForUser matches on the token and the user's current email.
	FindForUser(ctx context.Context, token string, user *User) (*Invitation, error)
	Delete(ctx context.Context, inv *Invitation) error
}
