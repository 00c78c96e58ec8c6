package domain

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyMember is returned when a (site, user) membership already exists.
var ErrAlreadyMember = errors.New("already a member of this site")

// ErrOwnerExists is returned when a second owner membership would be stored for a site.
var ErrOwnerExists = errors.New("site already has an owner")

// Role is a membership privilege tier.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleViewer:
		return true
	}
	return false
}

// ParseRole converts s into a Role, returning ErrInvalidInput for unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", ErrInvalidInput
	}
	return r, nil
}

type grant struct {
	actor  Role
	target Role
	self   bool
}

// roleGrants lists every allowed (actor, target, self) combination. Anything absent is denied,
// including every grant of RoleOwner: ownership moves only through a transfer.
var roleGrants = map[grant]bool{
	{RoleOwner, RoleAdmin, true}:   true,
	{RoleOwner, RoleViewer, true}:  true,
	{RoleAdmin, RoleViewer, true}:  true,
	{RoleOwner, RoleAdmin, false}:  true,
	{RoleOwner, RoleViewer, false}: true,
	{RoleAdmin, RoleAdmin, false}:  true,
	{RoleAdmin, RoleViewer, false}: true,
}

// CanGrantRole reports whether a member with role actor may set target on themselves (self)
// or on another member.
func CanGrantRole(actor, target Role, self bool) bool {
	return roleGrants[grant{actor: actor, target: target, self: self}]
}

// Membership ties a user to a site with a role.
// swagger:model Membership
type Membership struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Site      *Site     `json:"site,omitempty"`
	User      *User     `json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMembership returns an unsaved membership for (siteID, userID) with the given role.
func NewMembership(siteID, userID string, role Role, now time.Time) *Membership {
	return &Membership{
		SiteID:    siteID,
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MembershipRepository defines storage operations for site memberships.
type MembershipRepository interface {
	Get(ctx context.Context, siteID, userID string) (*Membership, error)
	// GetOwner returns the owner membership of the site, locking its row for the
	// remainder of the surrounding transaction.
	GetOwner(ctx context.Context, siteID string) (*Membership, error)
	ListBySite(ctx context.Context, siteID string) ([]*Membership, error)
	Create(ctx context.Context, m *Membership) error
	SetRole(ctx context.Context, m *Membership, role Role) error
	// Upsert inserts m or overwrites the role of the existing (site, user) row.
	Upsert(ctx context.Context, m *Membership) error
	// InsertIfAbsent inserts m unless a (site, user) row exists and returns the stored row.
	InsertIfAbsent(ctx context.Context, m *Membership) (*Membership, error)
}

// TransferOptions tune ownership transfer side effects.
type TransferOptions struct {
	Selfhost bool
}

// AcceptOptions tune invitation acceptance side effects.
type AcceptOptions struct {
	Selfhost bool
}

// MembershipService is the ownership-transfer and invitation-acceptance contract.
type MembershipService interface {
	TransferOwnership(ctx context.Context, siteID, newOwnerID string, opts TransferOptions) (*Membership, error)
	AcceptInvitation(ctx context.Context, token, userID string, opts AcceptOptions) (*Membership, error)
	UpdateRole(ctx context.Context, siteID, actorID, targetUserID string, role Role) (*Membership, error)
}

// SiteAccess authorizes a user against a site by membership role.
type SiteAccess interface {
	// Authorize returns the user's membership when its role is one of roles (any role when
	// roles is empty), ErrForbidden otherwise.
	Authorize(ctx context.Context, siteID, userID string, roles ...Role) (*Membership, error)
}
