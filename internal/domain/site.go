package domain

import (
	"context"
	"time"
)

// Site is an analytics property identified by its domain.
// swagger:model Site
type Site struct {
	ID                 string    `json:"id"`
	Domain             string    `json:"domain"`
	Locked             bool      `json:"locked"`
	ConversionsEnabled bool      `json:"conversions_enabled"`
	FunnelsEnabled     bool      `json:"funnels_enabled"`
	PropsEnabled       bool      `json:"props_enabled"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SiteRepository defines storage operations for sites.
type SiteRepository interface {
	GetByID(ctx context.Context, id string) (*Site, error)
	ListOwnedBy(ctx context.Context, userID string) ([]*Site, error)
	// SetLockedForOwner sets the lock flag on every site the user owns.
	SetLockedForOwner(ctx context.Context, userID string, locked bool) error
	// Touch bumps updated_at to at, never moving it backwards.
	Touch(ctx context.Context, siteID string, at time.Time) error
	SetFeatureEnabled(ctx context.Context, siteID string, feature Feature, enabled bool) error
}
