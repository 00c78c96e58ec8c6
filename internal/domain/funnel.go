package domain

import (
	"context"
	"time"
)

// Funnel step bounds.
const (
	FunnelMinSteps = 2
	FunnelMaxSteps = 8
)

// Funnel is an ordered sequence of goals defining a conversion path.
// swagger:model Funnel
type Funnel struct {
	ID        int64         `json:"id"`
	SiteID    string        `json:"site_id"`
	Name      string        `json:"name"`
	Steps     []*FunnelStep `json:"steps"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AtMinimum reports whether removing one more step would leave the funnel invalid.
func (f *Funnel) AtMinimum() bool {
	return len(f.Steps) <= FunnelMinSteps
}

// FunnelStep references one goal at a position within a funnel.
// swagger:model FunnelStep
type FunnelStep struct {
	ID       int64 `json:"id"`
	FunnelID int64 `json:"funnel_id"`
	GoalID   int64 `json:"goal_id"`
	Position int   `json:"position"`
	Goal     *Goal `json:"goal,omitempty"`
}

// FunnelRepository defines storage operations for funnels and their steps.
type FunnelRepository interface {
	// Create inserts the funnel and its steps; callers run it inside a transaction.
	Create(ctx context.Context, f *Funnel) error
	GetForSite(ctx context.Context, funnelID int64, siteID string) (*Funnel, error)
	ListBySite(ctx context.Context, siteID string) ([]*Funnel, error)
	// ListByGoal returns every funnel containing the goal, each with all of its steps.
	ListByGoal(ctx context.Context, goalID int64) ([]*Funnel, error)
	Delete(ctx context.Context, funnelID int64) error
}

// FunnelService manages funnels built from goals.
type FunnelService interface {
	CreateFunnel(ctx context.Context, siteID, name string, goalIDs []int64) (*Funnel, error)
	GetFunnel(ctx context.Context, funnelID int64, siteID string) (*Funnel, error)
	ListFunnels(ctx context.Context, siteID string) ([]*Funnel, error)
	DeleteFunnel(ctx context.Context, funnelID int64, siteID string) error
}
