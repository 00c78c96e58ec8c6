package domain

import (
	"context"
	"time"
)

// GoalNameMaxLength bounds event_name and page_path.
const GoalNameMaxLength = 120

// Goal is a conversion target: a custom event name or a pageview path.
// A goal with a currency is a revenue goal.
// swagger:model Goal
type Goal struct {
	ID        int64     `json:"id"`
	SiteID    string    `json:"site_id"`
	EventName string    `json:"event_name,omitempty"`
	PagePath  string    `json:"page_path,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Funnels   []*Funnel `json:"funnels,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRevenue reports whether the goal carries a currency.
func (g *Goal) IsRevenue() bool {
	return g.Currency != ""
}

// DisplayName is the event name, or "Visit <path>" for pageview goals.
func (g *Goal) DisplayName() string {
	if g.EventName != "" {
		return g.EventName
	}
	return "Visit " + g.PagePath
}

// GoalParams is the user input for creating a goal.
type GoalParams struct {
	EventName string `json:"event_name" validate:"omitempty,max=120"`
	PagePath  string `json:"page_path" validate:"omitempty,max=120"`
	Currency  string `json:"currency" validate:"omitempty,iso4217"`
}

// GoalOptions tune goal creation.
type GoalOptions struct {
	// Upsert returns the existing goal on a natural-key conflict instead of failing.
	Upsert bool
}

// ListGoalsOptions tune goal listing.
type ListGoalsOptions struct {
	PreloadFunnels bool
}

// GoalRepository defines storage operations for goals.
type GoalRepository interface {
	Create(ctx context.Context, g *Goal) error
	// InsertIfAbsent inserts g, reporting inserted=false when a goal with the same natural key exists.
	InsertIfAbsent(ctx context.Context, g *Goal) (inserted bool, err error)
	GetByNaturalKey(ctx context.Context, siteID, eventName, pagePath string) (*Goal, error)
	GetForSite(ctx context.Context, goalID int64, siteID string) (*Goal, error)
	ListBySite(ctx context.Context, siteID string) ([]*Goal, error)
	Delete(ctx context.Context, goalID int64) error
}

// GoalService is the goal/funnel consistency contract.
type GoalService interface {
	CreateGoal(ctx context.Context, siteID string, params GoalParams, opts GoalOptions) (*Goal, error)
	GoalsForSite(ctx context.Context, siteID string, opts ListGoalsOptions) ([]*Goal, error)
	DeleteGoal(ctx context.Context, goalID int64, siteID string) error
}
