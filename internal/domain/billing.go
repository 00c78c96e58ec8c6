package domain

import (
	"context"
	"time"
)

// Feature is a gated product capability.
type Feature string

const (
	FeatureFunnels      Feature = "funnels"
	FeatureProps        Feature = "props"
	FeatureGoals        Feature = "goals"
	FeatureRevenueGoals Feature = "revenue_goals"
)

// SubscriptionStatus mirrors the payment provider status.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionPastDue SubscriptionStatus = "past_due"
	SubscriptionPaused  SubscriptionStatus = "paused"
	SubscriptionDeleted SubscriptionStatus = "deleted"
)

// Subscription is a user's paid plan.
type Subscription struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Status    SubscriptionStatus `json:"status"`
	Features  []Feature          `json:"features"`
	CreatedAt time.Time          `json:"created_at"`
}

// Includes reports whether the plan lists f.
func (s *Subscription) Includes(f Feature) bool {
	for _, have := range s.Features {
		if have == f {
			return true
		}
	}
	return false
}

// SubscriptionRepository reads subscriptions.
type SubscriptionRepository interface {
	// GetLatestForUser returns the newest subscription of the user or ErrNotFound.
	GetLatestForUser(ctx context.Context, userID string) (*Subscription, error)
}

// BillingOracle answers entitlement questions about a user.
type BillingOracle interface {
	IsOnTrial(user *User) bool
	HasActiveSubscription(ctx context.Context, user *User) (bool, error)
	// CheckFeatureAvailability returns nil or ErrUpgradeRequired.
	CheckFeatureAvailability(ctx context.Context, user *User, feature Feature) error
}

// LockStateChange is the outcome of re-evaluating a user's site locks.
type LockStateChange int

const (
	LockUnchanged LockStateChange = iota
	Unlocked
	Locked
	// LockedGracePeriodEndedNow means this evaluation closed the grace period.
	LockedGracePeriodEndedNow
)

func (c LockStateChange) String() string {
	switch c {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	case LockedGracePeriodEndedNow:
		return "locked_grace_period_ended_now"
	}
	return "unchanged"
}

// SiteLocker re-evaluates lock flags of every site a user owns.
type SiteLocker interface {
	UpdateSitesFor(ctx context.Context, user *User, sendEmail bool) (LockStateChange, error)
}

// FeatureService flips per-site feature toggles through the feature module table.
type FeatureService interface {
	SetFeature(ctx context.Context, siteID, key string, enabled bool) (*Site, error)
}
