package domain

import (
	"context"
	"time"
)

// GracePeriod is the billing-lapse window after which the user's sites get locked.
type GracePeriod struct {
	EndDate           time.Time `json:"end_date"`
	IsOver            bool      `json:"is_over"`
	AllowanceRequired int       `json:"allowance_required,omitempty"`
}

// Expired reports whether the grace period ended before today.
func (g *GracePeriod) Expired(today time.Time) bool {
	if g == nil {
		return false
	}
	return Date(g.EndDate).Before(Date(today))
}

// User is an account that can be a member of sites.
// swagger:model User
type User struct {
	ID              string       `json:"id"`
	Email           string       `json:"email"`
	Name            string       `json:"name"`
	TrialExpiryDate *time.Time   `json:"trial_expiry_date"`
	GracePeriod     *GracePeriod `json:"grace_period"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Date truncates t to midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// UserRepository defines storage operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	UpdateTrialExpiry(ctx context.Context, userID string, date *time.Time) error
	UpdateGracePeriod(ctx context.Context, userID string, gp *GracePeriod) error
}
