package domain

import "context"

// TxManager runs fn inside one database transaction. Repositories called with the context
// passed to fn take part in that transaction. A non-nil error from fn rolls everything back.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher emits domain events after a transaction committed.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// Domain event keys.
const (
	EventOwnershipTransferred = "site.ownership_transferred"
	EventInvitationAccepted   = "site.invitation_accepted"
	EventGoalDeleted          = "goal.deleted"
)

// MembershipEvent is the payload of membership related events.
type MembershipEvent struct {
	SiteID          string `json:"site_id"`
	UserID          string `json:"user_id"`
	Role            Role   `json:"role"`
	PreviousOwnerID string `json:"previous_owner_id,omitempty"`
}

// GoalEvent is the payload of goal related events.
type GoalEvent struct {
	SiteID         string  `json:"site_id"`
	GoalID         int64   `json:"goal_id"`
	DeletedFunnels []int64 `json:"deleted_funnels,omitempty"`
}
