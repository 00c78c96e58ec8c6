package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"analyticsadmin/internal/domain"
)

// ErrSubscriptionNotFound is returned when a user never subscribed.
var ErrSubscriptionNotFound = fmt.Errorf("subscription %w", domain.ErrNotFound)

type subscriptionRepository struct {
	DB *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) domain.SubscriptionRepository {
	return &subscriptionRepository{DB: db}
}

func (r *subscriptionRepository) GetLatestForUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `
		SELECT id, user_id, status, features, created_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	sub := &domain.Subscription{}
	var status string
	var features pq.StringArray
	err := conn(ctx, r.DB).QueryRowContext(ctx, query, userID).Scan(&sub.ID, &sub.UserID, &status, &features, &sub.CreatedAt)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	sub.Status = domain.SubscriptionStatus(status)
	sub.Features = make([]domain.Feature, 0, len(features))
	for _, f := range features {
		sub.Features = append(sub.Features, domain.Feature(f))
	}
	return sub, nil
}
