package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"analyticsadmin/internal/domain"
)

type billingService struct {
	subscriptionRepo domain.SubscriptionRepository
	selfhost         bool
	now              func() time.Time
}

// NewBillingService returns a BillingOracle backed by stored subscriptions. In selfhost mode
// every feature is available.
func NewBillingService(subscriptionRepo domain.SubscriptionRepository, selfhost bool) domain.BillingOracle {
	return &billingService{
		subscriptionRepo: subscriptionRepo,
		selfhost:         selfhost,
		now:              time.Now,
	}
}

func (s *billingService) IsOnTrial(user *domain.User) bool {
	if user == nil || user.TrialExpiryDate == nil {
		return false
	}
	return !domain.Date(*user.TrialExpiryDate).Before(domain.Date(s.now()))
}

func (s *billingService) HasActiveSubscription(ctx context.Context, user *domain.User) (bool, error) {
	sub, err := s.latestSubscription(ctx, user)
	if err != nil {
		return false, err
	}
	return sub != nil && subscriptionActive(sub), nil
}

func (s *billingService) CheckFeatureAvailability(ctx context.Context, user *domain.User, feature domain.Feature) error {
	if s.selfhost || feature == domain.FeatureGoals {
		return nil
	}
	if user == nil {
		return domain.ErrUpgradeRequired
	}
	if s.IsOnTrial(user) {
		return nil
	}
	sub, err := s.latestSubscription(ctx, user)
	if err != nil {
		return err
	}
	if sub != nil && subscriptionActive(sub) && sub.Includes(feature) {
		return nil
	}
	return domain.ErrUpgradeRequired
}

func (s *billingService) latestSubscription(ctx context.Context, user *domain.User) (*domain.Subscription, error) {
	sub, err := s.subscriptionRepo.GetLatestForUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// past_due subscriptions keep access until the provider gives up on them.
func subscriptionActive(sub *domain.Subscription) bool {
	return sub.Status == domain.SubscriptionActive || sub.Status == domain.SubscriptionPastDue
}

// siteOwner loads the user owning siteID. A site without an owner yields ErrMembershipNotFound.
func siteOwner(ctx context.Context, membershipRepo domain.MembershipRepository, userRepo domain.UserRepository, siteID string) (*domain.User, error) {
	owner, err := membershipRepo.GetOwner(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return userRepo.GetByID(ctx, owner.UserID)
}

// checkOwnerFeature gates feature on the billing entitlement of the site's owner.
func checkOwnerFeature(ctx context.Context, billing domain.BillingOracle, membershipRepo domain.MembershipRepository, userRepo domain.UserRepository, siteID string, feature domain.Feature) error {
	owner, err := siteOwner(ctx, membershipRepo, userRepo, siteID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUpgradeRequired
		}
		return fmt.Errorf("get site owner: %w", err)
	}
	return billing.CheckFeatureAvailability(ctx, owner, feature)
}
