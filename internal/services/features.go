package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"analyticsadmin/internal/domain"
)

// featureModule is the capability every gated feature exposes.
type featureModule interface {
	Toggle(ctx context.Context, site *domain.Site, enabled bool) error
	CheckAvailability(ctx context.Context, user *domain.User) error
}

// columnFeature is a feature backed by a per-site toggle column.
type columnFeature struct {
	feature  domain.Feature
	siteRepo domain.SiteRepository
	billing  domain.BillingOracle
}

func (f *columnFeature) Toggle(ctx context.Context, site *domain.Site, enabled bool) error {
	return f.siteRepo.SetFeatureEnabled(ctx, site.ID, f.feature, enabled)
}

func (f *columnFeature) CheckAvailability(ctx context.Context, user *domain.User) error {
	return f.billing.CheckFeatureAvailability(ctx, user, f.feature)
}

// revenueGoalsFeature rides on goals and has no toggle of its own.
type revenueGoalsFeature struct {
	billing domain.BillingOracle
}

func (f *revenueGoalsFeature) Toggle(context.Context, *domain.Site, bool) error {
	return fmt.Errorf("revenue goals cannot be toggled: %w", domain.ErrInvalidInput)
}

func (f *revenueGoalsFeature) CheckAvailability(ctx context.Context, user *domain.User) error {
	return f.billing.CheckFeatureAvailability(ctx, user, domain.FeatureRevenueGoals)
}

func featureModules(siteRepo domain.SiteRepository, billing domain.BillingOracle) map[domain.Feature]featureModule {
	return map[domain.Feature]featureModule{
		domain.FeatureFunnels:      &columnFeature{feature: domain.FeatureFunnels, siteRepo: siteRepo, billing: billing},
		domain.FeatureProps:        &columnFeature{feature: domain.FeatureProps, siteRepo: siteRepo, billing: billing},
		domain.FeatureGoals:        &columnFeature{feature: domain.FeatureGoals, siteRepo: siteRepo, billing: billing},
		domain.FeatureRevenueGoals: &revenueGoalsFeature{billing: billing},
	}
}

type featureService struct {
	txManager      domain.TxManager
	siteRepo       domain.SiteRepository
	membershipRepo domain.MembershipRepository
	userRepo       domain.UserRepository
	modules        map[domain.Feature]featureModule
	contextTimeout time.Duration
}

// NewFeatureService returns a FeatureService resolving feature keys through a fixed module table.
func NewFeatureService(txManager domain.TxManager, siteRepo domain.SiteRepository, membershipRepo domain.MembershipRepository, userRepo domain.UserRepository, billing domain.BillingOracle, timeout time.Duration) domain.FeatureService {
	return &featureService{
		txManager:      txManager,
		siteRepo:       siteRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		modules:        featureModules(siteRepo, billing),
		contextTimeout: timeout,
	}
}

// SetFeature enables or disables a feature on a site. Enabling requires the site owner to
// have access to the feature; disabling is always allowed.
func (s *featureService) SetFeature(ctx context.Context, siteID, key string, enabled bool) (*domain.Site, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	module, ok := s.modules[domain.Feature(key)]
	if !ok {
		return nil, fmt.Errorf("unknown feature %q: %w", key, domain.ErrInvalidInput)
	}

	var site *domain.Site
	err := s.txManager.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		site, err = s.siteRepo.GetByID(ctx, siteID)
		if err != nil {
			return err
		}
		if enabled {
			owner, err := siteOwner(ctx, s.membershipRepo, s.userRepo, site.ID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if err := module.CheckAvailability(ctx, owner); err != nil {
				return err
			}
		}
		if err := module.Toggle(ctx, site, enabled); err != nil {
			return err
		}
		site, err = s.siteRepo.GetByID(ctx, siteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return site, nil
}
