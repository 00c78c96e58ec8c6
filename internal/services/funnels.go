package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"analyticsadmin/internal/domain"
	"analyticsadmin/internal/txn"
)

const funnelNameMaxLength = 255

type funnelService struct {
	txManager      domain.TxManager
	funnelRepo     domain.FunnelRepository
	goalRepo       domain.GoalRepository
	siteRepo       domain.SiteRepository
	membershipRepo domain.MembershipRepository
	userRepo       domain.UserRepository
	billing        domain.BillingOracle
	contextTimeout time.Duration
	now            func() time.Time
}

func NewFunnelService(txManager domain.TxManager,
	funnelRepo domain.FunnelRepository,
	goalRepo domain.GoalRepository,
	siteRepo domain.SiteRepository,
	membershipRepo domain.MembershipRepository,
	userRepo domain.UserRepository,
	billing domain.BillingOracle,
	timeout time.Duration,
) domain.FunnelService {
	return &funnelService{
		txManager:      txManager,
		funnelRepo:     funnelRepo,
		goalRepo:       goalRepo,
		siteRepo:       siteRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		billing:        billing,
		contextTimeout: timeout,
		now:            time.Now,
	}
}

func (s *funnelService) CreateFunnel(ctx context.Context, siteID, name string, goalIDs []int64) (*domain.Funnel, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	name = strings.TrimSpace(name)
	if err := validateFunnel(name, goalIDs); err != nil {
		return nil, err
	}

	site, err := s.siteRepo.GetByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if err := checkOwnerFeature(ctx, s.billing, s.membershipRepo, s.userRepo, site.ID, domain.FeatureFunnels); err != nil {
		return nil, err
	}

	now := s.now()
	funnel := &domain.Funnel{SiteID: site.ID, Name: name, CreatedAt: now, UpdatedAt: now}

	_, err = txn.New().
		Run("steps", func(ctx context.Context, _ txn.Results) (any, error) {
			steps := make([]*domain.FunnelStep, 0, len(goalIDs))
			for i, id := range goalIDs {
				goal, err := s.goalRepo.GetForSite(ctx, id, site.ID)
				if errors.Is(err, domain.ErrNotFound) {
					return nil, domain.NewValidationError("steps", fmt.Sprintf("goal %d does not belong to the site", id))
				}
				if err != nil {
					return nil, err
				}
				steps = append(steps, &domain.FunnelStep{GoalID: goal.ID, Position: i + 1, Goal: goal})
			}
			funnel.Steps = steps
			return steps, nil
		}).
		Run("funnel", func(ctx context.Context, _ txn.Results) (any, error) {
			return funnel, s.funnelRepo.Create(ctx, funnel)
		}).
		Exec(ctx, s.txManager)
	if err != nil {
		return nil, err
	}
	return funnel, nil
}

func (s *funnelService) GetFunnel(ctx context.Context, funnelID int64, siteID string) (*domain.Funnel, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	return s.funnelRepo.GetForSite(ctx, funnelID, siteID)
}

func (s *funnelService) ListFunnels(ctx context.Context, siteID string) ([]*domain.Funnel, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	return s.funnelRepo.ListBySite(ctx, siteID)
}

func (s *funnelService) DeleteFunnel(ctx context.Context, funnelID int64, siteID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	return s.txManager.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.funnelRepo.GetForSite(ctx, funnelID, siteID); err != nil {
			return err
		}
		return s.funnelRepo.Delete(ctx, funnelID)
	})
}

func validateFunnel(name string, goalIDs []int64) error {
	verr := &domain.ValidationError{}
	switch {
	case name == "":
		verr.Add("name", domain.MsgRequired)
	case len([]rune(name)) > funnelNameMaxLength:
		verr.Add("name", fmt.Sprintf("should be at most %d character(s)", funnelNameMaxLength))
	}
	switch {
	case len(goalIDs) < domain.FunnelMinSteps:
		verr.Add("steps", fmt.Sprintf("should have at least %d item(s)", domain.FunnelMinSteps))
	case len(goalIDs) > domain.FunnelMaxSteps:
		verr.Add("steps", fmt.Sprintf("should have at most %d item(s)", domain.FunnelMaxSteps))
	}
	seen := make(map[int64]bool, len(goalIDs))
	for _, id := range goalIDs {
		if seen[id] {
			verr.Add("steps", "goals must be unique within a funnel")
		}
		seen[id] = true
	}
	if verr.Empty() {
		return nil
	}
	return verr
}
