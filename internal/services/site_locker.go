package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"analyticsadmin/internal/domain"
)

type siteLocker struct {
	siteRepo     domain.SiteRepository
	userRepo     domain.UserRepository
	billing      domain.BillingOracle
	emailService domain.EmailService
	logger       *slog.Logger
	now          func() time.Time
}

// NewSiteLocker returns a SiteLocker that locks or unlocks every site a user owns based on
// the user's trial, subscription and grace period.
func NewSiteLocker(siteRepo domain.SiteRepository, userRepo domain.UserRepository, billing domain.BillingOracle, emailService domain.EmailService, logger *slog.Logger) domain.SiteLocker {
	return &siteLocker{
		siteRepo:     siteRepo,
		userRepo:     userRepo,
		billing:      billing,
		emailService: emailService,
		logger:       logger,
		now:          time.Now,
	}
}

func (l *siteLocker) UpdateSitesFor(ctx context.Context, user *domain.User, sendEmail bool) (domain.LockStateChange, error) {
	active, err := l.billing.HasActiveSubscription(ctx, user)
	if err != nil {
		return domain.LockUnchanged, err
	}
	today := domain.Date(l.now())

	switch {
	case user.TrialExpiryDate == nil && !active:
		return l.setLocked(ctx, user, false)
	case user.TrialExpiryDate != nil && domain.Date(*user.TrialExpiryDate).Before(today) && !active:
		return l.setLocked(ctx, user, true)
	case user.GracePeriod.Expired(today):
		if _, err := l.setLocked(ctx, user, true); err != nil {
			return domain.LockUnchanged, err
		}
		if user.GracePeriod.IsOver {
			return domain.Locked, nil
		}
		ended := *user.GracePeriod
		ended.IsOver = true
		if err := l.userRepo.UpdateGracePeriod(ctx, user.ID, &ended); err != nil {
			return domain.LockUnchanged, fmt.Errorf("end grace period: %w", err)
		}
		if sendEmail {
			notifyDashboardLocked(ctx, l.siteRepo, l.emailService, l.logger, user)
		}
		return domain.LockedGracePeriodEndedNow, nil
	default:
		return l.setLocked(ctx, user, false)
	}
}

func (l *siteLocker) setLocked(ctx context.Context, user *domain.User, locked bool) (domain.LockStateChange, error) {
	if err := l.siteRepo.SetLockedForOwner(ctx, user.ID, locked); err != nil {
		return domain.LockUnchanged, fmt.Errorf("set site lock: %w", err)
	}
	if locked {
		return domain.Locked, nil
	}
	return domain.Unlocked, nil
}

// notifyDashboardLocked emails the owner about locked dashboards. Failures are only logged.
func notifyDashboardLocked(ctx context.Context, siteRepo domain.SiteRepository, emailService domain.EmailService, logger *slog.Logger, user *domain.User) {
	data := &domain.DashboardLockedEmailData{Email: user.Email, Name: user.Name}
	if sites, err := siteRepo.ListOwnedBy(ctx, user.ID); err == nil {
		data.SiteCount = len(sites)
		if len(sites) > 0 {
			data.SiteDomain = sites[0].Domain
		}
	}
	if err := emailService.SendDashboardLocked(ctx, data); err != nil {
		logger.ErrorContext(ctx, "dashboard locked email failed", "user_id", user.ID, "err", err)
	}
}
