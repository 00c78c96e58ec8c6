package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"analyticsadmin/internal/domain"
	"analyticsadmin/internal/txn"
)

// Step names shared by ownership transfer and invitation acceptance.
const (
	stepMembership       = "membership"
	stepPreviousOwner    = "previous_owner"
	stepEndTrial         = "end_trial"
	stepOwnerMembership  = "owner_membership"
	stepLockedSites      = "locked_sites"
	stepInsertMembership = "insert_membership"
	stepDeleteInvitation = "delete_invitation"
	stepPreload          = "preload"
)

type membershipService struct {
	txManager      domain.TxManager
	membershipRepo domain.MembershipRepository
	invitationRepo domain.InvitationRepository
	userRepo       domain.UserRepository
	siteRepo       domain.SiteRepository
	billing        domain.BillingOracle
	siteLocker     domain.SiteLocker
	emailService   domain.EmailService
	publisher      domain.EventPublisher
	logger         *slog.Logger
	contextTimeout time.Duration
	now            func() time.Time
}

// NewMembershipService wires the ownership transfer and invitation acceptance flows.
func NewMembershipService(txManager domain.TxManager,
	membershipRepo domain.MembershipRepository,
	invitationRepo domain.InvitationRepository,
	userRepo domain.UserRepository,
	siteRepo domain.SiteRepository,
	billing domain.BillingOracle,
	siteLocker domain.SiteLocker,
	emailService domain.EmailService,
	publisher domain.EventPublisher,
	logger *slog.Logger,
	timeout time.Duration,
) domain.MembershipService {
	return &membershipService{
		txManager:      txManager,
		membershipRepo: membershipRepo,
		invitationRepo: invitationRepo,
		userRepo:       userRepo,
		siteRepo:       siteRepo,
		billing:        billing,
		siteLocker:     siteLocker,
		emailService:   emailService,
		publisher:      publisher,
		logger:         logger,
		contextTimeout: timeout,
		now:            time.Now,
	}
}

func (s *membershipService) TransferOwnership(ctx context.Context, siteID, newOwnerID string, opts domain.TransferOptions) (*domain.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	site, err := s.siteRepo.GetByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	newOwner, err := s.userRepo.GetByID(ctx, newOwnerID)
	if err != nil {
		return nil, err
	}

	results, err := s.transferSteps(site, newOwner, opts.Selfhost).
		Run(stepPreload, s.preload(site.ID, newOwner.ID, stepOwnerMembership)).
		Exec(ctx, s.txManager)
	if err != nil {
		return nil, err
	}

	s.afterTransfer(ctx, results)
	return txn.Get[*domain.Membership](results, stepPreload), nil
}

func (s *membershipService) AcceptInvitation(ctx context.Context, token, userID string, opts domain.AcceptOptions) (*domain.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	inv, err := s.invitationRepo.FindForUser(ctx, token, user)
	if err != nil {
		return nil, err
	}

	var multi *txn.Multi
	if inv.Role == domain.RoleOwner {
		multi = s.transferSteps(inv.Site, user, opts.Selfhost).
			Run(stepDeleteInvitation, s.deleteInvitation(inv)).
			Run(stepPreload, s.preload(inv.SiteID, user.ID, stepOwnerMembership))
	} else {
		multi = txn.New().
			Run(stepMembership, s.resolveMembership(inv.SiteID, user.ID, inv.Role)).
			Run(stepInsertMembership, s.insertMembership).
			Run(stepDeleteInvitation, s.deleteInvitation(inv)).
			Run(stepPreload, s.preload(inv.SiteID, user.ID, stepInsertMembership))
	}

	results, err := multi.Exec(ctx, s.txManager)
	if err != nil {
		return nil, err
	}

	membership := txn.Get[*domain.Membership](results, stepPreload)
	data := &domain.InvitationAcceptedEmailData{
		InviteeEmail: user.Email,
		SiteDomain:   inv.Site.Domain,
		Role:         inv.Role,
	}
	if inv.Inviter != nil {
		data.Email = inv.Inviter.Email
	}

	if inv.Role == domain.RoleOwner {
		s.afterTransfer(ctx, results)
		if err := s.emailService.SendOwnershipTransferAccepted(ctx, data); err != nil {
			s.logger.ErrorContext(ctx, "ownership transfer email failed", "site_id", inv.SiteID, "err", err)
		}
		return membership, nil
	}

	if err := s.emailService.SendInvitationAccepted(ctx, data); err != nil {
		s.logger.ErrorContext(ctx, "invitation accepted email failed", "site_id", inv.SiteID, "err", err)
	}
	s.publish(ctx, domain.EventInvitationAccepted, &domain.MembershipEvent{
		SiteID: inv.SiteID,
		UserID: user.ID,
		Role:   membership.Role,
	})
	return membership, nil
}

func (s *membershipService) UpdateRole(ctx context.Context, siteID, actorID, targetUserID string, role domain.Role) (*domain.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if !role.Valid() {
		return nil, domain.NewValidationError("role", domain.MsgInvalid)
	}

	var target *domain.Membership
	err := s.txManager.RunInTx(ctx, func(ctx context.Context) error {
		actor, err := s.membershipRepo.Get(ctx, siteID, actorID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrForbidden
			}
			return err
		}
		self := actorID == targetUserID
		if self {
			target = actor
		} else {
			target, err = s.membershipRepo.Get(ctx, siteID, targetUserID)
			if err != nil {
				return err
			}
			if target.Role == domain.RoleOwner {
				return domain.ErrForbidden
			}
		}
		if !domain.CanGrantRole(actor.Role, role, self) {
			return domain.ErrForbidden
		}
		return s.membershipRepo.SetRole(ctx, target, role)
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// transferSteps builds the shared ownership transfer: resolve the new owner's membership,
// demote the previous owner, end the new owner's trial, store the owner membership and
// re-evaluate site locks.
func (s *membershipService) transferSteps(site *domain.Site, newOwner *domain.User, selfhost bool) *txn.Multi {
	return txn.New().
		Run(stepMembership, s.resolveMembership(site.ID, newOwner.ID, domain.RoleOwner)).
		Run(stepPreviousOwner, s.demotePreviousOwner(site.ID, newOwner.ID)).
		Run(stepEndTrial, s.endTrial(newOwner, selfhost)).
		Run(stepOwnerMembership, s.storeOwnerMembership).
		Run(stepLockedSites, s.updateLockedSites(newOwner, selfhost))
}

// resolveMembership returns the existing (site, user) membership or a new one, with its role
// set to role in memory only.
func (s *membershipService) resolveMembership(siteID, userID string, role domain.Role) txn.StepFunc {
	return func(ctx context.Context, _ txn.Results) (any, error) {
		m, err := s.membershipRepo.Get(ctx, siteID, userID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			m = domain.NewMembership(siteID, userID, role, s.now())
		}
		m.Role = role
		return m, nil
	}
}

func (s *membershipService) demotePreviousOwner(siteID, newOwnerID string) txn.StepFunc {
	return func(ctx context.Context, _ txn.Results) (any, error) {
		owner, err := s.membershipRepo.GetOwner(ctx, siteID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				s.logger.WarnContext(ctx, "site has no owner", "site_id", siteID)
				return (*domain.Membership)(nil), nil
			}
			return nil, err
		}
		if owner.UserID == newOwnerID {
			return owner, nil
		}
		if err := s.membershipRepo.SetRole(ctx, owner, domain.RoleAdmin); err != nil {
			return nil, fmt.Errorf("demote previous owner: %w", err)
		}
		return owner, nil
	}
}

// endTrial moves the trial expiry of the new owner to yesterday unless they already pay.
// It returns the new owner as the later steps must see them.
func (s *membershipService) endTrial(newOwner *domain.User, selfhost bool) txn.StepFunc {
	return func(ctx context.Context, results txn.Results) (any, error) {
		if selfhost {
			return newOwner, nil
		}
		if prev := txn.Get[*domain.Membership](results, stepPreviousOwner); prev != nil && prev.UserID == newOwner.ID {
			return newOwner, nil
		}
		active, err := s.billing.HasActiveSubscription(ctx, newOwner)
		if err != nil {
			return nil, err
		}
		if active {
			return newOwner, nil
		}
		if newOwner.TrialExpiryDate != nil && !s.billing.IsOnTrial(newOwner) {
			return newOwner, nil
		}
		yesterday := domain.Date(s.now()).AddDate(0, 0, -1)
		if err := s.userRepo.UpdateTrialExpiry(ctx, newOwner.ID, &yesterday); err != nil {
			return nil, fmt.Errorf("end trial: %w", err)
		}
		updated := *newOwner
		updated.TrialExpiryDate = &yesterday
		return &updated, nil
	}
}

func (s *membershipService) storeOwnerMembership(ctx context.Context, results txn.Results) (any, error) {
	m := txn.Get[*domain.Membership](results, stepMembership)
	m.Role = domain.RoleOwner
	m.UpdatedAt = s.now()
	if err := s.membershipRepo.Upsert(ctx, m); err != nil {
		return nil, fmt.Errorf("store owner membership: %w", err)
	}
	return m, nil
}

func (s *membershipService) updateLockedSites(newOwner *domain.User, selfhost bool) txn.StepFunc {
	return func(ctx context.Context, results txn.Results) (any, error) {
		if selfhost {
			return domain.LockUnchanged, nil
		}
		user := txn.Get[*domain.User](results, stepEndTrial)
		if user == nil {
			user = newOwner
		}
		return s.siteLocker.UpdateSitesFor(ctx, user, false)
	}
}

// insertMembership stores the resolved membership unless one exists. An existing role is
// never overwritten.
func (s *membershipService) insertMembership(ctx context.Context, results txn.Results) (any, error) {
	m := txn.Get[*domain.Membership](results, stepMembership)
	stored, err := s.membershipRepo.InsertIfAbsent(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("insert membership: %w", err)
	}
	return stored, nil
}

func (s *membershipService) deleteInvitation(inv *domain.Invitation) txn.StepFunc {
	return func(ctx context.Context, _ txn.Results) (any, error) {
		return nil, s.invitationRepo.Delete(ctx, inv)
	}
}

// preload attaches the current site and user rows to the membership stored by from.
func (s *membershipService) preload(siteID, userID, from string) txn.StepFunc {
	return func(ctx context.Context, results txn.Results) (any, error) {
		m := txn.Get[*domain.Membership](results, from)
		site, err := s.siteRepo.GetByID(ctx, siteID)
		if err != nil {
			return nil, err
		}
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		m.Site = site
		m.User = user
		return m, nil
	}
}

// afterTransfer runs the post-commit side effects of an ownership transfer.
func (s *membershipService) afterTransfer(ctx context.Context, results txn.Results) {
	m := txn.Get[*domain.Membership](results, stepOwnerMembership)
	if txn.Get[domain.LockStateChange](results, stepLockedSites) == domain.LockedGracePeriodEndedNow {
		notifyDashboardLocked(ctx, s.siteRepo, s.emailService, s.logger, m.User)
	}
	event := &domain.MembershipEvent{SiteID: m.SiteID, UserID: m.UserID, Role: domain.RoleOwner}
	if prev := txn.Get[*domain.Membership](results, stepPreviousOwner); prev != nil {
		event.PreviousOwnerID = prev.UserID
	}
	s.publish(ctx, domain.EventOwnershipTransferred, event)
}

func (s *membershipService) publish(ctx context.Context, key string, event any) {
	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "publish event failed", "key", key, "err", err)
	}
}
