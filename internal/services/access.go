package services

import (
	"context"
	"errors"
	"slices"
	"time"

	"analyticsadmin/internal/domain"
)

type siteAccess struct {
	membershipRepo domain.MembershipRepository
	contextTimeout time.Duration
}

func NewSiteAccess(membershipRepo domain.MembershipRepository, timeout time.Duration) domain.SiteAccess {
	return &siteAccess{membershipRepo: membershipRepo, contextTimeout: timeout}
}

// Authorize hides whether the site exists: non-members get ErrForbidden either way.
func (s *siteAccess) Authorize(ctx context.Context, siteID, userID string, roles ...domain.Role) (*domain.Membership, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	m, err := s.membershipRepo.Get(ctx, siteID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrForbidden
		}
		return nil, err
	}
	if len(roles) > 0 && !slices.Contains(roles, m.Role) {
		return nil, domain.ErrForbidden
	}
	return m, nil
}
