package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"analyticsadmin/internal/domain"
	"analyticsadmin/internal/txn"
)

const (
	stepGoal          = "goal"
	stepTouchSite     = "touch_site"
	stepGoalFunnels   = "goal_funnels"
	stepDeleteFunnels = "delete_funnels"
	stepDeleteGoal    = "delete_goal"
)

type goalService struct {
	txManager      domain.TxManager
	goalRepo       domain.GoalRepository
	funnelRepo     domain.FunnelRepository
	siteRepo       domain.SiteRepository
	membershipRepo domain.MembershipRepository
	userRepo       domain.UserRepository
	billing        domain.BillingOracle
	publisher      domain.EventPublisher
	validate       *validator.Validate
	logger         *slog.Logger
	contextTimeout time.Duration
	now            func() time.Time
}

// NewGoalService returns the GoalService that keeps goals, revenue gating and funnels consistent.
func NewGoalService(txManager domain.TxManager,
	goalRepo domain.GoalRepository,
	funnelRepo domain.FunnelRepository,
	siteRepo domain.SiteRepository,
	membershipRepo domain.MembershipRepository,
	userRepo domain.UserRepository,
	billing domain.BillingOracle,
	publisher domain.EventPublisher,
	logger *slog.Logger,
	timeout time.Duration,
) domain.GoalService {
	return &goalService{
		txManager:      txManager,
		goalRepo:       goalRepo,
		funnelRepo:     funnelRepo,
		siteRepo:       siteRepo,
		membershipRepo: membershipRepo,
		userRepo:       userRepo,
		billing:        billing,
		publisher:      publisher,
		validate:       newValidator(),
		logger:         logger,
		contextTimeout: timeout,
		now:            time.Now,
	}
}

func (s *goalService) CreateGoal(ctx context.Context, siteID string, params domain.GoalParams, opts domain.GoalOptions) (*domain.Goal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	params = normalizeGoalParams(params)
	if err := validateGoalParams(s.validate, params); err != nil {
		return nil, err
	}

	site, err := s.siteRepo.GetByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if params.Currency != "" {
		if err := checkOwnerFeature(ctx, s.billing, s.membershipRepo, s.userRepo, site.ID, domain.FeatureRevenueGoals); err != nil {
			return nil, err
		}
	}

	now := s.now()
	goal := &domain.Goal{
		SiteID:    site.ID,
		EventName: params.EventName,
		PagePath:  params.PagePath,
		Currency:  params.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = txn.New().
		Run(stepGoal, func(ctx context.Context, _ txn.Results) (any, error) {
			if !opts.Upsert {
				return true, s.goalRepo.Create(ctx, goal)
			}
			inserted, err := s.goalRepo.InsertIfAbsent(ctx, goal)
			if err != nil || inserted {
				return inserted, err
			}
			existing, err := s.goalRepo.GetByNaturalKey(ctx, goal.SiteID, goal.EventName, goal.PagePath)
			if err != nil {
				return nil, err
			}
			if existing.Currency != goal.Currency {
				return nil, domain.NewValidationError("currency", domain.MsgAlreadyTaken)
			}
			*goal = *existing
			return false, nil
		}).
		Run(stepTouchSite, func(ctx context.Context, results txn.Results) (any, error) {
			if !txn.Get[bool](results, stepGoal) || !goal.IsRevenue() {
				return nil, nil
			}
			return nil, s.siteRepo.Touch(ctx, goal.SiteID, now)
		}).
		Exec(ctx, s.txManager)
	if err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *goalService) GoalsForSite(ctx context.Context, siteID string, opts domain.ListGoalsOptions) ([]*domain.Goal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	goals, err := s.goalRepo.ListBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	if !opts.PreloadFunnels || len(goals) == 0 {
		return goals, nil
	}

	funnels, err := s.funnelRepo.ListBySite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("list funnels: %w", err)
	}
	byGoal := make(map[int64][]*domain.Funnel)
	for _, f := range funnels {
		for _, step := range f.Steps {
			byGoal[step.GoalID] = append(byGoal[step.GoalID], f)
		}
	}
	for _, g := range goals {
		g.Funnels = byGoal[g.ID]
	}
	return goals, nil
}

// DeleteGoal removes the goal and every funnel that would drop below the minimum step count
// without it. Other funnels lose the goal's step through the foreign key cascade.
func (s *goalService) DeleteGoal(ctx context.Context, goalID int64, siteID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	results, err := txn.New().
		Run(stepGoal, func(ctx context.Context, _ txn.Results) (any, error) {
			return s.goalRepo.GetForSite(ctx, goalID, siteID)
		}).
		Run(stepGoalFunnels, func(ctx context.Context, results txn.Results) (any, error) {
			funnels, err := s.funnelRepo.ListByGoal(ctx, goalID)
			if err != nil {
				return nil, err
			}
			txn.Get[*domain.Goal](results, stepGoal).Funnels = funnels
			return funnels, nil
		}).
		Run(stepDeleteFunnels, func(ctx context.Context, results txn.Results) (any, error) {
			deleted := make([]int64, 0)
			for _, f := range txn.Get[[]*domain.Funnel](results, stepGoalFunnels) {
				if !f.AtMinimum() {
					continue
				}
				if err := s.funnelRepo.Delete(ctx, f.ID); err != nil {
					return nil, fmt.Errorf("delete funnel %d: %w", f.ID, err)
				}
				deleted = append(deleted, f.ID)
			}
			return deleted, nil
		}).
		Run(stepDeleteGoal, func(ctx context.Context, _ txn.Results) (any, error) {
			return nil, s.goalRepo.Delete(ctx, goalID)
		}).
		Exec(ctx, s.txManager)
	if err != nil {
		return err
	}

	deleted := txn.Get[[]int64](results, stepDeleteFunnels)
	if len(deleted) > 0 {
		s.logger.InfoContext(ctx, "deleted funnels with goal", "goal_id", goalID, "funnels", deleted)
	}
	event := &domain.GoalEvent{SiteID: siteID, GoalID: goalID, DeletedFunnels: deleted}
	if err := s.publisher.Publish(ctx, domain.EventGoalDeleted, event); err != nil {
		s.logger.ErrorContext(ctx, "publish event failed", "key", domain.EventGoalDeleted, "err", err)
	}
	return nil
}

func normalizeGoalParams(p domain.GoalParams) domain.GoalParams {
	p.EventName = strings.TrimSpace(p.EventName)
	p.PagePath = strings.TrimSpace(p.PagePath)
	if p.PagePath != "" && !strings.HasPrefix(p.PagePath, "/") {
		p.PagePath = "/" + p.PagePath
	}
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	return p
}

func validateGoalParams(v *validator.Validate, p domain.GoalParams) error {
	verr := &domain.ValidationError{}
	if err := v.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			verr.Add(fe.Field(), fieldMessage(fe))
		}
	}
	switch {
	case p.EventName == "" && p.PagePath == "":
		verr.Add("event_name", "this field is required and cannot be blank")
	case p.EventName != "" && p.PagePath != "":
		verr.Add("event_name", "cannot co-exist with page_path")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return domain.MsgRequired
	case "max":
		return fmt.Sprintf("should be at most %s character(s)", fe.Param())
	case "min":
		return fmt.Sprintf("should be at least %s character(s)", fe.Param())
	default:
		return domain.MsgInvalid
	}
}
