package services

import (
	"context"
	"testing"

	"analyticsadmin/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFunnel(t *testing.T) {
	env := newTestEnv(false)
	seedSite(env)
	env.db.addSite("site-2", "other.com")
	a := env.db.addGoal("site-1", "Visit")
	b := env.db.addGoal("site-1", "Signup")
	foreign := env.db.addGoal("site-2", "Elsewhere")
	ctx := context.Background()

	f, err := env.funnels.CreateFunnel(ctx, "site-1", " Onboarding ", []int64{a, b})
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", f.Name)
	require.Len(t, f.Steps, 2)
	assert.Equal(t, a, f.Steps[0].GoalID)
	assert.Equal(t, 1, f.Steps[0].Position)
	assert.Equal(t, b, f.Steps[1].GoalID)
	assert.Equal(t, 2, env.db.stepCount(f.ID))

	_, err = env.funnels.CreateFunnel(ctx, "site-1", "Onboarding", []int64{b, a})
	ve, ok := domain.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, domain.MsgAlreadyTaken, ve.Fields["name"])

	_, err = env.funnels.CreateFunnel(ctx, "site-1", "Foreign", []int64{a, foreign})
	ve, ok = domain.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Contains(t, ve.Fields["steps"], "does not belong")
	assert.Len(t, env.db.funnels, 1)
}

func TestCreateFunnel_Validation(t *testing.T) {
	tests := []struct {
		name      string
		funnel    string
		goals     []int64
		wantField string
		wantMsg   string
	}{
		{name: "blank name", funnel: " ", goals: []int64{1, 2}, wantField: "name", wantMsg: domain.MsgRequired},
		{name: "one step", funnel: "F", goals: []int64{1}, wantField: "steps", wantMsg: "should have at least 2 item(s)"},
		{name: "nine steps", funnel: "F", goals: []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, wantField: "steps", wantMsg: "should have at most 8 item(s)"},
		{name: "duplicate goal", funnel: "F", goals: []int64{1, 1}, wantField: "steps", wantMsg: "goals must be unique within a funnel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(false)
			seedSite(env)

			_, err := env.funnels.CreateFunnel(context.Background(), "site-1", tt.funnel, tt.goals)
			ve, ok := domain.AsValidationError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.wantMsg, ve.Fields[tt.wantField])
		})
	}
}

func TestCreateFunnel_FeatureGate(t *testing.T) {
	env := newTestEnv(false)
	seedSite(env)
	env.db.addSubscription("alice", domain.SubscriptionActive, domain.FeatureProps)
	a := env.db.addGoal("site-1", "Visit")
	b := env.db.addGoal("site-1", "Signup")

	_, err := env.funnels.CreateFunnel(context.Background(), "site-1", "Onboarding", []int64{a, b})
	require.ErrorIs(t, err, domain.ErrUpgradeRequired)
	assert.Empty(t, env.db.funnels)
}

func TestFunnelLifecycle(t *testing.T) {
	env := newTestEnv(false)
	seedSite(env)
	a := env.db.addGoal("site-1", "Visit")
	b := env.db.addGoal("site-1", "Signup")
	id := env.db.addFunnel("site-1", "Onboarding", a, b)
	ctx := context.Background()

	f, err := env.funnels.GetFunnel(ctx, id, "site-1")
	require.NoError(t, err)
	assert.Len(t, f.Steps, 2)

	list, err := env.funnels.ListFunnels(ctx, "site-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.ErrorIs(t, env.funnels.DeleteFunnel(ctx, id, "site-2"), domain.ErrFunnelNotFound)
	require.NoError(t, env.funnels.DeleteFunnel(ctx, id, "site-1"))
	assert.Empty(t, env.db.funnels)
	assert.Len(t, env.db.goals, 2)

	_, err = env.funnels.GetFunnel(ctx, id, "site-1")
	require.ErrorIs(t, err, domain.ErrFunnelNotFound)
}
