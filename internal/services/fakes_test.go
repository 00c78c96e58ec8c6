package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"time"

	"analyticsadmin/internal/domain"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func datePtr(t time.Time) *time.Time {
	d := domain.Date(t)
	return &d
}

// tables holds the rows of the in-memory database. Values, not pointers, so a snapshot is a
// shallow copy of each map.
type tables struct {
	users         map[string]domain.User
	sites         map[string]domain.Site
	memberships   map[string]domain.Membership
	invitations   map[string]domain.Invitation
	subscriptions map[string]domain.Subscription
	goals         map[int64]domain.Goal
	funnels       map[int64]domain.Funnel
	steps         map[int64]domain.FunnelStep
	seq           int64
}

func (t tables) clone() tables {
	return tables{
		users:         maps.Clone(t.users),
		sites:         maps.Clone(t.sites),
		memberships:   maps.Clone(t.memberships),
		invitations:   maps.Clone(t.invitations),
		subscriptions: maps.Clone(t.subscriptions),
		goals:         maps.Clone(t.goals),
		funnels:       maps.Clone(t.funnels),
		steps:         maps.Clone(t.steps),
		seq:           t.seq,
	}
}

// memDB is an in-memory store shared by the fake repositories. RunInTx restores the tables on
// error, so tests can assert all-or-nothing behaviour.
type memDB struct {
	tables
	fail      map[string]error // keyed by "repo.Method"
	commits   int
	rollbacks int
}

func newMemDB() *memDB {
	return &memDB{
		tables: tables{
			users:         make(map[string]domain.User),
			sites:         make(map[string]domain.Site),
			memberships:   make(map[string]domain.Membership),
			invitations:   make(map[string]domain.Invitation),
			subscriptions: make(map[string]domain.Subscription),
			goals:         make(map[int64]domain.Goal),
			funnels:       make(map[int64]domain.Funnel),
			steps:         make(map[int64]domain.FunnelStep),
		},
		fail: make(map[string]error),
	}
}

func (db *memDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := db.tables.clone()
	if err := fn(ctx); err != nil {
		db.tables = saved
		db.rollbacks++
		return err
	}
	db.commits++
	return nil
}

func (db *memDB) failure(op string) error {
	return db.fail[op]
}

func (db *memDB) nextID() int64 {
	db.seq++
	return db.seq
}

func membershipKey(siteID, userID string) string {
	return siteID + "/" + userID
}

// Seeding helpers.

func (db *memDB) addUser(u domain.User) *domain.User {
	db.users[u.ID] = u
	return &u
}

func (db *memDB) addSite(id, dom string) *domain.Site {
	s := domain.Site{ID: id, Domain: dom, CreatedAt: testNow.Add(-time.Hour), UpdatedAt: testNow.Add(-time.Hour)}
	db.sites[id] = s
	return &s
}

func (db *memDB) addMember(siteID, userID string, role domain.Role) {
	db.memberships[membershipKey(siteID, userID)] = domain.Membership{
		ID:     fmt.Sprintf("m-%d", db.nextID()),
		SiteID: siteID,
		UserID: userID,
		Role:   role,
	}
}

func (db *memDB) addSubscription(userID string, status domain.SubscriptionStatus, features ...domain.Feature) {
	db.subscriptions[userID] = domain.Subscription{ID: "sub-" + userID, UserID: userID, Status: status, Features: features}
}

func (db *memDB) addGoal(siteID, eventName string) int64 {
	id := db.nextID()
	db.goals[id] = domain.Goal{ID: id, SiteID: siteID, EventName: eventName}
	return id
}

func (db *memDB) addFunnel(siteID, name string, goalIDs ...int64) int64 {
	id := db.nextID()
	db.funnels[id] = domain.Funnel{ID: id, SiteID: siteID, Name: name}
	for i, g := range goalIDs {
		sid := db.nextID()
		db.steps[sid] = domain.FunnelStep{ID: sid, FunnelID: id, GoalID: g, Position: i + 1}
	}
	return id
}

func (db *memDB) owners(siteID string) []string {
	var out []string
	for _, m := range db.memberships {
		if m.SiteID == siteID && m.Role == domain.RoleOwner {
			out = append(out, m.UserID)
		}
	}
	return out
}

func (db *memDB) role(siteID, userID string) domain.Role {
	return db.memberships[membershipKey(siteID, userID)].Role
}

func (db *memDB) stepCount(funnelID int64) int {
	n := 0
	for _, s := range db.steps {
		if s.FunnelID == funnelID {
			n++
		}
	}
	return n
}

// Users.

type fakeUserRepo struct{ *memDB }

func (r fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r fakeUserRepo) UpdateTrialExpiry(ctx context.Context, userID string, date *time.Time) error {
	if err := r.failure("users.UpdateTrialExpiry"); err != nil {
		return err
	}
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.TrialExpiryDate = date
	r.users[userID] = u
	return nil
}

func (r fakeUserRepo) UpdateGracePeriod(ctx context.Context, userID string, gp *domain.GracePeriod) error {
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.GracePeriod = gp
	r.users[userID] = u
	return nil
}

// Sites.

type fakeSiteRepo struct{ *memDB }

func (r fakeSiteRepo) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	s, ok := r.sites[id]
	if !ok {
		return nil, domain.ErrSiteNotFound
	}
	return &s, nil
}

func (r fakeSiteRepo) ListOwnedBy(ctx context.Context, userID string) ([]*domain.Site, error) {
	out := make([]*domain.Site, 0)
	for _, m := range r.memberships {
		if m.UserID == userID && m.Role == domain.RoleOwner {
			s := r.sites[m.SiteID]
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeSiteRepo) SetLockedForOwner(ctx context.Context, userID string, locked bool) error {
	if err := r.failure("sites.SetLockedForOwner"); err != nil {
		return err
	}
	for _, m := range r.memberships {
		if m.UserID == userID && m.Role == domain.RoleOwner {
			s := r.sites[m.SiteID]
			s.Locked = locked
			r.sites[m.SiteID] = s
		}
	}
	return nil
}

func (r fakeSiteRepo) Touch(ctx context.Context, siteID string, at time.Time) error {
	s, ok := r.sites[siteID]
	if !ok {
		return domain.ErrSiteNotFound
	}
	next := s.UpdatedAt.Add(time.Microsecond)
	if at.After(next) {
		next = at
	}
	s.UpdatedAt = next
	r.sites[siteID] = s
	return nil
}

func (r fakeSiteRepo) SetFeatureEnabled(ctx context.Context, siteID string, feature domain.Feature, enabled bool) error {
	s, ok := r.sites[siteID]
	if !ok {
		return domain.ErrSiteNotFound
	}
	switch feature {
	case domain.FeatureGoals:
		s.ConversionsEnabled = enabled
	case domain.FeatureFunnels:
		s.FunnelsEnabled = enabled
	case domain.FeatureProps:
		s.PropsEnabled = enabled
	default:
		return domain.ErrInvalidInput
	}
	r.sites[siteID] = s
	return nil
}

// Memberships.

type fakeMembershipRepo struct{ *memDB }

func (r fakeMembershipRepo) Get(ctx context.Context, siteID, userID string) (*domain.Membership, error) {
	if err := r.failure("memberships.Get"); err != nil {
		return nil, err
	}
	m, ok := r.memberships[membershipKey(siteID, userID)]
	if !ok {
		return nil, domain.ErrMembershipNotFound
	}
	return &m, nil
}

func (r fakeMembershipRepo) GetOwner(ctx context.Context, siteID string) (*domain.Membership, error) {
	for _, m := range r.memberships {
		if m.SiteID == siteID && m.Role == domain.RoleOwner {
			return &m, nil
		}
	}
	return nil, domain.ErrMembershipNotFound
}

func (r fakeMembershipRepo) ListBySite(ctx context.Context, siteID string) ([]*domain.Membership, error) {
	out := make([]*domain.Membership, 0)
	for _, m := range r.memberships {
		if m.SiteID == siteID {
			out = append(out, &m)
		}
	}
	return out, nil
}

func (r fakeMembershipRepo) Create(ctx context.Context, m *domain.Membership) error {
	key := membershipKey(m.SiteID, m.UserID)
	if _, ok := r.memberships[key]; ok {
		return domain.ErrAlreadyMember
	}
	if err := r.checkOwner(m); err != nil {
		return err
	}
	m.ID = fmt.Sprintf("m-%d", r.nextID())
	r.memberships[key] = *m
	return nil
}

func (r fakeMembershipRepo) SetRole(ctx context.Context, m *domain.Membership, role domain.Role) error {
	if err := r.failure("memberships.SetRole"); err != nil {
		return err
	}
	key := membershipKey(m.SiteID, m.UserID)
	stored, ok := r.memberships[key]
	if !ok {
		return domain.ErrMembershipNotFound
	}
	stored.Role = role
	if err := r.checkOwner(&stored); err != nil {
		return err
	}
	r.memberships[key] = stored
	m.Role = role
	return nil
}

func (r fakeMembershipRepo) Upsert(ctx context.Context, m *domain.Membership) error {
	if err := r.failure("memberships.Upsert"); err != nil {
		return err
	}
	if err := r.checkOwner(m); err != nil {
		return err
	}
	key := membershipKey(m.SiteID, m.UserID)
	if stored, ok := r.memberships[key]; ok {
		m.ID = stored.ID
		m.CreatedAt = stored.CreatedAt
	} else {
		m.ID = fmt.Sprintf("m-%d", r.nextID())
	}
	r.memberships[key] = *m
	return nil
}

func (r fakeMembershipRepo) InsertIfAbsent(ctx context.Context, m *domain.Membership) (*domain.Membership, error) {
	key := membershipKey(m.SiteID, m.UserID)
	if stored, ok := r.memberships[key]; ok {
		return &stored, nil
	}
	if err := r.Create(ctx, m); err != nil {
		return nil, err
	}
	stored := r.memberships[key]
	return &stored, nil
}

// checkOwner mirrors the partial unique index allowing one owner per site.
func (r fakeMembershipRepo) checkOwner(m *domain.Membership) error {
	if m.Role != domain.RoleOwner {
		return nil
	}
	for _, other := range r.memberships {
		if other.SiteID == m.SiteID && other.UserID != m.UserID && other.Role == domain.RoleOwner {
			return domain.ErrOwnerExists
		}
	}
	return nil
}

// Invitations.

type fakeInvitationRepo struct{ *memDB }

func (r fakeInvitationRepo) Create(ctx context.Context, inv *domain.Invitation) error {
	inv.ID = fmt.Sprintf("inv-%d", r.nextID())
	r.invitations[inv.Token] = *inv
	return nil
}

func (r fakeInvitationRepo) FindForUser(ctx context.Context, token string, user *domain.User) (*domain.Invitation, error) {
	inv, ok := r.invitations[token]
	if !ok || !strings.EqualFold(inv.Email, user.Email) {
		return nil, domain.ErrInvitationNotFound
	}
	site := r.sites[inv.SiteID]
	inviter := r.users[inv.InviterID]
	inv.Site = &site
	inv.Inviter = &inviter
	return &inv, nil
}

func (r fakeInvitationRepo) Delete(ctx context.Context, inv *domain.Invitation) error {
	if _, ok := r.invitations[inv.Token]; !ok {
		return domain.ErrInvitationNotFound
	}
	delete(r.invitations, inv.Token)
	return nil
}

// Subscriptions.

type fakeSubscriptionRepo struct{ *memDB }

func (r fakeSubscriptionRepo) GetLatestForUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	s, ok := r.subscriptions[userID]
	if !ok {
		return nil, fmt.Errorf("subscription %w", domain.ErrNotFound)
	}
	return &s, nil
}

// Goals.

type fakeGoalRepo struct{ *memDB }

func (r fakeGoalRepo) conflict(g *domain.Goal) (domain.Goal, string, bool) {
	for _, other := range r.goals {
		if other.SiteID != g.SiteID {
			continue
		}
		if g.EventName != "" && other.EventName == g.EventName {
			return other, "event_name", true
		}
		if g.PagePath != "" && other.PagePath == g.PagePath {
			return other, "page_path", true
		}
	}
	return domain.Goal{}, "", false
}

func (r fakeGoalRepo) Create(ctx context.Context, g *domain.Goal) error {
	if _, field, ok := r.conflict(g); ok {
		return domain.NewValidationError(field, domain.MsgAlreadyTaken)
	}
	g.ID = r.nextID()
	r.goals[g.ID] = *g
	return nil
}

func (r fakeGoalRepo) InsertIfAbsent(ctx context.Context, g *domain.Goal) (bool, error) {
	if _, _, ok := r.conflict(g); ok {
		return false, nil
	}
	return true, r.Create(ctx, g)
}

func (r fakeGoalRepo) GetByNaturalKey(ctx context.Context, siteID, eventName, pagePath string) (*domain.Goal, error) {
	if g, _, ok := r.conflict(&domain.Goal{SiteID: siteID, EventName: eventName, PagePath: pagePath}); ok {
		return &g, nil
	}
	return nil, domain.ErrGoalNotFound
}

func (r fakeGoalRepo) GetForSite(ctx context.Context, goalID int64, siteID string) (*domain.Goal, error) {
	g, ok := r.goals[goalID]
	if !ok || g.SiteID != siteID {
		return nil, domain.ErrGoalNotFound
	}
	return &g, nil
}

func (r fakeGoalRepo) ListBySite(ctx context.Context, siteID string) ([]*domain.Goal, error) {
	out := make([]*domain.Goal, 0)
	for _, g := range r.goals {
		if g.SiteID == siteID {
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Delete removes the goal and, like the foreign key cascade, every step referencing it.
func (r fakeGoalRepo) Delete(ctx context.Context, goalID int64) error {
	if err := r.failure("goals.Delete"); err != nil {
		return err
	}
	if _, ok := r.goals[goalID]; !ok {
		return domain.ErrGoalNotFound
	}
	delete(r.goals, goalID)
	for id, s := range r.steps {
		if s.GoalID == goalID {
			delete(r.steps, id)
		}
	}
	return nil
}

// Funnels.

type fakeFunnelRepo struct{ *memDB }

func (r fakeFunnelRepo) load(f domain.Funnel) *domain.Funnel {
	f.Steps = make([]*domain.FunnelStep, 0)
	for _, s := range r.steps {
		if s.FunnelID == f.ID {
			g := r.goals[s.GoalID]
			s.Goal = &g
			f.Steps = append(f.Steps, &s)
		}
	}
	sort.Slice(f.Steps, func(i, j int) bool { return f.Steps[i].Position < f.Steps[j].Position })
	return &f
}

func (r fakeFunnelRepo) Create(ctx context.Context, f *domain.Funnel) error {
	for _, other := range r.funnels {
		if other.SiteID == f.SiteID && other.Name == f.Name {
			return domain.NewValidationError("name", domain.MsgAlreadyTaken)
		}
	}
	f.ID = r.nextID()
	stored := *f
	stored.Steps = nil
	r.funnels[f.ID] = stored
	for _, s := range f.Steps {
		s.ID = r.nextID()
		s.FunnelID = f.ID
		row := *s
		row.Goal = nil
		r.steps[s.ID] = row
	}
	return nil
}

func (r fakeFunnelRepo) GetForSite(ctx context.Context, funnelID int64, siteID string) (*domain.Funnel, error) {
	f, ok := r.funnels[funnelID]
	if !ok || f.SiteID != siteID {
		return nil, domain.ErrFunnelNotFound
	}
	return r.load(f), nil
}

func (r fakeFunnelRepo) ListBySite(ctx context.Context, siteID string) ([]*domain.Funnel, error) {
	out := make([]*domain.Funnel, 0)
	for _, f := range r.funnels {
		if f.SiteID == siteID {
			out = append(out, r.load(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r fakeFunnelRepo) ListByGoal(ctx context.Context, goalID int64) ([]*domain.Funnel, error) {
	seen := make(map[int64]bool)
	out := make([]*domain.Funnel, 0)
	for _, s := range r.steps {
		if s.GoalID == goalID && !seen[s.FunnelID] {
			seen[s.FunnelID] = true
			out = append(out, r.load(r.funnels[s.FunnelID]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeFunnelRepo) Delete(ctx context.Context, funnelID int64) error {
	if _, ok := r.funnels[funnelID]; !ok {
		return domain.ErrFunnelNotFound
	}
	delete(r.funnels, funnelID)
	for id, s := range r.steps {
		if s.FunnelID == funnelID {
			delete(r.steps, id)
		}
	}
	return nil
}

// fakeEmailService records what would have been sent.
type fakeEmailService struct {
	invitationAccepted []*domain.InvitationAcceptedEmailData
	transferAccepted   []*domain.InvitationAcceptedEmailData
	dashboardLocked    []*domain.DashboardLockedEmailData
	err                error // returned by every method after recording
}

func (f *fakeEmailService) SendInvitationAccepted(ctx context.Context, data *domain.InvitationAcceptedEmailData) error {
	f.invitationAccepted = append(f.invitationAccepted, data)
	return f.err
}

func (f *fakeEmailService) SendOwnershipTransferAccepted(ctx context.Context, data *domain.InvitationAcceptedEmailData) error {
	f.transferAccepted = append(f.transferAccepted, data)
	return f.err
}

func (f *fakeEmailService) SendDashboardLocked(ctx context.Context, data *domain.DashboardLockedEmailData) error {
	f.dashboardLocked = append(f.dashboardLocked, data)
	return f.err
}

// fakePublisher records published event keys.
type fakePublisher struct {
	keys   []string
	values []any
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, key string, value any) error {
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return p.err
}

// testEnv wires the real services over one memDB with a fixed clock.
type testEnv struct {
	db          *memDB
	emails      *fakeEmailService
	events      *fakePublisher
	billing     *billingService
	locker      *siteLocker
	memberships *membershipService
	goals       *goalService
	funnels     *funnelService
	features    *featureService
}

func newTestEnv(selfhost bool) *testEnv {
	db := newMemDB()
	emails := &fakeEmailService{}
	events := &fakePublisher{}
	logger := discardLogger()

	users := fakeUserRepo{db}
	sites := fakeSiteRepo{db}
	members := fakeMembershipRepo{db}
	goals := fakeGoalRepo{db}
	funnels := fakeFunnelRepo{db}

	billing := NewBillingService(fakeSubscriptionRepo{db}, selfhost).(*billingService)
	billing.now = testClock
	locker := NewSiteLocker(sites, users, billing, emails, logger).(*siteLocker)
	locker.now = testClock

	ms := NewMembershipService(db, members, fakeInvitationRepo{db}, users, sites, billing, locker, emails, events, logger, time.Second).(*membershipService)
	ms.now = testClock
	gs := NewGoalService(db, goals, funnels, sites, members, users, billing, events, logger, time.Second).(*goalService)
	gs.now = testClock
	fs := NewFunnelService(db, funnels, goals, sites, members, users, billing, time.Second).(*funnelService)
	fs.now = testClock
	feat := NewFeatureService(db, sites, members, users, billing, time.Second).(*featureService)

	return &testEnv{
		db:          db,
		emails:      emails,
		events:      events,
		billing:     billing,
		locker:      locker,
		memberships: ms,
		goals:       gs,
		funnels:     fs,
		features:    feat,
	}
}
