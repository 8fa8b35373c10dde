package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/telehealth/internal/platform/store"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *testClock) {
	t.Helper()
	catalog, err := NewCatalog(DefaultPlans())
	require.NoError(t, err)
	svc := NewService(NewStoreRepository(store.NewMemory()), catalog, zerolog.Nop())
	clock := &testClock{now: periodStart}
	svc.now = clock.Now
	return svc, clock
}

type brokenRepo struct {
	Repository
	err error
}

func (r *brokenRepo) Save(context.Context, *Subscription) error { return r.err }

func TestService_Create(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Create(ctx, "cust-1", "hair-loss-monthly")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, 29.0, sub.Billing.Amount)
	assert.Equal(t, periodStart.AddDate(0, 1, 0), sub.CurrentPeriodEnd)
	require.Len(t, sub.Billing.BillingHistory, 1)
	assert.Equal(t, EventCharge, sub.Billing.BillingHistory[0].Type)

	stored, err := svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.PlanID, stored.PlanID)
	assert.True(t, sub.CurrentPeriodEnd.Equal(stored.CurrentPeriodEnd))
}

func TestService_Create_UnknownPlan(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(context.Background(), "cust-1", "nope")
	assert.Equal(t, ErrCodePlanNotFound, ErrorCode(err))
}

func TestService_Get_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), "missing")
	assert.Equal(t, ErrCodeNotFound, ErrorCode(err))
}

func TestService_ListByCustomer(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "cust-1", "hair-loss-monthly")
	require.NoError(t, err)
	clock.now = clock.now.Add(time.Minute)
	second, err := svc.Create(ctx, "cust-1", "wellness-monthly")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "cust-2", "wellness-monthly")
	require.NoError(t, err)

	subs, err := svc.ListByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, second.ID, subs[0].ID)
	assert.Equal(t, first.ID, subs[1].ID)
}

func TestService_PreviewProration(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	sub, err := svc.Create(ctx, "cust-1", "hair-loss-monthly")
	require.NoError(t, err)

	clock.now = periodStart.AddDate(0, 0, 10)
	p, err := svc.PreviewProration(ctx, sub.ID, "hair-loss-quarterly", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 31, p.TotalDaysInPeriod)
	assert.Equal(t, 21, p.DaysRemaining)
	assert.Greater(t, p.ProrationAmount, 0.0)

	stored, err := svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Modifications)
}

func TestService_Modify_UpgradePersists(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	sub, err := svc.Create(ctx, "cust-1", "hair-loss-monthly")
	require.NoError(t, err)

	clock.now = periodStart.AddDate(0, 0, 10)
	updated, err := svc.Modify(ctx, sub.ID, ModifyRequest{Type: ModUpgrade, NewPlanID: "hair-loss-quarterly"})
	require.NoError(t, err)
	assert.Equal(t, "hair-loss-quarterly", updated.PlanID)

	stored, err := svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "hair-loss-quarterly", stored.PlanID)
	assert.Equal(t, 79.0, stored.Billing.Amount)
	require.Len(t, stored.Modifications, 1)
	assert.NotNil(t, stored.Modifications[0].ProrationAmount)
	assert.Len(t, stored.Billing.BillingHistory, 2)
}

func TestService_Modify_UnknownNewPlan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sub, err := svc.Create(ctx, "cust-1", "hair-loss-monthly")
	require.NoError(t, err)

	_, err = svc.Modify(ctx, sub.ID, ModifyRequest{Type: ModUpgrade, NewPlanID: "platinum"})
	assert.Equal(t, ErrCodePlanNotFound, ErrorCode(err))
}

func TestService_Modify_PauseResumeClearsPausedAt(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	sub, err := svc.Create(ctx, "cust-1", "wellness-monthly")
	require.NoError(t, err)

	_, err = svc.Modify(ctx, sub.ID, ModifyRequest{Type: ModPause})
	require.NoError(t, err)
	stored, err := svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, stored.Status)
	assert.NotNil(t, stored.PausedAt)

	clock.now = clock.now.AddDate(0, 0, 20)
	_, err = svc.Modify(ctx, sub.ID, ModifyRequest{Type: ModResume})
	require.NoError(t, err)
	stored, err = svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, stored.Status)
	assert.Nil(t, stored.PausedAt)
}

func TestService_Modify_SaveFailure(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sub, err := svc.Create(ctx, "cust-1", "wellness-monthly")
	require.NoError(t, err)

	svc.repo = &brokenRepo{Repository: svc.repo, err: errors.New("connection reset")}
	_, err = svc.Modify(ctx, sub.ID, ModifyRequest{Type: ModCancel, Immediate: true})
	require.Error(t, err)
	assert.Equal(t, ErrCodeStoreUnavailable, ErrorCode(err))
}
