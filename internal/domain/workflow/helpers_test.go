package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ehr/telehealth/internal/platform/store"
)

type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// manualClock replaces time.AfterFunc so tests decide when delayed tasks run.
type manualClock struct {
	timers []*manualTimer
}

func newManualScheduler() (*Scheduler, *manualClock) {
	s := NewScheduler(zerolog.Nop())
	mc := &manualClock{}
	s.afterFunc = func(d time.Duration, f func()) stopper {
		t := &manualTimer{delay: d, fn: f}
		mc.timers = append(mc.timers, t)
		return t
	}
	return s, mc
}

// fireNext runs the oldest live timer and reports whether there was one.
func (mc *manualClock) fireNext() bool {
	for _, t := range mc.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			t.fn()
			return true
		}
	}
	return false
}

func (mc *manualClock) last() *manualTimer {
	if len(mc.timers) == 0 {
		return nil
	}
	return mc.timers[len(mc.timers)-1]
}

type fakeIssuer struct {
	mu        sync.Mutex
	calls     []string
	issued    map[string]bool
	err       error
	lookupErr error
}

func (f *fakeIssuer) IssuePrescription(_ context.Context, o *Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, o.ID)
	if f.err != nil {
		return f.err
	}
	if f.issued == nil {
		f.issued = make(map[string]bool)
	}
	f.issued[o.ID] = true
	return nil
}

func (f *fakeIssuer) Issued(_ context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.issued[orderID], nil
}

func (f *fakeIssuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingNotifier struct {
	mu          sync.Mutex
	transitions []Transition
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, _ *Order, t *Transition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, *t)
}

// failingOrders fails SaveTransition on demand.
type failingOrders struct {
	OrderRepository
	failSave bool
}

func (f *failingOrders) SaveTransition(ctx context.Context, o *Order) error {
	if f.failSave {
		return errors.New("connection reset")
	}
	return f.OrderRepository.SaveTransition(ctx, o)
}

type testEnv struct {
	engine   *Engine
	store    *store.Memory
	repos    Repositories
	clock    *manualClock
	issuer   *fakeIssuer
	notifier *recordingNotifier
	orders   *failingOrders
}

var testDelays = Delays{PharmacyTransmit: 5 * time.Second, PharmacyFill: 10 * time.Second}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	repos := NewStoreRepositories(mem)
	orders := &failingOrders{OrderRepository: repos.Orders}
	repos.Orders = orders

	sched, clock := newManualScheduler()
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })

	engine := NewEngine(repos, sched, testDelays, zerolog.Nop())
	issuer := &fakeIssuer{}
	notifier := &recordingNotifier{}
	engine.SetIssuer(issuer)
	engine.SetNotifier(notifier)

	return &testEnv{
		engine:   engine,
		store:    mem,
		repos:    repos,
		clock:    clock,
		issuer:   issuer,
		notifier: notifier,
		orders:   orders,
	}
}

// newOrder stores an order and initializes it on the path for its category.
func (env *testEnv) newOrder(t *testing.T, requiresPrescription bool) *Order {
	t.Helper()
	ctx := context.Background()
	now := env.engine.now()
	o := &Order{
		ID:                   uuid.New().String(),
		PatientID:            "patient-1",
		Kind:                 KindOneTime,
		RequiresPrescription: requiresPrescription,
		TotalAmount:          49.99,
		Currency:             "USD",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	require.NoError(t, env.repos.Orders.Create(ctx, o))
	_, err := env.engine.InitializeOrder(ctx, o, ResolvePath(requiresPrescription), "checkout")
	require.NoError(t, err)
	return o
}

func (env *testEnv) reload(t *testing.T, id string) *Order {
	t.Helper()
	o, err := env.repos.Orders.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

// advanceTo advances the order until it reaches status.
func (env *testEnv) advanceTo(t *testing.T, id string, status Status) {
	t.Helper()
	for i := 0; i < 20; i++ {
		if env.reload(t, id).Status == status {
			return
		}
		_, err := env.engine.AdvanceStatus(context.Background(), id, Trigger{By: "test"})
		require.NoError(t, err)
	}
	t.Fatalf("order %s never reached %s", id, status)
}
