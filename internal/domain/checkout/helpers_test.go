package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ehr/telehealth/internal/domain/subscription"
	"github.com/ehr/telehealth/internal/domain/workflow"
	"github.com/ehr/telehealth/internal/platform/idempotency"
	"github.com/ehr/telehealth/internal/platform/store"
)

var errInjected = errors.New("injected store failure")

// faultyStore wraps a store and fails writes to chosen collections. A
// create fault fires once the collection has seen `after` successful
// creates.
type faultyStore struct {
	store.Store

	mu          sync.Mutex
	createFault map[string]int
	creates     map[string]int
	updateFault map[string]int
	updates     map[string]int
	deleteFault map[string]bool
}

func newFaultyStore(inner store.Store) *faultyStore {
	return &faultyStore{
		Store:       inner,
		createFault: make(map[string]int),
		creates:     make(map[string]int),
		updateFault: make(map[string]int),
		updates:     make(map[string]int),
		deleteFault: make(map[string]bool),
	}
}

func (f *faultyStore) failCreate(collection string, after int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createFault[collection] = after
}

// failUpdate arms an update fault that fires once the collection has seen
// `after` successful updates.
func (f *faultyStore) failUpdate(collection string, after int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateFault[collection] = after
}

func (f *faultyStore) failDelete(collection string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteFault[collection] = true
}

func (f *faultyStore) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createFault = make(map[string]int)
	f.updateFault = make(map[string]int)
	f.deleteFault = make(map[string]bool)
}

func (f *faultyStore) Create(ctx context.Context, collection, id string, doc interface{}) error {
	f.mu.Lock()
	after, armed := f.createFault[collection]
	if armed && f.creates[collection] >= after {
		f.mu.Unlock()
		return errInjected
	}
	f.creates[collection]++
	f.mu.Unlock()
	return f.Store.Create(ctx, collection, id, doc)
}

func (f *faultyStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	after, armed := f.updateFault[collection]
	if armed && f.updates[collection] >= after {
		f.mu.Unlock()
		return errInjected
	}
	f.updates[collection]++
	f.mu.Unlock()
	return f.Store.Update(ctx, collection, id, fields)
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []string
}

func (n *recordingNotifier) OrderStatusChanged(_ context.Context, o *workflow.Order, _ *workflow.Transition) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, o.ID)
}

func (n *recordingNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.orders...)
}

func (f *faultyStore) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	fail := f.deleteFault[collection]
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Store.Delete(ctx, collection, id)
}

type testEnv struct {
	mem      *store.Memory
	notifier *recordingNotifier
	faults  *faultyStore
	repos   workflow.Repositories
	engine  *workflow.Engine
	claims  *idempotency.Memory
	builder *Builder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	faults := newFaultyStore(mem)
	repos := workflow.NewStoreRepositories(faults)

	sched := workflow.NewScheduler(zerolog.Nop())
	t.Cleanup(func() { _ = sched.Stop(context.Background()) })
	engine := workflow.NewEngine(repos, sched, workflow.Delays{
		PharmacyTransmit: 5 * time.Minute,
		PharmacyFill:     10 * time.Minute,
	}, zerolog.Nop())
	notifier := &recordingNotifier{}
	engine.SetNotifier(notifier)

	catalog, err := subscription.NewCatalog(subscription.DefaultPlans())
	require.NoError(t, err)
	plans := subscription.NewService(subscription.NewStoreRepository(mem), catalog, zerolog.Nop())

	claims := idempotency.NewMemory()
	builder := NewBuilder(repos, engine, plans, claims, Options{Currency: "USD", InvoiceDueDays: 7}, zerolog.Nop())

	return &testEnv{
		mem:      mem,
		notifier: notifier,
		faults:  faults,
		repos:   repos,
		engine:  engine,
		claims:  claims,
		builder: builder,
	}
}

func (env *testEnv) orderCount() int {
	return env.mem.Count(workflow.CollectionOrders)
}

func (env *testEnv) lineItemCount() int {
	return env.mem.Count(workflow.CollectionLineItems)
}

func (env *testEnv) relationshipCount() int {
	return env.mem.Count(workflow.CollectionRelationships)
}

func (env *testEnv) invoiceCount() int {
	return env.mem.Count(workflow.CollectionInvoices)
}

func mixedRequest(session string) Request {
	return Request{
		PatientID: "patient-1",
		SessionID: session,
		PlanID:    "hair-loss-monthly",
		OneTimeItems: []Item{
			{ProductID: "minoxidil-5", Name: "Minoxidil 5%", Quantity: 2, UnitPrice: 12.50},
			{ProductID: "scalp-serum", Name: "Scalp Serum", Quantity: 1, UnitPrice: 5.99},
		},
	}
}
