package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PrescriptionIssuer creates the prescription for an approved order. Issued
// reports whether a prescription already exists for the order.
type PrescriptionIssuer interface {
	IssuePrescription(ctx context.Context, o *Order) error
	Issued(ctx context.Context, orderID string) (bool, error)
}

// Notifier is told about every committed transition. Implementations must
// not block; delivery failures are theirs to handle.
type Notifier interface {
	OrderStatusChanged(ctx context.Context, o *Order, t *Transition)
}

// Transition is the outcome of AdvanceStatus or SetStatus. AlreadyTerminal
// means nothing changed because the order could not move any further.
type Transition struct {
	OrderID         string `json:"order_id"`
	Previous        Status `json:"previous"`
	Next            Status `json:"next"`
	StepIndex       int    `json:"step_index"`
	AlreadyTerminal bool   `json:"already_terminal"`
	TriggeredBy     string `json:"triggered_by,omitempty"`
}

// Delays configures the scheduled automatic advances.
type Delays struct {
	PharmacyTransmit time.Duration
	PharmacyFill     time.Duration
}

type Engine struct {
	orders    OrderRepository
	invoices  InvoiceRepository
	scheduler *Scheduler
	issuer    PrescriptionIssuer
	notifier  Notifier
	delays    Delays
	logger    zerolog.Logger
	now       func() time.Time
	effects   map[Status][]sideEffect
}

func NewEngine(repos Repositories, scheduler *Scheduler, delays Delays, logger zerolog.Logger) *Engine {
	e := &Engine{
		orders:    repos.Orders,
		invoices:  repos.Invoices,
		scheduler: scheduler,
		delays:    delays,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	e.effects = e.sideEffects()
	return e
}

// SetIssuer attaches the prescription collaborator used on provider approval.
func (e *Engine) SetIssuer(issuer PrescriptionIssuer) {
	e.issuer = issuer
}

// SetNotifier attaches the status change notifier.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

func (e *Engine) Scheduler() *Scheduler {
	return e.scheduler
}

// InitializeOrder places an order on the first state of path, records the
// creation entry and announces it. The order record must already exist.
// Passing a nil path resolves it from the order's prescription flag.
func (e *Engine) InitializeOrder(ctx context.Context, o *Order, path Path, createdBy string) (*Order, error) {
	if _, err := e.StageOrder(ctx, o, path, createdBy); err != nil {
		return nil, err
	}
	e.AnnounceOrder(ctx, o)
	return o, nil
}

// StageOrder initializes o like InitializeOrder but sends no notification.
// Callers creating several orders together announce them with AnnounceOrder
// once all of them exist.
func (e *Engine) StageOrder(ctx context.Context, o *Order, path Path, createdBy string) (*Order, error) {
	if o.Initialized() {
		return nil, cloneError(ErrInvalidTransition, fmt.Sprintf("order %s is already initialized", o.ID), nil, map[string]any{
			"order_id": o.ID,
			"status":   string(o.Status),
		})
	}
	if len(path) == 0 {
		path = ResolvePath(o.RequiresPrescription)
	}

	now := e.now()
	o.WorkflowPath = append(Path(nil), path...)
	o.CurrentStepIndex = 0
	o.Status = path[0]
	o.StatusHistory = []HistoryEntry{{
		Status:      path[0],
		Timestamp:   now,
		TriggeredBy: createdBy,
		Notes:       "Order created",
	}}
	if o.UpdatedAt.Before(now) {
		o.UpdatedAt = now
	}

	if err := e.orders.SaveTransition(ctx, o); err != nil {
		return nil, CollaboratorUnavailable("initialize order", err)
	}

	e.logger.Info().
		Str("order_id", o.ID).
		Str("status", string(o.Status)).
		Str("category", string(o.Category())).
		Msg("order initialized")
	return o, nil
}

// AnnounceOrder sends the creation notification for an initialized order.
func (e *Engine) AnnounceOrder(ctx context.Context, o *Order) {
	var by string
	if len(o.StatusHistory) > 0 {
		by = o.StatusHistory[0].TriggeredBy
	}
	e.notify(ctx, o, &Transition{OrderID: o.ID, Next: o.Status, TriggeredBy: by})
}

// AdvanceStatus moves the order to the next state on its path. An order on
// its last state, or in a terminal state, yields AlreadyTerminal and is left
// untouched. Orders in exception must be resumed with SetStatus.
func (e *Engine) AdvanceStatus(ctx context.Context, orderID string, trig Trigger) (*Transition, error) {
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return e.advance(ctx, o, trig)
}

// AdvanceFrom advances the order only while it is still in expected. It
// returns nil, nil when the order has already moved on. Scheduled advances and
// the reconciliation sweep use it so a stale task never skips a state.
func (e *Engine) AdvanceFrom(ctx context.Context, orderID string, expected Status, trig Trigger) (*Transition, error) {
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != expected {
		e.logger.Debug().
			Str("order_id", orderID).
			Str("expected", string(expected)).
			Str("status", string(o.Status)).
			Msg("skipping advance: order moved on")
		return nil, nil
	}
	return e.advance(ctx, o, trig)
}

func (e *Engine) advance(ctx context.Context, o *Order, trig Trigger) (*Transition, error) {
	if !o.Initialized() {
		return nil, notInitialized(o)
	}
	if IsTerminal(o.Status) || (o.Status != StatusException && o.AtEnd()) {
		return e.alreadyTerminal(o), nil
	}
	if o.Status == StatusException {
		return nil, cloneError(ErrInvalidTransition, fmt.Sprintf("order %s is in exception; resume it with an explicit status", o.ID), nil, map[string]any{
			"order_id": o.ID,
			"from":     string(o.Status),
		})
	}
	if err := e.requireIssued(ctx, o); err != nil {
		return nil, err
	}
	next := o.CurrentStepIndex + 1
	return e.commit(ctx, o, o.WorkflowPath[next], next, trig)
}

// SetStatus moves the order to an explicit state: the next state on its
// path, an escape state (cancelled, exception) or, from exception, back to
// the step it left.
func (e *Engine) SetStatus(ctx context.Context, orderID string, status Status, trig Trigger) (*Transition, error) {
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Initialized() {
		return nil, notInitialized(o)
	}
	if IsTerminal(o.Status) || (o.Status != StatusException && o.AtEnd()) {
		return e.alreadyTerminal(o), nil
	}

	idx := o.CurrentStepIndex
	switch {
	case IsEscape(status) && status != o.Status:
	case o.Status == StatusException && idx < len(o.WorkflowPath) && o.WorkflowPath[idx] == status:
	case o.Status != StatusException && idx+1 < len(o.WorkflowPath) && o.WorkflowPath[idx+1] == status:
		if err := e.requireIssued(ctx, o); err != nil {
			return nil, err
		}
		idx++
	default:
		return nil, invalidTransition(o.ID, o.Status, status)
	}
	return e.commit(ctx, o, status, idx, trig)
}

func notInitialized(o *Order) error {
	return cloneError(ErrInvalidTransition, fmt.Sprintf("order %s has not been initialized", o.ID), nil, map[string]any{
		"order_id": o.ID,
	})
}

func (e *Engine) alreadyTerminal(o *Order) *Transition {
	return &Transition{
		OrderID:         o.ID,
		Previous:        o.Status,
		Next:            o.Status,
		StepIndex:       o.CurrentStepIndex,
		AlreadyTerminal: true,
	}
}

func (e *Engine) commit(ctx context.Context, o *Order, next Status, idx int, trig Trigger) (*Transition, error) {
	prev := o.Status
	now := e.now()
	if n := len(o.StatusHistory); n > 0 && now.Before(o.StatusHistory[n-1].Timestamp) {
		now = o.StatusHistory[n-1].Timestamp
	}
	if now.Before(o.UpdatedAt) {
		now = o.UpdatedAt
	}

	o.Status = next
	o.CurrentStepIndex = idx
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{
		Status:         next,
		Timestamp:      now,
		TriggeredBy:    trig.By,
		Notes:          trig.Notes,
		PreviousStatus: prev,
	})
	o.UpdatedAt = now

	if err := e.orders.SaveTransition(ctx, o); err != nil {
		return nil, CollaboratorUnavailable("save order transition", err)
	}

	t := &Transition{
		OrderID:     o.ID,
		Previous:    prev,
		Next:        next,
		StepIndex:   idx,
		TriggeredBy: trig.By,
	}
	e.logger.Info().
		Str("order_id", o.ID).
		Str("from", string(prev)).
		Str("to", string(next)).
		Str("triggered_by", trig.By).
		Msg("order status changed")

	if IsTerminal(next) && e.scheduler != nil && e.scheduler.Cancel(o.ID) {
		e.logger.Info().Str("order_id", o.ID).Msg("cancelled scheduled advance")
	}

	e.notify(ctx, o, t)
	if err := e.onEnter(ctx, o, t); err != nil {
		return t, err
	}
	return t, nil
}

func (e *Engine) notify(ctx context.Context, o *Order, t *Transition) {
	if e.notifier == nil {
		return
	}
	e.notifier.OrderStatusChanged(ctx, o, t)
}

func (e *Engine) load(ctx context.Context, orderID string) (*Order, error) {
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, CollaboratorUnavailable("load order", err)
	}
	return o, nil
}

// GetOrder returns the stored order without progress information.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return e.load(ctx, orderID)
}

func (e *Engine) ListOrdersByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Order, int, error) {
	orders, total, err := e.orders.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, CollaboratorUnavailable("list orders", err)
	}
	return orders, total, nil
}

// GetOrderWithProgress returns the order with its progress projection.
func (e *Engine) GetOrderWithProgress(ctx context.Context, orderID string) (*OrderView, error) {
	o, err := e.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderView{Order: o, Progress: ProgressOf(o, e.now())}, nil
}
