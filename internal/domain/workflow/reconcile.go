package workflow

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Reconciler advances orders left parked in an auto-advancing state, for
// example because the process restarted before their scheduled advance ran.
type Reconciler struct {
	engine *Engine
	orders OrderRepository
	logger zerolog.Logger
	batch  int
}

func NewReconciler(engine *Engine, orders OrderRepository, logger zerolog.Logger) *Reconciler {
	return &Reconciler{engine: engine, orders: orders, logger: logger, batch: 100}
}

// Sweep advances every order that has sat in prescription_sent or
// pharmacy_received longer than its configured delay and has no pending
// scheduled advance. It returns the number of orders advanced.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	now := r.engine.now()
	parked := []struct {
		status Status
		delay  time.Duration
	}{
		{StatusPrescriptionSent, r.engine.delays.PharmacyTransmit},
		{StatusPharmacyReceived, r.engine.delays.PharmacyFill},
	}

	advanced := 0
	for _, p := range parked {
		orders, err := r.orders.ListParked(ctx, []Status{p.status}, now.Add(-p.delay), r.batch)
		if err != nil {
			return advanced, CollaboratorUnavailable("list parked orders", err)
		}
		for _, o := range orders {
			if r.engine.scheduler != nil && r.engine.scheduler.Pending(o.ID) {
				continue
			}
			t, err := r.engine.AdvanceFrom(ctx, o.ID, p.status, Trigger{By: TriggerReconciler, Notes: "Resumed parked order"})
			if err != nil {
				r.logger.Error().Err(err).Str("order_id", o.ID).Str("status", string(p.status)).Msg("reconcile advance failed")
				continue
			}
			if t != nil && !t.AlreadyTerminal {
				advanced++
			}
		}
	}

	r.logger.Info().Int("advanced", advanced).Msg("reconciliation sweep finished")
	return advanced, nil
}
