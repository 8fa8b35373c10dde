package workflow

import (
	"context"
	"fmt"
	"time"
)

// sideEffect runs after a transition into a state has been committed.
type sideEffect func(ctx context.Context, o *Order, t *Transition) error

func (e *Engine) sideEffects() map[Status][]sideEffect {
	return map[Status][]sideEffect{
		StatusProviderApproved: {e.issuePrescription},
		StatusPrescriptionSent: {e.scheduleAdvance(StatusPrescriptionSent, e.delays.PharmacyTransmit, "Pharmacy received prescription")},
		StatusPharmacyReceived: {e.scheduleAdvance(StatusPharmacyReceived, e.delays.PharmacyFill, "Pharmacy started filling")},
		StatusPaymentCompleted: {e.markInvoicesPaid, e.continueAfterPayment},
		StatusCancelled:        {e.voidOpenInvoices},
	}
}

func (e *Engine) onEnter(ctx context.Context, o *Order, t *Transition) error {
	for _, fx := range e.effects[t.Next] {
		if err := fx(ctx, o, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) issuePrescription(ctx context.Context, o *Order, _ *Transition) error {
	if !o.RequiresPrescription {
		return nil
	}
	if e.issuer == nil {
		e.logger.Warn().Str("order_id", o.ID).Msg("no prescription issuer configured")
		return nil
	}
	if err := e.issuer.IssuePrescription(ctx, o); err != nil {
		e.logger.Error().Err(err).Str("order_id", o.ID).Msg("prescription issuance failed")
		return CollaboratorUnavailable("issue prescription", err)
	}
	e.logger.Info().Str("order_id", o.ID).Msg("prescription issued")
	return nil
}

// requireIssued holds a prescription order in provider_approved until its
// prescription exists. A missing prescription is issued again; if that fails
// the order stays where it is.
func (e *Engine) requireIssued(ctx context.Context, o *Order) error {
	if o.Status != StatusProviderApproved || !o.RequiresPrescription || e.issuer == nil {
		return nil
	}
	issued, err := e.issuer.Issued(ctx, o.ID)
	if err != nil {
		return CollaboratorUnavailable("check prescription", err)
	}
	if issued {
		return nil
	}
	e.logger.Warn().Str("order_id", o.ID).Msg("prescription missing, issuing again")
	return e.issuePrescription(ctx, o, nil)
}

// scheduleAdvance returns a side effect that advances the order out of state
// after delay unless it has moved on by then.
func (e *Engine) scheduleAdvance(state Status, delay time.Duration, notes string) sideEffect {
	return func(_ context.Context, o *Order, _ *Transition) error {
		if e.scheduler == nil {
			return nil
		}
		id := o.ID
		e.scheduler.Schedule(id, delay, func(ctx context.Context) {
			t, err := e.AdvanceFrom(ctx, id, state, Trigger{By: TriggerSystem, Notes: notes})
			if err != nil {
				e.logger.Error().Err(err).Str("order_id", id).Str("status", string(state)).Msg("scheduled advance failed")
				return
			}
			if t != nil {
				e.logger.Info().Str("order_id", id).Str("status", string(t.Next)).Msg("scheduled advance applied")
			}
		})
		e.logger.Debug().Str("order_id", id).Str("status", string(state)).Dur("delay", delay).Msg("advance scheduled")
		return nil
	}
}

func (e *Engine) markInvoicesPaid(ctx context.Context, o *Order, _ *Transition) error {
	e.setInvoiceStatus(ctx, o, InvoiceOpen, InvoicePaid)
	return nil
}

func (e *Engine) voidOpenInvoices(ctx context.Context, o *Order, _ *Transition) error {
	e.setInvoiceStatus(ctx, o, InvoiceOpen, InvoiceVoid)
	return nil
}

// setInvoiceStatus moves the order's invoices in from to to. Failures are
// logged; they never undo the transition.
func (e *Engine) setInvoiceStatus(ctx context.Context, o *Order, from, to InvoiceStatus) {
	if e.invoices == nil {
		return
	}
	invoices, err := e.invoices.ListByOrder(ctx, o.ID)
	if err != nil {
		e.logger.Error().Err(err).Str("order_id", o.ID).Msg("list invoices failed")
		return
	}
	now := e.now()
	for _, inv := range invoices {
		if inv.Status != from {
			continue
		}
		if err := e.invoices.SetStatus(ctx, inv.ID, to, now); err != nil {
			e.logger.Error().Err(err).Str("order_id", o.ID).Str("invoice_id", inv.ID).Msg(fmt.Sprintf("mark invoice %s failed", to))
		}
	}
}

// continueAfterPayment moves OTC orders straight into processing.
func (e *Engine) continueAfterPayment(ctx context.Context, o *Order, _ *Transition) error {
	if o.RequiresPrescription {
		return nil
	}
	_, err := e.advance(ctx, o, Trigger{By: TriggerSystem, Notes: "Payment captured"})
	return err
}
