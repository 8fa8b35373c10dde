package subscription

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type Proration struct {
	DaysRemaining     int     `json:"days_remaining"`
	TotalDaysInPeriod int     `json:"total_days_in_period"`
	CreditAmount      float64 `json:"credit_amount"`
	ChargeAmount      float64 `json:"charge_amount"`
	// ProrationAmount is charge minus credit; negative means a credit is owed.
	ProrationAmount float64 `json:"proration_amount"`
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(d.Hours() / 24))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeProration prices a plan change effective at effectiveDate within
// the subscription's current period. Days remaining are clamped to the
// period, and an empty period prorates to zero.
func ComputeProration(sub *Subscription, current, next Plan, effectiveDate time.Time) Proration {
	total := ceilDays(sub.CurrentPeriodEnd.Sub(sub.CurrentPeriodStart))
	if total <= 0 {
		return Proration{}
	}
	remaining := ceilDays(sub.CurrentPeriodEnd.Sub(effectiveDate))
	if remaining < 0 {
		remaining = 0
	}
	if remaining > total {
		remaining = total
	}

	credit := roundCents(current.Amount / float64(total) * float64(remaining))
	charge := roundCents(next.Amount / float64(total) * float64(remaining))
	return Proration{
		DaysRemaining:     remaining,
		TotalDaysInPeriod: total,
		CreditAmount:      credit,
		ChargeAmount:      charge,
		ProrationAmount:   roundCents(charge - credit),
	}
}

// ModificationParams carries what a modification type needs. CurrentPlan
// and NewPlan are required for upgrades and downgrades; EffectiveDate
// defaults to now.
type ModificationParams struct {
	CurrentPlan   *Plan
	NewPlan       *Plan
	Immediate     bool
	EffectiveDate time.Time
}

// ApplyModification returns a copy of sub with the modification applied and
// appended to its log. sub itself is not changed.
func ApplyModification(sub *Subscription, typ ModificationType, params ModificationParams, now time.Time) (*Subscription, error) {
	out := sub.clone()
	effective := params.EffectiveDate
	if effective.IsZero() {
		effective = now
	}
	mod := Modification{
		ID:            uuid.New().String(),
		Type:          typ,
		FromPlanID:    sub.PlanID,
		ToPlanID:      sub.PlanID,
		EffectiveDate: effective,
		CreatedAt:     now,
	}

	switch typ {
	case ModUpgrade, ModDowngrade:
		if out.Status != StatusActive {
			return nil, invalidModification("cannot %s a %s subscription", typ, out.Status)
		}
		if params.CurrentPlan == nil || params.NewPlan == nil {
			return nil, invalidModification("%s requires the current and new plan", typ)
		}
		if params.NewPlan.ID == sub.PlanID {
			return nil, invalidModification("subscription is already on plan %s", sub.PlanID)
		}
		p := ComputeProration(sub, *params.CurrentPlan, *params.NewPlan, effective)
		amount := p.ProrationAmount
		mod.ToPlanID = params.NewPlan.ID
		mod.ProrationAmount = &amount

		out.PlanID = params.NewPlan.ID
		out.Billing.Amount = params.NewPlan.Amount
		out.Billing.Interval = params.NewPlan.Interval
		out.Billing.BillingHistory = append(out.Billing.BillingHistory, BillingEvent{
			ID:          uuid.New().String(),
			Type:        EventProration,
			Amount:      amount,
			Description: string(typ) + " from " + sub.PlanID + " to " + params.NewPlan.ID,
			CreatedAt:   now,
		})

	case ModPause:
		if out.Status != StatusActive {
			return nil, invalidModification("only active subscriptions can be paused")
		}
		out.Status = StatusPaused
		out.PausedAt = &now

	case ModResume:
		if out.Status != StatusPaused {
			return nil, invalidModification("only paused subscriptions can be resumed")
		}
		out.Status = StatusActive
		out.PausedAt = nil
		out.CurrentPeriodStart = now
		out.CurrentPeriodEnd = out.Billing.Interval.AddTo(now)
		out.Billing.NextBillingDate = out.CurrentPeriodEnd

	case ModCancel:
		if out.Status == StatusCancelled {
			return nil, invalidModification("subscription is already cancelled")
		}
		if params.Immediate {
			out.Status = StatusCancelled
			out.CancelledAt = &now
			out.CancelAtPeriodEnd = false
		} else {
			out.CancelAtPeriodEnd = true
			mod.EffectiveDate = out.CurrentPeriodEnd
		}

	case ModReactivate:
		switch {
		case out.Status == StatusCancelled:
			out.Status = StatusActive
			out.CancelledAt = nil
			out.CurrentPeriodStart = now
			out.CurrentPeriodEnd = out.Billing.Interval.AddTo(now)
			out.Billing.NextBillingDate = out.CurrentPeriodEnd
		case out.CancelAtPeriodEnd:
			out.CancelAtPeriodEnd = false
		default:
			return nil, invalidModification("subscription is not cancelled")
		}

	default:
		return nil, invalidModification("unknown modification type %q", typ)
	}

	out.Modifications = append(out.Modifications, mod)
	out.UpdatedAt = now
	return out, nil
}
