package subscription

import "time"

const Collection = "subscriptions"

type Interval string

const (
	IntervalMonth   Interval = "month"
	IntervalQuarter Interval = "quarter"
	IntervalYear    Interval = "year"
)

func (i Interval) Valid() bool {
	switch i {
	case IntervalMonth, IntervalQuarter, IntervalYear:
		return true
	}
	return false
}

// AddTo returns t advanced by one billing interval.
func (i Interval) AddTo(t time.Time) time.Time {
	switch i {
	case IntervalQuarter:
		return t.AddDate(0, 3, 0)
	case IntervalYear:
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}

type Product struct {
	ID                   string `json:"id" yaml:"id"`
	Name                 string `json:"name" yaml:"name"`
	RequiresPrescription bool   `json:"requires_prescription" yaml:"requires_prescription"`
}

type Plan struct {
	ID               string    `json:"id" yaml:"id"`
	Name             string    `json:"name" yaml:"name"`
	Amount           float64   `json:"amount" yaml:"amount"`
	Currency         string    `json:"currency" yaml:"currency"`
	Interval         Interval  `json:"interval" yaml:"interval"`
	IncludedProducts []Product `json:"included_products" yaml:"included_products"`
}

// RequiresPrescription reports whether any included product needs one.
func (p Plan) RequiresPrescription() bool {
	for _, prod := range p.IncludedProducts {
		if prod.RequiresPrescription {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusPastDue   Status = "past_due"
)

type BillingEventType string

const (
	EventCharge    BillingEventType = "charge"
	EventProration BillingEventType = "proration"
)

type BillingEvent struct {
	ID          string           `json:"id"`
	Type        BillingEventType `json:"type"`
	Amount      float64          `json:"amount"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

type Billing struct {
	Amount          float64        `json:"amount"`
	Currency        string         `json:"currency"`
	Interval        Interval       `json:"interval"`
	NextBillingDate time.Time      `json:"next_billing_date"`
	BillingHistory  []BillingEvent `json:"billing_history"`
}

type ModificationType string

const (
	ModUpgrade    ModificationType = "upgrade"
	ModDowngrade  ModificationType = "downgrade"
	ModPause      ModificationType = "pause"
	ModResume     ModificationType = "resume"
	ModCancel     ModificationType = "cancel"
	ModReactivate ModificationType = "reactivate"
)

// Modification is one entry of the append-only modification log. ToPlanID is
// the plan in force after the modification.
type Modification struct {
	ID              string           `json:"id"`
	Type            ModificationType `json:"type"`
	FromPlanID      string           `json:"from_plan_id,omitempty"`
	ToPlanID        string           `json:"to_plan_id,omitempty"`
	ProrationAmount *float64         `json:"proration_amount,omitempty"`
	EffectiveDate   time.Time        `json:"effective_date"`
	CreatedAt       time.Time        `json:"created_at"`
}

type Subscription struct {
	ID                 string         `json:"id"`
	CustomerID         string         `json:"customer_id"`
	PlanID             string         `json:"plan_id"`
	Status             Status         `json:"status"`
	CancelAtPeriodEnd  bool           `json:"cancel_at_period_end"`
	CancelledAt        *time.Time     `json:"cancelled_at,omitempty"`
	PausedAt           *time.Time     `json:"paused_at,omitempty"`
	CurrentPeriodStart time.Time      `json:"current_period_start"`
	CurrentPeriodEnd   time.Time      `json:"current_period_end"`
	Billing            Billing        `json:"billing"`
	Modifications      []Modification `json:"modifications"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// LatestPlanID is the plan referenced by the most recent modification, or
// the original plan when there is none.
func (s *Subscription) LatestPlanID() string {
	if n := len(s.Modifications); n > 0 {
		return s.Modifications[n-1].ToPlanID
	}
	return s.PlanID
}

func (s *Subscription) clone() *Subscription {
	c := *s
	c.Modifications = append([]Modification(nil), s.Modifications...)
	c.Billing.BillingHistory = append([]BillingEvent(nil), s.Billing.BillingHistory...)
	return &c
}
