package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo    Repository
	catalog *Catalog
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, catalog *Catalog, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Plan looks up a plan in the catalog.
func (s *Service) Plan(id string) (Plan, error) {
	p, ok := s.catalog.Get(id)
	if !ok {
		return Plan{}, planNotFound(id)
	}
	return p, nil
}

// Create starts an active subscription on planID for one billing interval and
// records the initial charge.
func (s *Service) Create(ctx context.Context, customerID, planID string) (*Subscription, error) {
	if customerID == "" {
		return nil, invalidModification("customer_id is required")
	}
	plan, err := s.Plan(planID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	end := plan.Interval.AddTo(now)
	sub := &Subscription{
		ID:                 uuid.New().String(),
		CustomerID:         customerID,
		PlanID:             plan.ID,
		Status:             StatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   end,
		Billing: Billing{
			Amount:          plan.Amount,
			Currency:        plan.Currency,
			Interval:        plan.Interval,
			NextBillingDate: end,
			BillingHistory: []BillingEvent{{
				ID:          uuid.New().String(),
				Type:        EventCharge,
				Amount:      plan.Amount,
				Description: "initial charge for " + plan.ID,
				CreatedAt:   now,
			}},
		},
		Modifications: []Modification{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, storeUnavailable("create subscription", err)
	}
	s.logger.Info().Str("subscription_id", sub.ID).Str("plan_id", plan.ID).Msg("subscription created")
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Subscription, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		if ErrorCode(err) == ErrCodeNotFound {
			return nil, err
		}
		return nil, storeUnavailable("load subscription", err)
	}
	return sub, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*Subscription, error) {
	subs, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, storeUnavailable("list subscriptions", err)
	}
	return subs, nil
}

// PreviewProration computes the proration of moving the subscription to
// newPlanID at effectiveDate without changing anything.
func (s *Service) PreviewProration(ctx context.Context, id, newPlanID string, effectiveDate time.Time) (*Proration, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	current, err := s.Plan(sub.PlanID)
	if err != nil {
		return nil, err
	}
	next, err := s.Plan(newPlanID)
	if err != nil {
		return nil, err
	}
	if effectiveDate.IsZero() {
		effectiveDate = s.now()
	}
	p := ComputeProration(sub, current, next, effectiveDate)
	return &p, nil
}

type ModifyRequest struct {
	Type          ModificationType `json:"type"`
	NewPlanID     string           `json:"new_plan_id,omitempty"`
	Immediate     bool             `json:"immediate"`
	EffectiveDate time.Time        `json:"effective_date"`
}

// Modify loads the subscription, applies the modification and saves it.
func (s *Service) Modify(ctx context.Context, id string, req ModifyRequest) (*Subscription, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	params := ModificationParams{Immediate: req.Immediate, EffectiveDate: req.EffectiveDate}
	if req.Type == ModUpgrade || req.Type == ModDowngrade {
		current, err := s.Plan(sub.PlanID)
		if err != nil {
			return nil, err
		}
		next, err := s.Plan(req.NewPlanID)
		if err != nil {
			return nil, err
		}
		params.CurrentPlan = &current
		params.NewPlan = &next
	}

	updated, err := ApplyModification(sub, req.Type, params, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, updated); err != nil {
		return nil, storeUnavailable("save subscription", err)
	}

	evt := s.logger.Info().
		Str("subscription_id", id).
		Str("type", string(req.Type)).
		Str("status", string(updated.Status))
	if m := updated.Modifications[len(updated.Modifications)-1]; m.ProrationAmount != nil {
		evt = evt.Float64("proration_amount", *m.ProrationAmount)
	}
	evt.Msg("subscription modified")
	return updated, nil
}
