// Package checkout turns a checkout request into an order bundle: one or two
// orders with their line items, the link between them and their invoices.
package checkout

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/telehealth/internal/domain/subscription"
	"github.com/ehr/telehealth/internal/domain/workflow"
	"github.com/ehr/telehealth/internal/platform/idempotency"
)

type BundleKind string

const (
	BundleSubscription BundleKind = "subscription"
	BundleOneTime      BundleKind = "one_time"
	BundleMixed        BundleKind = "mixed"
)

// KindOf classifies a bundle by which item sets are present. The empty kind
// means there is nothing to build.
func KindOf(hasSubscription, hasOneTime bool) BundleKind {
	switch {
	case hasSubscription && hasOneTime:
		return BundleMixed
	case hasSubscription:
		return BundleSubscription
	case hasOneTime:
		return BundleOneTime
	}
	return ""
}

type Item struct {
	ProductID            string  `json:"product_id"`
	Name                 string  `json:"name"`
	Quantity             int     `json:"quantity"`
	UnitPrice            float64 `json:"unit_price"`
	RequiresPrescription bool    `json:"requires_prescription"`
}

type Request struct {
	PatientID       string            `json:"patient_id"`
	SessionID       string            `json:"session_id"`
	PlanID          string            `json:"plan_id,omitempty"`
	OneTimeItems    []Item            `json:"one_time_items,omitempty"`
	ShippingAddress *workflow.Address `json:"shipping_address,omitempty"`
	BillingAddress  *workflow.Address `json:"billing_address,omitempty"`
}

type Result struct {
	BundleID            string     `json:"bundle_id"`
	SubscriptionOrderID string     `json:"subscription_order_id,omitempty"`
	OneTimeOrderID      string     `json:"one_time_order_id,omitempty"`
	OrderIDs            []string   `json:"order_ids"`
	InvoiceIDs          []string   `json:"invoice_ids"`
	BundleKind          BundleKind `json:"bundle_kind"`
}

// Complete reports whether every order received an invoice.
func (r *Result) Complete() bool {
	return len(r.InvoiceIDs) == len(r.OrderIDs)
}

// PlanSource resolves subscription plans.
type PlanSource interface {
	Plan(id string) (subscription.Plan, error)
}

type Options struct {
	Currency       string
	InvoiceDueDays int
}

type Builder struct {
	repos       workflow.Repositories
	engine      *workflow.Engine
	plans       PlanSource
	claims      idempotency.Claimer
	compensator *Compensator
	opts        Options
	logger      zerolog.Logger
	now         func() time.Time
}

func NewBuilder(repos workflow.Repositories, engine *workflow.Engine, plans PlanSource, claims idempotency.Claimer, opts Options, logger zerolog.Logger) *Builder {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	return &Builder{
		repos:       repos,
		engine:      engine,
		plans:       plans,
		claims:      claims,
		compensator: NewCompensator(repos, logger),
		opts:        opts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func validate(req Request) error {
	if req.PatientID == "" {
		return invalidCheckout("patient_id is required")
	}
	for _, it := range req.OneTimeItems {
		if it.ProductID == "" {
			return invalidCheckout("one-time item without product_id")
		}
		if it.Quantity <= 0 {
			return invalidCheckout("product %s: quantity must be positive", it.ProductID)
		}
		if it.UnitPrice < 0 {
			return invalidCheckout("product %s: unit_price must not be negative", it.ProductID)
		}
	}
	if KindOf(req.PlanID != "", len(req.OneTimeItems) > 0) == "" {
		return invalidCheckout("checkout has neither a plan nor one-time items")
	}
	return nil
}

// Build creates the bundle for req. If an order, its line items or the link
// between orders cannot be written, everything written so far is removed and
// a BundleCreationFailed error is returned. Invoice failures are logged and
// leave the order without an invoice.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var plan subscription.Plan
	if req.PlanID != "" {
		p, err := b.plans.Plan(req.PlanID)
		if err != nil {
			return nil, err
		}
		plan = p
	}

	if req.SessionID != "" {
		if err := b.claim(ctx, req.SessionID); err != nil {
			return nil, err
		}
	}

	res, err := b.build(ctx, req, plan)
	if err != nil {
		if req.SessionID != "" {
			if rerr := b.claims.Release(ctx, req.SessionID); rerr != nil {
				b.logger.Warn().Err(rerr).Str("session_id", req.SessionID).Msg("failed to release checkout session")
			}
		}
		return nil, err
	}

	if req.SessionID != "" {
		if err := b.claims.Complete(ctx, req.SessionID, res.BundleID); err != nil {
			b.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("failed to record checkout session")
		}
	}
	return res, nil
}

func (b *Builder) claim(ctx context.Context, sessionID string) error {
	ok, err := b.claims.Claim(ctx, sessionID)
	if err != nil {
		return workflow.CollaboratorUnavailable("claim checkout session", err)
	}
	if ok {
		return nil
	}
	existing, err := b.claims.Lookup(ctx, sessionID)
	if err != nil {
		return workflow.CollaboratorUnavailable("look up checkout session", err)
	}
	return duplicateCheckout(sessionID, existing)
}

func (b *Builder) build(ctx context.Context, req Request, plan subscription.Plan) (*Result, error) {
	hasSub := req.PlanID != ""
	hasOneTime := len(req.OneTimeItems) > 0
	res := &Result{
		BundleID:   uuid.New().String(),
		BundleKind: KindOf(hasSub, hasOneTime),
		OrderIDs:   []string{},
		InvoiceIDs: []string{},
	}
	log := b.logger.With().Str("bundle_id", res.BundleID).Str("patient_id", req.PatientID).Logger()

	var created []string
	fail := func(err error) (*Result, error) {
		log.Error().Err(err).Strs("order_ids", created).Msg("bundle creation failed, compensating")
		b.compensator.Cleanup(context.WithoutCancel(ctx), created)
		return nil, workflow.BundleCreationFailed(res.BundleID, err)
	}

	var orders []*workflow.Order
	if hasSub {
		o := b.newOrder(req, res.BundleID, workflow.KindSubscription, plan.RequiresPrescription())
		o.TotalAmount = plan.Amount
		if plan.Currency != "" {
			o.Currency = plan.Currency
		}
		// The id is recorded before the write so a partial write is still
		// cleaned up.
		res.SubscriptionOrderID = o.ID
		created = append(created, o.ID)
		if err := b.repos.Orders.Create(ctx, o); err != nil {
			return fail(fmt.Errorf("create subscription order: %w", err))
		}
		for _, prod := range plan.IncludedProducts {
			li := b.newLineItem(o.ID, Item{ProductID: prod.ID, Name: prod.Name, Quantity: 1})
			li.IncludedInPlan = true
			if err := b.repos.LineItems.Create(ctx, li); err != nil {
				return fail(fmt.Errorf("create line item %s: %w", prod.ID, err))
			}
		}
		orders = append(orders, o)
	}

	if hasOneTime {
		kind := workflow.KindOneTime
		if hasSub {
			kind = workflow.KindSiblingLink
		}
		o := b.newOrder(req, res.BundleID, kind, anyRequiresPrescription(req.OneTimeItems))
		o.TotalAmount = oneTimeTotal(req.OneTimeItems)
		res.OneTimeOrderID = o.ID
		created = append(created, o.ID)
		if err := b.repos.Orders.Create(ctx, o); err != nil {
			return fail(fmt.Errorf("create one-time order: %w", err))
		}
		for _, it := range req.OneTimeItems {
			if err := b.repos.LineItems.Create(ctx, b.newLineItem(o.ID, it)); err != nil {
				return fail(fmt.Errorf("create line item %s: %w", it.ProductID, err))
			}
		}
		orders = append(orders, o)
	}

	if hasSub && hasOneTime {
		rel := &workflow.Relationship{
			ID:             uuid.New().String(),
			PrimaryOrderID: res.SubscriptionOrderID,
			RelatedOrderID: res.OneTimeOrderID,
			Type:           workflow.RelationshipBundledPurchase,
			CreatedAt:      b.now(),
		}
		if err := b.repos.Relationships.Create(ctx, rel); err != nil {
			return fail(fmt.Errorf("link bundle orders: %w", err))
		}
	}

	for _, o := range orders {
		if _, err := b.engine.StageOrder(ctx, o, workflow.ResolvePath(o.RequiresPrescription), "checkout"); err != nil {
			return fail(err)
		}
	}

	for _, o := range orders {
		res.OrderIDs = append(res.OrderIDs, o.ID)
		inv := b.newInvoice(o)
		if err := b.repos.Invoices.Create(ctx, inv); err != nil {
			log.Warn().Err(err).Str("order_id", o.ID).Msg("invoice creation failed; order left without invoice")
			continue
		}
		res.InvoiceIDs = append(res.InvoiceIDs, inv.ID)
	}

	// Patients hear about the orders only once the whole bundle exists.
	for _, o := range orders {
		b.engine.AnnounceOrder(ctx, o)
	}

	log.Info().
		Str("bundle_kind", string(res.BundleKind)).
		Strs("order_ids", res.OrderIDs).
		Int("invoices", len(res.InvoiceIDs)).
		Msg("bundle created")
	return res, nil
}

func (b *Builder) newOrder(req Request, bundleID string, kind workflow.Kind, requiresRx bool) *workflow.Order {
	now := b.now()
	return &workflow.Order{
		ID:                   uuid.New().String(),
		PatientID:            req.PatientID,
		Kind:                 kind,
		RequiresPrescription: requiresRx,
		Currency:             b.opts.Currency,
		BundleID:             bundleID,
		SessionID:            req.SessionID,
		ShippingAddress:      req.ShippingAddress,
		BillingAddress:       req.BillingAddress,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func (b *Builder) newLineItem(orderID string, it Item) *workflow.LineItem {
	return &workflow.LineItem{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		ProductID: it.ProductID,
		Name:      it.Name,
		Quantity:  it.Quantity,
		UnitPrice: it.UnitPrice,
		CreatedAt: b.now(),
	}
}

func (b *Builder) newInvoice(o *workflow.Order) *workflow.Invoice {
	now := b.now()
	return &workflow.Invoice{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		PatientID: o.PatientID,
		Amount:    o.TotalAmount,
		Currency:  o.Currency,
		Status:    workflow.InvoiceOpen,
		DueDate:   now.AddDate(0, 0, b.opts.InvoiceDueDays),
		CreatedAt: now,
	}
}

func oneTimeTotal(items []Item) float64 {
	var cents int64
	for _, it := range items {
		cents += int64(it.Quantity) * int64(math.Round(it.UnitPrice*100))
	}
	return float64(cents) / 100
}

func anyRequiresPrescription(items []Item) bool {
	for _, it := range items {
		if it.RequiresPrescription {
			return true
		}
	}
	return false
}
