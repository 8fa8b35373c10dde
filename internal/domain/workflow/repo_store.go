package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/ehr/telehealth/internal/platform/store"
)

// Repositories groups the record-store backed repositories of the workflow.
type Repositories struct {
	Orders        OrderRepository
	LineItems     LineItemRepository
	Relationships RelationshipRepository
	Invoices      InvoiceRepository
}

func NewStoreRepositories(s store.Store) Repositories {
	return Repositories{
		Orders:        &orderStore{s: s},
		LineItems:     &lineItemStore{s: s},
		Relationships: &relationshipStore{s: s},
		Invoices:      &invoiceStore{s: s},
	}
}

func mapNotFound(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFound(kind, id)
	}
	return err
}

type orderStore struct {
	s store.Store
}

func (r *orderStore) Create(ctx context.Context, o *Order) error {
	return r.s.Create(ctx, CollectionOrders, o.ID, o)
}

func (r *orderStore) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	if err := r.s.Get(ctx, CollectionOrders, id, &o); err != nil {
		return nil, mapNotFound(err, "order", id)
	}
	return &o, nil
}

func (r *orderStore) SaveTransition(ctx context.Context, o *Order) error {
	err := r.s.Update(ctx, CollectionOrders, o.ID, map[string]interface{}{
		"status":             o.Status,
		"workflow_path":      o.WorkflowPath,
		"current_step_index": o.CurrentStepIndex,
		"status_history":     o.StatusHistory,
		"updated_at":         o.UpdatedAt,
	})
	return mapNotFound(err, "order", o.ID)
}

func (r *orderStore) Delete(ctx context.Context, id string) error {
	return r.s.Delete(ctx, CollectionOrders, id)
}

func (r *orderStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Order, int, error) {
	all, err := store.QueryAll[*Order](ctx, r.s, CollectionOrders, store.Query{
		Filters: []store.Filter{store.Eq("patient_id", patientID)},
		OrderBy: "created_at",
		Desc:    true,
	})
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	if offset >= total {
		return []*Order{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *orderStore) ListParked(ctx context.Context, statuses []Status, before time.Time, limit int) ([]*Order, error) {
	return store.QueryAll[*Order](ctx, r.s, CollectionOrders, store.Query{
		Filters: []store.Filter{
			store.In("status", statuses),
			store.Lt("updated_at", before),
		},
		OrderBy: "updated_at",
		Limit:   limit,
	})
}

type lineItemStore struct {
	s store.Store
}

func (r *lineItemStore) Create(ctx context.Context, li *LineItem) error {
	return r.s.Create(ctx, CollectionLineItems, li.ID, li)
}

func (r *lineItemStore) ListByOrder(ctx context.Context, orderID string) ([]*LineItem, error) {
	return store.QueryAll[*LineItem](ctx, r.s, CollectionLineItems, store.Query{
		Filters: []store.Filter{store.Eq("order_id", orderID)},
	})
}

func (r *lineItemStore) Delete(ctx context.Context, id string) error {
	return r.s.Delete(ctx, CollectionLineItems, id)
}

type relationshipStore struct {
	s store.Store
}

func (r *relationshipStore) Create(ctx context.Context, rel *Relationship) error {
	return r.s.Create(ctx, CollectionRelationships, rel.ID, rel)
}

func (r *relationshipStore) ListByPrimary(ctx context.Context, orderID string) ([]*Relationship, error) {
	return store.QueryAll[*Relationship](ctx, r.s, CollectionRelationships, store.Query{
		Filters: []store.Filter{store.Eq("primary_order_id", orderID)},
	})
}

func (r *relationshipStore) Delete(ctx context.Context, id string) error {
	return r.s.Delete(ctx, CollectionRelationships, id)
}

type invoiceStore struct {
	s store.Store
}

func (r *invoiceStore) Create(ctx context.Context, inv *Invoice) error {
	return r.s.Create(ctx, CollectionInvoices, inv.ID, inv)
}

func (r *invoiceStore) ListByOrder(ctx context.Context, orderID string) ([]*Invoice, error) {
	return store.QueryAll[*Invoice](ctx, r.s, CollectionInvoices, store.Query{
		Filters: []store.Filter{store.Eq("order_id", orderID)},
	})
}

func (r *invoiceStore) SetStatus(ctx context.Context, id string, status InvoiceStatus, at time.Time) error {
	fields := map[string]interface{}{"status": status}
	if status == InvoicePaid {
		fields["paid_at"] = at
	}
	return mapNotFound(r.s.Update(ctx, CollectionInvoices, id, fields), "invoice", id)
}

func (r *invoiceStore) Delete(ctx context.Context, id string) error {
	return r.s.Delete(ctx, CollectionInvoices, id)
}
