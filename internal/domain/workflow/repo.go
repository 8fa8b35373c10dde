package workflow

import (
	"context"
	"time"
)

type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// SaveTransition writes the workflow fields of o: status, step index,
	// history and updated_at.
	SaveTransition(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id string) error
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Order, int, error)
	// ListParked returns orders in one of statuses whose last update is older
	// than before, oldest first.
	ListParked(ctx context.Context, statuses []Status, before time.Time, limit int) ([]*Order, error)
}

type LineItemRepository interface {
	Create(ctx context.Context, li *LineItem) error
	ListByOrder(ctx context.Context, orderID string) ([]*LineItem, error)
	Delete(ctx context.Context, id string) error
}

type RelationshipRepository interface {
	Create(ctx context.Context, r *Relationship) error
	ListByPrimary(ctx context.Context, orderID string) ([]*Relationship, error)
	Delete(ctx context.Context, id string) error
}

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	ListByOrder(ctx context.Context, orderID string) ([]*Invoice, error)
	SetStatus(ctx context.Context, id string, status InvoiceStatus, at time.Time) error
	Delete(ctx context.Context, id string) error
}
