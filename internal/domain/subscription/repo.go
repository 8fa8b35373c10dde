package subscription

import (
	"context"
	"errors"

	"github.com/ehr/telehealth/internal/platform/store"
)

type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	Save(ctx context.Context, s *Subscription) error
	ListByCustomer(ctx context.Context, customerID string) ([]*Subscription, error)
}

type storeRepo struct {
	s store.Store
}

func NewStoreRepository(s store.Store) Repository {
	return &storeRepo{s: s}
}

func (r *storeRepo) Create(ctx context.Context, sub *Subscription) error {
	return r.s.Create(ctx, Collection, sub.ID, sub)
}

func (r *storeRepo) Get(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	if err := r.s.Get(ctx, Collection, id, &sub); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, err
	}
	return &sub, nil
}

// Save overwrites every top-level field of the stored subscription.
func (r *storeRepo) Save(ctx context.Context, sub *Subscription) error {
	fields, err := store.ToFields(sub)
	if err != nil {
		return err
	}
	// Cleared optional timestamps must overwrite the stored values.
	fields["cancelled_at"] = sub.CancelledAt
	fields["paused_at"] = sub.PausedAt
	if err := r.s.Update(ctx, Collection, sub.ID, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(sub.ID)
		}
		return err
	}
	return nil
}

func (r *storeRepo) ListByCustomer(ctx context.Context, customerID string) ([]*Subscription, error) {
	return store.QueryAll[*Subscription](ctx, r.s, Collection, store.Query{
		Filters: []store.Filter{store.Eq("customer_id", customerID)},
		OrderBy: "created_at",
		Desc:    true,
	})
}
