// Package prescription issues prescriptions for approved orders by recording
// them in the prescriptions collection, where the e-prescribing integration
// picks them up.
package prescription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/telehealth/internal/domain/workflow"
	"github.com/ehr/telehealth/internal/platform/store"
)

const Collection = "prescriptions"

type Status string

const (
	StatusIssued      Status = "issued"
	StatusTransmitted Status = "transmitted"
)

type Prescription struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"order_id"`
	PatientID  string    `json:"patient_id"`
	ProviderID string    `json:"provider_id,omitempty"`
	Status     Status    `json:"status"`
	IssuedAt   time.Time `json:"issued_at"`
}

// IDFor derives the prescription id from the order so reissuing is a no-op.
func IDFor(orderID string) string {
	return "rx-" + orderID
}

// StoreIssuer implements workflow.PrescriptionIssuer on the record store.
type StoreIssuer struct {
	s      store.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewStoreIssuer(s store.Store, logger zerolog.Logger) *StoreIssuer {
	return &StoreIssuer{s: s, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

var _ workflow.PrescriptionIssuer = (*StoreIssuer)(nil)

func (i *StoreIssuer) IssuePrescription(ctx context.Context, o *workflow.Order) error {
	rx := &Prescription{
		ID:         IDFor(o.ID),
		OrderID:    o.ID,
		PatientID:  o.PatientID,
		ProviderID: o.ProviderID,
		Status:     StatusIssued,
		IssuedAt:   i.now(),
	}
	err := i.s.Create(ctx, Collection, rx.ID, rx)
	if errors.Is(err, store.ErrAlreadyExists) {
		i.logger.Info().Str("order_id", o.ID).Str("prescription_id", rx.ID).Msg("prescription already issued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create prescription for order %s: %w", o.ID, err)
	}
	return nil
}

// Issued reports whether a prescription has been recorded for the order.
func (i *StoreIssuer) Issued(ctx context.Context, orderID string) (bool, error) {
	_, err := i.Get(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the prescription issued for an order.
func (i *StoreIssuer) Get(ctx context.Context, orderID string) (*Prescription, error) {
	var rx Prescription
	if err := i.s.Get(ctx, Collection, IDFor(orderID), &rx); err != nil {
		return nil, fmt.Errorf("prescription for order %s: %w", orderID, err)
	}
	return &rx, nil
}
