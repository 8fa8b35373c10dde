package checkout

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ehr/telehealth/internal/domain/workflow"
)

// Compensator removes the records of a bundle that failed part way through.
type Compensator struct {
	repos  workflow.Repositories
	logger zerolog.Logger
}

func NewCompensator(repos workflow.Repositories, logger zerolog.Logger) *Compensator {
	return &Compensator{repos: repos, logger: logger}
}

// Cleanup deletes, per order, its line items, the relationships it is the
// primary of, its invoices and finally the order itself. Failures are logged
// and cleanup carries on; nothing is returned to the caller.
func (c *Compensator) Cleanup(ctx context.Context, orderIDs []string) {
	for _, id := range orderIDs {
		c.cleanupOrder(ctx, id)
	}
}

func (c *Compensator) cleanupOrder(ctx context.Context, orderID string) {
	log := c.logger.With().Str("order_id", orderID).Logger()

	items, err := c.repos.LineItems.ListByOrder(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Msg("compensation: list line items")
	}
	for _, li := range items {
		if err := c.repos.LineItems.Delete(ctx, li.ID); err != nil {
			log.Error().Err(err).Str("line_item_id", li.ID).Msg("compensation: delete line item")
		}
	}

	rels, err := c.repos.Relationships.ListByPrimary(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Msg("compensation: list relationships")
	}
	for _, r := range rels {
		if err := c.repos.Relationships.Delete(ctx, r.ID); err != nil {
			log.Error().Err(err).Str("relationship_id", r.ID).Msg("compensation: delete relationship")
		}
	}

	invoices, err := c.repos.Invoices.ListByOrder(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Msg("compensation: list invoices")
	}
	for _, inv := range invoices {
		if err := c.repos.Invoices.Delete(ctx, inv.ID); err != nil {
			log.Error().Err(err).Str("invoice_id", inv.ID).Msg("compensation: delete invoice")
		}
	}

	if err := c.repos.Orders.Delete(ctx, orderID); err != nil {
		log.Error().Err(err).Msg("compensation: delete order")
		return
	}
	log.Info().
		Int("line_items", len(items)).
		Int("relationships", len(rels)).
		Int("invoices", len(invoices)).
		Msg("compensation: order removed")
}
