package workflow

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ehr/telehealth/internal/platform/notification"
)

// Dispatcher is the part of notification.Dispatcher the engine needs.
type Dispatcher interface {
	Dispatch(msg notification.Message) error
}

// DispatchNotifier turns transitions into patient notifications.
type DispatchNotifier struct {
	d      Dispatcher
	logger zerolog.Logger
}

func NewDispatchNotifier(d Dispatcher, logger zerolog.Logger) *DispatchNotifier {
	return &DispatchNotifier{d: d, logger: logger}
}

var statusTemplates = map[Status]string{
	StatusPrescriptionSent: notification.TemplatePrescriptionSent,
	StatusOrderShipped:     notification.TemplateOrderShipped,
	StatusCompleted:        notification.TemplateOrderCompleted,
}

func (n *DispatchNotifier) OrderStatusChanged(_ context.Context, o *Order, t *Transition) {
	tpl, ok := statusTemplates[t.Next]
	if !ok {
		tpl = notification.TemplateStatusChanged
	}
	err := n.d.Dispatch(notification.Message{
		TemplateID: tpl,
		Recipient:  o.PatientID,
		Data: map[string]string{
			"order_id":        o.ID,
			"status":          string(t.Next),
			"previous_status": string(t.Previous),
		},
		Metadata: map[string]string{
			"order_id":   o.ID,
			"step_index": strconv.Itoa(t.StepIndex),
		},
	})
	if err != nil {
		n.logger.Warn().Err(err).Str("order_id", o.ID).Msg("status notification not queued")
	}
}
