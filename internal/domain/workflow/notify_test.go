package workflow

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/telehealth/internal/platform/notification"
)

type captureDispatcher struct {
	msgs []notification.Message
	err  error
}

func (d *captureDispatcher) Dispatch(msg notification.Message) error {
	d.msgs = append(d.msgs, msg)
	return d.err
}

func TestDispatchNotifier_PicksTemplateByStatus(t *testing.T) {
	d := &captureDispatcher{}
	n := NewDispatchNotifier(d, zerolog.Nop())
	o := &Order{ID: "ord-1", PatientID: "patient-1"}

	n.OrderStatusChanged(context.Background(), o, &Transition{Previous: StatusOrderProcessing, Next: StatusOrderShipped, StepIndex: 3})
	n.OrderStatusChanged(context.Background(), o, &Transition{Previous: StatusOrderShipped, Next: StatusOrderDelivered, StepIndex: 4})

	require.Len(t, d.msgs, 2)
	assert.Equal(t, notification.TemplateOrderShipped, d.msgs[0].TemplateID)
	assert.Equal(t, "patient-1", d.msgs[0].Recipient)
	assert.Equal(t, "3", d.msgs[0].Metadata["step_index"])
	assert.Equal(t, notification.TemplateStatusChanged, d.msgs[1].TemplateID)
	assert.Equal(t, "order_shipped", d.msgs[1].Data["previous_status"])
}

func TestDispatchNotifier_QueueFullIsSwallowed(t *testing.T) {
	d := &captureDispatcher{err: notification.ErrQueueFull}
	n := NewDispatchNotifier(d, zerolog.Nop())

	assert.NotPanics(t, func() {
		n.OrderStatusChanged(context.Background(), &Order{ID: "o"}, &Transition{Next: StatusCompleted})
	})
}
