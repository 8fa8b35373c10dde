// Package notification renders order status templates and delivers them over
// email or SMS from a bounded background queue. Delivery is fire-and-forget:
// callers never observe send failures, they are logged.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Channel is the medium a notification is delivered through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

var ErrQueueFull = errors.New("notification queue is full")

// Notification is one rendered outbound message.
type Notification struct {
	ID         string            `json:"id"`
	Channel    Channel           `json:"channel"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template is a reusable message with {{key}} placeholders.
type Template struct {
	ID      string  `json:"id"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

const (
	TemplateStatusChanged    = "order-status-changed"
	TemplatePrescriptionSent = "prescription-sent"
	TemplateOrderShipped     = "order-shipped"
	TemplateOrderCompleted   = "order-completed"
)

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine returns an engine with the order lifecycle templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range []Template{
		{
			ID:      TemplateStatusChanged,
			Subject: "Your order {{order_id}} was updated",
			Body:    "Your order {{order_id}} moved from {{previous_status}} to {{status}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplatePrescriptionSent,
			Subject: "Your prescription is on its way to the pharmacy",
			Body:    "The prescription for order {{order_id}} was sent to the pharmacy. We will let you know when it is being filled.",
			Channel: ChannelEmail,
		},
		{
			ID:      TemplateOrderShipped,
			Body:    "Order {{order_id}} has shipped.",
			Channel: ChannelSMS,
		},
		{
			ID:      TemplateOrderCompleted,
			Subject: "Order {{order_id}} is complete",
			Body:    "Order {{order_id}} is complete. Thank you for choosing us.",
			Channel: ChannelEmail,
		},
	} {
		e.templates[t.ID] = t
	}
	return e
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render replaces {{key}} placeholders; keys missing from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Template, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return Template{}, fmt.Errorf("template %q not found", templateID)
	}
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		t.Subject = strings.ReplaceAll(t.Subject, placeholder, v)
		t.Body = strings.ReplaceAll(t.Body, placeholder, v)
	}
	return t, nil
}

// Message is a request to render and deliver a template.
type Message struct {
	TemplateID string
	Recipient  string
	Data       map[string]string
	Metadata   map[string]string
}

// Dispatcher delivers messages from a bounded queue on a fixed set of workers.
type Dispatcher struct {
	email     EmailSender
	sms       SMSSender
	templates *TemplateEngine
	logger    zerolog.Logger

	queue  chan Message
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	recentMu sync.Mutex
	recent   []*Notification
	keep     int
}

// NewDispatcher starts workers goroutines reading from a queue of size
// queueSize. Call Close to drain and stop them.
func NewDispatcher(email EmailSender, sms SMSSender, tpl *TemplateEngine, logger zerolog.Logger, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	d := &Dispatcher{
		email:     email,
		sms:       sms,
		templates: tpl,
		logger:    logger,
		queue:     make(chan Message, queueSize),
		keep:      200,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Dispatch enqueues msg without blocking.
func (d *Dispatcher) Dispatch(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.New("dispatcher is closed")
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		d.logger.Warn().Str("template", msg.TemplateID).Str("recipient", msg.Recipient).Msg("notification dropped: queue full")
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for msg := range d.queue {
		n, err := d.Send(context.Background(), msg)
		if err != nil {
			d.logger.Error().Err(err).
				Str("template", msg.TemplateID).
				Str("recipient", msg.Recipient).
				Msg("notification delivery failed")
			if n == nil {
				continue
			}
		}
		d.remember(n)
	}
}

// Send renders and delivers msg synchronously.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (*Notification, error) {
	t, err := d.templates.Render(msg.TemplateID, msg.Data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	n := &Notification{
		ID:         uuid.New().String(),
		Channel:    t.Channel,
		Recipient:  msg.Recipient,
		Subject:    t.Subject,
		Body:       t.Body,
		TemplateID: t.ID,
		Status:     "pending",
		CreatedAt:  time.Now().UTC(),
		Metadata:   msg.Metadata,
	}

	var sendErr error
	switch n.Channel {
	case ChannelEmail:
		sendErr = d.email.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case ChannelSMS:
		sendErr = d.sms.SendSMS(ctx, n.Recipient, n.Body)
	default:
		sendErr = fmt.Errorf("unsupported channel: %s", n.Channel)
	}

	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
		return n, sendErr
	}
	sentAt := time.Now().UTC()
	n.Status = "sent"
	n.SentAt = &sentAt
	return n, nil
}

func (d *Dispatcher) remember(n *Notification) {
	d.recentMu.Lock()
	defer d.recentMu.Unlock()
	d.recent = append(d.recent, n)
	if len(d.recent) > d.keep {
		d.recent = d.recent[len(d.recent)-d.keep:]
	}
}

// Recent returns the most recently processed notifications, oldest first.
func (d *Dispatcher) Recent() []*Notification {
	d.recentMu.Lock()
	defer d.recentMu.Unlock()
	out := make([]*Notification, len(d.recent))
	copy(out, d.recent)
	return out
}

// LogSender satisfies both sender interfaces by writing messages to the log.
// It is the default when no provider is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("channel", "email").Str("to", to).Str("subject", subject).Str("body", body).Msg("notification")
	return nil
}

func (s LogSender) SendSMS(_ context.Context, to, body string) error {
	s.Logger.Info().Str("channel", "sms").Str("to", to).Str("body", body).Msg("notification")
	return nil
}
