package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type mockSender struct {
	mu         sync.Mutex
	emails     []string
	sms        []string
	shouldFail bool
}

func (m *mockSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, to+"|"+subject+"|"+body)
	if m.shouldFail {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (m *mockSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sms = append(m.sms, to+"|"+body)
	if m.shouldFail {
		return errors.New("sms gateway unavailable")
	}
	return nil
}

func (m *mockSender) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.emails), len(m.sms)
}

func TestTemplateEngine_Render(t *testing.T) {
	eng := NewTemplateEngine()
	tpl, err := eng.Render(TemplateStatusChanged, map[string]string{
		"order_id":        "ord-1",
		"previous_status": "provider_review",
		"status":          "provider_approved",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Subject != "Your order ord-1 was updated" {
		t.Errorf("subject = %q", tpl.Subject)
	}
	if tpl.Body != "Your order ord-1 moved from provider_review to provider_approved." {
		t.Errorf("body = %q", tpl.Body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template")
	}
}

func TestTemplateEngine_MissingKeyLeftAsIs(t *testing.T) {
	eng := NewTemplateEngine()
	eng.Register(Template{ID: "partial", Body: "code {{code}} token {{token}}", Channel: ChannelSMS})

	tpl, err := eng.Render("partial", map[string]string{"code": "5678"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.Body != "code 5678 token {{token}}" {
		t.Errorf("body = %q", tpl.Body)
	}
}

func TestTemplateEngine_RenderDoesNotMutateTemplate(t *testing.T) {
	eng := NewTemplateEngine()
	if _, err := eng.Render(TemplateOrderShipped, map[string]string{"order_id": "a"}); err != nil {
		t.Fatal(err)
	}
	tpl, _ := eng.Render(TemplateOrderShipped, map[string]string{"order_id": "b"})
	if tpl.Body != "Order b has shipped." {
		t.Errorf("body = %q", tpl.Body)
	}
}

func TestDispatcher_SendRoutesByChannel(t *testing.T) {
	s := &mockSender{}
	d := NewDispatcher(s, s, NewTemplateEngine(), zerolog.Nop(), 1, 10)
	defer d.Close()

	n, err := d.Send(context.Background(), Message{TemplateID: TemplateOrderShipped, Recipient: "patient-1", Data: map[string]string{"order_id": "o1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Status != "sent" || n.SentAt == nil {
		t.Errorf("expected sent notification, got %+v", n)
	}
	emails, sms := s.counts()
	if emails != 0 || sms != 1 {
		t.Errorf("expected 1 sms and 0 emails, got %d sms %d emails", sms, emails)
	}
}

func TestDispatcher_SendFailure(t *testing.T) {
	s := &mockSender{shouldFail: true}
	d := NewDispatcher(s, s, NewTemplateEngine(), zerolog.Nop(), 1, 10)
	defer d.Close()

	n, err := d.Send(context.Background(), Message{TemplateID: TemplateOrderCompleted, Recipient: "p", Data: map[string]string{"order_id": "o"}})
	if err == nil {
		t.Fatal("expected send error")
	}
	if n == nil || n.Status != "failed" || n.Error == "" {
		t.Errorf("expected failed notification, got %+v", n)
	}
}

func TestDispatcher_DispatchIsDeliveredBeforeClose(t *testing.T) {
	s := &mockSender{}
	d := NewDispatcher(s, s, NewTemplateEngine(), zerolog.Nop(), 2, 10)

	for i := 0; i < 5; i++ {
		if err := d.Dispatch(Message{TemplateID: TemplateStatusChanged, Recipient: "p"}); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	d.Close()

	emails, _ := s.counts()
	if emails != 5 {
		t.Errorf("expected 5 emails, got %d", emails)
	}
	if len(d.Recent()) != 5 {
		t.Errorf("expected 5 recent notifications, got %d", len(d.Recent()))
	}
}

func TestDispatcher_DispatchAfterClose(t *testing.T) {
	s := &mockSender{}
	d := NewDispatcher(s, s, NewTemplateEngine(), zerolog.Nop(), 1, 1)
	d.Close()
	d.Close()

	if err := d.Dispatch(Message{TemplateID: TemplateStatusChanged}); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	block := make(chan struct{})
	s := &blockingSender{started: make(chan struct{}), release: block}
	d := NewDispatcher(s, s, NewTemplateEngine(), zerolog.Nop(), 1, 1)

	// One message is held by the worker, one fills the queue.
	_ = d.Dispatch(Message{TemplateID: TemplateStatusChanged})
	<-s.started
	_ = d.Dispatch(Message{TemplateID: TemplateStatusChanged})

	if err := d.Dispatch(Message{TemplateID: TemplateStatusChanged}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	close(block)
	d.Close()
}

type blockingSender struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingSender) SendEmail(context.Context, string, string, string) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}

func (b *blockingSender) SendSMS(context.Context, string, string) error { return nil }
