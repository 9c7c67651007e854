package notification

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Name:    "Test Template",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"code": "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q, want %q", body, "Dear Alice, your code is 1234.")
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_BuiltInTemplates(t *testing.T) {
	eng := NewTemplateEngine()
	for _, id := range []string{TemplateRemittanceErrors, TemplateSubmissionFailures} {
		subject, body, err := eng.Render(id, nil)
		if err != nil {
			t.Errorf("built-in template %q: %v", id, err)
			continue
		}
		if subject == "" || body == "" {
			t.Errorf("built-in template %q rendered empty", id)
		}
	}
}

func TestTemplateEngine_RenderMissingKey(t *testing.T) {
	eng := NewTemplateEngine()
	subject, _, err := eng.Render(TemplateRemittanceErrors, map[string]string{"job_id": "j-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(subject, "j-1") || !strings.Contains(subject, "{{error_count}}") {
		t.Errorf("unexpected subject %q", subject)
	}
}

func TestService_SendTemplate(t *testing.T) {
	mock := &MockMailer{}
	svc := NewService(mock, nil, zerolog.Nop())

	att := Attachment{FileName: "errors.csv", ContentType: "text/csv", Content: []byte("a,b\n")}
	err := svc.SendTemplate(context.Background(), TemplateRemittanceErrors,
		map[string]string{"job_id": "j-1", "error_count": "2"},
		[]string{"uploader@clinic.example", " ", "ADMIN@rcm.example", "admin@rcm.example"}, att)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one message, got %d", len(calls))
	}
	msg := calls[0]
	if len(msg.To) != 2 {
		t.Errorf("expected deduplicated recipients, got %v", msg.To)
	}
	if msg.Subject != "Remittance import j-1: 2 rows need attention" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].FileName != "errors.csv" {
		t.Errorf("unexpected attachments %+v", msg.Attachments)
	}
}

func TestService_SendTemplate_Errors(t *testing.T) {
	mock := &MockMailer{ShouldFail: true, FailError: "smtp down"}
	svc := NewService(mock, nil, zerolog.Nop())
	ctx := context.Background()

	if err := svc.SendTemplate(ctx, TemplateSubmissionFailures, nil, nil); err == nil {
		t.Error("expected error without recipients")
	}
	if err := svc.SendTemplate(ctx, "unknown", nil, []string{"a@b.c"}); err == nil {
		t.Error("expected error for unknown template")
	}
	err := svc.SendTemplate(ctx, TemplateSubmissionFailures, nil, []string{"a@b.c"})
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Errorf("expected mailer error, got %v", err)
	}
}

func TestSMTPMailer_Send(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "mail.example", Port: 2525, From: "billing@rcm.example"})
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}
	var sent []*mail.Msg
	m.send = func(_ context.Context, msgs ...*mail.Msg) error {
		sent = append(sent, msgs...)
		return nil
	}

	content := []byte("Line Number,Error Reason\n2,not found\n")
	err = m.Send(context.Background(), Message{
		To:          []string{"a@clinic.example", "b@clinic.example"},
		Subject:     "Remittance errors",
		Body:        "See attached.",
		Attachments: []Attachment{{FileName: "errors.csv", ContentType: "text/csv", Content: content}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	rcpts, err := sent[0].GetRecipients()
	if err != nil || len(rcpts) != 2 || rcpts[0] != "a@clinic.example" {
		t.Errorf("recipients = %v (%v)", rcpts, err)
	}
	if from := sent[0].GetFromString(); len(from) != 1 || !strings.Contains(from[0], "billing@rcm.example") {
		t.Errorf("from = %v", from)
	}

	var buf strings.Builder
	if _, err := sent[0].WriteTo(&buf); err != nil {
		t.Fatalf("write message: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{
		"Subject: Remittance errors",
		"multipart/mixed",
		"See attached.",
		`filename="errors.csv"`,
		base64.StdEncoding.EncodeToString(content),
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSMTPMailer_SendError(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "mail.example", Port: 25, From: "billing@rcm.example"})
	if err != nil {
		t.Fatalf("new mailer: %v", err)
	}
	m.send = func(context.Context, ...*mail.Msg) error { return errors.New("connection refused") }
	err = m.Send(context.Background(), Message{To: []string{"a@b.c"}})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected send error, got %v", err)
	}

	if err := m.Send(context.Background(), Message{To: []string{"not an address"}}); err == nil {
		t.Error("expected an invalid recipient to be rejected")
	}
}

func TestNewSMTPMailer_RequiresHost(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{}); err == nil {
		t.Fatal("expected error without a host")
	}
}

type mockPublisher struct {
	key string
	msg amqp091.Publishing
}

func (p *mockPublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	p.key = key
	p.msg = msg
	return nil
}

func TestQueueMailer_RoundTripThroughRelay(t *testing.T) {
	pub := &mockPublisher{}
	qm := NewQueueMailer(pub, "mail")
	sent := Message{To: []string{"a@b.c"}, Subject: "s", Body: "b",
		Attachments: []Attachment{{FileName: "r.csv", Content: []byte("x,y")}}}

	if err := qm.Send(context.Background(), sent); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if pub.key != "mail" || pub.msg.DeliveryMode != amqp091.Persistent {
		t.Errorf("unexpected publishing to %q mode %d", pub.key, pub.msg.DeliveryMode)
	}

	mock := &MockMailer{}
	if err := RelayHandler(mock)(context.Background(), pub.msg.Body); err != nil {
		t.Fatalf("relay: %v", err)
	}
	got := mock.Calls()
	if len(got) != 1 || string(got[0].Attachments[0].Content) != "x,y" {
		t.Errorf("relay delivered %+v", got)
	}

	if err := RelayHandler(mock)(context.Background(), []byte("{not json")); err == nil {
		t.Error("expected decode error")
	}
	var decoded Message
	if err := json.Unmarshal(pub.msg.Body, &decoded); err != nil || decoded.Subject != "s" {
		t.Errorf("published body not a message: %v", err)
	}
}
