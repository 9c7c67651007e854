// Package notification renders billing templates and delivers them as email
// through a pluggable Mailer (log, SMTP or an AMQP mail queue).
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	TemplateRemittanceErrors   = "remittance-errors"
	TemplateSubmissionFailures = "submission-failures"
)

// Attachment is a file sent with a message.
type Attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// Message is one outbound email to one or more recipients.
type Message struct {
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateRemittanceErrors,
			Name:    "Remittance Import Errors",
			Subject: "Remittance import {{job_id}}: {{error_count}} rows need attention",
			Body: "The remittance file {{file_name}} was processed. {{payment_count}} payments were posted " +
				"and {{error_count}} rows could not be reconciled. The attached report lists each row " +
				"with the reason and a suggested fix.",
		},
		{
			ID:      TemplateSubmissionFailures,
			Name:    "Claim Submission Failures",
			Subject: "Claim submission for {{organization}}: {{failed_count}} encounters failed",
			Body: "{{successful_count}} encounters were submitted and {{failed_count}} failed.\n\n" +
				"Failed encounters:\n{{failures}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Service renders templates and hands the result to a Mailer.
type Service struct {
	mailer    Mailer
	templates *TemplateEngine
	logger    zerolog.Logger
}

func NewService(mailer Mailer, templates *TemplateEngine, logger zerolog.Logger) *Service {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Service{
		mailer:    mailer,
		templates: templates,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// SendTemplate renders templateID and sends it once to all recipients.
// Blank and duplicate addresses are dropped.
func (s *Service) SendTemplate(ctx context.Context, templateID string, data map[string]string, to []string, attachments ...Attachment) error {
	recipients := uniqueRecipients(to)
	if len(recipients) == 0 {
		return errors.New("notification has no recipients")
	}
	subject, body, err := s.templates.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	msg := Message{To: recipients, Subject: subject, Body: body, Attachments: attachments}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", templateID, err)
	}
	s.logger.Info().
		Str("template", templateID).
		Int("recipients", len(recipients)).
		Int("attachments", len(attachments)).
		Msg("notification sent")
	return nil
}

func uniqueRecipients(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, addr := range in {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "log-mailer").Logger()}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	names := make([]string, len(msg.Attachments))
	for i, a := range msg.Attachments {
		names[i] = a.FileName
	}
	m.logger.Info().
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Strs("attachments", names).
		Msg("email")
	return nil
}

// MockMailer is a test double for Mailer.
type MockMailer struct {
	mu         sync.Mutex
	calls      []Message
	ShouldFail bool
	FailError  string
}

// Send records the call and optionally returns an error.
func (m *MockMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded messages.
func (m *MockMailer) Calls() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.calls))
	copy(out, m.calls)
	return out
}
