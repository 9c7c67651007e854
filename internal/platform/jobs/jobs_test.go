package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type mockChannel struct {
	key  string
	msgs []amqp091.Publishing
	err  error
}

func (m *mockChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	if m.err != nil {
		return m.err
	}
	m.key = key
	m.msgs = append(m.msgs, msg)
	return nil
}

func TestPublisher_Enqueue(t *testing.T) {
	ch := &mockChannel{}
	p := NewPublisher(ch, "billing-jobs")
	p.now = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }

	org := uuid.New()
	id, err := p.Enqueue(context.Background(), TypeEncounterSubmission, SubmissionPayload{
		OrganizationID: org,
		EncounterIDs:   []uuid.UUID{uuid.New()},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if ch.key != "billing-jobs" || len(ch.msgs) != 1 {
		t.Fatalf("expected one message on billing-jobs, got %d on %q", len(ch.msgs), ch.key)
	}
	msg := ch.msgs[0]
	if msg.DeliveryMode != amqp091.Persistent || msg.MessageId != id.String() || msg.Type != TypeEncounterSubmission {
		t.Errorf("unexpected publishing %+v", msg)
	}

	var job Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var payload SubmissionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if job.ID != id || payload.OrganizationID != org {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestPublisher_EnqueueError(t *testing.T) {
	p := NewPublisher(&mockChannel{err: errors.New("channel closed")}, "q")
	if _, err := p.Enqueue(context.Background(), TypeRemittanceIngest, RemittancePayload{}); err == nil {
		t.Fatal("expected publish error")
	}
}

func encodeJob(t *testing.T, jobType string) []byte {
	t.Helper()
	body, err := json.Marshal(Job{ID: uuid.New(), Type: jobType, Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestRouter_HandleMessage(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	var got string
	r.Handle(TypeRemittanceIngest, func(_ context.Context, job Job) error {
		got = job.Type
		return nil
	})
	r.Handle(TypeEncounterSubmission, func(context.Context, Job) error {
		return errors.New("database unavailable")
	})
	ctx := context.Background()

	if err := r.HandleMessage(ctx, encodeJob(t, TypeRemittanceIngest)); err != nil || got != TypeRemittanceIngest {
		t.Errorf("expected dispatch, got %q, %v", got, err)
	}

	err := r.HandleMessage(ctx, encodeJob(t, TypeEncounterSubmission))
	if err == nil || errors.Is(err, ErrPermanent) {
		t.Errorf("expected transient handler error, got %v", err)
	}

	if err := r.HandleMessage(ctx, encodeJob(t, "unknown")); !errors.Is(err, ErrPermanent) {
		t.Errorf("expected permanent error for unknown type, got %v", err)
	}
	if err := r.HandleMessage(ctx, []byte("not json")); !errors.Is(err, ErrPermanent) {
		t.Errorf("expected permanent error for bad body, got %v", err)
	}
}

type ackCall struct {
	ack     bool
	requeue bool
}

type mockAcknowledger struct {
	calls []ackCall
}

func (m *mockAcknowledger) Ack(uint64, bool) error {
	m.calls = append(m.calls, ackCall{ack: true})
	return nil
}

func (m *mockAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	m.calls = append(m.calls, ackCall{requeue: requeue})
	return nil
}

func (m *mockAcknowledger) Reject(_ uint64, requeue bool) error {
	m.calls = append(m.calls, ackCall{requeue: requeue})
	return nil
}

func TestConsumer_ProcessMarksFinalAttempt(t *testing.T) {
	for _, redelivered := range []bool{false, true} {
		var got bool
		c := NewConsumer(nil, "q", 1, func(ctx context.Context, _ []byte) error {
			got = FinalAttempt(ctx)
			return nil
		}, zerolog.Nop())
		c.Process(context.Background(), amqp091.Delivery{Acknowledger: &mockAcknowledger{}, Redelivered: redelivered})
		if got != redelivered {
			t.Errorf("redelivered=%v: FinalAttempt = %v", redelivered, got)
		}
	}
	if FinalAttempt(context.Background()) {
		t.Error("a bare context is not a final attempt")
	}
}

func TestConsumer_Process(t *testing.T) {
	transient := errors.New("timeout")
	tests := []struct {
		name        string
		err         error
		redelivered bool
		want        ackCall
	}{
		{"success acks", nil, false, ackCall{ack: true}},
		{"first failure requeues", transient, false, ackCall{requeue: true}},
		{"second failure drops", transient, true, ackCall{requeue: false}},
		{"permanent failure drops", Permanent(transient), false, ackCall{requeue: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsumer(nil, "q", 1, func(context.Context, []byte) error { return tt.err }, zerolog.Nop())
			ack := &mockAcknowledger{}
			c.Process(context.Background(), amqp091.Delivery{Acknowledger: ack, Redelivered: tt.redelivered, DeliveryTag: 7})
			if len(ack.calls) != 1 || ack.calls[0] != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, ack.calls)
			}
		})
	}
}
