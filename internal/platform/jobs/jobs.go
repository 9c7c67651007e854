// Package jobs carries background work over AMQP. A Job is a typed JSON
// envelope; Publisher enqueues jobs, Consumer runs one delivery at a time per
// channel and Router dispatches each job to the handler for its type.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	TypeRemittanceIngest    = "remittance.ingest"
	TypeEncounterSubmission = "encounter.submission"
)

// ErrPermanent marks failures a retry cannot fix. Such deliveries are
// dropped instead of requeued.
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err so errors.Is(err, ErrPermanent) holds.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

type finalAttemptKey struct{}

// FinalAttempt reports whether a failure of the job being handled drops its
// delivery instead of requeueing it.
func FinalAttempt(ctx context.Context) bool {
	final, _ := ctx.Value(finalAttemptKey{}).(bool)
	return final
}

// WithFinalAttempt marks ctx as carrying the last delivery of a job.
func WithFinalAttempt(ctx context.Context, final bool) context.Context {
	return context.WithValue(ctx, finalAttemptKey{}, final)
}

// Job is the queue envelope.
type Job struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// RemittancePayload asks a worker to ingest one uploaded remittance file.
type RemittancePayload struct {
	BlobID        string `json:"blob_id"`
	FileName      string `json:"file_name"`
	UploaderEmail string `json:"uploader_email"`
}

// SubmissionPayload asks a worker to batch-submit encounters.
type SubmissionPayload struct {
	OrganizationID uuid.UUID   `json:"organization_id"`
	EncounterIDs   []uuid.UUID `json:"encounter_ids"`
}

// Channel is the part of an AMQP channel used by the publisher.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

type Publisher struct {
	ch    Channel
	queue string
	now   func() time.Time
}

func NewPublisher(ch Channel, queue string) *Publisher {
	return &Publisher{ch: ch, queue: queue, now: time.Now}
}

// Enqueue publishes a persistent job and returns its id.
func (p *Publisher) Enqueue(ctx context.Context, jobType string, payload interface{}) (uuid.UUID, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	job := Job{ID: uuid.New(), Type: jobType, Payload: raw, EnqueuedAt: p.now().UTC()}
	body, err := json.Marshal(job)
	if err != nil {
		return uuid.Nil, err
	}

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    job.ID.String(),
		Type:         jobType,
		Timestamp:    job.EnqueuedAt,
		Body:         body,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("publish %s job: %w", jobType, err)
	}
	return job.ID, nil
}

// HandlerFunc processes one job.
type HandlerFunc func(ctx context.Context, job Job) error

// Router dispatches job envelopes by type.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   zerolog.Logger
}

func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.With().Str("component", "job-router").Logger(),
	}
}

func (r *Router) Handle(jobType string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// HandleMessage decodes body as a Job and runs its handler.
func (r *Router) HandleMessage(ctx context.Context, body []byte) error {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return Permanent(fmt.Errorf("decode job: %w", err))
	}

	r.mu.RLock()
	h, ok := r.handlers[job.Type]
	r.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("no handler for job type %q", job.Type))
	}

	start := time.Now()
	log := r.logger.With().Str("job_id", job.ID.String()).Str("job_type", job.Type).Logger()
	log.Info().Msg("job started")
	if err := h(ctx, job); err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return err
	}
	log.Info().Dur("duration", time.Since(start)).Msg("job finished")
	return nil
}
