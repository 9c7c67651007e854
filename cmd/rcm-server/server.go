package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/rcm/internal/api"
	"github.com/ehr/rcm/internal/domain/claim"
	"github.com/ehr/rcm/internal/domain/encounter"
	"github.com/ehr/rcm/internal/platform/auth"
	"github.com/ehr/rcm/internal/platform/db"
	"github.com/ehr/rcm/internal/platform/jobs"
	"github.com/ehr/rcm/internal/platform/middleware"
	"github.com/ehr/rcm/internal/platform/notification"
	"github.com/ehr/rcm/internal/worker"
)

func runServer(embeddedWorker bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	jobCh, err := a.publishChannel(a.cfg.JobQueue)
	if err != nil {
		return err
	}
	publisher := jobs.NewPublisher(jobCh, a.cfg.JobQueue)

	e := newEcho(a, publisher)

	if embeddedWorker {
		go func() {
			if err := a.consume(ctx); err != nil {
				logger.Error().Err(err).Msg("embedded worker stopped")
			}
		}()
	}

	go func() {
		addr := fmt.Sprintf(":%s", a.cfg.Port)
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func newEcho(a *app, enqueuer api.Enqueuer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.BodyLimit("1M", "100M"))

	if a.cfg.IsDev() && a.cfg.AuthSigningKey == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     a.cfg.AuthIssuer,
			SigningKey: []byte(a.cfg.AuthSigningKey),
		}))
	}
	e.Use(middleware.Audit(a.logger))

	e.GET("/health", db.HealthHandler(a.pool, healthChecks(a)))

	apiV1 := e.Group("/api/v1")
	api.NewHandler(a.blobs, enqueuer, a.logger).RegisterRoutes(apiV1)
	encounter.NewHandler(a.encounters).RegisterRoutes(apiV1)
	claim.NewHandler(a.claims, a.blobs).RegisterRoutes(apiV1)
	return e
}

func healthChecks(a *app) map[string]db.DependencyCheck {
	return map[string]db.DependencyCheck{
		"amqp": func(context.Context) error {
			conn, err := a.amqp()
			if err != nil {
				return err
			}
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
	}
}

func runWorker() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.consume(ctx)
}

// consume runs the job consumer and, when mail is queued, the mail relay
// until ctx is cancelled or either consumer fails.
func (a *app) consume(ctx context.Context) error {
	conn, err := a.amqp()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	router := jobs.NewRouter(a.logger)
	worker.New(a.blobs, a.remittance, a.submission, a.cfg.WorkDir, a.logger).Register(router)

	consumers := []*jobs.Consumer{
		jobs.NewConsumer(conn, a.cfg.JobQueue, a.cfg.WorkerConcurrency, router.HandleMessage, a.logger),
	}
	if strings.EqualFold(a.cfg.MailTransport, "amqp") {
		mailer, err := a.deliveryMailer()
		if err != nil {
			return err
		}
		relay := notification.RelayHandler(mailer)
		consumers = append(consumers, jobs.NewConsumer(conn, a.cfg.MailQueue, 1, relay, a.logger))
	}

	errs := make(chan error, len(consumers))
	for _, c := range consumers {
		go func(c *jobs.Consumer) {
			err := c.Run(ctx)
			cancel()
			errs <- err
		}(c)
	}

	var first error
	for range consumers {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}
