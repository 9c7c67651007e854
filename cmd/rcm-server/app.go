package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/ehr/rcm/internal/config"
	"github.com/ehr/rcm/internal/domain/billing"
	"github.com/ehr/rcm/internal/domain/claim"
	"github.com/ehr/rcm/internal/domain/encounter"
	"github.com/ehr/rcm/internal/domain/matching"
	"github.com/ehr/rcm/internal/domain/payment"
	"github.com/ehr/rcm/internal/domain/reference"
	"github.com/ehr/rcm/internal/domain/remittance"
	"github.com/ehr/rcm/internal/domain/submission"
	"github.com/ehr/rcm/internal/platform/blobstore"
	"github.com/ehr/rcm/internal/platform/clearinghouse"
	"github.com/ehr/rcm/internal/platform/db"
	"github.com/ehr/rcm/internal/platform/notification"
)

// app holds the components shared by every command.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	blobs  blobstore.BlobStore

	amqpOnce sync.Once
	amqpConn *amqp091.Connection
	amqpErr  error

	encounters *encounter.Service
	claims     claim.Repository
	remittance *remittance.Pipeline
	submission *submission.Pipeline

	closers []func()
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	a := &app{cfg: cfg, logger: newLogger(cfg.Env)}

	a.pool, err = db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.closers = append(a.closers, a.pool.Close)
	a.logger.Info().Msg("connected to database")

	a.blobs, err = newBlobStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	mailer, err := a.newMailer()
	if err != nil {
		a.Close()
		return nil, err
	}
	mail := notification.NewService(mailer, notification.NewTemplateEngine(), a.logger)

	refs := reference.NewRepoPG(a.pool)
	notifier := billing.NewNotifier(mail, refs, cfg.WorkDir, a.logger)

	sm := encounter.NewStateMachine()
	encRepo := encounter.NewRepoPG(a.pool)
	a.encounters = encounter.NewService(encRepo, sm)
	a.claims = claim.NewRepoPG(a.pool)

	a.remittance = remittance.NewPipeline(remittance.Deps{
		Patients:   matching.NewPatientDirectoryPG(a.pool),
		Names:      matching.LevenshteinMatcher{},
		Encounters: encRepo,
		Confirm:    a.encounters,
		Reference:  refs,
		Payments:   payment.NewRepoPG(a.pool),
		Reporter:   notifier,
	}, a.logger)

	a.submission = submission.NewPipeline(submission.Deps{
		Encounters:    encRepo,
		Organizations: refs,
		Submitter:     newSubmitter(cfg, a.logger),
		Claims:        claim.NewAttacher(a.claims, a.blobs, a.logger),
		Notifier:      notifier,
		Tx:            db.NewTransactor(a.pool),
		StateMachine:  sm,
	}, a.logger)

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// amqp dials the broker on first use. Commands that never touch a queue do
// not need one.
func (a *app) amqp() (*amqp091.Connection, error) {
	a.amqpOnce.Do(func() {
		a.amqpConn, a.amqpErr = amqp091.Dial(a.cfg.AMQPURL)
		if a.amqpErr != nil {
			a.amqpErr = fmt.Errorf("connect to amqp: %w", a.amqpErr)
			return
		}
		a.closers = append(a.closers, func() { a.amqpConn.Close() })
	})
	return a.amqpConn, a.amqpErr
}

// publishChannel opens a channel with queue declared, for publishers.
func (a *app) publishChannel(queue string) (*amqp091.Channel, error) {
	conn, err := a.amqp()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	a.closers = append(a.closers, func() { ch.Close() })
	return ch, nil
}

// deliveryMailer is the mailer that actually hands messages off: SMTP when
// a host is configured, otherwise the log.
func (a *app) deliveryMailer() (notification.Mailer, error) {
	if a.cfg.SMTPHost == "" {
		return notification.NewLogMailer(a.logger), nil
	}
	return notification.NewSMTPMailer(notification.SMTPConfig{
		Host:     a.cfg.SMTPHost,
		Port:     a.cfg.SMTPPort,
		Username: a.cfg.SMTPUsername,
		Password: a.cfg.SMTPPassword,
		From:     a.cfg.MailFrom,
	})
}

func (a *app) newMailer() (notification.Mailer, error) {
	switch strings.ToLower(a.cfg.MailTransport) {
	case "amqp":
		ch, err := a.publishChannel(a.cfg.MailQueue)
		if err != nil {
			return nil, err
		}
		return notification.NewQueueMailer(ch, a.cfg.MailQueue), nil
	default:
		return a.deliveryMailer()
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	if strings.EqualFold(cfg.BlobBackend, "minio") {
		store, err := blobstore.NewMinioBlobStore(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to object store: %w", err)
		}
		return store, nil
	}
	return blobstore.NewInMemoryBlobStore(), nil
}

func newSubmitter(cfg *config.Config, logger zerolog.Logger) *submission.ClearinghouseSubmitter {
	var uploader submission.Uploader
	if cfg.ClearinghouseURL != "" {
		uploader = clearinghouse.NewClient(clearinghouse.Config{
			URL:    cfg.ClearinghouseURL,
			APIKey: cfg.ClearinghouseAPIKey,
		})
	} else {
		uploader = &outboxUploader{dir: filepath.Join(cfg.WorkDir, "outbox")}
		logger.Warn().Msg("CLEARINGHOUSE_URL not set; batches are copied to the local outbox")
	}
	return submission.NewClearinghouseSubmitter(submission.ClearinghouseConfig{
		WorkDir:    cfg.WorkDir,
		Submitter:  clearinghouse.Party{Name: "RCM", ID: cfg.SubmitterID},
		Receiver:   clearinghouse.Party{Name: "CLEARINGHOUSE", ID: cfg.ReceiverID},
		Production: cfg.IsProduction(),
	}, uploader, logger)
}

// outboxUploader stands in for the clearinghouse in development by copying
// each batch into a local directory.
type outboxUploader struct {
	dir string
}

func (u *outboxUploader) Upload(_ context.Context, path, filename string) (string, error) {
	if err := os.MkdirAll(u.dir, 0o750); err != nil {
		return "", fmt.Errorf("create outbox: %w", err)
	}
	dst := filepath.Join(u.dir, filepath.Base(filename))
	if err := copyFile(path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// stageCopy copies src into a fresh file under dir, keeping its base name.
func stageCopy(dir, src string) (string, error) {
	tmp, err := os.MkdirTemp(dir, "ingest-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	dst := filepath.Join(tmp, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		os.RemoveAll(tmp)
		return "", err
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
