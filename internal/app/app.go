// Package app wires the document services from configuration. It is shared
// by the API server and the workers.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"esign-portal/esign-backend/internal/audit"
	"esign-portal/esign-backend/internal/config"
	"esign-portal/esign-backend/internal/documents"
	"esign-portal/esign-backend/internal/notifications"
	"esign-portal/esign-backend/internal/notifications/websocket"
	"esign-portal/esign-backend/pkg/pdf"
	"esign-portal/esign-backend/pkg/security"
	"esign-portal/esign-backend/pkg/storage"
)

// App holds the long-lived components built from one configuration.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Documents  documents.Service
	Audit      audit.Recorder
	Events     *websocket.Manager
	Dispatcher *notifications.Dispatcher

	closers []func() error
}

// New builds the stack. Live events are only wired when withEvents is set,
// since only the API server has WebSocket subscribers.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, withEvents bool) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	var awsCfg aws.Config
	if needsAWS(cfg) {
		var err error
		if awsCfg, err = cfg.AWS.Load(ctx); err != nil {
			return nil, err
		}
	}

	repo, err := a.openRepository(cfg.Database)
	if err != nil {
		a.Close()
		return nil, err
	}
	blobs, err := openBlobStore(cfg, awsCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	senders := []notifications.InvitationSender{}
	publishers := []notifications.EventPublisher{}
	if cfg.Notifications.Driver == "ses" {
		senders = append(senders, notifications.NewEmailChannel(awsCfg, cfg.Notifications.SenderEmail, cfg.Notifications.SigningURL))
	} else {
		senders = append(senders, notifications.NewLogChannel(logger))
	}
	if cfg.Notifications.EventsTopicARN != "" {
		publishers = append(publishers, notifications.NewSNSPublisher(awsCfg, cfg.Notifications.EventsTopicARN))
	} else {
		publishers = append(publishers, notifications.NewLogChannel(logger))
	}
	if withEvents {
		a.Events = websocket.NewManager(logger)
		publishers = append(publishers, a.Events)
		a.closers = append(a.closers, func() error { a.Events.Close(); return nil })
	}

	a.Dispatcher = notifications.NewDispatcher(notifications.DispatcherConfig{
		QueueSize: cfg.Notifications.QueueSize,
		Workers:   cfg.Notifications.Workers,
		Timeout:   time.Duration(cfg.Notifications.TimeoutSeconds) * time.Second,
	}, logger, senders, publishers)
	// The dispatcher drains before the event hub closes.
	a.closers = append([]func() error{func() error { a.Dispatcher.Close(); return nil }}, a.closers...)

	if cfg.Audit.DynamoTable != "" {
		a.Audit = audit.NewDynamoRecorder(awsCfg, cfg.Audit.DynamoTable)
	} else {
		a.Audit = audit.NewLogRecorder(logger)
	}

	provider := security.NewProvider()
	engine := pdf.NewEngine(provider, pdf.WithSignatureReserve(cfg.Signing.SignatureReserveBytes))
	store := documents.NewStorageProvider(blobs)
	workflow := documents.NewWorkflowEngine(repo, a.Dispatcher, time.Now, logger)

	a.Documents = documents.NewService(
		repo,
		store,
		documents.NewSignatureService(engine, security.NewCertificateExtractor(provider), provider),
		workflow,
		documents.NewVerificationEngine(repo, store, engine, time.Now),
		a.Audit,
		logger,
	)
	return a, nil
}

func needsAWS(cfg *config.Config) bool {
	return cfg.Storage.Driver == "s3" ||
		cfg.Notifications.Driver == "ses" ||
		cfg.Notifications.EventsTopicARN != "" ||
		cfg.Audit.DynamoTable != ""
}

func (a *App) openRepository(cfg config.DatabaseConfig) (documents.Repository, error) {
	if cfg.Driver == "memory" {
		a.Logger.Warn("Using in-memory document repository; data is lost on restart")
		return documents.NewMemoryRepository(), nil
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	a.closers = append(a.closers, sqlDB.Close)

	a.Logger.Info("Connected to database",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName))

	if cfg.AutoMigrate {
		if err := documents.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return documents.NewRepository(db), nil
}

func openBlobStore(cfg *config.Config, awsCfg aws.Config) (storage.BlobStore, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return storage.NewS3Store(awsCfg, cfg.Storage.Bucket, cfg.AWS.Endpoint), nil
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		local, err := storage.NewLocalStore(cfg.Storage.LocalPath)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
}

// Close releases everything New opened, in order.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
