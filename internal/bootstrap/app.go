package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docchat/internal/ai"
	"docchat/internal/app"
	"docchat/internal/cache"
	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/logging"
	"docchat/internal/platform/database"
	rabbitmqClient "docchat/internal/platform/rabbitmq"
	redisClient "docchat/internal/platform/redis"
	"docchat/internal/repository"
	"docchat/internal/storage"
	"docchat/internal/vectorstore"
	"docchat/internal/worker"
)

// Probe is a named dependency check used by /healthz.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Events   *logging.EventLog
	Registry *prometheus.Registry

	DB      *gorm.DB
	Redis   *redis.Client
	MQConn  *amqp.Connection
	Storage storage.Storage
	Vectors vectorstore.Store

	Auth      *app.AuthService
	Documents *app.DocumentService
	Ingest    *app.IngestService
	Chat      *app.ChatService

	MessageWorker *worker.MessagePersistWorker
	IngestWorker  *worker.IngestWorker

	Probes    []Probe
	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := logging.Init(cfg.Log.Level, cfg.Log.Format, cfg.App.Name)

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  prometheus.NewRegistry(),
		StartedAt: time.Now(),
	}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	events, err := logging.OpenEventLog(cfg.Log.EventFile)
	if err != nil {
		return err
	}
	a.Events = events

	db, err := database.New(ctx, cfg.Database.Driver, databaseDSN(cfg))
	if err != nil {
		return err
	}
	a.DB = db
	if err := database.Migrate(db); err != nil {
		return err
	}
	a.addProbe("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	var historyCache app.HistoryCache
	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
		historyCache = cache.NewHistoryCache(client,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		a.addProbe("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}

	var publisher app.Publisher
	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.MessagePersistQueue, cfg.RabbitMQ.IngestQueue)
		if err != nil {
			return err
		}
		a.MQConn = conn
		publisher = rabbitmqClient.NewPublisher(conn)
		a.addProbe("rabbitmq", func(context.Context) error {
			if conn.IsClosed() {
				return fmt.Errorf("rabbitmq connection closed")
			}
			return nil
		})
	}

	store, keyFunc, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	a.Storage = store

	vectors, err := vectorstore.Open(ctx, cfg.Vector, db)
	if err != nil {
		return err
	}
	a.Vectors = vectors
	a.addProbe("vectorstore", vectors.Ping)

	ch, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return err
	}
	embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.EmbeddingModel,
		Dimension: cfg.Vector.Dimension,
	})
	completer := ai.NewChatClient(ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	recordRepo := repository.NewIngestRecordRepository(db)

	a.Ingest = app.NewIngestService(documentRepo, recordRepo, userRepo, store, vectors, ch, embedder, publisher,
		app.IngestConfig{BatchSize: cfg.RAG.EmbeddingBatchSize, Queue: cfg.RabbitMQ.IngestQueue})

	var dispatcher app.IngestDispatcher
	if cfg.RAG.AutoIngest {
		dispatcher = a.Ingest
	}
	a.Documents = app.NewDocumentService(documentRepo, store, keyFunc,
		time.Duration(cfg.Storage.PresignExpireSeconds)*time.Second, dispatcher)

	a.Chat = app.NewChatService(sessionRepo, messageRepo, vectors,
		app.NewRetriever(vectors, embedder, cfg.RAG.TopK, cfg.RAG.HistoryTopK),
		completer, historyCache, publisher,
		app.ChatConfig{HistoryLimit: cfg.RAG.HistoryLimit, PersistQueue: cfg.RabbitMQ.MessagePersistQueue})

	a.Auth = app.NewAuthService(userRepo, sessionRepo, app.AuthConfig{
		AdminUsername: cfg.Auth.AdminUsername,
		AdminPassword: cfg.Auth.AdminPassword,
		JWTSecret:     cfg.Auth.JWTSecret,
		JWTExpiration: time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute,
	}, a.Documents, a.Ingest, a.Chat)

	if a.MQConn != nil {
		a.MessageWorker = worker.NewMessagePersistWorker(a.MQConn, messageRepo, cfg.RabbitMQ.MessagePersistQueue)
		if err := a.MessageWorker.Start(ctx); err != nil {
			return fmt.Errorf("start message worker failed: %w", err)
		}
		a.IngestWorker = worker.NewIngestWorker(a.MQConn, a.Ingest, cfg.RabbitMQ.IngestQueue)
		if err := a.IngestWorker.Start(ctx); err != nil {
			return fmt.Errorf("start ingest worker failed: %w", err)
		}
	}

	a.Logger.Info("application initialized",
		"database", cfg.Database.Driver,
		"storage", cfg.Storage.Backend,
		"vector", cfg.Vector.Backend,
		"redis", cfg.Redis.Enabled,
		"rabbitmq", cfg.RabbitMQ.Enabled,
		"auto_ingest", cfg.RAG.AutoIngest,
	)
	return nil
}

func (a *App) addProbe(name string, check func(ctx context.Context) error) {
	a.Probes = append(a.Probes, Probe{Name: name, Check: check})
}

func databaseDSN(cfg *config.Config) string {
	switch cfg.Database.Driver {
	case "mysql":
		return cfg.MySQLDSN()
	case "postgres":
		return cfg.PostgresDSN()
	default:
		return cfg.Database.SQLitePath
	}
}

// openStorage returns the configured object store and the key layout that goes with it.
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, app.KeyFunc, error) {
	switch cfg.Backend {
	case "minio":
		store, err := storage.NewMinIO(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, app.ObjectKey, nil
	default:
		store, err := storage.NewLocal(cfg.LocalRoot)
		if err != nil {
			return nil, nil, err
		}
		return store, app.LocalKey, nil
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Vectors != nil {
		if err := a.Vectors.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			closeErr = err
		}
	}
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
