package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/davicafu/hexapost/internal/config"
	logApp "github.com/davicafu/hexapost/internal/eventlog/application"
	logDomain "github.com/davicafu/hexapost/internal/eventlog/domain"
	logMemory "github.com/davicafu/hexapost/internal/eventlog/infra/outbound/memory"
	"github.com/davicafu/hexapost/internal/eventlog/infra/outbound/sqldb"
	idemDomain "github.com/davicafu/hexapost/internal/idempotency/domain"
	idemMemory "github.com/davicafu/hexapost/internal/idempotency/infra/outbound/memory"
	idemRedis "github.com/davicafu/hexapost/internal/idempotency/infra/outbound/redis"
	idemSQLite "github.com/davicafu/hexapost/internal/idempotency/infra/outbound/sqlite"
	"github.com/davicafu/hexapost/internal/infra/db/mongodb"
	"github.com/davicafu/hexapost/internal/infra/db/postgres"
	dlSQLite "github.com/davicafu/hexapost/internal/infra/db/sqlite"
	"github.com/davicafu/hexapost/internal/infra/deadletter"
	infraEvents "github.com/davicafu/hexapost/internal/infra/events"
	interactionApp "github.com/davicafu/hexapost/internal/interaction/application"
	interactionDomain "github.com/davicafu/hexapost/internal/interaction/domain"
	interactionHttp "github.com/davicafu/hexapost/internal/interaction/infra/inbound/http"
	"github.com/davicafu/hexapost/internal/interaction/infra/outbound/analytics/clickhouse"
	counterMemory "github.com/davicafu/hexapost/internal/interaction/infra/outbound/memory"
	counterRedis "github.com/davicafu/hexapost/internal/interaction/infra/outbound/redis"
	counterSQLite "github.com/davicafu/hexapost/internal/interaction/infra/outbound/sqlite"
	sharedCache "github.com/davicafu/hexapost/internal/shared/infra/platform/cache"
	"github.com/davicafu/hexapost/internal/shared/infra/relayer"
	sharedUtils "github.com/davicafu/hexapost/internal/shared/infra/utils"
	"github.com/davicafu/hexapost/pkg/logger"
)

// ---------------- Main ----------------
func main() {
	cfg := config.LoadConfig()

	logger.Init(cfg.LogLevel) // inicializa zap
	log := logger.Logger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------- DB ----------------
	var sqliteDB, postgresDB *sql.DB
	openSQLite := func() *sql.DB {
		if sqliteDB == nil {
			db, err := sqldb.OpenSQLite(cfg.SQLitePath)
			if err != nil {
				log.Fatal("failed to open SQLite", zap.Error(err))
			}
			if err := db.PingContext(ctx); err != nil {
				log.Fatal("failed to ping SQLite", zap.Error(err))
			}
			sqliteDB = db
		}
		return sqliteDB
	}
	openPostgres := func() *sql.DB {
		if postgresDB == nil {
			db, err := sqldb.OpenPostgres(cfg.PostgresDSN)
			if err != nil {
				log.Fatal("failed to open Postgres", zap.Error(err))
			}
			if err := db.PingContext(ctx); err != nil {
				log.Fatal("failed to ping Postgres", zap.Error(err))
			}
			postgresDB = db
		}
		return postgresDB
	}
	defer func() {
		for _, db := range []*sql.DB{sqliteDB, postgresDB} {
			if db != nil {
				db.Close()
			}
		}
	}()

	// ---------------- Durable Log ----------------
	var eventLog logDomain.Log
	switch cfg.LogBackend {
	case config.BackendMemory:
		log.Warn("⚠️ Log en memoria: los eventos no sobreviven a un reinicio")
		eventLog = logMemory.NewLog(cfg.Partitions)
	case config.BackendPostgres:
		db := openPostgres()
		if err := sqldb.InitSchema(ctx, db, sqldb.Postgres); err != nil {
			log.Fatal("failed to initialize event log schema", zap.Error(err))
		}
		eventLog = sqldb.NewLog(db, sqldb.Postgres, cfg.Partitions)
	default:
		db := openSQLite()
		if err := sqldb.InitSchema(ctx, db, sqldb.SQLite); err != nil {
			log.Fatal("failed to initialize event log schema", zap.Error(err))
		}
		eventLog = sqldb.NewLog(db, sqldb.SQLite, cfg.Partitions)
	}
	log.Info("✅ Durable log listo", zap.String("backend", cfg.LogBackend), zap.Int("partitions", cfg.Partitions))

	// ---------------- Idempotencia, contadores y caché ----------------
	var dedup idemDomain.Store
	var counters interactionDomain.CounterStore
	var cacheInstance sharedCache.Cache

	memoryCache := func() sharedCache.Cache {
		c := sharedCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		go func() {
			<-ctx.Done()
			c.Stop()
		}()
		return c
	}

	switch cfg.StateBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("⚠️ Redis no disponible, estado en memoria:", zap.Error(err))
			dedup = idemMemory.NewStore()
			counters = counterMemory.NewCounterStore()
			cacheInstance = memoryCache()
		} else {
			dedup = idemRedis.NewStore(rdb, cfg.DedupTTL)
			counters = counterRedis.NewCounterStore(rdb)
			cacheInstance = sharedCache.NewRedisCache(rdb, cfg.CacheTTL)
			log.Info("✅ Redis conectado, dedup y contadores habilitados")
		}
	case config.BackendSQLite:
		db := openSQLite()
		if err := idemSQLite.InitSQLite(db); err != nil {
			log.Fatal("failed to initialize dedup table", zap.Error(err))
		}
		if err := counterSQLite.InitSQLite(db); err != nil {
			log.Fatal("failed to initialize counters table", zap.Error(err))
		}
		dedup = idemSQLite.NewStore(db)
		counters = counterSQLite.NewCounterStore(db)
		cacheInstance = memoryCache()
	default:
		dedup = idemMemory.NewStore()
		counters = counterMemory.NewCounterStore()
		cacheInstance = memoryCache()
	}

	// ---------------- Dead letters ----------------
	var deadLetters logDomain.DeadLetterStore
	switch cfg.DeadLetterBackend {
	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer client.Disconnect(context.Background())
		deadLetters = mongodb.NewDeadLetterRepoMongoDB(client, cfg.MongoDB)
	case config.BackendPostgres:
		db := openPostgres()
		if err := postgres.InitPostgres(ctx, db); err != nil {
			log.Fatal("failed to initialize dead letter table", zap.Error(err))
		}
		deadLetters = postgres.NewDeadLetterRepoPostgres(db)
	case config.BackendMemory:
		deadLetters = deadletter.NewMemorySink(log)
	default:
		db := openSQLite()
		if err := dlSQLite.InitSQLite(db); err != nil {
			log.Fatal("failed to initialize dead letter table", zap.Error(err))
		}
		deadLetters = dlSQLite.NewDeadLetterRepoSQLite(db)
	}

	// ---------------- Publisher y Dispatcher ----------------
	backoff := sharedUtils.Backoff{
		Initial:    cfg.BackoffInitial,
		Max:        cfg.BackoffMax,
		Multiplier: sharedUtils.DefaultBackoff.Multiplier,
		Jitter:     sharedUtils.DefaultBackoff.Jitter,
	}
	publisher := logApp.NewPublisher(eventLog, logApp.PublisherConfig{
		Timeout:     cfg.PublishTimeout,
		MaxAttempts: cfg.PublishMaxAttempts,
		Backoff:     backoff,
	}, log)
	dispatcher := logApp.NewDispatcher(eventLog, deadLetters, logApp.DispatcherConfig{
		BatchSize:      cfg.DispatchBatchSize,
		MaxAttempts:    cfg.DispatchMaxAttempts,
		Backoff:        backoff,
		PollInterval:   cfg.PollInterval,
		HandlerTimeout: cfg.HandlerTimeout,
	}, log)

	aggregator := interactionApp.NewCounterAggregator(counters, dedup, interactionApp.CounterGroup, log,
		interactionApp.WithCache(cacheInstance))
	if err := aggregator.Register(dispatcher); err != nil {
		log.Fatal("failed to register counter aggregator", zap.Error(err))
	}

	// ---------------- Analítica ----------------
	var analytics interactionDomain.AnalyticsRepository
	if cfg.ClickHouseAddr != "" {
		repo, err := clickhouse.NewInteractionAnalyticsRepo(cfg.ClickHouseAddr, cfg.ClickHouseDatabase)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, analítica deshabilitada", zap.Error(err))
		} else if err := repo.InitSchema(ctx); err != nil {
			log.Warn("⚠️ No se pudo crear el esquema de ClickHouse", zap.Error(err))
		} else {
			analytics = repo
			if err := interactionApp.NewAnalyticsProjector(repo, log).Register(dispatcher); err != nil {
				log.Fatal("failed to register analytics projector", zap.Error(err))
			}
			log.Info("✅ ClickHouse conectado, analítica habilitada")
		}
	}

	// ---------------- Kafka ----------------
	if cfg.KafkaEnabled() {
		log.Info("🚀 Kafka habilitado", zap.Strings("brokers", cfg.KafkaBrokers))

		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaForwardTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
		defer writer.Close()

		if err := infraEvents.NewKafkaForwarder(writer, log).Register(dispatcher); err != nil {
			log.Fatal("failed to register kafka forwarder", zap.Error(err))
		}

		if cfg.KafkaIngressTopic != "" {
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:  cfg.KafkaBrokers,
				Topic:    cfg.KafkaIngressTopic,
				GroupID:  cfg.KafkaIngressGroup,
				MinBytes: 10e3, // 10KB
				MaxBytes: 10e6, // 10MB
			})
			defer reader.Close()

			infraEvents.NewConsumerAdapter(reader, publisher, backoff, log).Start(ctx)
		}
	}

	// ---------------- Workers ----------------
	dispatcherDone := make(chan error, 1)
	go func() { dispatcherDone <- dispatcher.Run(ctx) }()

	retention := relayer.NewRetentionWorker(eventLog, cfg.RetainEntries, cfg.RetentionPeriod, log)
	go retention.Start(ctx)

	// ---------------- HTTP ----------------
	query := interactionApp.NewCounterQuery(counters, cacheInstance, int(cfg.CacheTTL/time.Second), log)
	router := gin.Default()
	interactionHttp.RegisterPostRoutes(router, interactionHttp.NewPostHandler(publisher, query))
	interactionHttp.RegisterAdminRoutes(router, interactionHttp.NewAdminHandler(deadLetters, analytics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		log.Info("🚀 Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("🛑 Apagando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}

	select {
	case err := <-dispatcherDone:
		if err != nil {
			log.Error("dispatcher stopped with error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		log.Warn("dispatcher did not stop in time")
	}
}
