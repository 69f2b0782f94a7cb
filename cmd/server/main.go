package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/kone-m/karite/config"
	candidaterepo "github.com/kone-m/karite/internal/repositories/candidate"
	runrepo "github.com/kone-m/karite/internal/repositories/detectionrun"
	"github.com/kone-m/karite/pkg/database"
	"github.com/kone-m/karite/pkg/detection"
	"github.com/kone-m/karite/pkg/events"
	"github.com/kone-m/karite/pkg/graph"
	"github.com/kone-m/karite/pkg/kafka"
	"github.com/kone-m/karite/pkg/middleware"
	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/registry"
	"github.com/kone-m/karite/pkg/review"
	candidateroutes "github.com/kone-m/karite/pkg/routes/candidate"
	detectionroutes "github.com/kone-m/karite/pkg/routes/detection"
	"github.com/kone-m/karite/pkg/routes/health"
	"github.com/kone-m/karite/pkg/scoring"
	"github.com/kone-m/karite/pkg/startup"
	"github.com/kone-m/karite/pkg/tracing"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLogger, err := newZapLogger(cfg.PrettyLogs)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracing.SetTracer(otel.Tracer(cfg.AppName))

	ctx := context.Background()

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Open(cfg.DatabaseDriver, dsn)
	if err != nil {
		logger.WithError(err).Error("failed to open database connection")
		os.Exit(1)
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	db := database.NewDatabaseInstance(sqlxDB, logger)
	candidates := candidaterepo.NewRepository(db, logger)
	runs := runrepo.NewRepository(db, logger)

	registryClient := registry.NewClient(registry.Config{
		BaseURL:  cfg.RegistryBaseURL,
		Timeout:  cfg.RegistryTimeout,
		PageSize: cfg.RegistryPageSize,
	}, logger)

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
	}
	emitter := events.NewEmitter(producer, logger)

	var graphClient *graph.Client
	var duplicateGraph *graph.DuplicateService
	if cfg.GraphDBEnabled {
		graphClient, err = graph.NewClient(graph.Config{
			Host:     cfg.GraphDBHost,
			Port:     cfg.GraphDBPort,
			Username: cfg.GraphDBUser,
			Password: cfg.GraphDBPassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Error("failed to create graph client")
			os.Exit(1)
		}
		duplicateGraph = graph.NewDuplicateService(graphClient, logger)
	}

	weights := models.DefaultFieldWeightSpec()
	if cfg.FieldWeightsJSON != "" {
		weights, err = models.ParseFieldWeightSpec(cfg.FieldWeightsJSON)
		if err != nil {
			logger.WithError(err).Error("invalid FIELD_WEIGHTS_JSON")
			os.Exit(1)
		}
	}
	comparator := scoring.NewComparator(weights, cfg.DetectMinComparable)

	engine := detection.NewEngine(registryClient, candidates, runs, comparator, emitter, logger, detection.Config{
		MaxRecordsPerRun: cfg.DetectMaxRecordsPerRun,
		MinScore:         cfg.DetectMinScore,
		WorkerCount:      cfg.DetectWorkerCount,
		BlockByAgency:    cfg.DetectBlockByAgency,
	})

	var projector review.DecisionProjector
	if duplicateGraph != nil {
		projector = duplicateGraph
	}
	manager := review.NewManager(candidates, registryClient, emitter, projector, logger)
	queries := review.NewQueryService(candidates, registryClient, comparator, logger)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		logger.WithError(err).Error("failed to create DI container")
		os.Exit(1)
	}
	regErr := errors.Join(
		ectoinject.RegisterInstance[*detection.Engine](container, engine),
		ectoinject.RegisterInstance[*runrepo.Repository](container, runs),
		ectoinject.RegisterInstance[*review.Manager](container, manager),
		ectoinject.RegisterInstance[*review.QueryService](container, queries),
	)
	if duplicateGraph != nil {
		regErr = errors.Join(regErr, ectoinject.RegisterInstance[*graph.DuplicateService](container, duplicateGraph))
	}
	if regErr != nil {
		logger.WithError(regErr).Error("failed to register dependencies")
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(echomiddleware.Recover())

	var graphPing interface{ Ping() error }
	if graphClient != nil {
		graphPing = graphClient
	}
	checker := health.NewChecker(sqlxDB, graphPing, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	detectionroutes.Register(api.Group("/detection"))
	candidateroutes.Register(api.Group("/candidates"))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:  time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
	}

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	runner := startup.New(logger, cfg.StartupMaxAttempts)
	runner.AddDependency(&dependency{
		name: "postgres",
		start: func(ctx context.Context) error {
			if err := sqlxDB.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres ping failed: %w", err)
			}
			driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
			if err != nil {
				return fmt.Errorf("failed to create migration driver: %w", err)
			}
			return migrations.Migrate(cfg.DatabaseName, driver)
		},
		stop: func(ctx context.Context) error {
			return sqlxDB.Close()
		},
	})
	if graphClient != nil {
		runner.AddDependency(&dependency{
			name: "graph",
			start: func(ctx context.Context) error {
				return graphClient.VerifyConnectivity(ctx)
			},
			stop: func(ctx context.Context) error {
				return graphClient.Close(ctx)
			},
		})
	}
	if producer != nil {
		runner.AddDependency(&dependency{
			name:  "kafka",
			start: func(ctx context.Context) error { return nil },
			stop: func(ctx context.Context) error {
				return producer.Close()
			},
		})
	}
	runner.AddDependency(&dependency{
		name:      "http-server",
		dependsOn: []string{"postgres"},
		start: func(ctx context.Context) error {
			go func() {
				logger.Infof("listening on %s", server.Addr)
				if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("http server stopped unexpectedly")
				}
			}()
			checker.SetReady(true)
			return nil
		},
		stop: func(ctx context.Context) error {
			checker.SetReady(false)
			return e.Shutdown(ctx)
		},
	})

	if err := runner.Start(ctx); err != nil {
		logger.WithError(err).Error("startup failed")
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runner.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
	}
}

func newZapLogger(pretty bool) (*zap.Logger, error) {
	if pretty {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string { return d.name }

func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }

func (d *dependency) Stop(ctx context.Context) error { return d.stop(ctx) }
