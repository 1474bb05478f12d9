package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/authtoken"
	"github.com/Ramsey-B/fern/internal/repositories/friendrequest"
	"github.com/Ramsey-B/fern/internal/repositories/friendship"
	"github.com/Ramsey-B/fern/internal/repositories/user"
	"github.com/Ramsey-B/fern/internal/services/lifecycle"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/routes/auth"
	friendrequestroutes "github.com/Ramsey-B/fern/pkg/routes/friendrequest"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	userroutes "github.com/Ramsey-B/fern/pkg/routes/user"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		panic(fmt.Sprintf("failed to bind config: %v", err))
	}

	logger := newLogger(cfg)
	log := logger.WithField("app", cfg.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.TracingOTLPEndpoint,
			Protocol: cfg.TracingOTLPProtocol,
			Insecure: cfg.TracingOTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			log.WithError(err).Error("failed to create trace exporter")
			os.Exit(1)
		}
		shutdown, err := tracing.Init(ctx, cfg.AppName, exporter)
		if err != nil {
			log.WithError(err).Error("failed to initialize tracing")
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	var db database.DB
	var redisClient *redis.Client
	var producer *kafka.Producer
	var graphClient *graph.Client

	boot := startup.NewStartup(log, cfg.StartupMaxAttempts)

	boot.AddDependency(&dependency{
		name: "postgres",
		start: func(ctx context.Context) error {
			dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
				cfg.DatabaseName, cfg.DatabaseSSLMode)

			sqlxDB, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
			if err != nil {
				return err
			}
			sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

			db = database.NewDatabaseInstance(sqlxDB, log)

			driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
			if err != nil {
				return err
			}

			migrations := database.NewMigrationService(log, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return migrations.Migrate(cfg.DatabaseName, driver)
		},
		stop: func(ctx context.Context) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
	})

	if cfg.RedisEnabled {
		boot.AddDependency(&dependency{
			name: "redis",
			start: func(ctx context.Context) error {
				client, err := redis.NewClient(redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, log)
				if err != nil {
					return err
				}
				redisClient = client
				return nil
			},
			stop: func(ctx context.Context) error {
				if redisClient != nil {
					return redisClient.Close()
				}
				return nil
			},
		})
	}

	if cfg.KafkaProducerEnabled {
		boot.AddDependency(&dependency{
			name: "kafka",
			start: func(ctx context.Context) error {
				producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, log)
				return nil
			},
			stop: func(ctx context.Context) error {
				if producer != nil {
					return producer.Close()
				}
				return nil
			},
		})
	}

	if cfg.GraphEnabled {
		boot.AddDependency(&dependency{
			name: "graph",
			start: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
				}, log)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					return err
				}
				graphClient = client
				return nil
			},
			stop: func(ctx context.Context) error {
				if graphClient != nil {
					return graphClient.Close(ctx)
				}
				return nil
			},
		})
	}

	if err := boot.Start(ctx); err != nil {
		log.WithError(err).Error("startup failed")
		os.Exit(1)
	}
	defer boot.Stop(context.Background())

	userRepo := user.NewRepository(db, log)
	friendshipRepo := friendship.NewRepository(db, log)
	requestRepo := friendrequest.NewRepository(db, log)
	tokenRepo := authtoken.NewRepository(db, log)

	emitter := events.NewEmitter(producer, log)
	friendGraph := graph.NewFriendService(graphClient, log)

	lifecycleService := lifecycle.NewService(db, requestRepo, friendshipRepo, userRepo, emitter, friendGraph, log)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		log.WithError(err).Error("failed to create DI container")
		os.Exit(1)
	}
	mustRegister(log, ectoinject.RegisterInstance[*config.Config](container, cfg))
	mustRegister(log, ectoinject.RegisterInstance[*user.Repository](container, userRepo))
	mustRegister(log, ectoinject.RegisterInstance[*friendship.Repository](container, friendshipRepo))
	mustRegister(log, ectoinject.RegisterInstance[*friendrequest.Repository](container, requestRepo))
	mustRegister(log, ectoinject.RegisterInstance[*authtoken.Repository](container, tokenRepo))
	mustRegister(log, ectoinject.RegisterInstance[*lifecycle.Service](container, lifecycleService))
	mustRegister(log, ectoinject.RegisterInstance[*graph.FriendService](container, friendGraph))

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(log)

	e.Use(echomiddleware.Recover())
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Container(container))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(log))
	e.Use(middleware.Metrics())

	checker := health.NewChecker(db, healthRedis(redisClient), healthGraph(graphClient), version)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var limiter *redis.RateLimiter
	if redisClient != nil {
		limiter = redis.NewRateLimiter(redisClient, "fern:ratelimit")
	}

	api := e.Group("/api/v1")
	auth.Register(api.Group("/auth"))

	authenticated := api.Group("", middleware.Authentication(log, tokenRepo))
	auth.RegisterProtected(authenticated.Group("/auth"))
	userroutes.Register(authenticated.Group("/users"))
	friendrequestroutes.Register(
		authenticated.Group("/friend-requests"),
		middleware.RateLimit(log, limiter, "send-request", cfg.SendRequestRateLimit, cfg.SendRequestRateWindow),
	)

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	go func() {
		checker.SetReady(true)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server stopped")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	checker.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, _ = zap.NewDevelopment()
	} else {
		zapLogger, _ = zap.NewProduction()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func mustRegister(log ectologger.Logger, err error) {
	if err != nil {
		log.WithError(err).Error("failed to register dependency")
		os.Exit(1)
	}
}

// healthRedis and healthGraph convert possibly-nil concrete clients into the
// checker's optional interfaces without producing a non-nil interface around
// a nil pointer.
func healthRedis(c *redis.Client) interface{ Ping(ctx context.Context) error } {
	if c == nil {
		return nil
	}
	return c
}

func healthGraph(c *graph.Client) interface{ VerifyConnectivity(ctx context.Context) error } {
	if c == nil {
		return nil
	}
	return c
}

// dependency adapts start/stop funcs to the startup graph
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}
