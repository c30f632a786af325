package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/timecard-management/api"
	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/audit"
	auditPostgres "github.com/frahmantamala/timecard-management/internal/audit/postgres"
	"github.com/frahmantamala/timecard-management/internal/auth"
	authPostgres "github.com/frahmantamala/timecard-management/internal/auth/postgres"
	"github.com/frahmantamala/timecard-management/internal/core/events"
	"github.com/frahmantamala/timecard-management/internal/mail"
	"github.com/frahmantamala/timecard-management/internal/timecard"
	timecardPostgres "github.com/frahmantamala/timecard-management/internal/timecard/postgres"
	"github.com/frahmantamala/timecard-management/internal/transport"
	"github.com/frahmantamala/timecard-management/internal/transport/middleware"
	"github.com/frahmantamala/timecard-management/internal/transport/rest"
	"github.com/frahmantamala/timecard-management/internal/user"
	userPostgres "github.com/frahmantamala/timecard-management/internal/user/postgres"
	"github.com/frahmantamala/timecard-management/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Redis    *redis.Client
	Broker   *mail.Broker
	Mailer   mail.Mailer
	EventBus *events.EventBus
	Router   *chi.Mux
	Logger   *slog.Logger
	// drained before the event bus on Close
	background []func()
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	if err := setupRoutes(deps); err != nil {
		deps.Logger.Error("Failed to set up routes", "error", err)
		return
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		deps.Logger.Info("Starting HTTP server", "address", addr)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
		}
	}

	deps.Logger.Info("Server stopped")
}

// Close waits for in-flight event handlers before releasing the connections they use.
func (d *Dependencies) Close() {
	for _, wait := range d.background {
		wait()
	}
	d.EventBus.Wait()
	if d.Broker != nil {
		if err := d.Broker.Close(); err != nil {
			d.Logger.Error("Broker close error", "error", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("Redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	lg := deps.Logger
	base := transport.NewBaseHandler(lg)

	tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration)
	authService := auth.NewService(authPostgres.NewRepository(deps.Gorm), tokens, deps.Mailer, deps.EventBus, lg, auth.Options{
		BCryptCost:          cfg.Security.BCryptCost,
		ResetTokenTTL:       cfg.Security.GetResetTokenTTL(),
		FrontendURL:         cfg.Mail.FrontendURL,
		IdentitySyncEnabled: cfg.Security.IdentitySyncEnabled,
		IdentitySyncKey:     cfg.Security.IdentitySyncKey,
	})
	deps.background = append(deps.background, authService.Wait)
	userService := user.NewService(userPostgres.NewRepository(deps.Gorm), authService, deps.EventBus, lg)
	timecardService := timecard.NewService(timecardPostgres.NewRepository(deps.Gorm), userService, deps.EventBus, lg)

	health := rest.NewHealthHandler(deps.DB.DB)
	var counter middleware.WindowCounter
	if deps.Redis != nil {
		health.AddCheck("redis", func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() })
		counter = middleware.NewRedisCounter(deps.Redis)
	}

	validator, err := middleware.NewRequestValidator(api.Spec, rest.APIPrefix)
	if err != nil {
		return err
	}

	rest.RegisterAllRoutes(deps.Router, rest.Handlers{
		Auth:     auth.NewHandler(base, authService),
		RBAC:     auth.NewRBACAuthorization(base),
		User:     user.NewHandler(base, userService),
		Timecard: timecard.NewHandler(base, timecardService),
		Health:   health,
	}, rest.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    middleware.NewRateLimiter(counter, cfg.RateLimit, lg),
		Validator:      validator,
		Logger:         lg,
	})
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := initGorm(db.DB, lg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	mailer, broker, err := initMailer(config, lg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	bus := events.NewEventBus(lg)
	audit.NewRecorder(auditPostgres.NewStore(gdb), lg).Register(bus)

	return &Dependencies{
		Config:   config,
		DB:       db,
		Gorm:     gdb,
		Redis:    initRedis(config.Redis, lg),
		Broker:   broker,
		Mailer:   mailer,
		EventBus: bus,
		Router:   chi.NewRouter(),
		Logger:   lg,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm so both see the same connections.
func initGorm(db *sql.DB, lg *slog.Logger) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.NewSlogLogger(lg, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
}

// initRedis returns nil when redis is not configured or unreachable; rate limiting is then disabled.
func initRedis(cfg internal.RedisConfig, lg *slog.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		lg.Warn("redis unavailable, rate limiting disabled", "addr", cfg.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

func initMailer(cfg *internal.Config, lg *slog.Logger) (mail.Mailer, *mail.Broker, error) {
	switch cfg.Mail.Driver {
	case internal.MailDriverSMTP:
		return mail.NewSMTPMailer(cfg.Mail), nil, nil
	case internal.MailDriverQueue:
		broker, err := mail.Dial(cfg.Queue.URL, cfg.Queue.MailQueue)
		if err != nil {
			return nil, nil, err
		}
		return mail.NewQueueMailer(broker.Channel, cfg.Queue.MailQueue, cfg.Queue.PublishTimeout, lg), broker, nil
	default:
		return mail.NewLogMailer(lg), nil, nil
	}
}
