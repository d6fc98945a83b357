package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kodisha/payments/internal"
	"github.com/kodisha/payments/internal/auth"
	bookingpostgres "github.com/kodisha/payments/internal/booking/postgres"
	"github.com/kodisha/payments/internal/core/events"
	mpesaclient "github.com/kodisha/payments/internal/mpesa"
	"github.com/kodisha/payments/internal/notification"
	"github.com/kodisha/payments/internal/payment"
	paymentpostgres "github.com/kodisha/payments/internal/payment/postgres"
	"github.com/kodisha/payments/internal/payout"
	payoutpostgres "github.com/kodisha/payments/internal/payout/postgres"
	"github.com/kodisha/payments/internal/transport"
	"github.com/kodisha/payments/internal/transport/rest"
	userpostgres "github.com/kodisha/payments/internal/user/postgres"
	"github.com/kodisha/payments/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle payment API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *sqlx.DB
	GormDB         *gorm.DB
	Router         *chi.Mux
	EventBus       *events.EventBus
	AuthMiddleware *auth.Middleware
	PaymentHandler *payment.Handler
	WebhookHandler *payment.WebhookHandler
	PayoutHandler  *payout.Handler
	PaymentService *payment.PaymentService
	Logger         *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(
		deps.Router,
		deps.DB.DB,
		deps.Config.Server.AllowedOrigins,
		deps.AuthMiddleware,
		deps.PaymentHandler,
		deps.WebhookHandler,
		deps.PayoutHandler,
		deps.Logger,
	)

	reconciler := payment.NewReconciler(deps.PaymentService, payment.ReconcilerConfig{
		Interval:    deps.Config.Reconciler.Interval,
		PendingAge:  deps.Config.Reconciler.PendingAge,
		ExpireAfter: deps.Config.Reconciler.ExpireAfter,
		MaxWorkers:  deps.Config.Reconciler.Workers,
		BatchSize:   deps.Config.Reconciler.BatchSize,
	}, deps.Logger)
	reconciler.Start()

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

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
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		reconciler.Shutdown()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	appLogger := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	publicKey, err := config.Security.GetPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT public key: %w", err)
	}

	gateway, err := mpesaclient.NewClient(mpesaclient.Config{
		Environment:        config.Mpesa.Environment,
		ConsumerKey:        config.Mpesa.ConsumerKey,
		ConsumerSecret:     config.Mpesa.ConsumerSecret,
		ShortCode:          config.Mpesa.ShortCode,
		Passkey:            config.Mpesa.Passkey,
		CallbackURL:        config.Mpesa.CallbackURL,
		InitiatorName:      config.Mpesa.InitiatorName,
		SecurityCredential: config.Mpesa.SecurityCredential,
		RequestTimeout:     config.Mpesa.RequestTimeout,
	}, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mpesa client: %w", err)
	}

	eventBus := events.NewEventBus(appLogger)

	notificationHandler := notification.NewEventHandler(appLogger)
	notificationHandler.RegisterEventHandlers(eventBus)

	userRepo := userpostgres.NewUserRepository(gormDB)
	transactionRepo := paymentpostgres.NewTransactionRepository(gormDB)
	bookingRepo := bookingpostgres.NewBookingRepository(gormDB)
	payoutRepo := payoutpostgres.NewPayoutRepository(gormDB)

	baseHandler := transport.NewBaseHandler(appLogger)

	authService := auth.NewService(publicKey, userRepo)
	authMiddleware := auth.NewMiddleware(baseHandler, authService, appLogger)

	paymentService := payment.NewPaymentService(transactionRepo, bookingRepo, gateway, eventBus, appLogger)
	paymentHandler := payment.NewHandler(baseHandler, paymentService, appLogger)
	webhookHandler := payment.NewWebhookHandler(baseHandler, paymentService, config.Mpesa.CallbackSecret, appLogger)

	payoutService := payout.NewPayoutService(payoutRepo, userRepo, gateway, eventBus, appLogger)
	payoutHandler := payout.NewHandler(baseHandler, payoutService, appLogger)

	return &Dependencies{
		Config:         config,
		DB:             db,
		GormDB:         gormDB,
		Router:         chi.NewRouter(),
		EventBus:       eventBus,
		AuthMiddleware: authMiddleware,
		PaymentHandler: paymentHandler,
		WebhookHandler: webhookHandler,
		PayoutHandler:  payoutHandler,
		PaymentService: paymentService,
		Logger:         appLogger,
	}, nil
}

// initDB opens the pgx-backed pool used for health checks and migrations.
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

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm layers gorm over the existing pool so repositories and health
// checks share one set of connections.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{
		// repositories rely on gorm.ErrDuplicatedKey for unique violations
		TranslateError: true,
	})
}
