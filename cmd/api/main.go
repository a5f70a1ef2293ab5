package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Creecly/cleaninvest/internal/cache"
	"github.com/Creecly/cleaninvest/internal/config"
	"github.com/Creecly/cleaninvest/internal/database"
	"github.com/Creecly/cleaninvest/internal/logger"
	"github.com/Creecly/cleaninvest/internal/notify"
	"github.com/Creecly/cleaninvest/internal/router"
	"github.com/Creecly/cleaninvest/internal/services"
	"github.com/Creecly/cleaninvest/internal/storage"
	"github.com/Creecly/cleaninvest/internal/validator"
	"github.com/Creecly/cleaninvest/internal/valuation"

	_ "github.com/Creecly/cleaninvest/internal/docs" // Import swagger docs
)

// @title           Clean.Invest API
// @version         1.0
// @description     Clean.Invest is a simulated investment platform: users buy and sell shares of a fixed company catalog with a virtual balance and talk to administrators through a support chat.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

const (
	mailQueueSize   = 256
	shutdownTimeout = 15 * time.Second
)

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	validator.Register()

	dbManager, err := database.NewManager(appConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var companyCache cache.Cache = cache.NewMemory()
	if appConfig.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, appConfig.RedisURL, "cleaninvest")
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rc.Close()
		companyCache = rc
		log.Info("Using redis cache")
	}

	var sender notify.Sender
	if appConfig.SMTPHost != "" {
		sender = notify.NewSMTPSender(appConfig.SMTPHost, appConfig.SMTPPort,
			appConfig.SMTPUsername, appConfig.SMTPPassword, appConfig.MailFrom)
	} else {
		sender = notify.NewLogSender(logger.Named("mail"))
		log.Warn("SMTP_HOST not set, outgoing mail is only logged")
	}
	dispatcher := notify.NewDispatcher(sender, appConfig.MailWorkers, mailQueueSize, logger.Named("mail"))
	dispatcher.Start()
	defer dispatcher.Stop()

	store, err := storage.NewFileStore(appConfig.UploadDir, "/uploads", appConfig.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("failed to prepare upload directory: %w", err)
	}

	// Initialize services
	db := dbManager.DB()
	locks := database.NewKeyedLocker()
	auditService := services.NewAuditService(db)
	userService := services.NewUserService(db, services.UserSettings{
		StartingBalance: appConfig.StartingBalance,
		OwnerNickname:   appConfig.OwnerNickname,
	}, dispatcher)
	companyService := services.NewCompanyService(db, companyCache, appConfig.CompanyCacheTTL)
	ledgerService := services.NewLedgerService(db, valuation.NewPricer(nil), locks)
	chatService := services.NewChatService(db, store, locks, auditService)
	adminService := services.NewAdminService(db, locks, auditService, dispatcher)

	seeded, err := companyService.Seed()
	if err != nil {
		return fmt.Errorf("failed to seed companies: %w", err)
	}
	if seeded > 0 {
		log.Infof("Seeded %d companies", seeded)
	}

	engine := router.New(router.Deps{
		DB:                   dbManager,
		Users:                userService,
		Companies:            companyService,
		Ledger:               ledgerService,
		Chats:                chatService,
		Admin:                adminService,
		Audit:                auditService,
		UploadDir:            appConfig.UploadDir,
		OpsAPIKey:            appConfig.OpsAPIKey,
		SlowRequestThreshold: appConfig.SlowRequestThreshold,
		EnableSwagger:        appConfig.Env != "production",
	})
	engine.MaxMultipartMemory = appConfig.MaxUploadBytes

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting Clean.Invest API on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
