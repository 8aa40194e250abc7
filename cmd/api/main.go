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

	"github.com/straye-as/pipeline-api/docs"
	"github.com/straye-as/pipeline-api/internal/auth"
	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/database"
	"github.com/straye-as/pipeline-api/internal/events"
	"github.com/straye-as/pipeline-api/internal/http/handler"
	"github.com/straye-as/pipeline-api/internal/http/middleware"
	"github.com/straye-as/pipeline-api/internal/http/router"
	"github.com/straye-as/pipeline-api/internal/jobs"
	"github.com/straye-as/pipeline-api/internal/logger"
	"github.com/straye-as/pipeline-api/internal/notify"
	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/storage"
	"github.com/straye-as/pipeline-api/internal/templates"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title Straye Pipeline API
// @version 1.0
// @description Stage pipelines, approval requests and customer-to-project conversion
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@straye.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description API Key for system operations
// @Security BearerAuth
// @Security ApiKeyAuth

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Basic configuration first, for logging setup
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	if host := os.Getenv("SWAGGER_HOST"); host != "" {
		docs.SwaggerInfo.Host = host
	} else {
		docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", basicCfg.App.Port)
	}

	// Secrets come from the environment in development and Key Vault elsewhere
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	db, err := database.NewDatabase(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	fileStorage, err := storage.NewStorage(&cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Info("Storage initialized", zap.String("mode", cfg.Storage.Mode))

	registry, err := templates.LoadDir(cfg.Workflow.TemplateDir)
	if err != nil {
		return fmt.Errorf("failed to load stage templates: %w", err)
	}
	log.Info("Stage templates loaded",
		zap.String("dir", cfg.Workflow.TemplateDir),
		zap.Int("count", len(registry.List())))

	hub := events.NewHub(32, log.Named("events"))
	sender := notify.NewSender(&cfg.Email, log)

	app := wire(cfg, db, fileStorage, registry, hub, sender, log)

	scheduler := jobs.NewScheduler(log)
	retryJob := jobs.NewRetryJob(app.conversions, app.sideEffects,
		cfg.Workflow.RetryBatchSize, cfg.Workflow.RetryTimeoutDuration(), log.Named("retry"))
	if err := scheduler.AddJob(jobs.RetryJobName, cfg.Workflow.RetryCron, retryJob.Run); err != nil {
		return fmt.Errorf("failed to register retry job: %w", err)
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      app.router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		<-scheduler.Stop().Done()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		<-scheduler.Stop().Done()
		log.Info("Scheduler stopped")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}
		log.Info("Server stopped gracefully")
	}

	return nil
}

type application struct {
	router      *router.Router
	conversions *service.ConversionService
	sideEffects *service.SideEffectService
}

// wire builds the repositories, services and handlers
func wire(
	cfg *config.Config,
	db *gorm.DB,
	fileStorage storage.Storage,
	registry *templates.Registry,
	hub *events.Hub,
	sender notify.Sender,
	log *zap.Logger,
) *application {
	customerRepo := repository.NewCustomerRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	transcriptRepo := repository.NewTranscriptRepository(db)
	historyRepo := repository.NewStageHistoryRepository(db)
	runRepo := repository.NewConversionRunRepository(db)
	sideEffectRepo := repository.NewSideEffectRepository(db)
	userRepo := repository.NewUserRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, sideEffectRepo, userRepo, sender, hub,
		cfg.Workflow.RetryMaxAttempts, log)
	teamService := service.NewTeamService(invitationRepo, membershipRepo, userRepo, projectRepo, notificationService, db, log)
	stageService := service.NewStageService(customerRepo, projectRepo, approvalRepo, historyRepo, membershipRepo, registry, hub, db, log)
	quoteService := service.NewQuoteService(quoteRepo, customerRepo, projectRepo, membershipRepo, db, log)
	conversionService := service.NewConversionService(
		customerRepo, projectRepo, approvalRepo, quoteRepo, transcriptRepo,
		runRepo, historyRepo, membershipRepo, notificationService, hub, cfg.Workflow.DefaultProjectStages,
		cfg.Workflow.RetryMaxAttempts, db, log)
	approvalService := service.NewApprovalService(
		approvalRepo, userRepo, teamService, stageService, quoteService, conversionService, notificationService, hub, db, log)
	customerService := service.NewCustomerService(customerRepo, transcriptRepo, membershipRepo, fileStorage, registry,
		cfg.Workflow.DefaultCustomerStages, log)
	projectService := service.NewProjectService(projectRepo, customerRepo, transcriptRepo, membershipRepo, fileStorage, log)
	sideEffectService := service.NewSideEffectService(sideEffectRepo, notificationService, log)

	authMiddleware := auth.NewMiddleware(cfg, userRepo, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	maxUpload := cfg.Storage.MaxUploadSizeMB
	handlers := router.Handlers{
		Health:       handler.NewHealthHandler(func(ctx context.Context) error { return database.HealthCheck(ctx, db) }, log),
		Auth:         handler.NewAuthHandler(userRepo, log),
		Team:         handler.NewTeamHandler(teamService, userRepo, log),
		Customer:     handler.NewCustomerHandler(customerService, projectService, conversionService, quoteService, maxUpload, log),
		Project:      handler.NewProjectHandler(projectService, quoteService, maxUpload, log),
		Stage:        handler.NewStageHandler(stageService, approvalService, log),
		Approval:     handler.NewApprovalHandler(approvalService, log),
		Quote:        handler.NewQuoteHandler(quoteService, log),
		Conversion:   handler.NewConversionHandler(conversionService, log),
		Notification: handler.NewNotificationHandler(notificationService, log),
		Event:        handler.NewEventHandler(hub, 25*time.Second, log),
	}

	return &application{
		router:      router.NewRouter(cfg, log, authMiddleware, rateLimiter, handlers),
		conversions: conversionService,
		sideEffects: sideEffectService,
	}
}
