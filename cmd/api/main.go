package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tolkfield/api/internal/domain"
	"github.com/tolkfield/api/internal/handlers"
	"github.com/tolkfield/api/internal/platform/config"
	"github.com/tolkfield/api/internal/platform/events"
	pfirestore "github.com/tolkfield/api/internal/platform/firestore"
	"github.com/tolkfield/api/internal/platform/mail"
	"github.com/tolkfield/api/internal/platform/observability"
	"github.com/tolkfield/api/internal/platform/push"
	"github.com/tolkfield/api/internal/platform/schedule"
	"github.com/tolkfield/api/internal/platform/secrets"
	"github.com/tolkfield/api/internal/platform/sms"
	"github.com/tolkfield/api/internal/repositories"
	firestoreRepo "github.com/tolkfield/api/internal/repositories/firestore"
	"github.com/tolkfield/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Audit.HashSalt"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	build := services.BuildInfo{
		Version:     buildVersion(envValues),
		Environment: cfg.Environment,
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()
	jobEventsTopic := pubsubClient.Topic(cfg.PubSub.JobEventsTopic)
	defer jobEventsTopic.Stop()

	eventPublisher, err := events.NewPubSubJobEventPublisher(jobEventsTopic)
	if err != nil {
		logger.Fatal("failed to initialise job event publisher", zap.Error(err))
	}

	pushClient, err := push.NewClient(push.Options{
		Endpoint: cfg.Push.Endpoint,
		AppID:    cfg.Push.AppID,
		APIKey:   cfg.Push.APIKey,
		Timeout:  cfg.Push.Timeout,
	})
	if err != nil {
		logger.Fatal("failed to initialise push client", zap.Error(err))
	}
	smsClient, err := sms.NewClient(sms.Options{
		Endpoint:   cfg.SMS.Endpoint,
		APIKey:     cfg.SMS.APIKey,
		FromNumber: cfg.SMS.FromNumber,
		Timeout:    cfg.SMS.Timeout,
	})
	if err != nil {
		logger.Fatal("failed to initialise sms client", zap.Error(err))
	}
	mailClient, err := mail.NewClient(mail.Options{
		Endpoint:    cfg.Mail.Endpoint,
		APIKey:      cfg.Mail.APIKey,
		FromAddress: cfg.Mail.FromAddress,
		FromName:    cfg.Mail.FromName,
		Timeout:     cfg.Mail.Timeout,
	})
	if err != nil {
		logger.Fatal("failed to initialise mail client", zap.Error(err))
	}

	hours, err := schedule.NewHours(schedule.Options{
		Timezone:      cfg.Schedule.Timezone,
		NightStart:    cfg.Schedule.NightStart,
		NightEnd:      cfg.Schedule.NightEnd,
		BusinessStart: cfg.Schedule.BusinessStart,
	})
	if err != nil {
		logger.Fatal("failed to initialise business hours", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, firestoreRepo.RegistryOptions{
		HealthChecks: dependencyChecks(firestoreClient, jobEventsTopic),
		Version:      build.Version,
		Environment:  build.Environment,
	})
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	notificationService, err := services.NewNotificationService(services.NotificationServiceDeps{
		Push:        &pushSenderAdapter{client: pushClient},
		SMS:         &smsSenderAdapter{client: smsClient},
		Mail:        &mailerAdapter{client: mailClient},
		Directory:   registry.Directory(),
		Hours:       hours,
		NormalSound: domain.SoundProfile{Android: cfg.Push.NormalSound.Android, IOS: cfg.Push.NormalSound.IOS},
		UrgentSound: domain.SoundProfile{Android: cfg.Push.UrgentSound.Android, IOS: cfg.Push.UrgentSound.IOS},
		Clock:       time.Now,
		Logger:      serviceLogger(logger.Named("notifications")),
	})
	if err != nil {
		logger.Fatal("failed to initialise notification service", zap.Error(err))
	}

	matcherService, err := services.NewMatcherService(services.MatcherServiceDeps{
		Jobs:        registry.Jobs(),
		Assignments: registry.Assignments(),
		Directory:   registry.Directory(),
		Policy:      notificationService,
		Clock:       time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise matcher service", zap.Error(err))
	}
	notificationService.AttachMatcher(matcherService)

	auditService, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: registry.AuditLogs(),
		Clock:      time.Now,
		Logger:     logger.Named("audit").Sugar(),
		HashSalt:   cfg.Audit.HashSalt,
	})
	if err != nil {
		logger.Fatal("failed to initialise audit log service", zap.Error(err))
	}

	bookingService, err := services.NewBookingService(services.BookingServiceDeps{
		Jobs:               registry.Jobs(),
		Assignments:        registry.Assignments(),
		Directory:          registry.Directory(),
		Throttles:          registry.Throttles(),
		Matcher:            matcherService,
		Notifications:      notificationService,
		Audit:              auditService,
		Events:             eventPublisher,
		Location:           hours.Location(),
		ImmediateLead:      cfg.Booking.ImmediateLead,
		CancellationWindow: cfg.Booking.CancellationWindow,
		Clock:              time.Now,
		Logger:             serviceLogger(logger.Named("booking")),
	})
	if err != nil {
		logger.Fatal("failed to initialise booking service", zap.Error(err))
	}

	throttleService, err := services.NewThrottleService(registry.Throttles())
	if err != nil {
		logger.Fatal("failed to initialise throttle service", zap.Error(err))
	}

	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: registry.Health(),
		Clock:            time.Now,
		Build:            build,
	})
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	bookingHandlers := handlers.NewBookingHandlers(bookingService)
	languageHandlers := handlers.NewLanguageHandlers(registry.Directory())
	adminHandlers := handlers.NewAdminHandlers(bookingService, auditService, throttleService)
	healthHandlers := handlers.NewHealthHandlers(systemService)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
		handlers.ActorFromHeaders,
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithJobRoutes(bookingHandlers.Routes),
		handlers.WithUserRoutes(bookingHandlers.UserRoutes),
		handlers.WithLanguageRoutes(languageHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("tolkfield api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildVersion(env map[string]string) string {
	version := strings.TrimSpace(env["TOLK_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	return version
}

func dependencyChecks(client *firestore.Client, topic *pubsub.Topic) []repositories.DependencyCheck {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := client.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if topic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				exists, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	return checks
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("TOLK_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("TOLK_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("TOLK_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("TOLK_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("TOLK_GOOGLE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projectMap := secretProjectMapFromEnv(env); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["TOLK_SECRET_PROJECT_IDS"]
	}
	raw = strings.TrimSpace(raw)
	projects := make(map[string]string)
	if raw == "" {
		return projects
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envLabel := strings.ToLower(strings.TrimSpace(parts[0]))
		project := strings.TrimSpace(parts[1])
		if envLabel == "" || project == "" {
			continue
		}
		projects[envLabel] = project
	}
	return projects
}

func serviceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, msg string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(msg, zFields...)
	}
}

type pushSenderAdapter struct {
	client *push.Client
}

func (a *pushSenderAdapter) Send(ctx context.Context, message services.NotificationMessage) (string, error) {
	return a.client.Send(ctx, push.Notification{
		Recipients: message.Recipients,
		Message:    message.Text,
		Data:       message.Payload,
		Sounds:     push.Sounds{Android: message.Sound.Android, IOS: message.Sound.IOS},
		SendAfter:  message.SendAfter,
	})
}

type smsSenderAdapter struct {
	client *sms.Client
}

func (a *smsSenderAdapter) Send(ctx context.Context, to string, body string) (string, error) {
	return a.client.Send(ctx, sms.Message{To: to, Body: body})
}

type mailerAdapter struct {
	client *mail.Client
}

func (a *mailerAdapter) Send(ctx context.Context, toEmail, toName, subject, templateKey string, payload map[string]any) error {
	return a.client.Send(ctx, mail.Message{
		ToEmail:     toEmail,
		ToName:      toName,
		Subject:     subject,
		TemplateKey: templateKey,
		Payload:     payload,
	})
}
