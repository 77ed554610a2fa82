package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabchat/internal/auth"
	"collabchat/internal/config"
	"collabchat/internal/constants"
	"collabchat/internal/database"
	"collabchat/internal/errors"
	"collabchat/internal/features"
	"collabchat/internal/gateway"
	"collabchat/internal/models"
	"collabchat/internal/presence"
	"collabchat/internal/ratelimit"
	"collabchat/internal/retry"
	"collabchat/internal/service"
	"collabchat/internal/tracing"
	"collabchat/pkg/circuitbreaker"
	"collabchat/pkg/notify"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes raw user identifiers)")
	configPath = flag.String("config", "", "Path to configuration file; COLLABCHAT_* environment variables override it")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("collabchat %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting collabchat")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg.LogLevel, *verbose)

	flags := features.NewFlagManager()
	applyFeatureOverrides(flags, cfg.Features, logger)

	tracingCfg := cfg.Tracing
	tracingCfg.Enabled = tracingCfg.Enabled && flags.IsEnabled(features.FlagDistributedTracing)
	tracer := tracing.NewProvider(tracingCfg, logger)
	if err := tracer.Start(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	policy := retry.PolicyFrom(cfg.Retry)

	db, err := openDatabase(ctx, cfg.Database, flags.IsEnabled(features.FlagDeviceTokenEncryption), policy, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := dialPresence(ctx, cfg.Redis.URL, policy, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	presenceCache := presence.New(redisClient, cfg.Redis.Prefix,
		time.Duration(cfg.Redis.LastSeenTTLHours)*time.Hour, db)

	pusher, err := notify.NewFromConfig(cfg.Notifications, logger)
	if err != nil {
		return fmt.Errorf("failed to create push sender: %w", err)
	}
	defer func() {
		if err := pusher.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close push sender")
		}
	}()

	breaker := circuitbreaker.New("push",
		uint32(cfg.Notifications.BreakerFailures),
		time.Duration(cfg.Notifications.BreakerTimeoutSec)*time.Second,
		circuitbreaker.WithLogger(logger))

	loc, err := time.LoadLocation(cfg.Chats.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid chats.time_zone: %w", err)
	}

	registry := service.NewConnectionRegistry()
	delivery := service.NewDelivery(registry, db, db, pusher, breaker, flags, logger)
	chats := service.NewChatAggregator(db, loc)
	messages := service.NewMessageService(db, delivery, chats, logger)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	eventLimiter := ratelimit.New(cfg.Gateway.EventRateLimit,
		time.Duration(cfg.Gateway.EventRateWindowSec)*time.Second)
	httpLimiter := ratelimit.New(cfg.Server.RateLimitPerMinute, time.Minute)

	gw := gateway.New(gateway.ConfigFrom(cfg.Gateway), verifier, messages, registry, logger,
		gateway.WithPresence(presenceCache),
		gateway.WithLimiter(eventLimiter),
		gateway.WithFlags(flags),
	)

	if flags.IsEnabled(features.FlagExpiredMuteCleanup) {
		sweeper := service.NewMuteSweeper(db, cfg.Server.MuteSweepIntervalMin, logger)
		go sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	if *configPath != "" {
		watcher := config.NewConfigWatcher(*configPath, logger)
		watcher.OnConfigChange(func(next *models.Config) {
			applyLogLevel(logger, next.LogLevel, *verbose)
			applyFeatureOverrides(flags, next.Features, logger)
			eventLimiter.SetLimit(next.Gateway.EventRateLimit,
				time.Duration(next.Gateway.EventRateWindowSec)*time.Second)
			httpLimiter.SetLimit(next.Server.RateLimitPerMinute, time.Minute)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	server := NewServer(cfg, Dependencies{
		Messages:    messages,
		Presence:    presenceCache,
		Auth:        verifier,
		Gateway:     gw,
		Flags:       flags,
		RateLimiter: httpLimiter,
		HealthChecks: map[string]Pinger{
			"database": db,
			"presence": presenceCache,
		},
	}, logger)

	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// applyLogLevel sets the configured level. Verbose forces debug.
func applyLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

func applyFeatureOverrides(flags *features.FlagManager, overrides map[string]bool, logger *logrus.Logger) {
	if unknown := flags.ApplyOverrides(overrides); len(unknown) > 0 {
		logger.WithField("flags", unknown).Warn("Ignoring unknown feature flags")
	}
}

// openDatabase retries transient connection failures. Schema and
// configuration errors fail at once.
func openDatabase(ctx context.Context, cfg models.DatabaseConfig, encrypt bool, policy retry.Policy, logger *logrus.Logger) (*database.Database, error) {
	var db *database.Database
	err := retry.Do(ctx, policy, "database connect", func(ctx context.Context) error {
		var openErr error
		db, openErr = database.New(ctx, cfg, database.WithEncryption(encrypt))
		return openErr
	}, retry.If(errors.IsRetryable), retry.OnRetry(logRetry(logger, "database")))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"driver":     db.Dialect(),
		"encryption": encrypt,
	}).Info("Database ready")
	return db, nil
}

func dialPresence(ctx context.Context, url string, policy retry.Policy, logger *logrus.Logger) (*redis.Client, error) {
	var client *redis.Client
	err := retry.Do(ctx, policy, "presence connect", func(ctx context.Context) error {
		var dialErr error
		client, dialErr = presence.Dial(ctx, url)
		return dialErr
	}, retry.If(errors.IsRetryable), retry.OnRetry(logRetry(logger, "presence")))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to presence cache: %w", err)
	}
	logger.Info("Presence cache ready")
	return client, nil
}

func logRetry(logger *logrus.Logger, component string) func(int, error, time.Duration) {
	return func(attempt int, err error, next time.Duration) {
		logger.WithFields(logrus.Fields{
			service.LogFieldComponent: component,
			service.LogFieldAttempt:   attempt,
			"next_retry":              next.String(),
		}).WithError(err).Warn("Connection attempt failed, retrying")
	}
}
