// Package main is the entry point of the psyhub gateway: one HTTP process
// hosting the webhook dispatcher for all five Telegram bots, the REST API
// for front-office hosts, and the shared persistence behind them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/psyhub-dev/psyhub-gateway/config"
	"github.com/psyhub-dev/psyhub-gateway/internal/bots"
	"github.com/psyhub-dev/psyhub-gateway/internal/bots/conceptualizer"
	"github.com/psyhub-dev/psyhub-gateway/internal/bots/interpreter"
	"github.com/psyhub-dev/psyhub-gateway/internal/bots/pro"
	"github.com/psyhub-dev/psyhub-gateway/internal/bots/screen"
	"github.com/psyhub-dev/psyhub-gateway/internal/bots/simulator"
	"github.com/psyhub-dev/psyhub-gateway/internal/domain/link"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/external/claude"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/external/telegram"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/persistence/postgres"
	"github.com/psyhub-dev/psyhub-gateway/internal/infrastructure/persistence/redis"
	httpserver "github.com/psyhub-dev/psyhub-gateway/internal/interface/http"
	"github.com/psyhub-dev/psyhub-gateway/pkg/logger"
)

// webhookUpdates limits webhook deliveries to the update kinds the
// dispatcher handles.
var webhookUpdates = []string{"message", "callback_query"}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	logOpts := logger.DefaultOptions()
	if cfg.App.Debug {
		logOpts.Level = logger.LevelDebug
	}
	log := logger.New(logOpts)
	log.Info("starting psyhub gateway",
		logger.String("name", cfg.App.Name),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE CONNECTION
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	conn, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		conn.Close()
	}()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// Migrations run over the direct (non-pooled) connection when one is
	// configured; pgbouncer in transaction mode breaks DDL batches.
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("running database migrations...")
	migConn, err := postgres.Connect(ctx, cfg.MigrationURL())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	if err := postgres.NewMigrator(migConn).Migrate(ctx); err != nil {
		migConn.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	migConn.Close()
	log.Info("migrations completed")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. RATE LIMITER (Redis, optional)
	// ─────────────────────────────────────────────────────────────────────────
	var limiter redis.Limiter = redis.NoopLimiter{}
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		log.Info("connecting to Redis...")
		rlCfg := redis.DefaultConfig()
		rlCfg.URL = cfg.Redis.URL
		rl, err := redis.NewRateLimiter(ctx, rlCfg, log)
		if err != nil {
			log.Warn("Redis unavailable, rate limiting disabled", logger.Err(err))
		} else {
			defer func() { _ = rl.Close() }()
			limiter = rl
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	userRepo := postgres.NewUserRepository(conn)
	caseRepo := postgres.NewCaseRepository(conn)
	inviteRepo := postgres.NewInviteRepository(conn)
	linkRepo := postgres.NewLinkRepository(conn)
	stateRepo := postgres.NewStateRepository(conn)
	dedupRepo := postgres.NewDedupRepository(conn)
	artifactRepo := postgres.NewArtifactRepository(conn)
	assessmentRepo := postgres.NewAssessmentRepository(conn)
	profileRepo := postgres.NewProfileRepository(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. DOMAIN SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	links := link.NewService(linkRepo, config.ToolBotIDs)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing external clients...")

	oracle := claude.New(claude.Config{
		APIKey:         cfg.Oracle.APIKey,
		FastModel:      cfg.Oracle.FastModel,
		StrongModel:    cfg.Oracle.StrongModel,
		RequestTimeout: cfg.Oracle.RequestTimeout,
		Logger:         log,
	})

	// One Bot API client per bot, plus the resolved @username for deep links.
	tgClients := make(map[string]*telegram.Client, len(cfg.Telegram.Bots))
	usernames := make(map[string]string, len(cfg.Telegram.Bots))
	for _, botID := range config.BotIDs {
		creds, ok := cfg.Telegram.Bots[botID]
		if !ok {
			return fmt.Errorf("missing Telegram credentials for bot %q", botID)
		}

		tgCfg := telegram.DefaultClientConfig(creds.Token)
		tgCfg.BaseURL = cfg.Telegram.BaseURL
		tgCfg.Timeout = cfg.Telegram.SendTimeout
		tgCfg.Logger = log.With(logger.BotID(botID))
		tgClients[botID] = telegram.NewClient(tgCfg)

		me, err := tgClients[botID].GetMe(ctx)
		if err != nil {
			log.Warn("getMe failed, deep links will fall back to start codes",
				logger.BotID(botID), logger.Err(err))
			continue
		}
		usernames[botID] = me.Username
		log.Info("bot authorized", logger.BotID(botID), logger.String("username", me.Username))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. BOT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing bot handlers...")
	handlers := map[string]bots.Handler{
		config.BotPro: pro.New(pro.Deps{
			States:       stateRepo,
			Users:        userRepo,
			Cases:        caseRepo,
			Invites:      inviteRepo,
			Links:        links,
			Artifacts:    artifactRepo,
			TG:           tgClients[config.BotPro],
			Log:          log.With(logger.BotID(config.BotPro)),
			BotUsernames: usernames,
		}),
		config.BotScreen: screen.New(screen.Deps{
			States:      stateRepo,
			Links:       links,
			Artifacts:   artifactRepo,
			Assessments: assessmentRepo,
			Cases:       caseRepo,
			Users:       userRepo,
			Oracle:      oracle,
			TG:          tgClients[config.BotScreen],
			Log:         log.With(logger.BotID(config.BotScreen)),
		}),
		config.BotInterpretator: interpreter.New(interpreter.Deps{
			States:    stateRepo,
			Links:     links,
			Artifacts: artifactRepo,
			Oracle:    oracle,
			TG:        tgClients[config.BotInterpretator],
			Log:       log.With(logger.BotID(config.BotInterpretator)),
		}),
		config.BotConceptualizator: conceptualizer.New(conceptualizer.Deps{
			States:    stateRepo,
			Links:     links,
			Artifacts: artifactRepo,
			Oracle:    oracle,
			TG:        tgClients[config.BotConceptualizator],
			Log:       log.With(logger.BotID(config.BotConceptualizator)),
		}),
		config.BotSimulator: simulator.New(simulator.Deps{
			States:    stateRepo,
			Links:     links,
			Artifacts: artifactRepo,
			Profiles:  profileRepo,
			Oracle:    oracle,
			TG:        tgClients[config.BotSimulator],
			Log:       log.With(logger.BotID(config.BotSimulator)),
		}),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port

	secrets := make(map[string]string, len(cfg.Telegram.Bots))
	for botID, creds := range cfg.Telegram.Bots {
		secrets[botID] = creds.WebhookSecret
	}

	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Handlers:  handlers,
		Secrets:   secrets,
		Dedup:     dedupRepo,
		Limiter:   limiter,
		Links:     links,
		Artifacts: artifactRepo,
		DB:        conn,
		Logger:    log,
		Version:   cfg.App.Version,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 11. WEBHOOK REGISTRATION
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.App.PublicBaseURL != "" {
		for _, botID := range config.BotIDs {
			url := cfg.App.PublicBaseURL + "/webhook/" + botID
			if err := tgClients[botID].SetWebhook(ctx, url, secrets[botID], webhookUpdates); err != nil {
				return fmt.Errorf("failed to register webhook for %s: %w", botID, err)
			}
			log.Info("webhook registered", logger.BotID(botID), logger.String("url", url))
		}
	} else {
		log.Warn("PUBLIC_BASE_URL not set, skipping webhook registration")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. START & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()

	log.Info("psyhub gateway is running",
		logger.String("address", httpCfg.Address()),
		logger.Int("bots", len(handlers)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", logger.Err(err))
			return err
		}
	}

	log.Info("starting graceful shutdown...",
		logger.String("timeout", cfg.App.ShutdownTimeout.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}
