package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/vocabulary-sync/internal/config"
	"github.com/iliyamo/vocabulary-sync/internal/database"
	"github.com/iliyamo/vocabulary-sync/internal/handler"
	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/middleware"
	"github.com/iliyamo/vocabulary-sync/internal/queue"
	"github.com/iliyamo/vocabulary-sync/internal/repository"
	"github.com/iliyamo/vocabulary-sync/internal/router"
	"github.com/iliyamo/vocabulary-sync/internal/service"
	"github.com/iliyamo/vocabulary-sync/internal/syncer"
	"github.com/iliyamo/vocabulary-sync/internal/trust"
	"github.com/iliyamo/vocabulary-sync/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}
	log := utils.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel).With(
		slog.String("node", cfg.NodeID), slog.String("role", string(cfg.Role)))

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plans, err := config.LoadPlans(cfg.PlansFile)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		return err
	}

	mongo, err := database.OpenMongo(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return err
	}
	defer mongo.Close()

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()
	rateCfg := config.LoadRateLimitConfig()
	m := metrics.New(prometheus.DefaultRegisterer)

	// repositories
	serverRepo := repository.NewDataServerRepo(db)
	userRepo := repository.NewUserRepo(db)
	wordRepo := repository.NewWordRepo(mongo.DB.Collection(database.ColWords))
	phraseRepo := repository.NewPhraseRepo(mongo.DB.Collection(database.ColPhrases))

	// server-to-server sync
	signer := trust.NewSigner(cfg.SyncSecret)
	var (
		publisher *queue.Publisher
		deferrer  syncer.Deferrer
	)
	if cfg.RabbitURL != "" {
		publisher = queue.NewPublisher(cfg.RabbitURL, log)
		deferrer = publisher
	} else {
		log.Warn("RABBITMQ_URL not set, failed sync pushes will not be retried")
	}
	statsTarget := ""
	if !cfg.IsAuthoritative() {
		statsTarget = cfg.AuthoritativeURL
	}
	dispatcher := syncer.NewDispatcher(syncer.NewClient(signer, cfg.NodeID, cfg.SyncTimeout), statsTarget, deferrer, m, log)

	// services
	ledger := service.NewQuotaLedger(plans, userRepo, m)
	var verifier service.PlanVerifier
	if cfg.SubscriptionURL != "" {
		verifier = service.NewHTTPPlanVerifier(cfg.SubscriptionURL, cfg.SyncTimeout)
	}
	var (
		registry       *service.Registry
		identityPusher service.IdentityPusher
		configPusher   service.ConfigPusher
	)
	if cfg.IsAuthoritative() {
		prober := service.NewHealthProber(cfg.HealthCheckTimeout, cfg.HealthPath)
		registry = service.NewRegistry(serverRepo, prober, m, log, middleware.CachePurger(cacheCfg, rdb, log))
		identityPusher = dispatcher
		configPusher = dispatcher
	}
	subs := service.NewSubscriptions(userRepo, verifier, ledger, configPusher, log)
	users := service.NewUsers(userRepo, registry, ledger, subs, identityPusher,
		service.UserOptions{SelfHosted: cfg.SelfHosted, BcryptCost: cfg.BcryptCost}, log)
	if !cfg.IsAuthoritative() {
		users.WithFetcher(dispatcher, cfg.AuthoritativeURL)
	}
	words := service.NewWordService(wordRepo, ledger, dispatcher, cfg.BatchChunkSize, m, log)
	phrases := service.NewPhraseService(phraseRepo, ledger, dispatcher, cfg.BatchChunkSize, m, log)

	// HTTP
	validator, err := handler.NewValidator()
	if err != nil {
		return err
	}
	e := router.New(validator, cfg.CORSOrigins, log)
	router.RegisterRoutes(e, cfg.HealthPath, string(cfg.Role), cfg.NodeID, prometheus.DefaultGatherer)
	router.RegisterUsers(e,
		handler.NewUserHandler(users, subs, cfg.JWTSecret, time.Duration(cfg.AccessTTLMin)*time.Minute),
		users, cfg.JWTSecret, cfg.IsAuthoritative())
	router.RegisterVocabulary(e, handler.NewWordHandler(words), handler.NewPhraseHandler(phrases),
		users, cfg.JWTSecret, middleware.RateLimit(rateCfg, rdb, log))
	router.RegisterServerSync(e, handler.NewServerSyncHandler(users, log), middleware.ServerTrust(signer, m, log))
	if cfg.IsAuthoritative() {
		router.RegisterAdmin(e,
			handler.NewAdminAuthHandler(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret,
				time.Duration(cfg.AdminTTLMin)*time.Minute),
			handler.NewDataServerHandler(registry),
			cfg.JWTSecret, middleware.ResponseCache(cacheCfg, rdb, log))
	}

	if publisher != nil {
		consumer := &queue.Consumer{
			URL:         cfg.RabbitURL,
			Resender:    dispatcher,
			Republisher: publisher,
			MaxAttempts: cfg.SyncMaxAttempts,
			Delay:       cfg.SyncRetryDelay,
			Log:         log,
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("deferred sync consumer stopped", slog.Any("error", err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
