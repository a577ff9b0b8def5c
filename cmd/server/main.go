package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"chat-credential-engine/internal/audit"
	"chat-credential-engine/internal/cache"
	"chat-credential-engine/internal/config"
	"chat-credential-engine/internal/db"
	"chat-credential-engine/internal/health"
	identityhandler "chat-credential-engine/internal/identity/handler"
	identityservice "chat-credential-engine/internal/identity/service"
	inviterepo "chat-credential-engine/internal/invite/repository"
	inviteservice "chat-credential-engine/internal/invite/service"
	"chat-credential-engine/internal/logging"
	linkrepo "chat-credential-engine/internal/loginlink/repository"
	linkservice "chat-credential-engine/internal/loginlink/service"
	policyengine "chat-credential-engine/internal/policy/engine"
	principalrepo "chat-credential-engine/internal/principal/repository"
	revocationrepo "chat-credential-engine/internal/revocation/repository"
	"chat-credential-engine/internal/security"
	"chat-credential-engine/internal/server"
	"chat-credential-engine/internal/server/middleware"
	sessionservice "chat-credential-engine/internal/session/service"
	"chat-credential-engine/internal/telemetry"
	"chat-credential-engine/internal/telemetry/producer"
	otelsetup "chat-credential-engine/internal/telemetry/otel"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthWatchInterval = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
	logger.Info("server exited")
}

// stores holds the storage backends selected by config and the functions that release them.
type stores struct {
	revocations revocationrepo.Repository
	links       linkrepo.Repository
	principals  principalrepo.Repository
	invites     inviterepo.Repository
	closers     []func(context.Context) error
}

func (s *stores) close(ctx context.Context, logger *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics(providers.MeterProvider.Meter(cfg.ServiceName))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	keys, err := security.NewKeyProvider(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return fmt.Errorf("signing keys: %w", err)
	}
	logger.Info("signing keys loaded", zap.String("alg", keys.Algorithm()))

	checker := health.NewChecker(2 * time.Second)
	st, err := openStores(ctx, cfg, logger, checker)
	if err != nil {
		return err
	}

	auditLogger := audit.NewLogger(logger, middleware.ClientIP)
	events := producer.NewProducer(cfg.KafkaBrokersList(), cfg.KafkaTopic)
	defer events.Close()
	emitter := telemetry.Fanout(otelsetup.NewEventEmitter(providers.LoggerProvider), auditLogger, events)

	tokens, err := sessionservice.NewTokenService(keys, st.revocations, sessionservice.Config{
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	},
		sessionservice.WithLogger(logger),
		sessionservice.WithMetrics(metrics),
		sessionservice.WithEventEmitter(emitter),
	)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	links := linkservice.NewService(st.links, cfg.LinkTTL(),
		linkservice.WithLogger(logger),
		linkservice.WithMetrics(metrics),
		linkservice.WithEventEmitter(emitter),
	)

	masterSecret, err := resolveMasterSecret(cfg, logger)
	if err != nil {
		return err
	}
	invites, err := inviteservice.NewService(st.invites, masterSecret,
		inviteservice.WithLogger(logger),
		inviteservice.WithMetrics(metrics),
		inviteservice.WithEventEmitter(emitter),
	)
	if err != nil {
		return fmt.Errorf("invite service: %w", err)
	}

	policy, err := policyengine.NewOPAEvaluator(ctx, "", policyengine.Settings{
		InviteOnly:    cfg.InviteOnly,
		ExemptDomains: cfg.InviteExemptDomainsList(),
	}, logger)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	checker.Add("policy", health.PolicyPinger(policy))

	auth := identityservice.NewAuthService(st.principals, tokens, links, invites, policy,
		security.NewHasher(cfg.BcryptCost),
		identityservice.WithLogger(logger),
		identityservice.WithEventEmitter(emitter),
		identityservice.WithLinkSender(identityservice.NewLogSender(logger, cfg.LoginLinkBaseURL, !cfg.IsProduction())),
		identityservice.WithDefaultInviteExpiry(cfg.InviteDefaultExpiryHours),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.RouterDeps{
			Logger:   logger,
			Audit:    auditLogger,
			Health:   checker,
			Identity: identityhandler.NewHandler(auth, logger),
			Tokens:   tokens,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		srv, hs := server.NewGRPCServer(logger)
		grpcSrv = srv
		go server.WatchHealth(ctx, checker, hs, healthWatchInterval, logger)
		go func() {
			logger.Info("grpc health server listening", zap.String("addr", cfg.GRPCAddr))
			if err := srv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}

	// Async event emits run detached from requests; give them time to land before the
	// providers flush and close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()
	if err := providers.Shutdown(drainCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	st.close(drainCtx, logger)
	return runErr
}

// openStores connects the configured backends and registers each with checker. In-memory
// stores get a sweeper goroutine bound to ctx.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger, checker *health.Checker) (*stores, error) {
	st := &stores{}

	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		st.closers = append(st.closers, closeRedis(rdb))
		checker.Add("redis", cache.Pinger{Client: rdb})
		st.revocations = revocationrepo.NewRedisRepository(rdb, "")
		st.links = linkrepo.NewRedisRepository(rdb, "")
	} else {
		logger.Warn("REDIS_URL not set; revocations and login links are process-local")
		revocations := revocationrepo.NewMemoryRepository()
		links := linkrepo.NewMemoryRepository()
		go revocations.Run(ctx, cfg.SweepInterval(), logger)
		go links.Run(ctx, cfg.SweepInterval(), logger)
		st.revocations, st.links = revocations, links
	}

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		sqlDB, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		st.closers = append(st.closers, func(context.Context) error { return sqlDB.Close() })
		checker.Add("postgres", health.PingFunc(sqlDB.PingContext))
		st.principals = principalrepo.NewPostgresRepository(sqlDB)
	} else {
		logger.Warn("DATABASE_URL not set; principals are process-local")
		st.principals = principalrepo.NewMemoryRepository()
	}

	switch cfg.ResolvedInviteStore() {
	case config.InviteStorePostgres:
		st.invites = inviterepo.NewPostgresRepository(sqlDB)
	case config.InviteStoreMongo:
		mdb, err := db.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		st.closers = append(st.closers, closeMongo(mdb))
		repo := inviterepo.NewMongoRepository(mdb)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		checker.Add("mongo", db.MongoPinger{DB: mdb})
		st.invites = repo
	default:
		st.invites = inviterepo.NewMemoryRepository()
	}
	logger.Info("stores ready", zap.String("invite_store", cfg.ResolvedInviteStore()), zap.Strings("checks", checker.Names()))
	return st, nil
}

func closeRedis(rdb *redis.Client) func(context.Context) error {
	return func(context.Context) error { return rdb.Close() }
}

func closeMongo(mdb *mongo.Database) func(context.Context) error {
	return func(ctx context.Context) error { return mdb.Client().Disconnect(ctx) }
}

// resolveMasterSecret returns MASTER_SECRET, or an ephemeral secret outside production.
// Invites minted with an ephemeral secret stop verifying after a restart.
func resolveMasterSecret(cfg *config.Config, logger *zap.Logger) ([]byte, error) {
	if cfg.MasterSecret != "" {
		return []byte(cfg.MasterSecret), nil
	}
	if cfg.IsProduction() {
		return nil, errors.New("MASTER_SECRET is required in production")
	}
	secret, err := security.RandomToken(security.TokenBytes)
	if err != nil {
		return nil, fmt.Errorf("master secret: %w", err)
	}
	logger.Warn("MASTER_SECRET not set; using an ephemeral secret, outstanding invites will not survive a restart")
	return []byte(secret), nil
}
