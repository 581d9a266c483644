// Command efiling-server serves the registry HTTP API and the gRPC
// operations listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/efiling/internal/audit"
	"github.com/and161185/efiling/internal/config"
	"github.com/and161185/efiling/internal/limiter"
	"github.com/and161185/efiling/internal/metrics"
	"github.com/and161185/efiling/internal/migrate"
	"github.com/and161185/efiling/internal/policy"
	"github.com/and161185/efiling/internal/repository"
	"github.com/and161185/efiling/internal/repository/memory"
	"github.com/and161185/efiling/internal/repository/postgres"
	"github.com/and161185/efiling/internal/revocation"
	grpcserver "github.com/and161185/efiling/internal/server/grpc"
	httpserver "github.com/and161185/efiling/internal/server/http"
	"github.com/and161185/efiling/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("EFILING_CONFIG"), "path to YAML config")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides config)")
	opsAddr := flag.String("ops-addr", "", "gRPC health listen address (overrides config)")
	store := flag.String("store", "", "record store: postgres or memory (overrides config)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config)")
	skipMigrate := flag.Bool("skip-migrate", false, "do not apply migrations at startup")
	dev := flag.Bool("dev", false, "enable gRPC reflection on the ops listener")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	override(&cfg.HTTPAddr, *httpAddr)
	override(&cfg.OpsAddr, *opsAddr)
	override(&cfg.Store, *store)
	override(&cfg.DSN, *dsn)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("store", cfg.Store),
		zap.String("http", cfg.HTTPAddr),
		zap.String("ops", cfg.OpsAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *skipMigrate, *dev, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("bye")
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// stores is the set of repositories of one backend.
type stores struct {
	users     repository.UserRepository
	files     repository.FileRepository
	movements repository.MovementRepository
	mails     repository.MailRepository
	depts     repository.DepartmentRepository
	mdas      repository.MDARepository
	personnel repository.PersonnelRepository
	limiter   limiter.Limiter
	ready     func(context.Context) error
	close     func()
}

func openStores(ctx context.Context, cfg config.Config, skipMigrate bool, log *zap.Logger) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using the in-memory store; data is lost on exit")
		s := memory.New()
		return &stores{
			users: s.Users(), files: s.Files(), movements: s.Movements(), mails: s.Mails(),
			depts: s.Departments(), mdas: s.MDAs(), personnel: s.Personnel(),
			limiter: limiter.NewMemory(cfg.Limiter(), 10_000),
			close:   func() {},
		}, nil
	}

	if !skipMigrate {
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	db := &postgres.DB{Pool: pool}
	return &stores{
		users:     postgres.NewUserRepo(db),
		files:     postgres.NewFileRepo(db),
		movements: postgres.NewMovementRepo(db),
		mails:     postgres.NewMailRepo(db),
		depts:     postgres.NewDepartmentRepo(db),
		mdas:      postgres.NewMDARepo(db),
		personnel: postgres.NewPersonnelRepo(db),
		limiter:   limiter.NewPG(pool, cfg.Limiter()),
		ready:     pool.Ping,
		close:     pool.Close,
	}, nil
}

// app is the wired HTTP API plus what run needs to serve and tear it down.
type app struct {
	handler http.Handler
	ready   func(context.Context) error
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build opens the stores and optional backends, registers the bootstrap
// admin into an empty user store and wires the services into the API.
func build(ctx context.Context, cfg config.Config, skipMigrate bool, log *zap.Logger) (_ *app, err error) {
	st, err := openStores(ctx, cfg, skipMigrate, log)
	if err != nil {
		return nil, err
	}
	a := &app{ready: st.ready, closers: []func(){st.close}}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var (
		lim     = st.limiter
		revoked revocation.List = revocation.NewMemory()
	)
	if cfg.Redis.URL != "" {
		rdb, err := revocation.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		lim = limiter.NewRedis(rdb, cfg.Limiter(), "")
		revoked = revocation.NewRedis(rdb)
		log.Info("redis enabled for login limiter and token revocation")
	}

	var pub audit.Publisher = audit.NewLog(log)
	if len(cfg.Kafka.Brokers) > 0 {
		kc, err := audit.DialKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		a.closers = append(a.closers, kc.Close)
		pub = audit.Multi{pub, audit.NewKafka(kc, cfg.Kafka.Topic)}
		log.Info("kafka audit enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	roles, err := cfg.Roles()
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	pol := policy.New(st.users, roles, cfg.Policy.ActorCacheTTL)

	authSvc := service.NewAuthService(st.users, service.AuthConfig{
		SignKey:    []byte(cfg.Auth.JWTKey),
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	}, lim, revoked, log.Named("auth"), m)

	if cfg.BootstrapAdmin.Enabled() {
		u, err := authSvc.Bootstrap(ctx, service.NewUser{
			Email:    cfg.BootstrapAdmin.Email,
			Password: cfg.BootstrapAdmin.Password,
		})
		if err != nil {
			return nil, err
		}
		if u != nil {
			log.Info("bootstrap admin registered", zap.String("email", u.Email))
		}
	}

	api := httpserver.New(httpserver.Deps{
		Auth: authSvc,
		Movements: service.NewMovementService(service.MovementDeps{
			Movements:    st.movements,
			Files:        st.files,
			Users:        st.users,
			Mails:        st.mails,
			Policy:       pol,
			Audit:        pub,
			Metrics:      m,
			Log:          log,
			StrictReturn: cfg.Movement.StrictReturn,
		}),
		Files:     service.NewFileService(st.files, pol),
		Mails:     service.NewMailService(st.mails, pol),
		Users:     service.NewUserService(st.users, authSvc, pol, log),
		Org:       service.NewOrgService(st.depts, st.mdas, pol),
		Personnel: service.NewPersonnelService(st.personnel, pol),
		Policy:    pol,
		Metrics:   m,
		Log:       log,
		Ready:     st.ready,
	})
	a.handler = api.Handler()
	return a, nil
}

func run(ctx context.Context, cfg config.Config, skipMigrate, dev bool, log *zap.Logger) error {
	a, err := build(ctx, cfg, skipMigrate, log)
	if err != nil {
		return err
	}
	defer a.close()

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ops := grpcserver.NewOps(log, a.ready, dev)
	opsLis, err := net.Listen("tcp", cfg.OpsAddr)
	if err != nil {
		return fmt.Errorf("listen ops: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("ops listening", zap.String("addr", cfg.OpsAddr))
		return ops.Server().Serve(opsLis)
	})
	g.Go(func() error {
		ops.Watch(gctx, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(sctx)

		done := make(chan struct{})
		go func() { ops.Server().GracefulStop(); close(done) }()
		select {
		case <-done:
		case <-sctx.Done():
			ops.Server().Stop()
		}
		return err
	})
	return g.Wait()
}
