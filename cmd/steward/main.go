// Command steward runs the scheduling daemon: it owns the job-state
// document, executes playbooks, and serves the management API and the
// WebSocket relay.
//
// Configuration comes from STEWARD_* environment variables, optionally
// loaded from a .env file. See newDocstore for backend selection.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/xraph/steward"
	"github.com/xraph/steward/api"
	"github.com/xraph/steward/archive"
	archivegcs "github.com/xraph/steward/archive/gcs"
	archivelocal "github.com/xraph/steward/archive/local"
	archives3 "github.com/xraph/steward/archive/s3"
	"github.com/xraph/steward/cluster"
	clusterk8s "github.com/xraph/steward/cluster/k8s"
	"github.com/xraph/steward/codec"
	"github.com/xraph/steward/docstore"
	"github.com/xraph/steward/docstore/bolt"
	bunstore "github.com/xraph/steward/docstore/bun"
	dock8s "github.com/xraph/steward/docstore/k8s"
	"github.com/xraph/steward/docstore/memory"
	"github.com/xraph/steward/docstore/mongo"
	"github.com/xraph/steward/docstore/postgres"
	redisstore "github.com/xraph/steward/docstore/redis"
	"github.com/xraph/steward/docstore/sqlite"
	"github.com/xraph/steward/hook"
	"github.com/xraph/steward/jobstate"
	"github.com/xraph/steward/middleware"
	"github.com/xraph/steward/observability"
	"github.com/xraph/steward/playbook"
	"github.com/xraph/steward/relay"
	"github.com/xraph/steward/runner"
	"github.com/xraph/steward/scheduler"
	"github.com/xraph/steward/sink"
	slacksink "github.com/xraph/steward/sink/slack"
	"github.com/xraph/steward/sink/slogsink"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "steward:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger := newLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := configFromEnv()

	docs, k8sClient, err := newDocstore(ctx, logger)
	if err != nil {
		return err
	}

	hooks := hook.NewRegistry(logger)
	hooks.Register(observability.NewMetricsExtension())

	wire := codec.Get(cfg.Codec)
	states := jobstate.New(docs,
		jobstate.WithDocument(cfg.DocumentName, cfg.Namespace),
		jobstate.WithCodec(wire),
		jobstate.WithLogger(logger),
		jobstate.WithEmitter(hooks),
	)

	playbooks := playbook.NewRegistry()
	registerBuiltins(playbooks)

	pool := runner.NewPool(playbooks, hooks, logger,
		runner.WithPoolConcurrency(cfg.Concurrency),
		runner.WithChain(
			middleware.Logging(logger),
			middleware.Metrics(),
			middleware.Tracing(),
			middleware.Timeout(cfg.RunTimeout),
			middleware.Recover(logger),
		),
	)

	hooks.Register(sink.NewDispatcher(logger, newSinks(logger)...))

	schedOpts := []scheduler.Option{scheduler.WithTickInterval(cfg.TickInterval)}
	if elector := newElector(logger, k8sClient, cfg.Namespace); elector != nil {
		schedOpts = append(schedOpts,
			scheduler.WithElector(elector),
			scheduler.WithLeaderTTL(cfg.LeaseTTL))
	}
	sched := scheduler.New(states, playbooks, pool, hooks, logger, schedOpts...)

	s, err := steward.New(
		steward.WithConfig(cfg),
		steward.WithLogger(logger),
		steward.WithStateStore(states),
	)
	if err != nil {
		return err
	}
	s.SetPool(pool)
	s.SetScheduler(sched)
	s.SetHooks(hooks)

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("starting: %w", err)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := s.Stop(shCtx); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	snapper, err := newSnapshotter(ctx, states, hooks, logger)
	if err != nil {
		return err
	}

	apiOpts := []api.Option{
		api.WithUnscheduler(sched),
		api.WithPinger(docs),
		api.WithLogger(logger),
	}
	if snapper != nil {
		apiOpts = append(apiOpts, api.WithSnapshotter(snapper))
	}
	apiSrv := api.NewServer(states, playbooks, pool, apiOpts...)

	relayToken := os.Getenv("STEWARD_RELAY_TOKEN")
	if relayToken == "" {
		relayToken = uuid.NewString()
		logger.Warn("STEWARD_RELAY_TOKEN not set, generated one",
			slog.String("token", relayToken))
	}
	relaySrv := relay.NewServer(relayToken, func(ctx context.Context, name string, params map[string]string) (string, error) {
		if !playbooks.Has(name) {
			return "", fmt.Errorf("%w: %s", steward.ErrPlaybookNotFound, name)
		}
		run := playbook.NewRun(name, "", params)
		if err := pool.Submit(ctx, run); err != nil {
			return "", err
		}
		return run.ID.String(), nil
	}, relay.WithLogger(logger))
	relayHTTP := &http.Server{
		Addr:              envOr("STEWARD_RELAY_ADDR", ":8081"),
		Handler:           relaySrv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := envOr("STEWARD_API_ADDR", ":8080")
		logger.Info("management api listening", slog.String("addr", addr))
		return apiSrv.ListenAndServe(addr)
	})
	g.Go(func() error {
		logger.Info("relay listening", slog.String("addr", relayHTTP.Addr))
		err := relayHTTP.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = relaySrv.Close()
		_ = relayHTTP.Shutdown(shCtx)
		return apiSrv.Shutdown(shCtx)
	})

	logger.Info("steward started",
		slog.String("version", steward.Version),
		slog.String("document", cfg.DocumentName),
		slog.String("namespace", cfg.Namespace))
	return g.Wait()
}

// configFromEnv builds the runtime config from STEWARD_* variables on
// top of the defaults.
func configFromEnv() steward.Config {
	cfg := steward.DefaultConfig()
	if v := os.Getenv("STEWARD_DOCUMENT"); v != "" {
		cfg.DocumentName = v
	}
	if v := os.Getenv("STEWARD_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if v := os.Getenv("STEWARD_CODEC"); v != "" {
		cfg.Codec = v
	}
	if v := os.Getenv("STEWARD_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("STEWARD_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	if v := os.Getenv("STEWARD_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RunTimeout = d
		}
	}
	if v := os.Getenv("STEWARD_LEASE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.LeaseTTL = d
		}
	}
	return cfg
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("STEWARD_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv("STEWARD_LOG_FORMAT") == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// newDocstore selects the document store backend from STEWARD_BACKEND.
// The kubernetes backend also returns the clientset so leader election
// can share it.
func newDocstore(ctx context.Context, logger *slog.Logger) (docstore.Store, kubernetes.Interface, error) {
	backend := envOr("STEWARD_BACKEND", "kubernetes")
	switch backend {
	case "kubernetes":
		client, err := newK8sClient()
		if err != nil {
			return nil, nil, err
		}
		return dock8s.New(client, dock8s.WithLogger(logger)), client, nil
	case "memory":
		return memory.New(), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: envOr("STEWARD_REDIS_ADDR", "localhost:6379"),
		})
		return redisstore.New(client, redisstore.WithLogger(logger)), nil, nil
	case "postgres":
		dsn := os.Getenv("STEWARD_POSTGRES_DSN")
		if dsn == "" {
			return nil, nil, fmt.Errorf("STEWARD_POSTGRES_DSN is required for the postgres backend")
		}
		store, err := postgres.New(ctx, dsn, postgres.WithLogger(logger))
		return store, nil, err
	case "sqlite":
		store, err := sqlite.New(envOr("STEWARD_SQLITE_PATH", "steward.db"),
			sqlite.WithLogger(logger))
		return store, nil, err
	case "bolt":
		store, err := bolt.New(envOr("STEWARD_BOLT_PATH", "steward.bolt"),
			bolt.WithLogger(logger))
		return store, nil, err
	case "bun":
		dsn := os.Getenv("STEWARD_POSTGRES_DSN")
		if dsn == "" {
			return nil, nil, fmt.Errorf("STEWARD_POSTGRES_DSN is required for the bun backend")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), nil, nil
	case "mongo":
		uri := os.Getenv("STEWARD_MONGO_URI")
		if uri == "" {
			return nil, nil, fmt.Errorf("STEWARD_MONGO_URI is required for the mongo backend")
		}
		client, err := mongod.Connect(mongoopts.Client().ApplyURI(uri))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to mongo: %w", err)
		}
		db := client.Database(envOr("STEWARD_MONGO_DB", "steward"))
		return mongo.New(db, mongo.WithLogger(logger)), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// newK8sClient prefers in-cluster config and falls back to KUBECONFIG
// or the default kubeconfig path.
func newK8sClient() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			rules, &clientcmd.ConfigOverrides{}).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return client, nil
}

// newElector enables leader election when requested. Requires the
// kubernetes backend so the clientset exists.
func newElector(logger *slog.Logger, client kubernetes.Interface, namespace string) cluster.Elector {
	if os.Getenv("STEWARD_LEADER_ELECTION") != "true" || client == nil {
		return nil
	}
	return clusterk8s.New(client, namespace, clusterk8s.WithLogger(logger))
}

// newSinks assembles finding sinks: slog always, slack when a token and
// channel are configured.
func newSinks(logger *slog.Logger) []sink.Sink {
	sinks := []sink.Sink{slogsink.New(logger)}
	token := os.Getenv("STEWARD_SLACK_TOKEN")
	channel := os.Getenv("STEWARD_SLACK_CHANNEL")
	if token != "" && channel != "" {
		sinks = append(sinks, slacksink.New(token, channel))
	}
	return sinks
}

// newSnapshotter builds the archive snapshotter from STEWARD_ARCHIVE_*.
// Returns nil when no archive backend is configured.
func newSnapshotter(ctx context.Context, states *jobstate.Store, hooks *hook.Registry, logger *slog.Logger) (*archive.Snapshotter, error) {
	var backend archive.Backend
	switch os.Getenv("STEWARD_ARCHIVE_BACKEND") {
	case "":
		return nil, nil
	case "local":
		b, err := archivelocal.New(envOr("STEWARD_ARCHIVE_DIR", "snapshots"))
		if err != nil {
			return nil, err
		}
		backend = b
	case "s3":
		b, err := archives3.New(ctx, os.Getenv("STEWARD_ARCHIVE_BUCKET"), archives3.Options{
			Region:   os.Getenv("STEWARD_S3_REGION"),
			Endpoint: os.Getenv("STEWARD_S3_ENDPOINT"),
		})
		if err != nil {
			return nil, err
		}
		backend = b
	case "gcs":
		b, err := archivegcs.New(ctx, os.Getenv("STEWARD_ARCHIVE_BUCKET"), archivegcs.Options{
			Endpoint: os.Getenv("STEWARD_GCS_ENDPOINT"),
		})
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unknown archive backend %q", os.Getenv("STEWARD_ARCHIVE_BACKEND"))
	}
	return archive.NewSnapshotter(states, backend,
		archive.WithEmitter(hooks),
		archive.WithLogger(logger)), nil
}

// registerBuiltins adds the diagnostic playbooks every daemon ships
// with.
func registerBuiltins(playbooks *playbook.Registry) {
	playbooks.MustRegister(playbook.Definition{
		Name: "echo",
		Func: func(_ context.Context, run *playbook.Run) error {
			f := &playbook.Finding{Title: "Echo"}
			for k, v := range run.Params {
				f.Blocks = append(f.Blocks, playbook.MarkdownBlock(
					fmt.Sprintf("**%s**: %s", k, v)))
			}
			run.AddFinding(f)
			return nil
		},
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
