package cli

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"quiz-host/internal/app"
	"quiz-host/internal/config"
	"quiz-host/internal/events"
	"quiz-host/internal/infra/memory"
	"quiz-host/internal/infra/postgres"
	redisstore "quiz-host/internal/infra/redis"
	"quiz-host/internal/metrics"
	transport "quiz-host/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), opts)
		},
	}
}

type eventSink interface {
	app.EventSink
	Close() error
}

func runServer(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := opts.port
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var catalog app.Catalog = memory.NewCatalog()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		catalog = postgres.NewCatalog(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var problems app.ProblemRepository
	var rooms app.RoomStore
	if redisClient != nil {
		problems = redisstore.NewProblemRepository(redisClient, catalog, quizTTL)
		rooms = redisstore.NewRoomStore(redisClient, redisTTL)
	} else {
		problems = memory.NewProblemRepository(catalog, quizTTL)
		rooms = memory.NewRoomStore()
	}

	var sink eventSink = events.Noop{}
	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		sink = publisher
	}
	defer sink.Close()

	m := metrics.New()
	hub := transport.NewHub(m)
	registry := app.NewRegistry(rooms, problems, catalog, hub,
		app.WithEvents(sink),
		app.WithMetrics(m),
		app.WithIdleTimeout(config.TTLDuration(cfg.Quiz.IdleTimeout, 30*time.Minute)),
	)
	go registry.RunReaper(ctx, config.TTLDuration(cfg.Server.ReaperInterval, time.Minute))

	router := transport.NewRouter(transport.RouterConfig{
		Registry:  registry,
		WS:        transport.NewWSHandler(registry, hub, opts.verbose),
		Metrics:   m.Handler(),
		Version:   releaseVersion,
		PublicURL: cfg.Server.PublicURL,
		Verbose:   opts.verbose,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Printf("starting quiz host v%s on :%s", releaseVersion, finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("shutting down server...")
	case err := <-errs:
		log.Printf("failed to start server: %v", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
