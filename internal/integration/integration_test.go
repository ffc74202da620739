package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"quiz-host/internal/app"
	"quiz-host/internal/domain"
	"quiz-host/internal/infra/postgres"
	pgmigrations "quiz-host/internal/infra/postgres/migrations"
	infraredis "quiz-host/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, domain.Audience, string, any) {}

func TestQuizRoundEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateUp(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	catalog := postgres.NewCatalog(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	registry := newRegistry(catalog, redisClient)

	admin, err := registry.CreateAdmin(ctx, "host")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, err := registry.CreateAdmin(ctx, "host"); !errors.Is(err, domain.ErrAdminExists) {
		t.Fatalf("expected duplicate admin to be rejected, got %v", err)
	}

	room, err := registry.CreateRoom(ctx, "Friday", admin.ID)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := registry.CreateRoom(ctx, "Friday", admin.ID); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected duplicate room to be rejected, got %v", err)
	}

	for _, p := range []domain.Problem{
		{Title: "What is 2 + 2?", Options: []string{"3", "4", "5"}, Answer: 1, Countdown: 10},
		{Title: "Capital of France?", Options: []string{"Paris", "Rome"}, Answer: 0, Countdown: 10},
	} {
		if _, err := registry.AddProblem(ctx, room.ID, admin.ID, p); err != nil {
			t.Fatalf("add problem: %v", err)
		}
	}

	alice, err := registry.Join(ctx, room.ID, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	bob, err := registry.Join(ctx, room.ID, "Bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := registry.Start(ctx, room.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	ann, err := registry.Advance(ctx, room.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if ann.Problem.Title != "What is 2 + 2?" || len(ann.Problem.Options) != 3 {
		t.Fatalf("problems loaded out of order: %+v", ann.Problem)
	}

	if _, err := registry.Submit(ctx, room.ID, alice.ParticipantID, ann.Problem.ID, 0, time.Now()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := registry.Submit(ctx, room.ID, bob.ParticipantID, ann.Problem.ID, 1, time.Now())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Correct || res.Awarded <= 0 {
		t.Fatalf("expected correct answer with points, got %+v", res)
	}

	lb, err := registry.End(ctx, room.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].ParticipantID != bob.ParticipantID {
		t.Fatalf("expected bob leading, got %+v", lb.Entries)
	}

	// a fresh process can reopen the room from the catalog
	restarted := newRegistry(catalog, redisClient)
	view, err := restarted.OpenRoom(ctx, room.ID, admin.ID)
	if err != nil {
		t.Fatalf("reopen room: %v", err)
	}
	if view.Status != domain.StatusWaiting || view.Name != "Friday" {
		t.Fatalf("unexpected reopened room %+v", view)
	}
	if _, err := restarted.OpenRoom(ctx, room.ID, "someone-else"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}
}

func newRegistry(catalog *postgres.Catalog, client *goredis.Client) *app.Registry {
	return app.NewRegistry(
		infraredis.NewRoomStore(client, 5*time.Minute),
		infraredis.NewProblemRepository(client, catalog, 5*time.Minute),
		catalog,
		nopBroadcaster{},
		app.WithLogger(log.New(io.Discard, "", 0)),
	)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateUp(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
