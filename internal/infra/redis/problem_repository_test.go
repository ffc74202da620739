package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"quiz-host/internal/domain"
	"quiz-host/internal/infra/memory"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestProblemRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{ProblemLoader: sampleCatalog()}
	repo := NewProblemRepository(newClient(mr), loader, time.Minute)

	problems, err := repo.GetProblems(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get problems: %v", err)
	}
	if len(problems) != 2 || problems[0].Answer != 1 {
		t.Fatalf("unexpected problems %+v", problems)
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.count())
	}
	if !mr.Exists("quiz:quiz-1:problems") {
		t.Fatalf("expected problems cached in redis")
	}

	// Second call should hit cache, loader not incremented.
	cached, _ := repo.GetProblems(context.Background(), "quiz-1")
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.count())
	}
	if cached[1].Title != problems[1].Title || len(cached[1].Options) != len(problems[1].Options) {
		t.Fatalf("cached copy differs: %+v vs %+v", cached[1], problems[1])
	}
}

func TestProblemRepositoryInvalidateReloads(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	catalog := sampleCatalog()
	loader := &countingLoader{ProblemLoader: catalog}
	repo := NewProblemRepository(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	if _, err := repo.GetProblems(ctx, "quiz-1"); err != nil {
		t.Fatalf("get problems: %v", err)
	}
	if _, err := catalog.AddProblem(ctx, "quiz-1", domain.Problem{Title: "3 + 3?", Options: []string{"6", "7"}, Countdown: 5}); err != nil {
		t.Fatalf("add problem: %v", err)
	}
	repo.Invalidate(ctx, "quiz-1")
	if mr.Exists("quiz:quiz-1:problems") {
		t.Fatalf("expected key dropped on invalidate")
	}

	problems, err := repo.GetProblems(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get problems after invalidate: %v", err)
	}
	if len(problems) != 3 || loader.count() != 2 {
		t.Fatalf("expected reload with 3 problems, got %d after %d loads", len(problems), loader.count())
	}
}

func TestProblemRepositorySkipsEmptySets(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{ProblemLoader: memory.NewCatalog()}
	repo := NewProblemRepository(newClient(mr), loader, time.Minute)

	problems, err := repo.GetProblems(context.Background(), "quiz-empty")
	if err != nil {
		t.Fatalf("get problems: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("expected empty set, got %d", len(problems))
	}
	if mr.Exists("quiz:quiz-empty:problems") {
		t.Fatalf("empty set must not be cached")
	}
}

func TestProblemRepositoryIgnoresLoadRacingInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	catalog := sampleCatalog()
	loader := newGatedLoader(catalog)
	repo := NewProblemRepository(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	done := make(chan []domain.Problem)
	go func() {
		problems, _ := repo.GetProblems(ctx, "quiz-1")
		done <- problems
	}()
	<-loader.loaded

	if _, err := catalog.AddProblem(ctx, "quiz-1", domain.Problem{Title: "3 + 3?", Options: []string{"6", "7"}, Countdown: 5}); err != nil {
		t.Fatalf("add problem: %v", err)
	}
	repo.Invalidate(ctx, "quiz-1")
	close(loader.resume)

	if stale := <-done; len(stale) != 2 {
		t.Fatalf("expected the in-flight load to return its snapshot, got %d", len(stale))
	}
	if mr.Exists("quiz:quiz-1:problems") {
		t.Fatalf("stale set must not be cached after invalidate")
	}
	problems, err := repo.GetProblems(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get problems: %v", err)
	}
	if len(problems) != 3 {
		t.Fatalf("expected the added problem, got %d problems", len(problems))
	}
}

// gatedLoader parks its first load after reading the catalog.
type gatedLoader struct {
	memory.ProblemLoader
	once   sync.Once
	loaded chan struct{}
	resume chan struct{}
}

func newGatedLoader(next memory.ProblemLoader) *gatedLoader {
	return &gatedLoader{ProblemLoader: next, loaded: make(chan struct{}), resume: make(chan struct{})}
}

func (l *gatedLoader) LoadProblems(ctx context.Context, quizID string) ([]domain.Problem, error) {
	problems, err := l.ProblemLoader.LoadProblems(ctx, quizID)
	l.once.Do(func() {
		close(l.loaded)
		<-l.resume
	})
	return problems, err
}

type countingLoader struct {
	memory.ProblemLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadProblems(ctx context.Context, quizID string) ([]domain.Problem, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.ProblemLoader.LoadProblems(ctx, quizID)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleCatalog() *memory.Catalog {
	return memory.NewStaticCatalog(nil, nil, map[string][]domain.Problem{
		"quiz-1": {
			{ID: "p1", Title: "What is 2 + 2?", Options: []string{"3", "4"}, Answer: 1, Countdown: 10},
			{ID: "p2", Title: "Capital of France?", Options: []string{"Paris", "Rome", "Oslo"}, Answer: 0, Countdown: 15},
		},
	})
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
