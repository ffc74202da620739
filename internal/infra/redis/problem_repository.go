package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"quiz-host/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ProblemLoader fetches a quiz's problem set from the durable catalog.
type ProblemLoader interface {
	LoadProblems(ctx context.Context, quizID string) ([]domain.Problem, error)
}

// ProblemRepository caches problem sets in Redis and falls back to a loader on cache miss.
// Sets are stored as JSON: SET quiz:{quizID}:problems [...] EX ttl
// Empty sets are never cached so a room can be started right after its first problem is added.
// A load that was in flight when the set was invalidated does not write the cache.
type ProblemRepository struct {
	client *redis.Client
	loader ProblemLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu   sync.Mutex
	rnd  *rand.Rand
	gens map[string]uint64
}

func NewProblemRepository(client *redis.Client, loader ProblemLoader, ttl time.Duration) *ProblemRepository {
	return &ProblemRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		gens:   make(map[string]uint64),
	}
}

func (r *ProblemRepository) GetProblems(ctx context.Context, quizID string) ([]domain.Problem, error) {
	key := r.problemsKey(quizID)
	if problems, ok := r.cached(ctx, key); ok {
		return problems, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if problems, ok := r.cached(ctx, key); ok {
			return problems, nil
		}

		gen := r.generation(quizID)
		problems, err := r.loader.LoadProblems(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if len(problems) > 0 && r.generation(quizID) == gen {
			if raw, err := json.Marshal(problems); err == nil {
				_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
			}
			// Invalidate may have run between the check and the SET.
			if r.generation(quizID) != gen {
				_ = r.client.Del(ctx, key).Err()
			}
		}
		return problems, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Problem), nil
}

func (r *ProblemRepository) Invalidate(ctx context.Context, quizID string) {
	r.mu.Lock()
	r.gens[quizID]++
	r.mu.Unlock()
	_ = r.client.Del(ctx, r.problemsKey(quizID)).Err()
	r.sf.Forget(quizID)
}

func (r *ProblemRepository) generation(quizID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[quizID]
}

func (r *ProblemRepository) cached(ctx context.Context, key string) ([]domain.Problem, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var problems []domain.Problem
	if err := json.Unmarshal(raw, &problems); err != nil {
		return nil, false
	}
	return problems, true
}

func (r *ProblemRepository) problemsKey(quizID string) string {
	return "quiz:" + quizID + ":problems"
}

func (r *ProblemRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
