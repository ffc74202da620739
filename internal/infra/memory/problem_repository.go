package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-host/internal/domain"

	"golang.org/x/sync/singleflight"
)

// ProblemLoader fetches a quiz's problem set from the durable catalog.
type ProblemLoader interface {
	LoadProblems(ctx context.Context, quizID string) ([]domain.Problem, error)
}

// ProblemRepository caches problem sets with TTL to avoid repeated catalog hits.
type ProblemRepository struct {
	loader ProblemLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedProblems
	gens  map[string]uint64
}

type cachedProblems struct {
	problems  []domain.Problem
	expiresAt time.Time
}

func NewProblemRepository(loader ProblemLoader, ttl time.Duration) *ProblemRepository {
	return &ProblemRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedProblems),
		gens:   make(map[string]uint64),
	}
}

func (r *ProblemRepository) GetProblems(ctx context.Context, quizID string) ([]domain.Problem, error) {
	if problems, ok := r.cached(quizID); ok {
		return problems, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if problems, ok := r.cached(quizID); ok {
			return problems, nil
		}

		r.mu.RLock()
		gen := r.gens[quizID]
		r.mu.RUnlock()

		problems, err := r.loader.LoadProblems(ctx, quizID)
		if err != nil {
			return nil, err
		}
		if len(problems) == 0 {
			return problems, nil
		}

		r.mu.Lock()
		// an Invalidate during the load makes this set stale
		if r.gens[quizID] == gen {
			r.cache[quizID] = cachedProblems{
				problems:  problems,
				expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
			}
		}
		r.mu.Unlock()
		return problems, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Problem), nil
}

// Invalidate drops the cached set so the next read goes to the loader.
func (r *ProblemRepository) Invalidate(_ context.Context, quizID string) {
	r.mu.Lock()
	delete(r.cache, quizID)
	r.gens[quizID]++
	r.mu.Unlock()
	r.sf.Forget(quizID)
}

func (r *ProblemRepository) cached(quizID string) ([]domain.Problem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return nil, false
	}
	return entry.problems, true
}

func (r *ProblemRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
