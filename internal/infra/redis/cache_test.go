package redis_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ropequiz/internal/domain"
	redisinfra "ropequiz/internal/infra/redis"
)

// countingLoader records how many times each id was loaded, so tests can
// assert the cache (and its singleflight collapsing) actually avoided
// redundant relational reads.
type countingLoader struct {
	mu        sync.Mutex
	questions map[string]domain.Question
	rulesets  map[string]domain.Ruleset
	calls     map[string]int
}

func newCountingLoader() *countingLoader {
	return &countingLoader{
		questions: make(map[string]domain.Question),
		rulesets:  make(map[string]domain.Ruleset),
		calls:     make(map[string]int),
	}
}

func (l *countingLoader) LoadQuestion(_ context.Context, id string) (domain.Question, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["q:"+id]++
	q, ok := l.questions[id]
	if !ok {
		return domain.Question{}, errors.New("question not found")
	}
	return q, nil
}

func (l *countingLoader) LoadRuleset(_ context.Context, id string) (domain.Ruleset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls["r:"+id]++
	r, ok := l.rulesets[id]
	if !ok {
		return domain.Ruleset{}, errors.New("ruleset not found")
	}
	return r, nil
}

func (l *countingLoader) callCount(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[key]
}

func TestQuestionCacheLoadsFromLoaderOnceThenFromCache(t *testing.T) {
	client := newTestClient(t)
	loader := newCountingLoader()
	loader.questions["q1"] = domain.Question{ID: "q1", Text: "2+2?"}
	cache := redisinfra.NewQuestionCache(client, loader, time.Minute)
	ctx := context.Background()

	first, err := cache.LoadQuestion(ctx, "q1")
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if first.ID != "q1" {
		t.Fatalf("unexpected question: %+v", first)
	}
	if got := loader.callCount("q:q1"); got != 1 {
		t.Fatalf("expected exactly one loader call, got %d", got)
	}

	second, err := cache.LoadQuestion(ctx, "q1")
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second.ID != "q1" {
		t.Fatalf("unexpected question on second load: %+v", second)
	}
	if got := loader.callCount("q:q1"); got != 1 {
		t.Fatalf("expected the second load to be served from cache, loader called %d times", got)
	}
}

func TestQuestionCacheCollapsesConcurrentMissesWithSingleflight(t *testing.T) {
	client := newTestClient(t)
	loader := newCountingLoader()
	loader.rulesets["default"] = domain.Ruleset{ID: "default", PointsPerCorrect: 10}
	cache := redisinfra.NewQuestionCache(client, loader, time.Minute)
	ctx := context.Background()

	const concurrency = 8
	var wg sync.WaitGroup
	errs := make([]error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := cache.LoadRuleset(ctx, "default")
			errs[idx] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("concurrent load: %v", err)
		}
	}
	if got := loader.callCount("r:default"); got != 1 {
		t.Fatalf("loader called %d times across %d concurrent misses, singleflight should collapse them", got, concurrency)
	}
}

func TestQuestionCachePropagatesLoaderErrorWithoutCaching(t *testing.T) {
	client := newTestClient(t)
	loader := newCountingLoader()
	cache := redisinfra.NewQuestionCache(client, loader, time.Minute)
	ctx := context.Background()

	if _, err := cache.LoadQuestion(ctx, "missing"); err == nil {
		t.Fatalf("expected an error for a question absent from both cache and loader")
	}
	if got := loader.callCount("q:missing"); got != 1 {
		t.Fatalf("expected one loader call for the miss, got %d", got)
	}

	if _, err := cache.LoadQuestion(ctx, "missing"); err == nil {
		t.Fatalf("expected a second lookup of the same missing id to error again")
	}
	if got := loader.callCount("q:missing"); got != 2 {
		t.Fatalf("expected the failed load to not be cached, so the loader is called again, got %d calls", got)
	}
}
