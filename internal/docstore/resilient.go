package docstore

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/searchlab/ablate/internal/resilience"
)

// ResilientStore decorates a Store with a rate limiter and bounded retry on
// its read/query paths. The store is a shared, externally owned resource;
// the limiter keeps the harness from monopolizing it, and retries absorb
// transient connectivity errors without weakening fail-stop semantics above
// this boundary: exhausted retries surface the original error.
//
// Write paths used by ablation restore are retried too: restore failure is
// fatal to the whole batch, so a transient blip should not end the run.
type ResilientStore struct {
	inner   Store
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// WithResilience wraps a store. qps <= 0 disables rate limiting.
func WithResilience(inner Store, qps float64, burst int, retry resilience.RetryConfig) *ResilientStore {
	var limiter *rate.Limiter
	if qps > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
	return &ResilientStore{inner: inner, limiter: limiter, retry: retry}
}

func (s *ResilientStore) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *ResilientStore) HasCollection(ctx context.Context, name string) (bool, error) {
	return resilience.DoVal(ctx, s.retry, "has_collection", func(ctx context.Context) (bool, error) {
		return s.inner.HasCollection(ctx, name)
	})
}

func (s *ResilientStore) EnsureCollection(ctx context.Context, name string) error {
	return resilience.Do(ctx, s.retry, "ensure_collection", func(ctx context.Context) error {
		return s.inner.EnsureCollection(ctx, name)
	})
}

func (s *ResilientStore) Get(ctx context.Context, collection, key string) (Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return resilience.DoVal(ctx, s.retry, "get", func(ctx context.Context) (Record, error) {
		return s.inner.Get(ctx, collection, key)
	})
}

func (s *ResilientStore) Insert(ctx context.Context, collection string, rec Record) error {
	return resilience.Do(ctx, s.retry, "insert", func(ctx context.Context) error {
		return s.inner.Insert(ctx, collection, rec)
	})
}

func (s *ResilientStore) InsertMany(ctx context.Context, collection string, recs []Record) error {
	return resilience.Do(ctx, s.retry, "insert_many", func(ctx context.Context) error {
		return s.inner.InsertMany(ctx, collection, recs)
	})
}

func (s *ResilientStore) Update(ctx context.Context, collection string, rec Record) error {
	return resilience.Do(ctx, s.retry, "update", func(ctx context.Context) error {
		return s.inner.Update(ctx, collection, rec)
	})
}

func (s *ResilientStore) RemoveAll(ctx context.Context, collection string) error {
	return resilience.Do(ctx, s.retry, "remove_all", func(ctx context.Context) error {
		return s.inner.RemoveAll(ctx, collection)
	})
}

func (s *ResilientStore) Contents(ctx context.Context, collection string) ([]Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return resilience.DoVal(ctx, s.retry, "contents", func(ctx context.Context) ([]Record, error) {
		return s.inner.Contents(ctx, collection)
	})
}

func (s *ResilientStore) FindByField(ctx context.Context, collection, field string, value any) ([]Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return resilience.DoVal(ctx, s.retry, "find_by_field", func(ctx context.Context) ([]Record, error) {
		return s.inner.FindByField(ctx, collection, field, value)
	})
}

func (s *ResilientStore) Execute(ctx context.Context, q Query) ([]Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return resilience.DoVal(ctx, s.retry, "execute", func(ctx context.Context) ([]Record, error) {
		return s.inner.Execute(ctx, q)
	})
}

func (s *ResilientStore) Close() error {
	return s.inner.Close()
}
