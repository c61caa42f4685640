package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cachecore/domain/key"
	"cachecore/domain/policy"
	"cachecore/domain/valueresult"
)

// GetMany runs Get for each key independently and collects the results
// into a map keyed by each key's String(). Per the per-key isolation
// contract, one key's failure (loader error, store error) never prevents
// the other keys in the same call from returning their own outcome. Each
// key runs in its own goroutine and its result is collected under a mutex.
func (e *Engine) GetMany(ctx context.Context, keys []key.Key, p policy.GetPolicy) (map[string]valueresult.ValueResult, error) {
	results := make(map[string]valueresult.ValueResult, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, k := range keys {
		wg.Add(1)
		go func(k key.Key) {
			defer wg.Done()

			vr, err := e.Get(ctx, k, p)
			if err != nil {
				// Get only ever returns InvalidArgument-class errors to the
				// caller (loader/store failures are absorbed into Miss by
				// the pipeline itself); isolate even that per key.
				e.logger.Warn("getMany: key failed in isolation", zap.String("key", k.String()), zap.Error(err))
				vr = valueresult.Miss()
			}

			mu.Lock()
			results[k.String()] = vr
			mu.Unlock()
		}(k)
	}

	wg.Wait()
	return results, nil
}
