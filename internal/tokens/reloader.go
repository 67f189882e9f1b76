package tokens

import (
	"context"
	"time"

	"html2image/internal/infra/logging"
)

// Repository loads the full token table.
type Repository interface {
	LoadTokens(ctx context.Context) (map[string]Entry, error)
}

const loadTimeout = 5 * time.Second

// Reloader refreshes a Cache from a Repository on a fixed interval.
type Reloader struct {
	repo     Repository
	cache    *Cache
	interval time.Duration
}

func NewReloader(repo Repository, cache *Cache, interval time.Duration) *Reloader {
	return &Reloader{repo: repo, cache: cache, interval: interval}
}

// LoadOnce replaces the cache with the repository contents. On error the
// cache keeps its previous snapshot.
func (r *Reloader) LoadOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	m, err := r.repo.LoadTokens(ctx)
	if err != nil {
		return err
	}
	if m == nil {
		m = map[string]Entry{}
	}
	r.cache.Replace(m)
	logging.Debug("API tokens loaded", "count", r.cache.Len())
	return nil
}

// Start loads immediately and then every interval until ctx is done.
func (r *Reloader) Start(ctx context.Context) {
	go func() {
		if err := r.LoadOnce(ctx); err != nil {
			logging.Error("Failed to load API tokens", "error", err)
		}
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.LoadOnce(ctx); err != nil {
					logging.Error("Failed to reload API tokens", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
