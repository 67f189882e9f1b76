// Package render runs capture engines under admission control and persists
// their output.
package render

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"html2image/internal/config"
	"html2image/internal/domain"
	"html2image/internal/infra/chrome"
	"html2image/internal/infra/logging"
)

// Pool sizing bounds for max_concurrent: 0.
const (
	MinPoolSize = 1
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for Chrome child processes.
	cpuDivisor = 2
)

// Engine captures the configured element of an HTML document as an image.
type Engine interface {
	Capture(ctx context.Context, html string, format domain.ImageFormat) ([]byte, error)
	Name() string
}

// Service renders documents into files, one browser per call.
type Service struct {
	engine         Engine
	pool           *chrome.Pool
	timeout        time.Duration
	acquireTimeout time.Duration
}

// NewService wires engine behind pool using the timeouts from cfg.
func NewService(engine Engine, pool *chrome.Pool, cfg config.RenderConfig) *Service {
	return &Service{
		engine:         engine,
		pool:           pool,
		timeout:        cfg.Timeout,
		acquireTimeout: cfg.AcquireTimeout,
	}
}

// Render captures html and stores the image at dst, which must be inside an
// existing directory. The file appears atomically; a failed call leaves no
// file behind.
func (s *Service) Render(ctx context.Context, html, dst string) error {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	slot, err := s.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("no browser slot free after %s: %w", s.acquireTimeout, err)
		}
		return fmt.Errorf("acquire browser slot: %w", err)
	}

	format := domain.FormatFor(dst)
	start := time.Now()

	renderCtx, cancel := context.WithTimeout(ctx, s.timeout)
	buf, err := s.engine.Capture(renderCtx, html, format)
	timedOut := errors.Is(renderCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()
	s.pool.Release(slot, err)

	if err != nil {
		if timedOut {
			return fmt.Errorf("render timed out after %s: %w", s.timeout, err)
		}
		return err
	}
	if len(buf) == 0 {
		return errors.New("engine returned an empty image")
	}

	logging.Debug("Captured image",
		"engine", s.engine.Name(),
		"format", string(format),
		"bytes", len(buf),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return writeFileAtomic(dst, buf, 0o644)
}

// Stats reports the browser pool usage.
func (s *Service) Stats() chrome.Stats {
	return s.pool.Stats()
}

// EngineName is the name of the configured engine.
func (s *Service) EngineName() string {
	return s.engine.Name()
}

// ResolvePoolSize determines how many browsers may run at once.
// An explicit value wins; otherwise it is derived from GOMAXPROCS, which
// automaxprocs aligns with the container CPU quota.
func ResolvePoolSize(workers int) int {
	if workers > 0 {
		return workers
	}

	n := runtime.GOMAXPROCS(0) / cpuDivisor
	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
