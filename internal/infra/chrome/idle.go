package chrome

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

const idlePollInterval = 25 * time.Millisecond

// idleTracker follows network events of one target and reports when no
// request has been in flight for a while.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	last     time.Time
	now      func() time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight: make(map[network.RequestID]struct{}),
		last:     time.Now(),
		now:      time.Now,
	}
}

// handle is registered with chromedp.ListenTarget and must not block.
func (t *idleTracker) handle(ev any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		// redirects reuse the request id
		t.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		t.done(e.RequestID)
	case *network.EventLoadingFailed:
		t.done(e.RequestID)
	}
}

func (t *idleTracker) done(id network.RequestID) {
	if _, ok := t.inflight[id]; !ok {
		return
	}
	delete(t.inflight, id)
	if len(t.inflight) == 0 {
		t.last = t.now()
	}
}

// reset starts a new quiet period without forgetting in-flight requests.
func (t *idleTracker) reset() {
	t.mu.Lock()
	t.last = t.now()
	t.mu.Unlock()
}

// quietFor reports how long the network has been idle. ok is false while
// requests are still pending.
func (t *idleTracker) quietFor() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inflight) > 0 {
		return 0, false
	}
	return t.now().Sub(t.last), true
}

// wait blocks until the network has been idle for quiet or ctx ends.
func (t *idleTracker) wait(ctx context.Context, quiet time.Duration) error {
	t.reset()
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		if d, ok := t.quietFor(); ok && d >= quiet {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
