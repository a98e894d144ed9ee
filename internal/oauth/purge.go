package oauth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPurgeInterval bounds how often the expired-token scan runs.
const DefaultPurgeInterval = 120 * time.Second

// PurgeExpired scans the token collection and deletes every token whose
// expiry is in the past. It returns the ids of the deleted documents.
// Per-token delete failures are logged and skipped so one bad file never
// blocks the sweep.
func (s *TokenService) PurgeExpired(ctx context.Context) ([]string, error) {
	toks, err := s.col.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var deleted []string
	for _, tok := range toks {
		if !tok.Expired(now) {
			continue
		}
		removed, _, err := s.col.Delete(ctx, tok.ID, nil)
		if err != nil {
			slog.WarnContext(ctx, "Failed to purge expired token", "id", tok.ID, "err", err)
			continue
		}
		if removed {
			deleted = append(deleted, tok.ID)
		}
	}
	if len(deleted) > 0 {
		slog.InfoContext(ctx, "Purged expired tokens", "count", len(deleted))
	}
	return deleted, nil
}

// Purger throttles an expensive sweep with leading and trailing edges: a
// trigger after a quiet period runs immediately, triggers inside the
// interval coalesce into one deferred run at the end of it. A burst of
// calls therefore costs at most two sweeps.
type Purger struct {
	interval time.Duration
	run      func(context.Context)

	mu      sync.Mutex
	lastRun time.Time
	pending bool
	timer   *time.Timer
}

// NewPurger wraps run with the throttle. interval defaults to
// DefaultPurgeInterval when zero.
func NewPurger(interval time.Duration, run func(context.Context)) *Purger {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	return &Purger{interval: interval, run: run}
}

// Trigger requests a sweep. Outside the interval it runs synchronously;
// inside it, the first call arms a timer for the end of the interval and
// the rest are absorbed.
func (p *Purger) Trigger(ctx context.Context) {
	p.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(p.lastRun)
	if p.lastRun.IsZero() || elapsed >= p.interval {
		p.lastRun = now
		p.mu.Unlock()
		p.run(ctx)
		return
	}
	if p.pending {
		p.mu.Unlock()
		return
	}
	p.pending = true
	// The trailing run outlives the triggering request.
	bg := context.WithoutCancel(ctx)
	p.timer = time.AfterFunc(p.interval-elapsed, func() {
		p.mu.Lock()
		p.pending = false
		p.lastRun = time.Now()
		p.mu.Unlock()
		p.run(bg)
	})
	p.mu.Unlock()
}

// Stop cancels any armed trailing run.
func (p *Purger) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = false
}
