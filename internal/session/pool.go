// Package session implements SessionPool (spec.md §4.2): it guarantees
// every operation runs on a prepared page from a leased session, reusing
// idle sessions where possible and falling back to launching a new one
// subject to quota.
package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"

	"github.com/weblinq/gateway/internal/browser"
	"github.com/weblinq/gateway/internal/clock"
	"github.com/weblinq/gateway/internal/config"
	"github.com/weblinq/gateway/internal/gatewayerr"
	"github.com/weblinq/gateway/internal/metrics"
)

// keepAliveDefault is the session.md §4.2 launch(keep_alive_ms=10 min)
// default lifetime budget; it bounds how long a newly launched session's
// browser is allowed to sit idle in the Binding before SessionPool stops
// offering it for reuse.
const keepAliveDefault = 10 * time.Minute

// Lease is returned by Pool.Lease. Release must be called exactly once,
// on every exit path (success, error, panic) — it closes the page then
// the session, per spec.md §4.2 step 4.
type Lease struct {
	Page      *rod.Page
	SessionID string

	pool     *Pool
	released bool
	mu       sync.Mutex
}

// Release closes the leased page and then the underlying session. Safe to
// call more than once; only the first call has effect.
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true

	if l.Page != nil {
		if err := l.pool.binding.ClosePage(l.Page); err != nil {
			log.Debug().Err(err).Str("session_id", l.SessionID).Msg("page close had non-fatal error")
		}
	}
	if err := l.pool.binding.Close(l.SessionID); err != nil {
		log.Debug().Err(err).Str("session_id", l.SessionID).Msg("session close had non-fatal error")
	}
}

// Pool is SessionPool: a thin scheduler over a browser.Binding that
// implements the lease()/release() protocol. It performs no queueing —
// exhaustion fails fast with SessionsExhausted, relying on caller
// retry/backoff, per spec.md §4.2.
type Pool struct {
	binding *browser.Binding
	clock   clock.Clock
	cfg     *config.Config
}

// NewPool constructs a SessionPool over an already-running Binding.
func NewPool(binding *browser.Binding, cfg *config.Config, clk clock.Clock) *Pool {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Pool{binding: binding, clock: clk, cfg: cfg}
}

// Lease implements the 4-step protocol from spec.md §4.2:
//  1. list_sessions(), pick an idle one uniformly at random, try to connect.
//  2. on no idle connect, check quota; launch or fail SessionsExhausted.
//  3. new_page + PageHarden (done inside Binding.NewPage).
//  4. return Page + Lease.
func (p *Pool) Lease(ctx context.Context) (*Lease, error) {
	sessionID, reused, err := p.acquireSession(ctx)
	if err != nil {
		return nil, err
	}

	page, err := p.binding.NewPage(sessionID)
	if err != nil {
		// The session turned out to be unusable (e.g. connection raced
		// shut); tear it down rather than leak it and surface upstream.
		_ = p.binding.Close(sessionID)
		return nil, err
	}

	metrics.RecordLeaseAcquired()
	log.Debug().Str("session_id", sessionID).Bool("reused", reused).Msg("session leased")
	return &Lease{Page: page, SessionID: sessionID, pool: p}, nil
}

// acquireSession implements steps 1-2: reuse an idle session uniformly at
// random, tolerating connect failures from sessions another client of the
// same binding raced to recycle; otherwise launch subject to quota.
func (p *Pool) acquireSession(ctx context.Context) (sessionID string, reused bool, err error) {
	idle := p.idleSessions()
	rand.Shuffle(len(idle), func(i, j int) { idle[i], idle[j] = idle[j], idle[i] })

	for _, candidate := range idle {
		if _, err := p.binding.Connect(candidate); err == nil {
			return candidate, true, nil
		}
		log.Debug().Str("session_id", candidate).Msg("idle session connect failed, trying next")
	}

	quota := p.binding.Quota()
	if !quota.AcquisitionsAllowed || (quota.MaxConcurrent > 0 && quota.Active >= quota.MaxConcurrent) {
		metrics.RecordSessionsExhausted()
		return "", false, gatewayerr.SessionsExhausted("no session capacity available", 2*time.Second)
	}

	id, err := p.binding.Launch(ctx)
	if err != nil {
		return "", false, err
	}
	return id, false, nil
}

// Metrics reports pool size, idle capacity, and active session count for
// gateway_session_pool_* gauges.
func (p *Pool) Metrics() (size, available, active int) {
	quota := p.binding.Quota()
	idle := len(p.idleSessions())
	return quota.MaxConcurrent, idle, quota.Active
}

func (p *Pool) idleSessions() []string {
	all := p.binding.ListSessions()
	idle := make([]string, 0, len(all))
	for _, s := range all {
		if !s.HasConnection {
			idle = append(idle, s.SessionID)
		}
	}
	return idle
}
