package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"github.com/weblinq/gateway/internal/clock"
	"github.com/weblinq/gateway/internal/gatewayerr"
	"github.com/weblinq/gateway/internal/ids"
	"github.com/weblinq/gateway/internal/metrics"
)

// SessionInfo is the BrowserBinding-level view of one pooled browser
// tracked as a "session" (spec.md §4.1). go-rod's Pool hands out
// *rod.Browser values with no native multi-session bookkeeping, so Binding
// layers session identity on top of Pool.Acquire/Release.
type SessionInfo struct {
	SessionID     string
	StartedAt     time.Time
	HasConnection bool
}

// PoolQuota reports BrowserBinding's current capacity, per spec.md §4.1
// quota().
type PoolQuota struct {
	MaxConcurrent       int
	Active              int
	AcquisitionsAllowed bool
	WaitUntil           time.Time
}

// Binding is the BrowserBinding component: launch/connect/list_sessions/
// quota/new_page/close over the underlying browser Pool. One Binding
// tracks one Pool's worth of sessions; SessionPool (internal/session)
// layers per-tenant leasing on top of this.
type Binding struct {
	pool  *Pool
	clock clock.Clock

	mu       sync.Mutex
	sessions map[string]*SessionInfo
	browsers map[string]*rod.Browser // sessionID -> underlying browser
}

// NewBinding wraps an already-constructed Pool as a BrowserBinding.
func NewBinding(pool *Pool, clk clock.Clock) *Binding {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Binding{
		pool:     pool,
		clock:    clk,
		sessions: make(map[string]*SessionInfo),
		browsers: make(map[string]*rod.Browser),
	}
}

// Launch acquires a browser from the pool and registers it as a new
// session, returning the session_id. Fails with SessionsExhausted if the
// pool has no capacity within ctx's deadline.
func (b *Binding) Launch(ctx context.Context) (string, error) {
	browser, err := b.pool.Acquire(ctx)
	if err != nil {
		metrics.RecordSessionsExhausted()
		return "", gatewayerr.SessionsExhausted("no browser capacity available", 2*time.Second)
	}

	sessionID := ids.NewSessionID()
	b.mu.Lock()
	b.sessions[sessionID] = &SessionInfo{SessionID: sessionID, StartedAt: b.clock.Now()}
	b.browsers[sessionID] = browser
	b.mu.Unlock()
	return sessionID, nil
}

// Connect marks an existing session as actively connected, or returns
// ErrSessionNotFound if sessionID isn't tracked (e.g. it was recycled out
// from under the caller). Callers that get ErrSessionNotFound should skip
// this session and try the next one, per spec.md §4.2 lease().
func (b *Binding) Connect(sessionID string) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	info, ok := b.sessions[sessionID]
	if !ok {
		return nil, gatewayerr.ErrSessionNotFound
	}
	browser, ok := b.browsers[sessionID]
	if !ok {
		return nil, gatewayerr.ErrSessionNotFound
	}
	info.HasConnection = true
	return browser, nil
}

// ListSessions returns a snapshot of all tracked sessions, for lease()'s
// connect-or-skip scan over idle sessions.
func (b *Binding) ListSessions() []SessionInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]SessionInfo, 0, len(b.sessions))
	for _, info := range b.sessions {
		out = append(out, *info)
	}
	return out
}

// Quota reports current pool capacity for admission decisions.
func (b *Binding) Quota() PoolQuota {
	b.mu.Lock()
	active := 0
	for _, info := range b.sessions {
		if info.HasConnection {
			active++
		}
	}
	b.mu.Unlock()

	available := b.pool.Available()
	return PoolQuota{
		MaxConcurrent:       b.pool.Size(),
		Active:              active,
		AcquisitionsAllowed: available > 0,
		WaitUntil:           b.clock.Now(),
	}
}

// NewPage opens a fresh page on the session's underlying browser and
// applies PageHarden immediately, before any caller gets to navigate it.
func (b *Binding) NewPage(sessionID string) (*rod.Page, error) {
	b.mu.Lock()
	browser, ok := b.browsers[sessionID]
	b.mu.Unlock()
	if !ok {
		return nil, gatewayerr.ErrSessionNotFound
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, gatewayerr.UpstreamFatal("failed to open new page", err)
	}

	if proxy := b.pool.ProxyConfig(); proxy != nil {
		if _, err := SetPageProxy(context.Background(), page, proxy); err != nil {
			log.Warn().Err(err).Msg("failed to configure proxy authentication for new page")
		}
	}

	if err := ApplyPageHarden(page); err != nil {
		page.Close()
		return nil, gatewayerr.Internal("failed to harden page", err)
	}
	return page, nil
}

// Close releases a session's browser back to the pool and forgets it.
// Safe to call more than once for the same sessionID.
func (b *Binding) Close(sessionID string) error {
	b.mu.Lock()
	browser, ok := b.browsers[sessionID]
	if ok {
		delete(b.browsers, sessionID)
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}
	b.pool.Release(browser)
	return nil
}

// ClosePage closes a single page without tearing down its session,
// leaving the underlying browser in the pool for reuse by the next page.
func (b *Binding) ClosePage(page *rod.Page) error {
	if page == nil {
		return nil
	}
	return page.Close()
}
