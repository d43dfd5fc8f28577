package useractor

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/weblinq/gateway/internal/artifact"
	"github.com/weblinq/gateway/internal/clock"
	"github.com/weblinq/gateway/internal/config"
)

// Manager lazily opens and caches one Actor per user under cfg.UserDBDir,
// the same pool-of-singletons pattern internal/browser.Pool uses to cache
// *rod.Browser instances.
type Manager struct {
	cfg   *config.Config
	store *artifact.Store
	clock clock.Clock

	mu     sync.Mutex
	actors map[string]*Actor
}

// NewManager constructs a Manager. store may be nil if ArtifactStore
// failed to initialize; every Actor it produces will then be disabled,
// per spec.md §4.6's "store unavailable" resilience behavior.
func NewManager(cfg *config.Config, store *artifact.Store, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Manager{cfg: cfg, store: store, clock: clk, actors: make(map[string]*Actor)}
}

// For returns the Actor for userID, opening its SQLite store on first use.
func (m *Manager) For(userID string) *Actor {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.actors[userID]; ok {
		return a
	}

	cdnHost := m.cfg.S3PublicURL
	if cdnHost == "" {
		cdnHost = m.cfg.S3Bucket
	}

	if m.store == nil {
		a := newDisabledActor(userID, fmt.Errorf("artifact store not configured"), nil, m.clock, cdnHost)
		m.actors[userID] = a
		return a
	}

	path := filepath.Join(m.cfg.UserDBDir, userID+".db")
	conn, err := openDB(path)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to open user store, degrading to disabled actor")
		a := newDisabledActor(userID, err, m.store, m.clock, cdnHost)
		m.actors[userID] = a
		return a
	}

	a := &Actor{userID: userID, conn: conn, store: m.store, clock: m.clock, cdnHost: cdnHost}
	m.actors[userID] = a
	return a
}

// Close closes every cached Actor's SQLite connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, a := range m.actors {
		if a.conn == nil {
			continue
		}
		if err := a.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
