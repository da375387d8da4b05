package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// DefaultLockTTL is the expiration of distributed session locks.
const DefaultLockTTL = 30 * time.Second

// Factory creates a fresh session for an unseen identity.
type Factory func(id string) (*Session, error)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring at most one turn per session at a time.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	factory Factory
	store   ports.SessionStore // Optional persistence
	graph   *domain.Graph      // Needed to restore persisted sessions

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	cacheMu  sync.RWMutex
	sessions map[string]*Session // Live sessions, only when there is no store

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithStore persists sessions after every locked operation.
func WithStore(store ports.SessionStore) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithGraph sets the graph used to resolve the state of persisted sessions.
func WithGraph(graph *domain.Graph) Option {
	return func(m *Manager) {
		m.graph = graph
	}
}

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides the distributed lock expiration.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Session Manager creating new sessions through factory.
// A nil factory creates sessions with a default context store.
func NewManager(factory Factory, opts ...Option) *Manager {
	if factory == nil {
		factory = func(id string) (*Session, error) { return New(id, nil) }
	}
	m := &Manager{
		factory:  factory,
		locks:    make(map[string]*lockEntry),
		sessions: make(map[string]*Session),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is empty", domain.ErrInvalidArgument)
	}
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed session lock",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// WithSession runs fn on the session while holding its lock, creating or restoring
// the session first and persisting it afterwards, whether fn failed or not.
func (m *Manager) WithSession(ctx context.Context, sessionID string, fn func(context.Context, *Session) error) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		sess, err := m.loadOrCreate(ctx, sessionID)
		if err != nil {
			return err
		}
		return errors.Join(fn(ctx, sess), m.persist(ctx, sess))
	})
}

// Adopt runs fn on a session created elsewhere (e.g. by a recognizer) under its lock.
// Without a store the adopted session replaces any cached one. With a store the
// persisted snapshot wins: fn runs on the restored session, and the adopted one is
// only used when nothing was stored yet.
func (m *Manager) Adopt(ctx context.Context, sess *Session, fn func(context.Context, *Session) error) error {
	if sess == nil {
		return fmt.Errorf("%w: session is nil", domain.ErrInvalidArgument)
	}
	return m.WithLock(ctx, sess.ID(), func(ctx context.Context) error {
		target := sess
		if m.store == nil {
			m.cacheMu.Lock()
			m.sessions[sess.ID()] = sess
			m.cacheMu.Unlock()
		} else {
			snap, err := m.store.Load(ctx, sess.ID())
			switch {
			case err == nil:
				if target, err = m.restore(sess.ID(), snap); err != nil {
					return err
				}
			case !errors.Is(err, domain.ErrSessionNotFound):
				return fmt.Errorf("failed to load session: %w", err)
			}
		}
		return errors.Join(fn(ctx, target), m.persist(ctx, target))
	})
}

// GetOrCreate returns the session for the ID, restoring or creating it.
// With a store every call reads the stored snapshot, so the result is a copy that
// is only kept when mutated through WithSession or Adopt.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	var sess *Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		sess, err = m.loadOrCreate(ctx, sessionID)
		return err
	})
	return sess, err
}

// loadOrCreate must run under the session lock. The store, when configured, is read
// on every call: other replicas may have written the session since our last turn.
func (m *Manager) loadOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	if m.store == nil {
		m.cacheMu.RLock()
		sess, ok := m.sessions[sessionID]
		m.cacheMu.RUnlock()
		if ok {
			return sess, nil
		}
		sess, err := m.factory(sessionID)
		if err != nil {
			return nil, err
		}
		m.cacheMu.Lock()
		m.sessions[sessionID] = sess
		m.cacheMu.Unlock()
		return sess, nil
	}

	snap, err := m.store.Load(ctx, sessionID)
	switch {
	case err == nil:
		return m.restore(sessionID, snap)
	case errors.Is(err, domain.ErrSessionNotFound):
		sess, err := m.factory(sessionID)
		if err != nil {
			return nil, err
		}
		// Persist immediately to reserve the ID
		if err := m.store.Save(ctx, sess.Snapshot()); err != nil {
			return nil, fmt.Errorf("failed to initialize session: %w", err)
		}
		return sess, nil
	default:
		return nil, fmt.Errorf("failed to check session existence: %w", err)
	}
}

// restore rebuilds a stored session. A state the graph no longer has (the bot was
// edited under a running conversation) is dropped so the next turn re-enters Init;
// variables and contexts survive.
func (m *Manager) restore(sessionID string, snap *domain.SessionSnapshot) (*Session, error) {
	fresh, err := m.factory(sessionID)
	if err != nil {
		return nil, err
	}
	if snap.StateName != "" && m.graph != nil {
		if _, ok := m.graph.StateByName(snap.StateName); !ok {
			m.logger.Warn("Persisted state no longer exists, restarting from Init",
				"session_id", sessionID,
				"state", snap.StateName,
			)
			stale := *snap
			stale.StateName = ""
			snap = &stale
		}
	}
	sess, err := Restore(snap, m.graph, fresh.Contexts())
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	return sess, nil
}

func (m *Manager) persist(ctx context.Context, sess *Session) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(ctx, sess.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Delete removes the session from the cache and the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		m.cacheMu.Lock()
		delete(m.sessions, sessionID)
		m.cacheMu.Unlock()
		if m.store == nil {
			return nil
		}
		return m.store.Delete(ctx, sessionID)
	})
}

// List returns the known session IDs: the store's when configured, the cache's otherwise.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	if m.store != nil {
		return m.store.List(ctx)
	}
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	return slices.Sorted(maps.Keys(m.sessions)), nil
}

// Store returns the underlying session store, nil when sessions are not persisted.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}
