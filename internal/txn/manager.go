// Package txn manages transaction scopes: bounded contexts granting
// read/write access to a pre-declared set of collections with
// all-or-nothing commit semantics.
//
// A scope is an explicit caller-held resource. It is acquired with the full
// collection set a logical unit of work will touch, used for every
// operation in that unit, and released exactly once on every exit path.
// The manager holds one reader/writer latch per collection, acquired in
// sorted name order, so scopes over overlapping collection sets serialize
// against each other while disjoint scopes interleave freely; the
// underlying engine never sees two live transactions fighting over the
// same collection.
package txn

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shelfdb/shelf/internal/engine"
	"github.com/shelfdb/shelf/pkg/types"
)

// Manager opens transaction scopes against one engine connection.
type Manager struct {
	eng engine.Engine
	log *zap.SugaredLogger

	mu      sync.Mutex
	latches map[string]*sync.RWMutex
}

// NewManager creates a scope manager for the given engine.
func NewManager(eng engine.Engine, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{
		eng:     eng,
		log:     logger,
		latches: make(map[string]*sync.RWMutex),
	}
}

// Scope is a live transaction over a declared collection set. Exactly one
// of Commit or Abort must be called; both are idempotent after the first.
type Scope struct {
	// ID correlates the scope across logs and abort errors.
	ID string

	m      *Manager
	txn    engine.Txn
	stores []string
	mode   engine.Mode

	mu   sync.Mutex
	done bool
}

// OpenScope starts a transaction valid only for the given collections.
// Fails with a NOT_OPEN error when no engine connection exists and
// NOT_FOUND when a collection was never created. Blocks while another
// scope holds an overlapping collection set in a conflicting mode.
func (m *Manager) OpenScope(ctx context.Context, collections []string, mode engine.Mode) (*Scope, error) {
	if m.eng == nil || !m.eng.Ready() {
		return nil, types.NewNotOpen("no open connection; call Open first")
	}

	stores := dedupeSorted(collections)
	if len(stores) == 0 {
		return nil, types.NewInvariant("a transaction scope needs at least one collection")
	}
	for _, name := range stores {
		if !m.eng.HasStore(name) {
			return nil, types.NewNotFound(types.ErrCategoryTxn, "collection "+name+" does not exist")
		}
	}

	m.acquire(stores, mode)

	tx, err := m.eng.Begin(ctx, stores, mode)
	if err != nil {
		m.release(stores, mode)
		return nil, err
	}

	scope := &Scope{
		ID:     uuid.NewString(),
		m:      m,
		txn:    tx,
		stores: stores,
		mode:   mode,
	}
	m.log.Debugw("scope opened", "scope", scope.ID, "mode", mode.String(), "collections", stores)
	return scope, nil
}

// WithScope runs fn inside a scope and guarantees release on every exit
// path. A nil error from fn commits; any failure aborts the scope. Engine
// write failures (constraint violations and the like) invalidate the whole
// scope, so they surface to the caller as a single transaction-aborted
// error — no partial batch write is ever observable. Caller errors that
// carry their own taxonomy code (a missing index, an undeclared collection)
// pass through unchanged.
func (m *Manager) WithScope(ctx context.Context, collections []string, mode engine.Mode, fn func(engine.Txn) error) error {
	scope, err := m.OpenScope(ctx, collections, mode)
	if err != nil {
		return err
	}
	defer scope.Abort()

	if err := fn(scope.Txn()); err != nil {
		scope.Abort()
		switch types.GetCode(err) {
		case "", types.CodeConstraint, types.CodeEngineFailure:
			return types.NewTxnAborted(scope.ID, err)
		}
		return err
	}

	if err := scope.Commit(); err != nil {
		return types.NewTxnAborted(scope.ID, err)
	}
	return nil
}

// Txn returns the engine transaction bound to this scope.
func (s *Scope) Txn() engine.Txn {
	return s.txn
}

// Commit commits the scope and releases its collections.
func (s *Scope) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	err := s.txn.Commit()
	s.m.release(s.stores, s.mode)
	if err != nil {
		s.m.log.Debugw("scope commit failed", "scope", s.ID, "error", err)
		return err
	}
	s.m.log.Debugw("scope committed", "scope", s.ID)
	return nil
}

// Abort rolls the scope back and releases its collections. Safe to call
// after Commit.
func (s *Scope) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	err := s.txn.Rollback()
	s.m.release(s.stores, s.mode)
	s.m.log.Debugw("scope aborted", "scope", s.ID)
	return err
}

// acquire takes the latch of every collection in sorted order. Sorted
// acquisition keeps two scopes over overlapping sets from deadlocking.
func (m *Manager) acquire(stores []string, mode engine.Mode) {
	for _, name := range stores {
		l := m.latch(name)
		if mode == engine.ReadWrite {
			l.Lock()
		} else {
			l.RLock()
		}
	}
}

func (m *Manager) release(stores []string, mode engine.Mode) {
	for i := len(stores) - 1; i >= 0; i-- {
		l := m.latch(stores[i])
		if mode == engine.ReadWrite {
			l.Unlock()
		} else {
			l.RUnlock()
		}
	}
}

func (m *Manager) latch(name string) *sync.RWMutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.latches[name]
	if !ok {
		l = &sync.RWMutex{}
		m.latches[name] = l
	}
	return l
}

func dedupeSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup || n == "" {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
