// Package shelf is a record-collection convenience layer over an embedded
// transactional, indexed object-storage engine. It gives callers a
// table/record mental model — named collections, equality queries over
// indexed fields, batch CRUD, soft-delete — while delegating storage,
// indexing, and transaction mechanics to the engine underneath.
package shelf

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/shelfdb/shelf/internal/engine"
	"github.com/shelfdb/shelf/internal/schema"
	"github.com/shelfdb/shelf/internal/txn"
	"github.com/shelfdb/shelf/pkg/types"
)

type sessionState int

const (
	stateNotOpen sessionState = iota
	stateOpening
	stateOpen
	stateClosed
	stateDeleted
)

// Session owns one database connection, the collection→RecordStore
// registry, and the reserved key/value collection. A session instance holds
// at most one open connection at a time.
type Session struct {
	cfg Config
	log *zap.SugaredLogger
	eng engine.Engine
	mgr *txn.Manager

	mu          sync.Mutex
	state       sessionState
	initialized bool
	stores      map[string]*RecordStore
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Session) {
		if logger != nil {
			s.log = logger
		}
	}
}

// NewSession creates a session for the given configuration. The connection
// is not opened until Open is called.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:    cfg,
		log:    zap.NewNop().Sugar(),
		stores: make(map[string]*RecordStore),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.eng = engine.NewSQLite(cfg.Path, cfg.Name, s.log)
	s.mgr = txn.NewManager(s.eng, s.log)
	return s, nil
}

// Open opens the database connection, creating or upgrading collections
// when the configured version is newer than what exists. Calling Open on an
// already-open session is a no-op.
//
// Collection creation runs inside the engine's upgrade callback. The
// initialized guard keeps the schema from being compiled and applied twice
// within one open cycle. A single collection's creation failure is logged
// and skipped; sibling collections still get created.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateOpen:
		s.mu.Unlock()
		return nil
	case stateOpening:
		s.mu.Unlock()
		return types.NewInvariant("session is already opening")
	case stateDeleted:
		s.mu.Unlock()
		return types.NewInvariant("session database was deleted")
	}
	s.state = stateOpening
	s.initialized = false
	s.mu.Unlock()

	err := s.eng.Open(ctx, s.cfg.Version, func(c engine.Creator) error {
		s.mu.Lock()
		if s.initialized {
			s.mu.Unlock()
			return nil
		}
		s.initialized = true
		s.mu.Unlock()

		defs, err := schema.Compile(s.cfg.Schema, s.cfg.KeyValueCollection)
		if err != nil {
			return err
		}
		for _, def := range defs {
			if err := c.CreateStore(def); err != nil {
				s.log.Warnw("collection setup failed, skipping",
					"database", s.cfg.Name, "collection", def.Name, "error", err)
			}
		}
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = stateNotOpen
		return err
	}
	s.state = stateOpen
	s.log.Infow("database opened", "database", s.cfg.Name, "version", s.cfg.Version)
	return nil
}

// Close closes the connection. The registry is kept: a later Open reopens
// the same database and stores registered before the Close keep working,
// and a later Delete still destroys it. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return nil
	}
	if err := s.eng.Close(); err != nil {
		return err
	}
	s.state = stateClosed
	s.log.Infow("database closed", "database", s.cfg.Name)
	return nil
}

// Delete closes the connection if open, then destroys all persisted data
// for this database. Irreversible. Deleting a database that was never
// opened is caller misuse.
func (s *Session) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateNotOpen || s.state == stateOpening {
		return types.NewInvariant("cannot delete a database that was never opened")
	}
	if s.state == stateDeleted {
		return nil
	}
	if err := s.eng.Destroy(); err != nil {
		return err
	}
	s.state = stateDeleted
	s.stores = make(map[string]*RecordStore)
	s.log.Infow("database deleted", "database", s.cfg.Name)
	return nil
}

// AddStore registers a RecordStore for one collection. The related list
// names every other collection any of the store's operations may touch in
// the same unit of work; each name is validated against the created
// collections now, at registration, so a missing declaration surfaces here
// rather than as a transaction usage error later.
func (s *Session) AddStore(name string, related []string, opts ...StoreOption) (*RecordStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen {
		return nil, types.NewNotOpen("no open connection; call Open first")
	}
	if _, dup := s.stores[name]; dup {
		return nil, types.NewDuplicateStore(name)
	}
	def, ok := s.eng.Definition(name)
	if !ok {
		return nil, types.NewNotFound(types.ErrCategorySession, "collection "+name+" does not exist")
	}
	for _, rel := range related {
		if !s.eng.HasStore(rel) {
			return nil, types.NewNotFound(types.ErrCategorySession, "related collection "+rel+" does not exist")
		}
	}

	store := newRecordStore(def, related, s.mgr, s.log, opts...)
	s.stores[name] = store
	s.log.Debugw("store registered", "collection", name, "related", related)
	return store, nil
}

// GetStore returns the registered RecordStore for a collection.
func (s *Session) GetStore(name string) (*RecordStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.stores[name]
	if !ok {
		return nil, types.NewNotFound(types.ErrCategorySession, "store "+name+" is not registered")
	}
	return store, nil
}

// KeyValueStore returns the RecordStore over the reserved key/value
// collection, registering it on first use.
func (s *Session) KeyValueStore() (*RecordStore, error) {
	name := s.cfg.KeyValueCollection

	s.mu.Lock()
	if store, ok := s.stores[name]; ok {
		s.mu.Unlock()
		return store, nil
	}
	s.mu.Unlock()

	return s.AddStore(name, nil)
}

// Collections returns the names of all created collections, sorted.
func (s *Session) Collections() []string {
	return s.eng.Stores()
}
