package shelf

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shelfdb/shelf/internal/engine"
	"github.com/shelfdb/shelf/internal/query"
	"github.com/shelfdb/shelf/internal/txn"
	"github.com/shelfdb/shelf/pkg/types"
)

// RecordStore provides CRUD over one collection. Every operation runs in
// its own transaction scope declared over the store's collection plus its
// related collections, so a caller composing data across collections within
// one unit of work never trips over a second transaction on an overlapping
// set. The store itself is stateless between calls.
type RecordStore struct {
	def      types.StoreDef
	scope    []string
	mgr      *txn.Manager
	log      *zap.SugaredLogger
	softDel  bool
	delField string
}

// StoreOption configures a RecordStore at registration.
type StoreOption func(*RecordStore)

// WithSoftDelete re-routes Remove/RemoveMany to mark records deleted via a
// timestamp field instead of physically deleting them.
func WithSoftDelete() StoreOption {
	return func(rs *RecordStore) { rs.softDel = true }
}

// WithDeletedField sets the soft-delete timestamp field name and enables
// soft delete. Defaults to "deletedTimestamp".
func WithDeletedField(name string) StoreOption {
	return func(rs *RecordStore) {
		rs.softDel = true
		if name != "" {
			rs.delField = name
		}
	}
}

func newRecordStore(def types.StoreDef, related []string, mgr *txn.Manager, log *zap.SugaredLogger, opts ...StoreOption) *RecordStore {
	rs := &RecordStore{
		def:      def,
		scope:    append([]string{def.Name}, related...),
		mgr:      mgr,
		log:      log,
		delField: types.DefaultDeletedField,
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

// Name returns the collection name.
func (rs *RecordStore) Name() string { return rs.def.Name }

// Collections returns the full collection set this store's scopes declare.
func (rs *RecordStore) Collections() []string {
	out := make([]string, len(rs.scope))
	copy(out, rs.scope)
	return out
}

// Get returns the record stored under id, or nil when absent.
func (rs *RecordStore) Get(ctx context.Context, id string) (types.Record, error) {
	var out types.Record
	err := rs.mgr.WithScope(ctx, rs.scope, engine.ReadOnly, func(tx engine.Txn) error {
		rec, err := tx.Get(ctx, rs.def.Name, id)
		out = rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetMany returns the records for the given ids, in id order, omitting
// absent ids. All lookups run against one consistent view in a single
// scope. An optional sort field stably sorts the result ascending.
func (rs *RecordStore) GetMany(ctx context.Context, ids []string, sortField string) ([]types.Record, error) {
	out := []types.Record{}
	err := rs.mgr.WithScope(ctx, rs.scope, engine.ReadOnly, func(tx engine.Txn) error {
		for _, id := range ids {
			rec, err := tx.Get(ctx, rs.def.Name, id)
			if err != nil {
				return err
			}
			if rec != nil {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	query.SortRecords(out, sortField)
	return out, nil
}

// GetAll returns every record in the collection, optionally sorted.
func (rs *RecordStore) GetAll(ctx context.Context, sortField string) ([]types.Record, error) {
	return rs.Query(ctx, nil, sortField)
}

// Query returns the records matching an equality predicate, optionally
// stably sorted ascending by a numeric sort field. A nil or empty predicate
// matches everything.
func (rs *RecordStore) Query(ctx context.Context, p *types.Predicate, sortField string) ([]types.Record, error) {
	var out []types.Record
	err := rs.mgr.WithScope(ctx, rs.scope, engine.ReadOnly, func(tx engine.Txn) error {
		recs, err := query.Run(ctx, tx, rs.def, p, sortField)
		out = recs
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Add upserts a record, generating a primary key when the record lacks one,
// and reports whether the write round-tripped through a read-back.
func (rs *RecordStore) Add(ctx context.Context, rec types.Record) (bool, error) {
	flags, err := rs.AddMany(ctx, []types.Record{rec})
	if err != nil {
		return false, err
	}
	return flags[0], nil
}

// AddMany upserts a batch of records in one scope and returns one
// round-trip success flag per record, in input order.
func (rs *RecordStore) AddMany(ctx context.Context, recs []types.Record) ([]bool, error) {
	flags := make([]bool, len(recs))
	err := rs.mgr.WithScope(ctx, rs.scope, engine.ReadWrite, func(tx engine.Txn) error {
		for i, rec := range recs {
			if _, ok := rec.Key(rs.def.KeyPath); !ok {
				id, err := types.NewRecordID()
				if err != nil {
					return err
				}
				rec[rs.def.KeyPath] = id
			}
			key, err := tx.Put(ctx, rs.def.Name, rec)
			if err != nil {
				return err
			}
			back, err := tx.Get(ctx, rs.def.Name, key)
			if err != nil {
				return err
			}
			flags[i] = back != nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flags, nil
}

// Update writes the record and returns the freshly read persisted copy, so
// the caller observes exactly what is now stored rather than its own input
// echoed back.
func (rs *RecordStore) Update(ctx context.Context, rec types.Record) (types.Record, error) {
	out, err := rs.UpdateMany(ctx, []types.Record{rec})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// UpdateMany writes a batch of records in one scope, then re-reads each by
// its key and returns the persisted copies in input order.
func (rs *RecordStore) UpdateMany(ctx context.Context, recs []types.Record) ([]types.Record, error) {
	out := make([]types.Record, len(recs))
	err := rs.mgr.WithScope(ctx, rs.scope, engine.ReadWrite, func(tx engine.Txn) error {
		keys := make([]string, len(recs))
		for i, rec := range recs {
			key, err := tx.Put(ctx, rs.def.Name, rec)
			if err != nil {
				return err
			}
			keys[i] = key
		}
		for i, key := range keys {
			back, err := tx.Get(ctx, rs.def.Name, key)
			if err != nil {
				return err
			}
			out[i] = back
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Remove removes one record. On a soft-delete store this marks the record
// deleted instead, unless overrideSoftDelete forces a physical delete.
// Reports whether the record existed.
func (rs *RecordStore) Remove(ctx context.Context, id string, overrideSoftDelete bool) (bool, error) {
	flags, err := rs.RemoveMany(ctx, []string{id}, overrideSoftDelete)
	if err != nil {
		return false, err
	}
	return flags[0], nil
}

// RemoveMany removes a batch of records, returning one existed flag per id.
// Soft-delete stores mark records deleted unless overridden. A physical
// batch delete runs strictly sequentially within one scope; each deletion
// completes before the next is issued, and an abort fails the whole batch.
func (rs *RecordStore) RemoveMany(ctx context.Context, ids []string, overrideSoftDelete bool) ([]bool, error) {
	if rs.softDel && !overrideSoftDelete {
		return rs.setDeletedFlags(ctx, ids, true)
	}

	flags := make([]bool, len(ids))
	err := rs.mgr.WithScope(ctx, rs.scope, engine.ReadWrite, func(tx engine.Txn) error {
		for i, id := range ids {
			rec, err := tx.Get(ctx, rs.def.Name, id)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			if err := tx.Delete(ctx, rs.def.Name, id); err != nil {
				return err
			}
			flags[i] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flags, nil
}

// Restore clears a record's deletion timestamp, marking it live again.
// Reports whether the record existed.
func (rs *RecordStore) Restore(ctx context.Context, id string) (bool, error) {
	flags, err := rs.RestoreMany(ctx, []string{id})
	if err != nil {
		return false, err
	}
	return flags[0], nil
}

// RestoreMany clears the deletion timestamp of each record in one scope.
func (rs *RecordStore) RestoreMany(ctx context.Context, ids []string) ([]bool, error) {
	return rs.setDeletedFlags(ctx, ids, false)
}

// SetDeletedFlag marks one record deleted or live by setting its timestamp
// field to the current time or removing it, via read-modify-write.
func (rs *RecordStore) SetDeletedFlag(ctx context.Context, id string, deleted bool) (bool, error) {
	flags, err := rs.setDeletedFlags(ctx, []string{id}, deleted)
	if err != nil {
		return false, err
	}
	return flags[0], nil
}

func (rs *RecordStore) setDeletedFlags(ctx context.Context, ids []string, deleted bool) ([]bool, error) {
	flags := make([]bool, len(ids))
	now := time.Now().UnixMilli()
	err := rs.mgr.WithScope(ctx, rs.scope, engine.ReadWrite, func(tx engine.Txn) error {
		for i, id := range ids {
			rec, err := tx.Get(ctx, rs.def.Name, id)
			if err != nil {
				return err
			}
			if rec == nil {
				continue
			}
			if deleted {
				rec[rs.delField] = now
			} else {
				delete(rec, rs.delField)
			}
			if _, err := tx.Put(ctx, rs.def.Name, rec); err != nil {
				return err
			}
			flags[i] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flags, nil
}

// Clear removes every record in the collection unconditionally, including
// soft-deleted ones.
func (rs *RecordStore) Clear(ctx context.Context) error {
	return rs.mgr.WithScope(ctx, rs.scope, engine.ReadWrite, func(tx engine.Txn) error {
		return tx.Clear(ctx, rs.def.Name)
	})
}
