package shelf

import (
	"context"

	"github.com/shelfdb/shelf/internal/engine"
	"github.com/shelfdb/shelf/internal/query"
	"github.com/shelfdb/shelf/pkg/types"
)

// Key/value, raw data, and key-only convenience surface. All of it stores
// {key, value}-shaped records keyed by the target collection's primary key
// path. Setting a nil value is defined as deleting the key.

// GetValue returns the value stored under key in the reserved key/value
// collection, or nil when absent.
func (s *Session) GetValue(ctx context.Context, key string) (any, error) {
	return s.GetData(ctx, s.cfg.KeyValueCollection, key)
}

// GetValues returns the values for the given keys in key order, omitting
// absent keys.
func (s *Session) GetValues(ctx context.Context, keys []string) ([]any, error) {
	return s.GetDataValues(ctx, s.cfg.KeyValueCollection, keys)
}

// GetAllValues returns every value in the reserved key/value collection.
func (s *Session) GetAllValues(ctx context.Context) ([]any, error) {
	return s.allValues(ctx, s.cfg.KeyValueCollection)
}

// SetValue stores a value under key in the reserved key/value collection.
// A nil value deletes the key.
func (s *Session) SetValue(ctx context.Context, key string, value any) error {
	return s.SetData(ctx, s.cfg.KeyValueCollection, key, value)
}

// SetValues stores every entry of the map in one scope. Nil values delete
// their keys.
func (s *Session) SetValues(ctx context.Context, values map[string]any) error {
	return s.SetDataValues(ctx, s.cfg.KeyValueCollection, values)
}

// GetData returns the value stored under key in the given collection, or
// nil when absent.
func (s *Session) GetData(ctx context.Context, collection, key string) (any, error) {
	var out any
	err := s.mgr.WithScope(ctx, []string{collection}, engine.ReadOnly, func(tx engine.Txn) error {
		rec, err := tx.Get(ctx, collection, key)
		if err != nil {
			return err
		}
		if rec != nil {
			out = rec["value"]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetDataValues returns the values for the given keys in the given
// collection, in key order, omitting absent keys.
func (s *Session) GetDataValues(ctx context.Context, collection string, keys []string) ([]any, error) {
	out := []any{}
	err := s.mgr.WithScope(ctx, []string{collection}, engine.ReadOnly, func(tx engine.Txn) error {
		for _, key := range keys {
			rec, err := tx.Get(ctx, collection, key)
			if err != nil {
				return err
			}
			if rec != nil {
				out = append(out, rec["value"])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetData stores a value under key in the given collection. A nil value
// deletes the key.
func (s *Session) SetData(ctx context.Context, collection, key string, value any) error {
	return s.SetDataValues(ctx, collection, map[string]any{key: value})
}

// SetDataValues stores every entry of the map in the given collection in
// one scope. Nil values delete their keys.
func (s *Session) SetDataValues(ctx context.Context, collection string, values map[string]any) error {
	return s.mgr.WithScope(ctx, []string{collection}, engine.ReadWrite, func(tx engine.Txn) error {
		keyPath, err := s.keyPath(collection)
		if err != nil {
			return err
		}
		for key, value := range values {
			if value == nil {
				if err := tx.Delete(ctx, collection, key); err != nil {
					return err
				}
				continue
			}
			rec := types.Record{keyPath: key, "value": value}
			if _, err := tx.Put(ctx, collection, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveData deletes the key from the given collection. Removing an absent
// key is a no-op.
func (s *Session) RemoveData(ctx context.Context, collection, key string) error {
	return s.mgr.WithScope(ctx, []string{collection}, engine.ReadWrite, func(tx engine.Txn) error {
		return tx.Delete(ctx, collection, key)
	})
}

// GetKeys returns every stored key in the given collection, in primary key
// order.
func (s *Session) GetKeys(ctx context.Context, collection string) ([]string, error) {
	keyPath, err := s.keyPath(collection)
	if err != nil {
		return nil, err
	}
	def, _ := s.eng.Definition(collection)

	out := []string{}
	err = s.mgr.WithScope(ctx, []string{collection}, engine.ReadOnly, func(tx engine.Txn) error {
		recs, err := query.Run(ctx, tx, def, nil, "")
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if key, ok := rec.Key(keyPath); ok {
				out = append(out, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetKey stores a bare key in the given collection.
func (s *Session) SetKey(ctx context.Context, collection, key string) error {
	return s.SetKeys(ctx, collection, []string{key})
}

// SetKeys stores a batch of bare keys in the given collection in one scope.
func (s *Session) SetKeys(ctx context.Context, collection string, keys []string) error {
	return s.mgr.WithScope(ctx, []string{collection}, engine.ReadWrite, func(tx engine.Txn) error {
		keyPath, err := s.keyPath(collection)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Put(ctx, collection, types.Record{keyPath: key}); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveKey deletes a bare key from the given collection.
func (s *Session) RemoveKey(ctx context.Context, collection, key string) error {
	return s.RemoveData(ctx, collection, key)
}

// ClearStoreKeys removes every key in the given collection.
func (s *Session) ClearStoreKeys(ctx context.Context, collection string) error {
	return s.mgr.WithScope(ctx, []string{collection}, engine.ReadWrite, func(tx engine.Txn) error {
		return tx.Clear(ctx, collection)
	})
}

func (s *Session) allValues(ctx context.Context, collection string) ([]any, error) {
	def, ok := s.eng.Definition(collection)
	if !ok {
		return nil, types.NewNotFound(types.ErrCategorySession, "collection "+collection+" does not exist")
	}

	out := []any{}
	err := s.mgr.WithScope(ctx, []string{collection}, engine.ReadOnly, func(tx engine.Txn) error {
		recs, err := query.Run(ctx, tx, def, nil, "")
		if err != nil {
			return err
		}
		for _, rec := range recs {
			out = append(out, rec["value"])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) keyPath(collection string) (string, error) {
	def, ok := s.eng.Definition(collection)
	if !ok {
		return "", types.NewNotFound(types.ErrCategorySession, "collection "+collection+" does not exist")
	}
	return def.KeyPath, nil
}
