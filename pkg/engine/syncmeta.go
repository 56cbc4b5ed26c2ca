package engine

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/maxsync/max/pkg/types"
)

// boltSyncMeta stores (refKey, field) -> last sync timestamp rows in the
// engine's sync_meta bucket.
type boltSyncMeta struct {
	engine *BoltEngine
}

func metaKey(ref types.Ref, field string) []byte {
	return []byte(fmt.Sprintf("%s|%s", ref.Key(), field))
}

func (m *boltSyncMeta) RecordFieldSync(ctx context.Context, ref types.Ref, fields []string, at time.Time) error {
	db, err := m.engine.database()
	if err != nil {
		return err
	}
	stamp := []byte(at.UTC().Format(time.RFC3339Nano))
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncMeta)
		for _, field := range fields {
			if err := b.Put(metaKey(ref, field), stamp); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *boltSyncMeta) LastSync(ctx context.Context, ref types.Ref, field string) (time.Time, bool, error) {
	db, err := m.engine.database()
	if err != nil {
		return time.Time{}, false, err
	}
	var at time.Time
	var found bool
	err = db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSyncMeta).Get(metaKey(ref, field))
		if data == nil {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, string(data))
		if err != nil {
			return fmt.Errorf("corrupt sync meta row %s: %w", metaKey(ref, field), err)
		}
		at, found = parsed, true
		return nil
	})
	return at, found, err
}

func (m *boltSyncMeta) StaleFields(ctx context.Context, ref types.Ref, fields []string, maxAge time.Duration) ([]string, error) {
	stale := []string{}
	cutoff := time.Now().Add(-maxAge)
	for _, field := range fields {
		at, found, err := m.LastSync(ctx, ref, field)
		if err != nil {
			return nil, err
		}
		if !found || at.Before(cutoff) {
			stale = append(stale, field)
		}
	}
	return stale, nil
}

func (m *boltSyncMeta) InvalidateFields(ctx context.Context, ref types.Ref, fields []string) error {
	db, err := m.engine.database()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncMeta)
		for _, field := range fields {
			if err := b.Delete(metaKey(ref, field)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *boltSyncMeta) Count(ctx context.Context) (int, error) {
	db, err := m.engine.database()
	if err != nil {
		return 0, err
	}
	count := 0
	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncMeta).ForEach(func(k, v []byte) error {
			count++
			return nil
		})
	})
	return count, err
}
