package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pders01/signally/internal/cache"
	"github.com/pders01/signally/internal/quota"
)

var (
	quotaBucket = []byte("quota")
	cacheBucket = []byte("cache")
	metaBucket  = []byte("metadata")
)

const lastRotationKey = "last_rotation"

// ErrNotFound is returned for missing keys.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *bolt.DB
}

func NewStore(dbPath string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{quotaBucket, cacheBucket, metaBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveQuota(providerID string, state quota.State) error {
	return s.put(quotaBucket, providerID, state)
}

func (s *Store) GetQuota(providerID string) (quota.State, error) {
	var state quota.State
	err := s.get(quotaBucket, providerID, &state)
	return state, err
}

// AllQuotas returns every persisted quota state keyed by provider id.
func (s *Store) AllQuotas() (map[string]quota.State, error) {
	out := make(map[string]quota.State)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(quotaBucket).ForEach(func(k, v []byte) error {
			var state quota.State
			if err := json.Unmarshal(v, &state); err != nil {
				return nil
			}
			out[string(k)] = state
			return nil
		})
	})
	return out, err
}

func (s *Store) SaveCacheEntry(e cache.Entry) error {
	return s.put(cacheBucket, e.Key, e)
}

// CacheEntries returns every persisted cache entry sorted by key, fresh or not.
func (s *Store) CacheEntries() ([]cache.Entry, error) {
	var entries []cache.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(cacheBucket).ForEach(func(_, v []byte) error {
			var e cache.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			entries = append(entries, e)
			return nil
		})
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, err
}

// PruneCache deletes persisted entries that are stale at now.
func (s *Store) PruneCache(now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(cacheBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e cache.Entry
			if err := json.Unmarshal(v, &e); err == nil && e.Fresh(now) {
				continue
			}
			if err := c.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *Store) LastRotation() (time.Time, error) {
	var t time.Time
	err := s.get(metaBucket, lastRotationKey, &t)
	return t, err
}

func (s *Store) SetLastRotation(t time.Time) error {
	return s.put(metaBucket, lastRotationKey, t)
}

func (s *Store) put(bucket []byte, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *Store) get(bucket []byte, key string, dest any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %q: %w", bucket, key, ErrNotFound)
		}
		return json.Unmarshal(data, dest)
	})
}
