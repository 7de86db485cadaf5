// Package boltstore keeps licenses, quota counters and API keys in a single
// bbolt file for single-node deployments. bbolt serializes write
// transactions, so every conditional update below is a compare-and-set.
package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	bucketLicenses = []byte("licenses")
	bucketOwners   = []byte("license_owners")
	bucketQuotas   = []byte("quota_counters")
	bucketHistory  = []byte("usage_history")
	bucketAPIKeys  = []byte("api_keys")
)

type Store struct {
	db     *bolt.DB
	logger *zap.Logger
	nowFn  func() time.Time
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}

	st := &Store{
		db:     db,
		logger: logger.Named("BoltStore"),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketLicenses, bucketOwners, bucketQuotas, bucketHistory, bucketAPIKeys} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}

	st.logger.Info("Opened bolt store", zap.String("path", path))
	return st, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the file is still usable.
func (s *Store) Ping() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketLicenses) == nil {
			return fmt.Errorf("bolt store missing %s bucket", bucketLicenses)
		}
		return nil
	})
}

func (s *Store) Licenses() *LicenseRepository { return &LicenseRepository{store: s} }
func (s *Store) Quotas() *QuotaRepository     { return &QuotaRepository{store: s} }
func (s *Store) APIKeys() *APIKeyRepository   { return &APIKeyRepository{store: s} }

func getJSON(b *bolt.Bucket, key []byte, v any) (bool, error) {
	raw := b.Get(key)
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, buf)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
