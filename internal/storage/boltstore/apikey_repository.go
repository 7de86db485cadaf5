package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/commentgate-api/internal/domain/apikey"
	bolt "go.etcd.io/bbolt"
)

type APIKeyRepository struct {
	store *Store
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func (r *APIKeyRepository) each(tx *bolt.Tx, fn func(*apikey.APIKey) error) error {
	return tx.Bucket(bucketAPIKeys).ForEach(func(k, v []byte) error {
		var key apikey.APIKey
		if err := json.Unmarshal(v, &key); err != nil {
			return fmt.Errorf("decode api key %q: %w", k, err)
		}
		return fn(&key)
	})
}

func (r *APIKeyRepository) FindByPrefix(ctx context.Context, prefix string) (*apikey.APIKey, error) {
	var found *apikey.APIKey
	err := r.store.db.View(func(tx *bolt.Tx) error {
		return r.each(tx, func(k *apikey.APIKey) error {
			if k.Prefix == prefix && k.IsEnabled {
				found = k
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, apikey.ErrAPIKeyNotFound
	}
	return found, nil
}

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	stored := *key
	stored.ID = uuid.New()
	stored.CreatedAt = r.store.nowFn()

	err := r.store.db.Update(func(tx *bolt.Tx) error {
		if err := r.each(tx, func(k *apikey.APIKey) error {
			if k.Prefix == stored.Prefix {
				return fmt.Errorf("api key constraint violation (prefix)")
			}
			return nil
		}); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketAPIKeys), []byte(stored.ID.String()), stored)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return stored.ID, nil
}

func (r *APIKeyRepository) List(ctx context.Context) ([]*apikey.APIKey, error) {
	keys := make([]*apikey.APIKey, 0)
	err := r.store.db.View(func(tx *bolt.Tx) error {
		return r.each(tx, func(k *apikey.APIKey) error {
			keys = append(keys, k)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (r *APIKeyRepository) Disable(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(k *apikey.APIKey) { k.IsEnabled = false })
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error {
	return r.update(id, func(k *apikey.APIKey) { k.LastUsedAt = &lastUsed })
}

func (r *APIKeyRepository) update(id uuid.UUID, fn func(*apikey.APIKey)) error {
	return r.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)
		var key apikey.APIKey
		found, err := getJSON(b, []byte(id.String()), &key)
		if err != nil {
			return err
		}
		if !found {
			return apikey.ErrAPIKeyNotFound
		}
		fn(&key)
		return putJSON(b, []byte(id.String()), key)
	})
}
