// Affinity - Recommendation & Insights Scoring Engine
// Copyright 2026 Meshkit Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meshkit/affinity

package version

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/meshkit/affinity/internal/recommend/signals"
)

// Key prefixes for BadgerDB storage.
const (
	versionKeyPrefix = "version:" // version:{domain}:{id}
	activeKeyPrefix  = "active:"  // active:{domain}
)

// BadgerStore implements Store using BadgerDB for durable storage.
// Suitable for production use with persistence across restarts.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed version store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// SaveVersion stores a version record.
func (s *BadgerStore) SaveVersion(_ context.Context, v *AlgorithmVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(versionKeyPrefix + string(v.Domain) + ":" + v.ID)
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("set version: %w", err)
		}
		return nil
	})
}

// SaveActive stores the active pointer for a domain.
func (s *BadgerStore) SaveActive(_ context.Context, domain signals.Domain, versionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(activeKeyPrefix + string(domain))
		if err := txn.Set(key, []byte(versionID)); err != nil {
			return fmt.Errorf("set active pointer: %w", err)
		}
		return nil
	})
}

// Load reads all versions and active pointers.
func (s *BadgerStore) Load(_ context.Context) ([]*AlgorithmVersion, map[signals.Domain]string, error) {
	var versions []*AlgorithmVersion
	active := make(map[signals.Domain]string)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(versionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var v AlgorithmVersion
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			})
			if err != nil {
				return fmt.Errorf("unmarshal version: %w", err)
			}
			versions = append(versions, &v)
		}

		for _, domain := range signals.Domains() {
			item, err := txn.Get([]byte(activeKeyPrefix + string(domain)))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get active pointer: %w", err)
			}
			err = item.Value(func(val []byte) error {
				active[domain] = string(val)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return versions, active, nil
}

// MemoryStore implements Store in memory, for tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.Mutex
	versions map[string][]byte // key -> serialized version
	active   map[signals.Domain]string
}

// NewMemoryStore creates an empty in-memory version store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: make(map[string][]byte),
		active:   make(map[signals.Domain]string),
	}
}

// SaveVersion implements Store.
func (s *MemoryStore) SaveVersion(_ context.Context, v *AlgorithmVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[versionKeyPrefix+string(v.Domain)+":"+v.ID] = data
	return nil
}

// SaveActive implements Store.
func (s *MemoryStore) SaveActive(_ context.Context, domain signals.Domain, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[domain] = versionID
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) ([]*AlgorithmVersion, map[signals.Domain]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var versions []*AlgorithmVersion
	for key, data := range s.versions {
		if !strings.HasPrefix(key, versionKeyPrefix) {
			continue
		}
		var v AlgorithmVersion
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, nil, fmt.Errorf("unmarshal version: %w", err)
		}
		versions = append(versions, &v)
	}

	active := make(map[signals.Domain]string, len(s.active))
	for domain, id := range s.active {
		active[domain] = id
	}

	return versions, active, nil
}
