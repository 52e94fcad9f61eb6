// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot persists world snapshots in an embedded BadgerDB.
//
// Snapshots are named JSON records under the "snapshot/" key prefix.
// Saving is cheap relative to the simulation tick: the engine hands out
// a Snapshot value via Engine.Do and the store does the encoding and
// disk work on the caller's goroutine.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/orrery/services/sim/game"
)

const keyPrefix = "snapshot/"

// Store errors.
var (
	ErrNotFound = errors.New("snapshot not found")
	ErrBadName  = errors.New("invalid snapshot name")
)

// Config holds configuration for the snapshot store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: persistent, synchronous
// writes.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// Info describes one stored snapshot without its body payload.
type Info struct {
	Name    string    `json:"name"`
	SavedAt time.Time `json:"saved_at"`
	SimTime float64   `json:"sim_time"`
	Bodies  int       `json:"bodies"`
}

// record is the stored JSON value.
type record struct {
	SavedAt time.Time     `json:"saved_at"`
	World   game.Snapshot `json:"world"`
}

// Store is a named-snapshot archive backed by BadgerDB.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions provide
// the isolation.
type Store struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open creates and opens the snapshot store.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if path is invalid or database cannot be opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway store for testing.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close closes the underlying database. Safe to call once.
func (s *Store) Close() error {
	return s.db.Close()
}

func keyFor(name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return nil, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return []byte(keyPrefix + name), nil
}

// Save stores snap under name, overwriting any previous snapshot with
// the same name.
func (s *Store) Save(ctx context.Context, name string, snap game.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := keyFor(name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record{SavedAt: time.Now().UTC(), World: snap})
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", name, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", name, err)
	}
	slog.Info("snapshot saved", "name", name, "bytes", len(data))
	return nil
}

// Load returns the snapshot stored under name, or ErrNotFound.
func (s *Store) Load(ctx context.Context, name string) (game.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return game.Snapshot{}, err
	}
	key, err := keyFor(name)
	if err != nil {
		return game.Snapshot{}, err
	}
	var rec record
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return game.Snapshot{}, err
	}
	return rec.World, nil
}

// List returns metadata for every stored snapshot, sorted by name.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var infos []Info
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := string(bytes.TrimPrefix(item.Key(), []byte(keyPrefix)))
			var rec record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode snapshot %q: %w", name, err)
			}
			infos = append(infos, Info{
				Name:    name,
				SavedAt: rec.SavedAt,
				SimTime: rec.World.Time,
				Bodies:  len(rec.World.Bodies),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete removes the snapshot stored under name, or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := keyFor(name)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}
