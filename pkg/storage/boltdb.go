package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRoles = []byte("roles")

// DBFileName is the name of the database file inside the data directory
const DBFileName = "rolekeeper.db"

// BoltStore implements Store on BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the database in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return open(filepath.Join(dataDir, DBFileName), false)
}

// OpenReadOnly opens an existing database without taking the write lock
func OpenReadOnly(dataDir string) (*BoltStore, error) {
	return open(filepath.Join(dataDir, DBFileName), true)
}

func open(path string, readOnly bool) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if readOnly {
		return &BoltStore{db: db}, nil
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRoles); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketRoles, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveRole writes rec under its key, replacing any previous record
func (s *BoltStore) SaveRole(rec *RoleRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("role record without key")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode role %s: %w", rec.Key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).Put([]byte(rec.Key), data)
	})
}

// GetRole returns the record of key or ErrRoleNotFound
func (s *BoltStore) GetRole(key string) (*RoleRecord, error) {
	var rec RoleRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoles)
		if b == nil {
			return fmt.Errorf("%w: %s", ErrRoleNotFound, key)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrRoleNotFound, key)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRoles returns every record ordered by key
func (s *BoltStore) ListRoles() ([]*RoleRecord, error) {
	var recs []*RoleRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoles)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec RoleRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode role %s: %w", k, err)
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	return recs, err
}

// DeleteRole removes the record of key
func (s *BoltStore) DeleteRole(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).Delete([]byte(key))
	})
}
