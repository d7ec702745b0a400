// Package pebbledb persists the derived entity graph. Entities are stored as
// JSON values under "<kind>:<entityId>" keys.
package pebbledb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/prepaid-gas/paymaster-indexer/entities"
)

const lastProcessedBlockPrefix = "last-processed-block:"

type Store struct {
	db *pebble.DB
}

func NewEntityStore(storeDir string) (*Store, error) {
	db, err := pebble.Open(filepath.Join(storeDir, "paymaster-entity-store"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %v", err)
	}
	return &Store{db: db}, nil
}

func entityKey(kind, id string) []byte {
	return []byte(kind + ":" + id)
}

// Get loads the entity with the given kind and id into out. Returns
// entities.ErrStoreEntityNotFound if the entity does not exist.
func (s *Store) Get(kind, id string, out any) error {
	value, closer, err := s.db.Get(entityKey(kind, id))
	if errors.Is(err, pebble.ErrNotFound) {
		return entities.ErrStoreEntityNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "getting [%s] [%s]", kind, id)
	}
	defer closer.Close()

	if err := json.Unmarshal(value, out); err != nil {
		return errors.Wrapf(err, "decoding [%s] [%s]", kind, id)
	}
	return nil
}

// Put writes the entity synchronously. Once Put returns the entity is visible
// to subsequent Gets.
func (s *Store) Put(kind, id string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding [%s] [%s]", kind, id)
	}
	if err := s.db.Set(entityKey(kind, id), value, pebble.Sync); err != nil {
		return errors.Wrapf(err, "setting [%s] [%s]", kind, id)
	}
	return nil
}

func (s *Store) Has(kind, id string) (bool, error) {
	_, closer, err := s.db.Get(entityKey(kind, id))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "getting [%s] [%s]", kind, id)
	}
	defer closer.Close()
	return true, nil
}

// List returns the raw JSON values of all entities of one kind, for export
// and the status endpoint. The kind prefix bounds the iteration.
func (s *Store) List(kind string) ([]json.RawMessage, error) {
	lower := []byte(kind + ":")
	upper := []byte(kind + ";") // ';' is ':'+1
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, errors.Wrapf(err, "creating iterator for [%s]", kind)
	}
	defer iter.Close()

	var out []json.RawMessage
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, errors.Wrap(err, "getting value from iter")
		}
		out = append(out, append(json.RawMessage(nil), value...))
	}
	return out, nil
}

func (s *Store) SetLastProcessedBlock(network string, block uint64) error {
	key := []byte(lastProcessedBlockPrefix + network)
	var value []byte
	value = binary.BigEndian.AppendUint64(value, block)
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return errors.Wrapf(err, "setting last processed block for [%s]", network)
	}
	return nil
}

func (s *Store) GetLastProcessedBlock(network string) (uint64, error) {
	value, closer, err := s.db.Get([]byte(lastProcessedBlockPrefix + network))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, entities.ErrStoreEntityNotFound
	}
	if err != nil {
		return 0, errors.Wrapf(err, "getting last processed block for [%s]", network)
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(value), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
