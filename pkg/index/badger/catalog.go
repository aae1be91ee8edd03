// Package badger implements a BadgerDB-persisted item catalog.
//
// The catalog is the durable shadow of the live index: it remembers the last
// observed sync state of every item so that a restarted process starts from
// the previous catalog instead of an empty one. The live index (pkg/index/
// memory) writes through to it and warms itself from it at startup.
//
// Serialization strategy
// ======================
//
// Items are stored as JSON under path-derived keys:
//
//	Data Type    Prefix   Key Format      Value Type
//	---------------------------------------------------
//	Item         "i:"     i:<path>        index.Item (JSON)
//
// JSON keeps the database inspectable and tolerates schema evolution, which
// matters more here than encoding speed: the catalog is read once at startup
// and written on state transitions only.
package badger

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittosync/pkg/index"
)

const itemPrefix = "i:"

// Catalog is a BadgerDB-backed persistent item catalog.
//
// Thread safety: safe for concurrent use; Badger transactions provide the
// necessary isolation.
type Catalog struct {
	db *badger.DB
}

// Options configures the catalog.
type Options struct {
	// Dir is the directory for the Badger database files.
	Dir string

	// InMemory runs Badger without disk persistence. Used by tests.
	InMemory bool
}

// Open opens (creating if necessary) the catalog database.
func Open(opts Options) (*Catalog, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Put persists the last observed state of an item.
func (c *Catalog) Put(item index.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item %q: %w", item.Path, err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(itemKey(item.Path), data)
	})
	if err != nil {
		return fmt.Errorf("failed to persist item %q: %w", item.Path, err)
	}
	return nil
}

// Delete removes the catalog record for path. Deleting an absent path is a
// no-op.
func (c *Catalog) Delete(path string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(itemKey(path))
	})
	if err != nil {
		return fmt.Errorf("failed to delete item %q: %w", path, err)
	}
	return nil
}

// All returns every persisted item, in key order.
func (c *Catalog) All() ([]index.Item, error) {
	var items []index.Item

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var item index.Item
				if err := json.Unmarshal(val, &item); err != nil {
					return fmt.Errorf("corrupt catalog record: %w", err)
				}
				items = append(items, item)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog: %w", err)
	}

	return items, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func itemKey(path string) []byte {
	return []byte(itemPrefix + path)
}
