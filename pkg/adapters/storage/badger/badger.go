package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/pagekit/pkg/ports"
	badgerdb "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Type is the backing name reported by Backend
const Type = "badger"

// Backend implements ports.StorageBackend on an embedded BadgerDB
type Backend struct {
	db     *badgerdb.DB
	logger *zap.Logger
}

// Open opens (or creates) a badger database in dir. An empty dir opens an
// in-memory database, which is mostly useful in tests.
func Open(dir string, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Info("badger storage opened",
		zap.String("dir", dir),
		zap.Bool("in_memory", dir == ""))

	return &Backend{db: db, logger: logger}, nil
}

// Type implements ports.StorageBackend
func (b *Backend) Type() string {
	return Type
}

// Get retrieves the value stored under key
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return value, nil
}

// Set stores value under key
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrTxnTooBig) {
			return fmt.Errorf("%w: %v", ports.ErrQuotaExceeded, err)
		}
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Delete removes key
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// Keys lists every key starting with prefix using a key-only prefix scan
func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Close flushes and closes the database
func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	return nil
}
