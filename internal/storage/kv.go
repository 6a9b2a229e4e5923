package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	appLog "weekcal/internal/log"
)

var (
	// ErrKeyNotFound is returned by KV.Get for absent keys.
	ErrKeyNotFound = errors.New("storage: key not found")

	// ErrClosed is returned when operating on a closed KV.
	ErrClosed = errors.New("storage: kv is closed")
)

// Entry is one key/value pair of a batched write.
type Entry struct {
	Key   string
	Value []byte
}

// KV is the key-value slot collaborator the adapter persists into.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	// SetAll writes every entry atomically: either all of them land or
	// none do.
	SetAll(entries ...Entry) error
	Delete(key string) error
}

// BadgerKV is a KV backed by BadgerDB.
type BadgerKV struct {
	db     *badger.DB
	closed bool
	mu     sync.RWMutex
}

// OpenBadger opens a Badger store at dir. An empty dir opens an in-memory
// store whose contents are lost on Close.
func OpenBadger(dir string) (*BadgerKV, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = badgerLogger{}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", dir, err)
	}
	return &BadgerKV{db: db}, nil
}

// Get returns a copy of the value stored under key.
func (k *BadgerKV) Get(key string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return nil, ErrClosed
	}

	var out []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set stores value under key.
func (k *BadgerKV) Set(key string, value []byte) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrClosed
	}

	return k.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), value); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
		return nil
	})
}

// SetAll stores every entry in a single transaction.
func (k *BadgerKV) SetAll(entries ...Entry) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrClosed
	}

	return k.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := txn.Set([]byte(e.Key), e.Value); err != nil {
				return fmt.Errorf("failed to write %s: %w", e.Key, err)
			}
		}
		return nil
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (k *BadgerKV) Delete(key string) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrClosed
	}

	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close closes the underlying database.
func (k *BadgerKV) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return ErrClosed
	}
	k.closed = true
	return k.db.Close()
}

// badgerLogger routes Badger's internal logging into the app logger. Info
// chatter is demoted to DEBUG.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	appLog.Error("badger", fmt.Errorf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...any) {
	appLog.Warn("badger", "msg", fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...any) {
	appLog.Debug("badger", "msg", fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...any) {
	appLog.Debug("badger", "msg", fmt.Sprintf(format, args...))
}
