package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const keyPrefix = "p:"

type BadgerJournal struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a journal at dir. An empty dir keeps the
// journal in memory.
func OpenBadger(dir string) (*BadgerJournal, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLoggingLevel(badger.WARNING).WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", dir, err)
	}
	return &BadgerJournal{db: db}, nil
}

func entryKey(id string) []byte {
	return []byte(keyPrefix + id)
}

func (j *BadgerJournal) Begin(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	e = prepare(e)
	if err := j.put(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (j *BadgerJournal) Fail(ctx context.Context, id string, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		e, err := j.get(txn, id)
		if err != nil {
			return err
		}
		e.Attempts++
		if cause != nil {
			e.LastError = cause.Error()
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return txn.Set(entryKey(id), data)
	})
}

func (j *BadgerJournal) Complete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(id))
	})
}

func (j *BadgerJournal) Pending(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return fmt.Errorf("corrupt journal entry %s: %w", it.Item().Key(), err)
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByStart(entries)
	return entries, nil
}

func (j *BadgerJournal) Close() error {
	return j.db.Close()
}

func (j *BadgerJournal) put(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e.ID), data)
	})
}

func (j *BadgerJournal) get(txn *badger.Txn, id string) (Entry, error) {
	item, err := txn.Get(entryKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	var e Entry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	return e, err
}
