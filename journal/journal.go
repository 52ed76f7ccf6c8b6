// ABOUTME: Durable journal of processed stream event ids backed by BadgerDB
// ABOUTME: Seen ids expire after a TTL; also stores the last toast pointer

package journal

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

const (
	seenPrefix   = "seen/"
	lastShownKey = "meta/last_shown"

	// DefaultTTL is how long a processed event id is remembered.
	DefaultTTL = 72 * time.Hour
)

// Journal remembers which stream events were already processed.
type Journal struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens or creates a journal in dir.
func Open(dir string, ttl time.Duration, log zerolog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log: log.With().Str("component", "journal").Logger()})
	return open(opts, ttl)
}

// OpenInMemory opens a journal that lives only as long as the process.
func OpenInMemory(ttl time.Duration) (*Journal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return open(opts, ttl)
}

func open(opts badger.Options, ttl time.Duration) (*Journal, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return &Journal{db: db, ttl: ttl}, nil
}

// Seen reports whether id was marked and has not expired.
func (j *Journal) Seen(id string) (bool, error) {
	err := j.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(seenPrefix + id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Mark records id as processed.
func (j *Journal) Mark(id string) error {
	return j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(seenPrefix+id), []byte(time.Now().UTC().Format(time.RFC3339))).WithTTL(j.ttl)
		return txn.SetEntry(e)
	})
}

// LastShown returns the id of the last toast shown, or "".
func (j *Journal) LastShown() (string, error) {
	var out string
	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastShownKey))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		out = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	return out, err
}

func (j *Journal) SetLastShown(id string) error {
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastShownKey), []byte(id))
	})
}

// SeenIDs lists the ids currently remembered.
func (j *Journal) SeenIDs() ([]string, error) {
	var ids []string
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(seenPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), seenPrefix))
		}
		return nil
	})
	return ids, err
}

// Reset forgets everything.
func (j *Journal) Reset() error {
	return j.db.DropAll()
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// badgerLogger routes badger's own logging through zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.log.Error().Msgf(strings.TrimSpace(f), v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warn().Msgf(strings.TrimSpace(f), v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.log.Debug().Msgf(strings.TrimSpace(f), v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.log.Trace().Msgf(strings.TrimSpace(f), v...) }
