// Package badger provides an embedded storage backend on BadgerDB, for running a
// session without a PostgreSQL server.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/kozaktomas/face-recall/internal/config"
	"github.com/kozaktomas/face-recall/internal/database"
	"github.com/kozaktomas/face-recall/internal/facematch"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	personPrefix = "person/"
	convPrefix   = "conv/"

	// maxTxnRetries bounds optimistic retries on badger.ErrConflict.
	maxTxnRetries = 10
)

func init() {
	database.RegisterBackend("badger", Open)
}

// personRecord is the on-disk form of a known identity.
type personRecord struct {
	ID        string    `msgpack:"known_person_id"`
	OwnerID   string    `msgpack:"patient_id"`
	Name      string    `msgpack:"name"`
	Embedding []float32 `msgpack:"face_encoding"`
	ImagePath string    `msgpack:"image_path"`
	CreatedAt time.Time `msgpack:"created_at"`
}

func toRecord(ident facematch.KnownIdentity) personRecord {
	return personRecord{
		ID:        ident.ID,
		OwnerID:   ident.OwnerID,
		Name:      ident.DisplayName,
		Embedding: ident.Embedding,
		ImagePath: ident.ImagePath,
		CreatedAt: ident.CreatedAt,
	}
}

func (r personRecord) identity() facematch.KnownIdentity {
	return facematch.KnownIdentity{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		DisplayName: r.Name,
		Embedding:   r.Embedding,
		ImagePath:   r.ImagePath,
		CreatedAt:   r.CreatedAt,
	}
}

// Store is a database.Store backed by BadgerDB.
type Store struct {
	db *badger.DB
}

// Options configures the store.
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string
	// InMemory runs BadgerDB without disk persistence.
	InMemory bool
}

// Open opens the on-disk store at cfg.BadgerDir.
func Open(cfg *config.DatabaseConfig) (database.Store, error) {
	store, err := New(Options{Dir: cfg.BadgerDir})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// New creates a BadgerDB-backed store.
func New(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger directory is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getValue(txn *badger.Txn, key string, out any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	if err := msgpack.Unmarshal(val, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func setValue(txn *badger.Txn, key string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

// scan decodes every value under prefix and passes it to fn.
func scan[T any](txn *badger.Txn, prefix string, fn func(T) error) error {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = []byte(prefix)
	it := txn.NewIterator(iterOpts)
	defer it.Close()

	for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		var rec T
		if err := msgpack.Unmarshal(val, &rec); err != nil {
			return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func personKey(id string) string {
	return personPrefix + id
}

// convKey escapes both ids so a "/" inside either cannot shift the pair boundary.
func convKey(patientID, knownPersonID string) string {
	return convPatientPrefix(patientID) + url.PathEscape(knownPersonID)
}

func convPatientPrefix(patientID string) string {
	return convPrefix + url.PathEscape(patientID) + "/"
}

// ListIdentities returns every stored identity, oldest first.
func (s *Store) ListIdentities(_ context.Context) ([]facematch.KnownIdentity, error) {
	return s.listIdentities(func(personRecord) bool { return true })
}

// ListIdentitiesByOwner returns the identities belonging to one patient.
func (s *Store) ListIdentitiesByOwner(_ context.Context, ownerID string) ([]facematch.KnownIdentity, error) {
	return s.listIdentities(func(r personRecord) bool { return r.OwnerID == ownerID })
}

func (s *Store) listIdentities(keep func(personRecord) bool) ([]facematch.KnownIdentity, error) {
	var out []facematch.KnownIdentity
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, personPrefix, func(r personRecord) error {
			if keep(r) {
				out = append(out, r.identity())
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetIdentity retrieves an identity by id, returns nil if not found.
func (s *Store) GetIdentity(_ context.Context, id string) (*facematch.KnownIdentity, error) {
	var rec personRecord
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getValue(txn, personKey(id), &rec)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if !found {
		return nil, nil
	}
	ident := rec.identity()
	return &ident, nil
}

// CountIdentities returns the total number of stored identities.
func (s *Store) CountIdentities(ctx context.Context) (int, error) {
	all, err := s.ListIdentities(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// InsertIdentity stores a new identity.
func (s *Store) InsertIdentity(_ context.Context, ident facematch.KnownIdentity) error {
	if ident.CreatedAt.IsZero() {
		ident.CreatedAt = time.Now()
	}
	key := personKey(ident.ID)

	err := s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err == nil {
			return fmt.Errorf("%w: %s", database.ErrIdentityExists, ident.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setValue(txn, key, toRecord(ident))
	})
	if err != nil {
		if errors.Is(err, database.ErrIdentityExists) {
			return err
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// AssignOwner re-owns every identity to ownerID.
func (s *Store) AssignOwner(_ context.Context, ownerID string) (int64, error) {
	var changed int64
	err := s.update(func(txn *badger.Txn) error {
		changed = 0
		var records []personRecord
		if err := scan(txn, personPrefix, func(r personRecord) error {
			if r.OwnerID != ownerID {
				records = append(records, r)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, r := range records {
			r.OwnerID = ownerID
			if err := setValue(txn, personKey(r.ID), r); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("assign owner: %w", err)
	}
	return changed, nil
}

// AppendEntry appends one entry to the (patient, person) log. Concurrent appends
// to the same pair conflict inside badger and are retried.
func (s *Store) AppendEntry(_ context.Context, patientID, knownPersonID string, entry database.TranscriptEntry) error {
	key := convKey(patientID, knownPersonID)
	err := s.update(func(txn *badger.Txn) error {
		var conv database.Conversation
		found, err := getValue(txn, key, &conv)
		if err != nil {
			return err
		}
		now := time.Now()
		if !found {
			conv = database.Conversation{
				PatientID:     patientID,
				KnownPersonID: knownPersonID,
				CreatedAt:     now,
			}
		}
		conv.Entries = append(conv.Entries, entry)
		conv.UpdatedAt = now
		return setValue(txn, key, conv)
	})
	if err != nil {
		return fmt.Errorf("append conversation entry: %w", err)
	}
	return nil
}

// GetConversation returns the log for one pair, nil if none exists.
func (s *Store) GetConversation(_ context.Context, patientID, knownPersonID string) (*database.Conversation, error) {
	var conv database.Conversation
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getValue(txn, convKey(patientID, knownPersonID), &conv)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &conv, nil
}

// ListConversations returns all logs of a patient, most recently updated first.
func (s *Store) ListConversations(_ context.Context, patientID string) ([]database.Conversation, error) {
	var out []database.Conversation
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, convPatientPrefix(patientID), func(c database.Conversation) error {
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].KnownPersonID < out[j].KnownPersonID
	})
	return out, nil
}

// Stats returns record counts.
func (s *Store) Stats(_ context.Context) (database.Stats, error) {
	var st database.Stats
	err := s.db.View(func(txn *badger.Txn) error {
		if err := scan(txn, personPrefix, func(personRecord) error {
			st.Identities++
			return nil
		}); err != nil {
			return err
		}
		return scan(txn, convPrefix, func(c database.Conversation) error {
			st.Conversations++
			st.Entries += len(c.Entries)
			return nil
		})
	})
	if err != nil {
		return database.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// badgerLogger routes badger warnings and errors to the standard logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{}) {
	log.Printf("[badger] ERROR: "+strings.TrimSuffix(f, "\n"), v...)
}
func (badgerLogger) Warningf(f string, v ...interface{}) {
	log.Printf("[badger] WARN: "+strings.TrimSuffix(f, "\n"), v...)
}
func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
