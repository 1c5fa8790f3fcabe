// Package bolt provides a single-file embedded session store on bbolt.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/conductor/pkg/domain"
	bolt "go.etcd.io/bbolt"
)

var (
	sessionsBucket    = []byte("sessions")
	transitionsBucket = []byte("transitions")
)

// Store implements ports.SessionStore using BoltDB. Records live in the
// sessions bucket keyed by lot; each lot owns a nested bucket under
// transitions keyed by a big-endian sequence.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(sessionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(transitionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the record and appends a transition in one transaction.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	row, err := json.Marshal(session.Transition())
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(sessionsBucket).Put([]byte(session.Lot), data); err != nil {
			return fmt.Errorf("failed to store session: %w", err)
		}
		hist, err := tx.Bucket(transitionsBucket).CreateBucketIfNotExists([]byte(session.Lot))
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		seq, err := hist.NextSequence()
		if err != nil {
			return err
		}
		return hist.Put(sequenceKey(seq), row)
	})
}

// Load retrieves one session.
func (s *Store) Load(ctx context.Context, lot string) (*domain.Session, error) {
	var session *domain.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(lot))
		if data == nil {
			return domain.ErrSessionNotFound
		}
		session = &domain.Session{}
		return json.Unmarshal(data, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// List returns every stored session ordered by lot.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	sessions := make([]*domain.Session, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			var session domain.Session
			if err := json.Unmarshal(v, &session); err != nil {
				return fmt.Errorf("failed to unmarshal session %s: %w", k, err)
			}
			sessions = append(sessions, &session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// History returns the transitions of a lot in insertion order.
func (s *Store) History(ctx context.Context, lot string) ([]domain.Transition, error) {
	out := make([]domain.Transition, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		hist := tx.Bucket(transitionsBucket).Bucket([]byte(lot))
		if hist == nil {
			return nil
		}
		return hist.ForEach(func(_, v []byte) error {
			var t domain.Transition
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("failed to unmarshal transition: %w", err)
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the session and its history.
func (s *Store) Delete(ctx context.Context, lot string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(sessionsBucket).Delete([]byte(lot)); err != nil {
			return err
		}
		transitions := tx.Bucket(transitionsBucket)
		if transitions.Bucket([]byte(lot)) == nil {
			return nil
		}
		return transitions.DeleteBucket([]byte(lot))
	})
}

func sequenceKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
