// Package hints implements ringdb's hinted-handoff store (spec §4.7): a
// durable, per-destination-peer FIFO queue of writes a coordinator could
// not deliver at the time, replayed once the peer is observed Active
// again via gossip.
package hints

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cuemby/ringdb/pkg/model"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Store is the bbolt-backed hint queue: one bucket per destination IP,
// entries appended by an auto-incrementing sequence so replay can stream
// them back out in the order they were recorded.
type Store struct {
	db *bolt.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the bbolt-backed hint file at
// <dataDir>/hints.db.
func Open(dataDir string) (*Store, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "hints.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open hint store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func bucketName(destinationIP string) []byte {
	return []byte("hints." + destinationIP)
}

// Record durably queues a write destined for a peer that could not be
// reached at write time (spec §4.5 point 6, §4.7). query is the CQL text
// the delegator parsed; keyspace is the session's keyspace at the time
// the write was issued, needed to re-resolve an unqualified table
// reference on replay.
func (s *Store) Record(destinationIP, query, keyspace string, timestamp int64) (*model.StoredQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(hintPayload{Query: query, Keyspace: keyspace})
	if err != nil {
		return nil, err
	}
	sq := &model.StoredQuery{
		ID:              uuid.NewString(),
		DestinationIP:   destinationIP,
		SerializedQuery: payload,
		Timestamp:       timestamp,
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(destinationIP))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(sq)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return nil, err
	}
	return sq, nil
}

// hintPayload is what a hint's SerializedQuery bytes actually hold: the
// CQL text and the keyspace it was parsed against.
type hintPayload struct {
	Query    string
	Keyspace string
}

// Decode extracts the CQL text and keyspace a hint carries.
func Decode(sq *model.StoredQuery) (query, keyspace string, err error) {
	var p hintPayload
	if err := json.Unmarshal(sq.SerializedQuery, &p); err != nil {
		return "", "", fmt.Errorf("decode hint payload: %w", err)
	}
	return p.Query, p.Keyspace, nil
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

// Pending returns every queued hint for a destination peer in the FIFO
// order they were recorded (spec §4.7: "streams its hints in FIFO
// order").
func (s *Store) Pending(destinationIP string) ([]*model.StoredQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.StoredQuery
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(destinationIP))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var sq model.StoredQuery
			if err := json.Unmarshal(v, &sq); err != nil {
				return err
			}
			out = append(out, &sq)
			return nil
		})
	})
	return out, err
}

// Destinations lists every peer IP with at least one queued hint, used
// by the hint-replay loop to decide which peers to attempt (spec §4.7).
func (s *Store) Destinations() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			out = append(out, string(name[len("hints."):]))
			return nil
		})
	})
	return out, err
}

// Ack removes an acknowledged hint from its destination's queue (spec
// §4.7: "removes acknowledged hints").
func (s *Store) Ack(destinationIP, hintID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(destinationIP))
		if b == nil {
			return nil
		}
		var keyToDelete []byte
		err := b.ForEach(func(k, v []byte) error {
			var sq model.StoredQuery
			if err := json.Unmarshal(v, &sq); err != nil {
				return err
			}
			if sq.ID == hintID {
				keyToDelete = append([]byte(nil), k...)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if keyToDelete == nil {
			return nil
		}
		return b.Delete(keyToDelete)
	})
}
