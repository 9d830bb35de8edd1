package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DistributedStore is the "distributed primary" tier: a key/value store
// with per-key TTL support and prefix-scan invalidation. No repository in
// the retrieval pack imports a networked KV client (redis/memcached), so
// this boundary is modeled as an injectable interface per the spec's
// "explicit construction seam" note — BoltStore below is the concrete
// default (an embedded, persistent KV store that can live on a shared
// volume), and MemoryStore is the inert stand-in used by tests and by
// deployments with no distributed tier configured.
type DistributedStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}

var bucketName = []byte("prdiff-cache")

// BoltStore is a DistributedStore backed by go.etcd.io/bbolt. It stores the
// expiry time as an 8-byte big-endian Unix-nanosecond prefix ahead of the
// payload so expired entries can be detected and reaped lazily on read.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt store: %w", err)
	}

	createErr := db.Update(func(tx *bolt.Tx) error {
		_, bucketErr := tx.CreateBucketIfNotExists(bucketName)

		return bucketErr
	})
	if createErr != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create bbolt bucket: %w", createErr)
	}

	return &BoltStore{db: db}, nil
}

// Get implements DistributedStore.
func (s *BoltStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var payload []byte

	var expired bool

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return nil
		}

		expiresAt, body, decodeErr := decodeEnvelope(raw)
		if decodeErr != nil {
			return decodeErr
		}

		if time.Now().After(expiresAt) {
			expired = true

			return nil
		}

		payload = append([]byte(nil), body...)

		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bbolt get: %w", err)
	}

	if expired {
		_ = s.deleteKey(key)

		return nil, false, nil
	}

	return payload, payload != nil, nil
}

// Put implements DistributedStore.
func (s *BoltStore) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	envelope := encodeEnvelope(time.Now().Add(ttl), payload)

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), envelope)
	})
	if err != nil {
		return fmt.Errorf("bbolt put: %w", err)
	}

	return nil
}

// InvalidatePrefix implements DistributedStore.
func (s *BoltStore) InvalidatePrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	prefixBytes := []byte(prefix)

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		cursor := bucket.Cursor()

		var toDelete [][]byte

		for k, _ := cursor.Seek(prefixBytes); k != nil && bytes.HasPrefix(k, prefixBytes); k, _ = cursor.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}

		for _, k := range toDelete {
			if delErr := bucket.Delete(k); delErr != nil {
				return delErr
			}

			removed++
		}

		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("bbolt invalidate prefix: %w", err)
	}

	return removed, nil
}

// Close implements DistributedStore.
func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close bbolt store: %w", err)
	}

	return nil
}

func (s *BoltStore) deleteKey(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

const envelopeHeaderLen = 8

func encodeEnvelope(expiresAt time.Time, payload []byte) []byte {
	buf := make([]byte, envelopeHeaderLen+len(payload))
	binary.BigEndian.PutUint64(buf[:envelopeHeaderLen], uint64(expiresAt.UnixNano()))
	copy(buf[envelopeHeaderLen:], payload)

	return buf
}

var errEnvelopeTooShort = errors.New("cache: envelope shorter than header")

func decodeEnvelope(raw []byte) (time.Time, []byte, error) {
	if len(raw) < envelopeHeaderLen {
		return time.Time{}, nil, errEnvelopeTooShort
	}

	nanos := binary.BigEndian.Uint64(raw[:envelopeHeaderLen])

	return time.Unix(0, int64(nanos)), raw[envelopeHeaderLen:], nil
}

// MemoryStore is an inert, in-memory DistributedStore used in tests and
// whenever no distributed backend is configured — it satisfies the
// "replaceable with an inert implementation" requirement directly.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// failAll forces every call to return an error, used to exercise the
	// two-tier fallback path in tests.
	failAll bool
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// SetFailAll forces every subsequent call to fail, simulating a distributed
// backend outage.
func (s *MemoryStore) SetFailAll(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = fail
}

var errMemoryStoreUnavailable = errors.New("cache: memory store forced failure")

// Get implements DistributedStore.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return nil, false, errMemoryStoreUnavailable
	}

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}

	if time.Now().After(entry.expiresAt) {
		delete(s.entries, key)

		return nil, false, nil
	}

	return entry.payload, true, nil
}

// Put implements DistributedStore.
func (s *MemoryStore) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return errMemoryStoreUnavailable
	}

	s.entries[key] = memoryEntry{payload: append([]byte(nil), payload...), expiresAt: time.Now().Add(ttl)}

	return nil
}

// InvalidatePrefix implements DistributedStore.
func (s *MemoryStore) InvalidatePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return 0, errMemoryStoreUnavailable
	}

	removed := 0

	for k := range s.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.entries, k)

			removed++
		}
	}

	return removed, nil
}

// Close implements DistributedStore.
func (s *MemoryStore) Close() error {
	return nil
}
