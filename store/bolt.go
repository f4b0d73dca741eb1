package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/nixxel-company-limited/kot-dispatch/receipt"
)

var (
	bucketOrders = []byte("orders")
	bucketStatus = []byte("print_status")
)

// BoltStore keeps orders and print status in a bbolt file.
type BoltStore struct {
	mu  sync.Mutex
	db  *bolt.DB
	now func() time.Time
}

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketOrders, bucketStatus} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func key(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

// SetPrintStatus records the outcome of one channel for an order.
func (s *BoltStore) SetPrintStatus(_ context.Context, orderID int64, channel string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStatus)

		status := Status{OrderID: orderID}
		if v := b.Get(key(orderID)); v != nil {
			if err := json.Unmarshal(v, &status); err != nil {
				return fmt.Errorf("corrupt print status for order %d: %w", orderID, err)
			}
		}
		if err := status.set(channel, success, s.now()); err != nil {
			return err
		}

		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return b.Put(key(orderID), data)
	})
}

// PrintStatus returns the recorded status of an order.
func (s *BoltStore) PrintStatus(_ context.Context, orderID int64) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var status Status
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketStatus).Get(key(orderID))
		if v == nil {
			return fmt.Errorf("print status of order %d: %w", orderID, ErrNotFound)
		}
		return json.Unmarshal(v, &status)
	})
	return status, err
}

// PutOrder stores or replaces an order.
func (s *BoltStore) PutOrder(_ context.Context, order receipt.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOrders).Put(key(order.ID), data)
	})
}

// Order implements receipt.OrderSource.
func (s *BoltStore) Order(_ context.Context, orderID int64) (receipt.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var order receipt.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOrders).Get(key(orderID))
		if v == nil {
			return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		return json.Unmarshal(v, &order)
	})
	return order, err
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
