package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/nixxel-company-limited/kot-dispatch/receipt"
)

const (
	tableStatus = "status"
	tableOrders = "orders"
)

type orderRecord struct {
	ID    int64
	Order receipt.Order
}

var memSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableStatus: {
			Name: tableStatus,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {Name: "id", Unique: true, Indexer: &memdb.IntFieldIndex{Field: "OrderID"}},
			},
		},
		tableOrders: {
			Name: tableOrders,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {Name: "id", Unique: true, Indexer: &memdb.IntFieldIndex{Field: "ID"}},
			},
		},
	},
}

// MemStore is an in-memory store. It is the default when no database path
// is configured and the usual test double.
type MemStore struct {
	mu  sync.Mutex
	db  *memdb.MemDB
	now func() time.Time
}

// NewMemStore creates an empty store.
func NewMemStore() (*MemStore, error) {
	db, err := memdb.NewMemDB(memSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create memdb: %w", err)
	}
	return &MemStore{db: db, now: time.Now}, nil
}

// SetPrintStatus records the outcome of one channel for an order.
func (s *MemStore) SetPrintStatus(_ context.Context, orderID int64, channel string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	status := Status{OrderID: orderID}
	raw, err := txn.First(tableStatus, "id", orderID)
	if err != nil {
		return err
	}
	if raw != nil {
		status = *raw.(*Status)
	}
	if err := status.set(channel, success, s.now()); err != nil {
		return err
	}
	if err := txn.Insert(tableStatus, &status); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// PrintStatus returns the recorded status of an order.
func (s *MemStore) PrintStatus(_ context.Context, orderID int64) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.db.Txn(false).First(tableStatus, "id", orderID)
	if err != nil {
		return Status{}, err
	}
	if raw == nil {
		return Status{}, fmt.Errorf("print status of order %d: %w", orderID, ErrNotFound)
	}
	return *raw.(*Status), nil
}

// PutOrder stores or replaces an order.
func (s *MemStore) PutOrder(_ context.Context, order receipt.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tableOrders, &orderRecord{ID: order.ID, Order: order}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Order implements receipt.OrderSource.
func (s *MemStore) Order(_ context.Context, orderID int64) (receipt.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.db.Txn(false).First(tableOrders, "id", orderID)
	if err != nil {
		return receipt.Order{}, err
	}
	if raw == nil {
		return receipt.Order{}, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return raw.(*orderRecord).Order, nil
}

// Close is a no-op; it lets MemStore stand in for BoltStore.
func (s *MemStore) Close() error {
	return nil
}
