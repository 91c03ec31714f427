package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/kpetrov-dev/bookstore-api/internal/catalog"
)

// MemoryRepository is an in-process Repository backed by a catalog
// MemoryRepository. The atomic phase is expressed as a sequence of
// conditional decrements with compensation: if any decrement fails, the ones
// already applied for this order are reversed before the error is returned.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*Order
	books  *catalog.MemoryRepository
}

func NewMemoryRepository(books *catalog.MemoryRepository) *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[uuid.UUID]*Order),
		books:  books,
	}
}

func (r *MemoryRepository) CreateOrder(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}

	applied := make([]OrderItem, 0, len(o.Items))
	for i := range o.Items {
		item := &o.Items[i]
		if err := r.books.Decrement(ctx, item.BookID, item.Quantity); err != nil {
			for _, done := range applied {
				// Increment cannot fail here short of the book being deleted
				// mid-flight, which the memory store does not support.
				_ = r.books.Increment(ctx, done.BookID, done.Quantity)
			}
			return err
		}
		applied = append(applied, *item)
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	for i := range o.Items {
		item := &o.Items[i]
		itemID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", err)
		}
		item.ID = itemID
		item.OrderID = o.ID
		item.CreatedAt = now
		item.UpdatedAt = now
	}

	r.mu.Lock()
	stored := cloneOrder(o)
	r.orders[o.ID] = stored
	r.mu.Unlock()

	return nil
}

func (r *MemoryRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}

	return cloneOrder(o), nil
}

func (r *MemoryRepository) GetOrdersByUserID(_ context.Context, userID uuid.UUID) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orders := make([]Order, 0)
	for _, o := range r.orders {
		if o.UserID == userID {
			orders = append(orders, *cloneOrder(o))
		}
	}

	return orders, nil
}

func (r *MemoryRepository) UpdateOrderStatus(_ context.Context, id uuid.UUID, newStatus OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}

	o.Status = newStatus
	o.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *MemoryRepository) CancelOrder(ctx context.Context, cancel *Order) error {
	r.mu.Lock()

	o, ok := r.orders[cancel.ID]
	if !ok {
		r.mu.Unlock()
		return ErrOrderNotFound
	}

	if o.Status != StatusPending {
		status := o.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: order %s has status %s", ErrOrderNotPending, cancel.ID, status)
	}

	o.Status = StatusCancelled
	o.UpdatedAt = time.Now().UTC()
	items := make([]OrderItem, len(o.Items))
	copy(items, o.Items)
	r.mu.Unlock()

	for _, item := range items {
		if err := r.books.Increment(ctx, item.BookID, item.Quantity); err != nil {
			return err
		}
	}

	return nil
}

func cloneOrder(o *Order) *Order {
	copied := *o
	copied.Items = make([]OrderItem, len(o.Items))
	copy(copied.Items, o.Items)
	return &copied
}
