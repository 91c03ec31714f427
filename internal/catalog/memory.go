package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// MemoryRepository keeps the ledger in process memory. The conditional
// decrement is evaluated and applied under one lock acquisition, matching the
// atomicity of the single-statement SQL update.
type MemoryRepository struct {
	mu    sync.RWMutex
	books map[uuid.UUID]*Book
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{books: make(map[uuid.UUID]*Book)}
}

func (r *MemoryRepository) CreateBook(_ context.Context, book *Book) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if book.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, err
		}
		book.ID = id
	}

	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now

	stored := *book
	r.books[book.ID] = &stored

	return book.ID, nil
}

func (r *MemoryRepository) GetBookByID(_ context.Context, id uuid.UUID) (*Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[id]
	if !ok {
		return nil, ErrBookNotFound
	}

	copied := *book
	return &copied, nil
}

func (r *MemoryRepository) ListBooks(_ context.Context) ([]Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	books := make([]Book, 0, len(r.books))
	for _, book := range r.books {
		books = append(books, *book)
	}

	return books, nil
}

func (r *MemoryRepository) CheckAvailability(_ context.Context, id uuid.UUID, quantity int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[id]
	if !ok {
		return false, ErrBookNotFound
	}

	return book.StockQuantity >= quantity, nil
}

func (r *MemoryRepository) Decrement(_ context.Context, id uuid.UUID, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	book, ok := r.books[id]
	if !ok {
		return ErrBookNotFound
	}

	if book.StockQuantity < quantity {
		return &InsufficientStockError{
			BookID:    id,
			Available: book.StockQuantity,
			Requested: quantity,
		}
	}

	book.StockQuantity -= quantity
	book.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *MemoryRepository) Increment(_ context.Context, id uuid.UUID, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	book, ok := r.books[id]
	if !ok {
		return ErrBookNotFound
	}

	book.StockQuantity += quantity
	book.UpdatedAt = time.Now().UTC()

	return nil
}
