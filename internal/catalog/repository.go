package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

var ErrBookNotFound = errors.New("book not found")

// InsufficientStockError reports a failed stock check or decrement with the
// counts needed for a useful client message.
type InsufficientStockError struct {
	BookID    uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %s: available %d, requested %d",
		e.BookID, e.Available, e.Requested)
}

// Repository is the single source of truth for per-book stock counts.
// Decrement and Increment are the only stock mutations in the system.
type Repository interface {
	CreateBook(ctx context.Context, book *Book) (uuid.UUID, error)
	GetBookByID(ctx context.Context, id uuid.UUID) (*Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	CheckAvailability(ctx context.Context, id uuid.UUID, quantity int) (bool, error)
	Decrement(ctx context.Context, id uuid.UUID, quantity int) error
	Increment(ctx context.Context, id uuid.UUID, quantity int) error
}

// DB is satisfied by both *pgxpool.Pool and pgx.Tx, so ledger operations can
// run standalone or inside an order transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRepository struct {
	db DB
}

func NewRepository(db DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateBook(ctx context.Context, book *Book) (uuid.UUID, error) {
	if book.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate book ID: %w", err)
		}
		book.ID = id
	}

	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now

	query := `
		INSERT INTO books (id, title, author, price, stock_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		book.ID,
		book.Title,
		book.Author,
		book.Price,
		book.StockQuantity,
		book.CreatedAt,
		book.UpdatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to insert book: %w", err)
	}

	return book.ID, nil
}

func (r *postgresRepository) GetBookByID(ctx context.Context, id uuid.UUID) (*Book, error) {
	query := `
		SELECT id, title, author, price, stock_quantity, created_at, updated_at
		FROM books
		WHERE id = $1
	`

	var book Book
	err := r.db.QueryRow(ctx, query, id).Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Price,
		&book.StockQuantity,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("repository: failed to select book by id %s: %w", id, err)
	}

	return &book, nil
}

func (r *postgresRepository) ListBooks(ctx context.Context) ([]Book, error) {
	query := `
		SELECT id, title, author, price, stock_quantity, created_at, updated_at
		FROM books
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query books: %w", err)
	}
	defer rows.Close()

	books := make([]Book, 0)
	for rows.Next() {
		var book Book
		err := rows.Scan(
			&book.ID,
			&book.Title,
			&book.Author,
			&book.Price,
			&book.StockQuantity,
			&book.CreatedAt,
			&book.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan book: %w", err)
		}
		books = append(books, book)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating books: %w", err)
	}

	return books, nil
}

// CheckAvailability reports whether current stock covers the quantity. It is
// advisory only, not a reservation.
func (r *postgresRepository) CheckAvailability(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	var stock int
	err := r.db.QueryRow(ctx, `SELECT stock_quantity FROM books WHERE id = $1`, id).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrBookNotFound
		}
		return false, fmt.Errorf("repository: failed to check availability for book %s: %w", id, err)
	}

	return stock >= quantity, nil
}

// Decrement subtracts quantity from stock as a single conditional update. The
// stock >= quantity guard is evaluated and applied in one statement, so two
// concurrent decrements for the same book cannot both pass a stale check.
func (r *postgresRepository) Decrement(ctx context.Context, id uuid.UUID, quantity int) error {
	query := `
		UPDATE books
		SET stock_quantity = stock_quantity - $1, updated_at = $2
		WHERE id = $3 AND stock_quantity >= $1
	`

	cmdTag, err := r.db.Exec(ctx, query, quantity, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository: failed to decrement stock for book %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		// The guard failed: either the book is gone or stock ran short.
		var stock int
		err := r.db.QueryRow(ctx, `SELECT stock_quantity FROM books WHERE id = $1`, id).Scan(&stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBookNotFound
			}
			return fmt.Errorf("repository: failed to read stock for book %s: %w", id, err)
		}

		log.Warn().
			Stringer("book_id", id).
			Int("available", stock).
			Int("requested", quantity).
			Msg("repository: stock decrement rejected")
		return &InsufficientStockError{BookID: id, Available: stock, Requested: quantity}
	}

	return nil
}

// Increment restores stock. Used only as compensation for cancelled orders.
func (r *postgresRepository) Increment(ctx context.Context, id uuid.UUID, quantity int) error {
	query := `
		UPDATE books
		SET stock_quantity = stock_quantity + $1, updated_at = $2
		WHERE id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query, quantity, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository: failed to increment stock for book %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrBookNotFound
	}

	return nil
}
