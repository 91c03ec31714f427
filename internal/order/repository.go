package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/kpetrov-dev/bookstore-api/internal/catalog"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrTransientStorage marks infrastructure failures during the atomic
	// phase. Nothing partial was committed, so the whole call is safe to
	// retry from scratch.
	ErrTransientStorage = errors.New("transient storage failure")
)

type Repository interface {
	// CreateOrder decrements stock for every line item and inserts the order
	// with its items as one atomic unit. On any failure nothing is committed.
	CreateOrder(ctx context.Context, o *Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, newStatus OrderStatus) error
	// CancelOrder restores stock for every line item and flips the order to
	// CANCELLED, all-or-nothing. Fails if the order is no longer PENDING.
	CancelOrder(ctx context.Context, o *Order) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// runInTx wraps fn in a transaction with rollback on error or panic.
func (r *postgresRepository) runInTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return classifyStorageErr(fmt.Errorf("repository: failed to begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback transaction")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = classifyStorageErr(fmt.Errorf("repository: failed to commit transaction: %w", commitErr))
			}
		}
	}()

	err = fn(tx)
	return err
}

func (r *postgresRepository) CreateOrder(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}

	return r.runInTx(ctx, func(tx pgx.Tx) error {
		// The ledger bound to tx makes each decrement a conditional update
		// inside the same atomic unit as the order insert.
		ledger := catalog.NewRepository(tx)
		for i := range o.Items {
			item := &o.Items[i]
			if err := ledger.Decrement(ctx, item.BookID, item.Quantity); err != nil {
				var insufficient *catalog.InsufficientStockError
				if errors.Is(err, catalog.ErrBookNotFound) || errors.As(err, &insufficient) {
					return err
				}
				return classifyStorageErr(err)
			}
		}

		now := time.Now().UTC()
		o.CreatedAt = now
		o.UpdatedAt = now

		queryOrder := `
			INSERT INTO orders (id, user_id, status, payment_status, total_price, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err := tx.Exec(ctx, queryOrder,
			o.ID,
			o.UserID,
			string(o.Status),
			string(o.PaymentStatus),
			o.TotalPrice,
			o.CreatedAt,
			o.UpdatedAt,
		)
		if err != nil {
			return classifyStorageErr(fmt.Errorf("repository: failed to insert order: %w", err))
		}

		queryItem := `
			INSERT INTO order_items (id, order_id, book_id, quantity, unit_price, subtotal, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
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

			_, err = tx.Exec(ctx, queryItem,
				item.ID,
				item.OrderID,
				item.BookID,
				item.Quantity,
				item.UnitPrice,
				item.Subtotal,
				item.CreatedAt,
				item.UpdatedAt,
			)
			if err != nil {
				return classifyStorageErr(fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err))
			}
		}

		return nil
	})
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	queryOrder := `
		SELECT id, user_id, status, payment_status, total_price, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var o Order
	err := r.db.QueryRow(ctx, queryOrder, id).Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.PaymentStatus,
		&o.TotalPrice,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, classifyStorageErr(fmt.Errorf("repository: failed to select order by id %s: %w", id, err))
	}

	items, err := r.queryItems(ctx, `
		SELECT id, order_id, book_id, quantity, unit_price, subtotal, created_at, updated_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at
	`, id)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *postgresRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	queryOrders := `
		SELECT id, user_id, status, payment_status, total_price, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	orderRows, err := r.db.Query(ctx, queryOrders, userID)
	if err != nil {
		return nil, classifyStorageErr(fmt.Errorf("repository: failed to query orders for user id %s: %w", userID, err))
	}
	defer orderRows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for orderRows.Next() {
		var o Order
		err := orderRows.Scan(
			&o.ID,
			&o.UserID,
			&o.Status,
			&o.PaymentStatus,
			&o.TotalPrice,
			&o.CreatedAt,
			&o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for user id %s: %w", userID, err)
		}
		o.Items = make([]OrderItem, 0)
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}

	if err = orderRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders for user id %s: %w", userID, err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	items, err := r.queryItems(ctx, `
		SELECT id, order_id, book_id, quantity, unit_price, subtotal, created_at, updated_at
		FROM order_items
		WHERE order_id = ANY($1)
	`, orderIDs)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if o, ok := ordersMap[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}

	return result, nil
}

func (r *postgresRepository) queryItems(ctx context.Context, query string, arg any) ([]OrderItem, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, classifyStorageErr(fmt.Errorf("repository: failed to query order items: %w", err))
	}
	defer rows.Close()

	items := make([]OrderItem, 0)
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.BookID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return items, nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, newStatus OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query, string(newStatus), time.Now().UTC(), id)
	if err != nil {
		return classifyStorageErr(fmt.Errorf("repository: failed to update order status %s: %w", id, err))
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) CancelOrder(ctx context.Context, o *Order) error {
	return r.runInTx(ctx, func(tx pgx.Tx) error {
		// Conditional on PENDING so two concurrent cancels (or a cancel
		// racing a privileged status update) cannot both restock.
		query := `
			UPDATE orders
			SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
		`
		cmdTag, err := tx.Exec(ctx, query,
			string(StatusCancelled),
			time.Now().UTC(),
			o.ID,
			string(StatusPending),
		)
		if err != nil {
			return classifyStorageErr(fmt.Errorf("repository: failed to cancel order %s: %w", o.ID, err))
		}

		if cmdTag.RowsAffected() == 0 {
			var status string
			err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, o.ID).Scan(&status)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrOrderNotFound
				}
				return classifyStorageErr(fmt.Errorf("repository: failed to read order %s status: %w", o.ID, err))
			}
			return fmt.Errorf("%w: order %s has status %s", ErrOrderNotPending, o.ID, status)
		}

		ledger := catalog.NewRepository(tx)
		for _, item := range o.Items {
			if err := ledger.Increment(ctx, item.BookID, item.Quantity); err != nil {
				if errors.Is(err, catalog.ErrBookNotFound) {
					return err
				}
				return classifyStorageErr(err)
			}
		}

		return nil
	})
}

// classifyStorageErr folds retryable infrastructure failures into
// ErrTransientStorage so callers can distinguish them from business errors.
func classifyStorageErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransientStorage, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.LockNotAvailable,
			pgerrcode.ConnectionException,
			pgerrcode.AdminShutdown:
			return fmt.Errorf("%w: %w", ErrTransientStorage, err)
		}
	}

	return err
}
