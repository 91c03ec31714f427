package order_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpetrov-dev/bookstore-api/internal/catalog"
	"github.com/kpetrov-dev/bookstore-api/internal/order"
)

type mockOrderRepository struct {
	createOrderFunc       func(ctx context.Context, o *order.Order) error
	getOrderByIDFunc      func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	getOrdersByUserIDFunc func(ctx context.Context, userID uuid.UUID) ([]order.Order, error)
	updateOrderStatusFunc func(ctx context.Context, id uuid.UUID, newStatus order.OrderStatus) error
	cancelOrderFunc       func(ctx context.Context, o *order.Order) error
}

func (m *mockOrderRepository) CreateOrder(ctx context.Context, o *order.Order) error {
	return m.createOrderFunc(ctx, o)
}

func (m *mockOrderRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getOrderByIDFunc(ctx, id)
}

func (m *mockOrderRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	return m.getOrdersByUserIDFunc(ctx, userID)
}

func (m *mockOrderRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, newStatus order.OrderStatus) error {
	return m.updateOrderStatusFunc(ctx, id, newStatus)
}

func (m *mockOrderRepository) CancelOrder(ctx context.Context, o *order.Order) error {
	return m.cancelOrderFunc(ctx, o)
}

type mockCatalogRepository struct {
	getBookByIDFunc       func(ctx context.Context, id uuid.UUID) (*catalog.Book, error)
	checkAvailabilityFunc func(ctx context.Context, id uuid.UUID, quantity int) (bool, error)
}

func (m *mockCatalogRepository) CreateBook(ctx context.Context, book *catalog.Book) (uuid.UUID, error) {
	return uuid.Nil, nil
}

func (m *mockCatalogRepository) GetBookByID(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	return m.getBookByIDFunc(ctx, id)
}

func (m *mockCatalogRepository) ListBooks(ctx context.Context) ([]catalog.Book, error) {
	return nil, nil
}

func (m *mockCatalogRepository) CheckAvailability(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	return m.checkAvailabilityFunc(ctx, id, quantity)
}

func (m *mockCatalogRepository) Decrement(ctx context.Context, id uuid.UUID, quantity int) error {
	return nil
}

func (m *mockCatalogRepository) Increment(ctx context.Context, id uuid.UUID, quantity int) error {
	return nil
}

func mustV4(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	return id
}

func TestOrderService_PlaceOrder_Validation(t *testing.T) {
	userID := uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))
	bookID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))

	tests := []struct {
		name   string
		userID uuid.UUID
		items  []order.LineItemInput
	}{
		{
			name:   "nil_user_id",
			userID: uuid.Nil,
			items:  []order.LineItemInput{{BookID: bookID, Quantity: 1}},
		},
		{
			name:   "empty_items",
			userID: userID,
			items:  []order.LineItemInput{},
		},
		{
			name:   "nil_book_id",
			userID: userID,
			items:  []order.LineItemInput{{BookID: uuid.Nil, Quantity: 1}},
		},
		{
			name:   "zero_quantity",
			userID: userID,
			items:  []order.LineItemInput{{BookID: bookID, Quantity: 0}},
		},
		{
			name:   "negative_quantity",
			userID: userID,
			items:  []order.LineItemInput{{BookID: bookID, Quantity: -2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			createCalls := 0
			orderRepo := &mockOrderRepository{
				createOrderFunc: func(ctx context.Context, o *order.Order) error {
					createCalls++
					return nil
				},
			}
			books := &mockCatalogRepository{
				getBookByIDFunc: func(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
					t.Fatal("catalog must not be consulted for invalid input")
					return nil, nil
				},
			}

			svc := order.NewService(orderRepo, books)

			// Rejected input must never reach storage, no matter how often
			// it is submitted.
			for i := 0; i < 2; i++ {
				placed, err := svc.PlaceOrder(context.Background(), tt.userID, tt.items)
				assert.Nil(t, placed)
				assert.ErrorIs(t, err, order.ErrInvalidInput)
			}
			assert.Equal(t, 0, createCalls)
		})
	}
}

func TestOrderService_PlaceOrder_BookNotFound(t *testing.T) {
	userID := mustV4(t)
	missingID := mustV4(t)

	orderRepo := &mockOrderRepository{
		createOrderFunc: func(ctx context.Context, o *order.Order) error {
			t.Fatal("order must not be created when a book is missing")
			return nil
		},
	}
	books := &mockCatalogRepository{
		getBookByIDFunc: func(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
			return nil, catalog.ErrBookNotFound
		},
	}

	svc := order.NewService(orderRepo, books)

	placed, err := svc.PlaceOrder(context.Background(), userID, []order.LineItemInput{
		{BookID: missingID, Quantity: 1},
	})
	assert.Nil(t, placed)
	assert.ErrorIs(t, err, catalog.ErrBookNotFound)
	assert.Contains(t, err.Error(), missingID.String())
}

func TestOrderService_PlaceOrder_InsufficientAtCheck(t *testing.T) {
	userID := mustV4(t)
	bookID := mustV4(t)

	orderRepo := &mockOrderRepository{
		createOrderFunc: func(ctx context.Context, o *order.Order) error {
			t.Fatal("order must not be created when the advisory check fails")
			return nil
		},
	}
	books := &mockCatalogRepository{
		getBookByIDFunc: func(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
			return &catalog.Book{ID: id, Price: 10.0, StockQuantity: 2}, nil
		},
		checkAvailabilityFunc: func(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
			return false, nil
		},
	}

	svc := order.NewService(orderRepo, books)

	placed, err := svc.PlaceOrder(context.Background(), userID, []order.LineItemInput{
		{BookID: bookID, Quantity: 3},
	})
	assert.Nil(t, placed)

	var insufficient *catalog.InsufficientStockError
	if assert.ErrorAs(t, err, &insufficient) {
		assert.Equal(t, bookID, insufficient.BookID)
		assert.Equal(t, 2, insufficient.Available)
		assert.Equal(t, 3, insufficient.Requested)
	}
}

func TestOrderService_PlaceOrder_InsufficientAtCommit(t *testing.T) {
	userID := mustV4(t)
	bookID := mustV4(t)

	// The advisory check passes, then a concurrent order wins the remaining
	// stock before the conditional decrement commits.
	commitErr := &catalog.InsufficientStockError{BookID: bookID, Available: 0, Requested: 1}
	orderRepo := &mockOrderRepository{
		createOrderFunc: func(ctx context.Context, o *order.Order) error {
			return commitErr
		},
	}
	books := &mockCatalogRepository{
		getBookByIDFunc: func(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
			return &catalog.Book{ID: id, Price: 10.0, StockQuantity: 1}, nil
		},
		checkAvailabilityFunc: func(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
			return true, nil
		},
	}

	svc := order.NewService(orderRepo, books)

	placed, err := svc.PlaceOrder(context.Background(), userID, []order.LineItemInput{
		{BookID: bookID, Quantity: 1},
	})
	assert.Nil(t, placed)

	var insufficient *catalog.InsufficientStockError
	if assert.ErrorAs(t, err, &insufficient) {
		assert.Equal(t, 0, insufficient.Available)
		assert.Equal(t, 1, insufficient.Requested)
	}
}

func TestOrderService_PlaceOrder_Success(t *testing.T) {
	userID := mustV4(t)
	bookA := mustV4(t)
	bookB := mustV4(t)

	prices := map[uuid.UUID]float64{bookA: 12.50, bookB: 7.25}

	var created *order.Order
	orderRepo := &mockOrderRepository{
		createOrderFunc: func(ctx context.Context, o *order.Order) error {
			created = o
			return nil
		},
	}
	books := &mockCatalogRepository{
		getBookByIDFunc: func(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
			return &catalog.Book{ID: id, Price: prices[id], StockQuantity: 10}, nil
		},
		checkAvailabilityFunc: func(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
			return true, nil
		},
	}

	svc := order.NewService(orderRepo, books)

	placed, err := svc.PlaceOrder(context.Background(), userID, []order.LineItemInput{
		{BookID: bookA, Quantity: 2},
		{BookID: bookB, Quantity: 4},
	})
	require.NoError(t, err)
	require.NotNil(t, placed)
	assert.Same(t, created, placed)

	assert.Equal(t, userID, placed.UserID)
	assert.Equal(t, order.StatusPending, placed.Status)
	assert.Equal(t, order.PaymentPending, placed.PaymentStatus)
	require.Len(t, placed.Items, 2)

	assert.Equal(t, 12.50, placed.Items[0].UnitPrice)
	assert.Equal(t, 25.0, placed.Items[0].Subtotal)
	assert.Equal(t, 7.25, placed.Items[1].UnitPrice)
	assert.Equal(t, 29.0, placed.Items[1].Subtotal)
	assert.Equal(t, 54.0, placed.TotalPrice)
}

func TestOrderService_CancelOrder(t *testing.T) {
	ownerID := mustV4(t)
	strangerID := mustV4(t)
	orderID := mustV4(t)

	tests := []struct {
		name         string
		userID       uuid.UUID
		getOrder     func(ctx context.Context, id uuid.UUID) (*order.Order, error)
		cancelCalled bool
		wantErrIs    error
	}{
		{
			name:   "not_found",
			userID: ownerID,
			getOrder: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
			wantErrIs: order.ErrOrderNotFound,
		},
		{
			name:   "forbidden",
			userID: strangerID,
			getOrder: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return &order.Order{ID: orderID, UserID: ownerID, Status: order.StatusPending}, nil
			},
			wantErrIs: order.ErrForbidden,
		},
		{
			name:   "already_shipped",
			userID: ownerID,
			getOrder: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return &order.Order{ID: orderID, UserID: ownerID, Status: order.StatusShipped}, nil
			},
			wantErrIs: order.ErrOrderNotPending,
		},
		{
			name:   "already_cancelled",
			userID: ownerID,
			getOrder: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return &order.Order{ID: orderID, UserID: ownerID, Status: order.StatusCancelled}, nil
			},
			wantErrIs: order.ErrOrderNotPending,
		},
		{
			name:   "success",
			userID: ownerID,
			getOrder: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return &order.Order{ID: orderID, UserID: ownerID, Status: order.StatusPending}, nil
			},
			cancelCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cancelCalls := 0
			orderRepo := &mockOrderRepository{
				getOrderByIDFunc: tt.getOrder,
				cancelOrderFunc: func(ctx context.Context, o *order.Order) error {
					cancelCalls++
					return nil
				},
			}

			svc := order.NewService(orderRepo, &mockCatalogRepository{})

			cancelled, err := svc.CancelOrder(context.Background(), orderID, tt.userID)
			if tt.wantErrIs != nil {
				assert.Nil(t, cancelled)
				assert.ErrorIs(t, err, tt.wantErrIs)
				assert.Equal(t, 0, cancelCalls)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cancelled)
			assert.Equal(t, order.StatusCancelled, cancelled.Status)
			assert.Equal(t, 1, cancelCalls)
		})
	}
}

func TestOrderService_UpdateOrderStatus(t *testing.T) {
	orderID := mustV4(t)

	t.Run("unknown_status", func(t *testing.T) {
		orderRepo := &mockOrderRepository{
			updateOrderStatusFunc: func(ctx context.Context, id uuid.UUID, newStatus order.OrderStatus) error {
				t.Fatal("repository must not be called for an unknown status")
				return nil
			},
		}

		svc := order.NewService(orderRepo, &mockCatalogRepository{})

		updated, err := svc.UpdateOrderStatus(context.Background(), orderID, order.OrderStatus("TELEPORTED"))
		assert.Nil(t, updated)
		assert.ErrorIs(t, err, order.ErrInvalidInput)
	})

	t.Run("not_found", func(t *testing.T) {
		orderRepo := &mockOrderRepository{
			updateOrderStatusFunc: func(ctx context.Context, id uuid.UUID, newStatus order.OrderStatus) error {
				return order.ErrOrderNotFound
			},
		}

		svc := order.NewService(orderRepo, &mockCatalogRepository{})

		updated, err := svc.UpdateOrderStatus(context.Background(), orderID, order.StatusShipped)
		assert.Nil(t, updated)
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})

	t.Run("success", func(t *testing.T) {
		var gotStatus order.OrderStatus
		orderRepo := &mockOrderRepository{
			updateOrderStatusFunc: func(ctx context.Context, id uuid.UUID, newStatus order.OrderStatus) error {
				gotStatus = newStatus
				return nil
			},
			getOrderByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				return &order.Order{ID: id, Status: order.StatusShipped}, nil
			},
		}

		svc := order.NewService(orderRepo, &mockCatalogRepository{})

		updated, err := svc.UpdateOrderStatus(context.Background(), orderID, order.StatusShipped)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, order.StatusShipped, gotStatus)
		assert.Equal(t, order.StatusShipped, updated.Status)
	})
}
