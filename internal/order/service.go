package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kpetrov-dev/bookstore-api/internal/catalog"
)

var (
	ErrInvalidInput = errors.New("invalid order input")
	ErrForbidden    = errors.New("order belongs to another user")

	// ErrOrderNotPending is returned when an operation requires a PENDING
	// order, e.g. cancelling an order that was already shipped or cancelled.
	ErrOrderNotPending = errors.New("order is not pending")
)

type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, items []LineItemInput) (*Order, error)
	CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) (*Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
}

type service struct {
	orderRepo Repository
	books     catalog.Repository
}

func NewService(orderRepo Repository, books catalog.Repository) Service {
	return &service{
		orderRepo: orderRepo,
		books:     books,
	}
}

// PlaceOrder validates the requested line items, prices them against the
// catalog and commits the stock decrements together with the order record as
// one atomic unit. The availability pass is advisory: the conditional
// decrement inside CreateOrder is what actually guarantees stock never goes
// negative, so a request can still fail with insufficient stock at commit
// time when another order wins the race.
func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, items []LineItemInput) (*Order, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len(items) == 0 {
		log.Warn().Stringer("user_id", userID).Msg("service: attempt to place order with no items")
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrInvalidInput)
	}

	for _, item := range items {
		if item.BookID == uuid.Nil {
			return nil, fmt.Errorf("%w: book id is required for every item", ErrInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for book %s must be positive, got %d",
				ErrInvalidInput, item.BookID, item.Quantity)
		}
	}

	orderItems := make([]OrderItem, 0, len(items))
	totalPrice := 0.0

	for _, item := range items {
		book, err := s.books.GetBookByID(ctx, item.BookID)
		if err != nil {
			if errors.Is(err, catalog.ErrBookNotFound) {
				log.Warn().Stringer("book_id", item.BookID).Msg("service: order references missing book")
				return nil, fmt.Errorf("book %s: %w", item.BookID, catalog.ErrBookNotFound)
			}
			log.Error().Err(err).Stringer("book_id", item.BookID).Msg("service: failed to resolve book")
			return nil, fmt.Errorf("service: failed to resolve book %s: %w", item.BookID, err)
		}

		ok, err := s.books.CheckAvailability(ctx, item.BookID, item.Quantity)
		if err != nil {
			if errors.Is(err, catalog.ErrBookNotFound) {
				return nil, fmt.Errorf("book %s: %w", item.BookID, catalog.ErrBookNotFound)
			}
			log.Error().Err(err).Stringer("book_id", item.BookID).Msg("service: failed to check availability")
			return nil, fmt.Errorf("service: failed to check availability for book %s: %w", item.BookID, err)
		}
		if !ok {
			log.Warn().
				Stringer("book_id", item.BookID).
				Int("available", book.StockQuantity).
				Int("requested", item.Quantity).
				Msg("service: order rejected at availability check")
			return nil, &catalog.InsufficientStockError{
				BookID:    item.BookID,
				Available: book.StockQuantity,
				Requested: item.Quantity,
			}
		}

		subtotal := book.Price * float64(item.Quantity)
		orderItems = append(orderItems, OrderItem{
			BookID:    item.BookID,
			Quantity:  item.Quantity,
			UnitPrice: book.Price,
			Subtotal:  subtotal,
		})
		totalPrice += subtotal
	}

	o := &Order{
		UserID:        userID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Items:         orderItems,
		TotalPrice:    totalPrice,
	}

	if err := s.orderRepo.CreateOrder(ctx, o); err != nil {
		var insufficient *catalog.InsufficientStockError
		switch {
		case errors.As(err, &insufficient):
			// Lost the race between the advisory check and the commit.
			log.Warn().
				Stringer("book_id", insufficient.BookID).
				Int("available", insufficient.Available).
				Int("requested", insufficient.Requested).
				Msg("service: order rejected at commit time")
			return nil, err
		case errors.Is(err, catalog.ErrBookNotFound):
			return nil, err
		default:
			log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to create order")
			return nil, fmt.Errorf("service: failed to create order: %w", err)
		}
	}

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("user_id", userID).
		Float64("total_price", o.TotalPrice).
		Int("items", len(o.Items)).
		Msg("service: order placed")

	return o, nil
}

// CancelOrder restores stock for every line item and marks the order
// CANCELLED. Only the owning user may cancel, and only while the order is
// still PENDING.
func (s *service) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) (*Order, error) {
	o, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order for cancellation")
		return nil, fmt.Errorf("service: failed to fetch order for cancellation: %w", err)
	}

	if o.UserID != userID {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("owner_id", o.UserID).
			Stringer("user_id", userID).
			Msg("service: cancellation forbidden")
		return nil, ErrForbidden
	}

	if o.Status != StatusPending {
		return nil, fmt.Errorf("%w: order %s has status %s", ErrOrderNotPending, orderID, o.Status)
	}

	if err := s.orderRepo.CancelOrder(ctx, o); err != nil {
		if errors.Is(err, ErrOrderNotPending) || errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to cancel order")
		return nil, fmt.Errorf("service: failed to cancel order: %w", err)
	}

	o.Status = StatusCancelled

	log.Info().Stringer("order_id", orderID).Stringer("user_id", userID).Msg("service: order cancelled")

	return o, nil
}

// UpdateOrderStatus sets the status for a privileged caller. The write is
// unconditional and has no stock side effects; restocking happens only
// through the cancellation path.
func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) (*Order, error) {
	if !newStatus.IsValid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, string(newStatus))
	}

	if err := s.orderRepo.UpdateOrderStatus(ctx, orderID, newStatus); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update order status")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	o, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch order after status update: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: order status updated")

	return o, nil
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return o, nil
}

func (s *service) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.orderRepo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}

	return orders, nil
}
