package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"water-service/internal/models"

	"github.com/lib/pq"
)

const orderColumns = `id, order_number, firm_id, branch_id, client_id, address_id, delivery_address,
	payment_method, stage, driver_id, subtotal, delivery_fee, total_amount,
	preferred_delivery_time, created_at, updated_at, cancelled_at, cancel_reason`

func queuedStages() interface{} {
	return pq.Array([]string{string(models.StagePending), string(models.StageInQueue)})
}

func terminalStages() interface{} {
	return pq.Array([]string{string(models.StageDelivered), string(models.StageCancelled)})
}

// CreateOrder inserts an order and its line items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, order,
		`INSERT INTO orders (id, order_number, firm_id, branch_id, client_id, address_id, delivery_address,
			payment_method, stage, subtotal, delivery_fee, total_amount, preferred_delivery_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+orderColumns,
		order.ID, order.OrderNumber, order.FirmID, order.BranchID, order.ClientID, order.AddressID,
		order.DeliveryAddress, order.PaymentMethod, order.Stage, order.Subtotal, order.DeliveryFee,
		order.TotalAmount, order.PreferredDeliveryTime)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].ProductName, items[i].Quantity, items[i].UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT id, order_id, product_id, product_name, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	return items, err
}

// CountOrdersSince counts orders created at or after since
func (s *Store) CountOrdersSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders WHERE created_at >= $1", since)
	return n, err
}

// ClaimOrder assigns driverID to the order in a single conditional update.
// The row changes only while no driver is set and the order is queued;
// otherwise ErrConflict (or ErrNotFound for an unknown order) is returned.
func (s *Store) ClaimOrder(ctx context.Context, orderID string, driverID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		`UPDATE orders SET driver_id = $2, stage = $3, updated_at = NOW()
		WHERE id = $1 AND driver_id IS NULL AND stage = ANY($4)
		RETURNING `+orderColumns,
		orderID, driverID, models.StageConfirmed, queuedStages())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrConflict(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStage moves an order from one stage to another, guarded by the
// expected current stage.
func (s *Store) UpdateOrderStage(ctx context.Context, orderID string, from, to models.OrderStage) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		`UPDATE orders SET stage = $3, updated_at = NOW()
		WHERE id = $1 AND stage = $2
		RETURNING `+orderColumns,
		orderID, from, to)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrStaleTransition
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder moves any non-terminal order to CANCELLED. The driver is kept
// as a historical record.
func (s *Store) CancelOrder(ctx context.Context, orderID, reason string, at time.Time) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		`UPDATE orders SET stage = $2, cancelled_at = $3, cancel_reason = $4, updated_at = NOW()
		WHERE id = $1 AND stage <> ALL($5)
		RETURNING `+orderColumns,
		orderID, models.StageCancelled, at, reason, terminalStages())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missOrConflict(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListQueuedOrders returns the firm's queued, unclaimed orders oldest first
func (s *Store) ListQueuedOrders(ctx context.Context, firmID int64) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT id, created_at FROM orders
		WHERE firm_id = $1 AND driver_id IS NULL AND stage = ANY($2)
		ORDER BY created_at, id`,
		firmID, queuedStages())
	return entries, err
}

func (s *Store) missOrConflict(ctx context.Context, orderID string) error {
	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", orderID); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}
	return fmt.Errorf("order %s: %w", orderID, models.ErrConflict)
}
