package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"water-service/internal/models"
	"water-service/internal/queue"
	"water-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderConfig holds the order lifecycle settings
type OrderConfig struct {
	// EtaPerOrder is used when the order's branch has no ETA of its own
	EtaPerOrder   time.Duration
	NotifyTimeout time.Duration
}

// OrderService runs the order fulfillment lifecycle
type OrderService struct {
	orders   OrderRepository
	catalog  CatalogRepository
	resolver *DriverResolver
	sequence SequenceSource
	events   EventPublisher
	cfg      OrderConfig
	now      func() time.Time
	logger   *zap.Logger
}

// NewOrderService creates a new order service. sequence may be nil, in
// which case order numbers are derived from the day's order count.
func NewOrderService(
	orders OrderRepository,
	catalog CatalogRepository,
	resolver *DriverResolver,
	sequence SequenceSource,
	events EventPublisher,
	cfg OrderConfig,
) *OrderService {
	if cfg.EtaPerOrder <= 0 {
		cfg.EtaPerOrder = 30 * time.Minute
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	return &OrderService{
		orders:   orders,
		catalog:  catalog,
		resolver: resolver,
		sequence: sequence,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	ClientID              int64                 `json:"client_id" binding:"required"`
	FirmID                int64                 `json:"firm_id" binding:"required"`
	BranchID              *int64                `json:"branch_id,omitempty"`
	AddressID             *int64                `json:"address_id,omitempty"`
	DeliveryAddress       *models.InlineAddress `json:"delivery_address,omitempty"`
	Items                 []OrderItemRequest    `json:"items"`
	PaymentMethod         string                `json:"payment_method"`
	PreferredDeliveryTime *time.Time            `json:"preferred_delivery_time,omitempty"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// OrderWithItems is an order together with its line items
type OrderWithItems struct {
	*models.Order
	Items []models.OrderItem `json:"items"`
}

// QueueSnapshot is a firm's dispatch board
type QueueSnapshot struct {
	FirmID  int64          `json:"firm_id"`
	Entries []queue.Ranked `json:"entries"`
}

// CreateOrder validates the request, snapshots prices and stores a PENDING order
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderWithItems, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	method, err := s.validateCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	products, err := s.resolveProducts(ctx, req.FirmID, req.Items)
	if err != nil {
		return nil, err
	}

	var deliveryFee int64
	if req.BranchID != nil {
		branch, err := s.catalog.GetBranch(ctx, *req.BranchID)
		if err != nil {
			return nil, err
		}
		if branch.FirmID != req.FirmID {
			return nil, fmt.Errorf("%w: branch %d does not belong to firm %d", models.ErrValidation, branch.ID, req.FirmID)
		}
		deliveryFee = branch.DeliveryFee
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	var subtotal int64
	for _, item := range req.Items {
		product := products[item.ProductID]
		items = append(items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
		})
		subtotal += int64(item.Quantity) * product.Price
	}

	now := s.now()
	order := &models.Order{
		ID:                    uuid.New().String(),
		OrderNumber:           models.FormatOrderNumber(now, s.nextSequence(ctx, now)),
		FirmID:                req.FirmID,
		BranchID:              req.BranchID,
		ClientID:              req.ClientID,
		AddressID:             req.AddressID,
		DeliveryAddress:       req.DeliveryAddress,
		PaymentMethod:         method,
		Stage:                 models.StagePending,
		Subtotal:              subtotal,
		DeliveryFee:           deliveryFee,
		TotalAmount:           subtotal + deliveryFee,
		PreferredDeliveryTime: req.PreferredDeliveryTime,
	}

	if err := s.orders.CreateOrder(ctx, order, items); err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.WithLabelValues(string(method)).Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("firm_id", order.FirmID),
		zap.Int64("total_amount", order.TotalAmount))

	return &OrderWithItems{Order: order, Items: items}, nil
}

func (s *OrderService) validateCreate(ctx context.Context, req *CreateOrderRequest) (models.PaymentMethod, error) {
	if req.ClientID <= 0 || req.FirmID <= 0 {
		return "", fmt.Errorf("%w: client_id and firm_id are required", models.ErrValidation)
	}
	if len(req.Items) == 0 {
		return "", fmt.Errorf("%w: order has no items", models.ErrValidation)
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return "", fmt.Errorf("%w: quantity for product %d must be positive", models.ErrValidation, item.ProductID)
		}
	}

	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return "", err
	}

	switch {
	case req.AddressID != nil:
		addr, err := s.catalog.GetAddress(ctx, *req.AddressID)
		if err != nil {
			return "", err
		}
		if addr.ClientID != req.ClientID {
			return "", fmt.Errorf("address %d: %w", *req.AddressID, models.ErrNotFound)
		}
	case req.DeliveryAddress != nil && strings.TrimSpace(req.DeliveryAddress.Line) != "":
	default:
		return "", fmt.Errorf("%w: delivery address is required", models.ErrValidation)
	}

	return method, nil
}

// resolveProducts loads the firm's products named by items. A product of
// another firm, or an inactive one, counts as unknown.
func (s *OrderService) resolveProducts(ctx context.Context, firmID int64, items []OrderItemRequest) (map[int64]models.Product, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	products, err := s.catalog.GetProductsByIDs(ctx, firmID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: unknown product %d", models.ErrValidation, id)
		}
	}
	return byID, nil
}

func (s *OrderService) nextSequence(ctx context.Context, now time.Time) int {
	if s.sequence != nil {
		seq, err := s.sequence.NextOrderSequence(ctx, now)
		if err == nil {
			return int(seq)
		}
		s.logger.Warn("Order sequence unavailable, falling back to count", zap.Error(err))
	}

	day := now.UTC().Truncate(24 * time.Hour)
	n, err := s.orders.CountOrdersSince(ctx, day)
	if err != nil {
		s.logger.Warn("Failed to count today's orders", zap.Error(err))
	}
	return n + 1
}

// GetOrder returns an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderWithItems, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.orders.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	return &OrderWithItems{Order: order, Items: items}, nil
}

// ClaimOrder assigns the order to the driver identified by identifier. Of
// any number of concurrent claims exactly one succeeds; the rest get
// ErrConflict.
func (s *OrderService) ClaimOrder(ctx context.Context, orderID string, identifier int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ClaimOrder")
	defer span.End()

	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}

	driver, err := s.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	current, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.FirmID != driver.FirmID {
		return nil, fmt.Errorf("%w: driver %d does not serve firm %d", models.ErrValidation, driver.DriverID, current.FirmID)
	}

	order, err := s.orders.ClaimOrder(ctx, orderID, driver.DriverID)
	if errors.Is(err, models.ErrConflict) {
		util.OrderClaimConflictsTotal.Inc()
		s.logger.Info("Order claim lost",
			zap.String("order_id", orderID),
			zap.Int64("driver_id", driver.DriverID))
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	util.OrdersClaimedTotal.Inc()
	util.OrderStageTransitionsTotal.WithLabelValues(string(order.Stage)).Inc()
	s.logger.Info("Order claimed",
		zap.String("order_id", order.ID),
		zap.Int64("driver_id", driver.DriverID))

	s.notifyStage(ctx, order)
	return order, nil
}

// AdvanceStage moves an order forward. Repeating a move that already
// happened returns the order unchanged.
func (s *OrderService) AdvanceStage(ctx context.Context, orderID string, stage string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdvanceStage")
	defer span.End()

	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}

	to := models.OrderStage(strings.ToUpper(strings.TrimSpace(stage)))
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown stage %q", models.ErrValidation, stage)
	}
	switch to {
	case models.StageConfirmed:
		return nil, fmt.Errorf("%w: orders are confirmed by claiming them", models.ErrValidation)
	case models.StageCancelled:
		return nil, fmt.Errorf("%w: use cancel to cancel an order", models.ErrValidation)
	}

	current, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Stage == to {
		return current, nil
	}
	if !models.CanAdvance(current.Stage, to) {
		return nil, fmt.Errorf("order %s cannot move from %s to %s: %w", orderID, current.Stage, to, models.ErrConflict)
	}

	order, err := s.orders.UpdateOrderStage(ctx, orderID, current.Stage, to)
	if errors.Is(err, models.ErrStaleTransition) {
		// someone else moved the order between our read and write
		latest, rerr := s.orders.GetOrderByID(ctx, orderID)
		if rerr != nil {
			return nil, rerr
		}
		if latest.Stage == to {
			return latest, nil
		}
		return nil, fmt.Errorf("order %s moved to %s concurrently: %w", orderID, latest.Stage, models.ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	util.OrderStageTransitionsTotal.WithLabelValues(string(order.Stage)).Inc()
	s.logger.Info("Order stage advanced",
		zap.String("order_id", order.ID),
		zap.String("from", string(current.Stage)),
		zap.String("to", string(order.Stage)))

	s.notifyStage(ctx, order)
	return order, nil
}

// CancelOrder cancels a non-terminal order
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}

	order, err := s.orders.CancelOrder(ctx, orderID, strings.TrimSpace(reason), s.now())
	if err != nil {
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	util.OrderStageTransitionsTotal.WithLabelValues(string(order.Stage)).Inc()
	s.logger.Info("Order cancelled",
		zap.String("order_id", order.ID),
		zap.String("reason", reason))

	s.notifyStage(ctx, order)
	return order, nil
}

// QueuePosition returns the order's 1-based FIFO rank among its firm's
// queued, unclaimed orders, or 0 when it is not waiting for a driver.
func (s *OrderService) QueuePosition(ctx context.Context, orderID string) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.QueuePosition")
	defer span.End()

	if err := checkOrderID(orderID); err != nil {
		return 0, err
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return 0, err
	}
	return s.position(ctx, order)
}

func (s *OrderService) position(ctx context.Context, order *models.Order) (int, error) {
	if !order.Stage.IsQueued() || order.DriverID != nil {
		return 0, nil
	}

	snapshot, err := s.orders.ListQueuedOrders(ctx, order.FirmID)
	if err != nil {
		return 0, fmt.Errorf("failed to load queue: %w", err)
	}
	return queue.Position(models.QueueEntry{OrderID: order.ID, CreatedAt: order.CreatedAt}, snapshot), nil
}

// OrderStatus reports the stage, queue position and delivery estimate
func (s *OrderService) OrderStatus(ctx context.Context, orderID string) (*models.OrderStatus, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.OrderStatus")
	defer span.End()

	if err := checkOrderID(orderID); err != nil {
		return nil, err
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	pos, err := s.position(ctx, order)
	if err != nil {
		return nil, err
	}

	ahead := 0
	if pos > 0 {
		ahead = pos - 1
	}

	status := &models.OrderStatus{
		OrderID:       order.ID,
		Stage:         order.Stage,
		QueuePosition: pos,
		OrdersAhead:   ahead,
	}
	status.EstimatedDelivery = s.estimate(ctx, order, ahead)
	return status, nil
}

func (s *OrderService) estimate(ctx context.Context, order *models.Order, ahead int) *time.Time {
	if order.Stage.IsTerminal() {
		return nil
	}
	if order.PreferredDeliveryTime != nil {
		t := *order.PreferredDeliveryTime
		return &t
	}

	eta := s.cfg.EtaPerOrder
	if order.BranchID != nil {
		branch, err := s.catalog.GetBranch(ctx, *order.BranchID)
		if err != nil {
			s.logger.Warn("Failed to load branch ETA", zap.Int64("branch_id", *order.BranchID), zap.Error(err))
		} else if branch.EtaMinutes > 0 {
			eta = time.Duration(branch.EtaMinutes) * time.Minute
		}
	}

	slots := 1
	if order.Stage.IsQueued() {
		slots = ahead + 1
	}
	t := s.now().Add(time.Duration(slots) * eta)
	return &t
}

// Queue returns the firm's queued, unclaimed orders ranked FIFO
func (s *OrderService) Queue(ctx context.Context, firmID int64) (*QueueSnapshot, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Queue")
	defer span.End()

	snapshot, err := s.orders.ListQueuedOrders(ctx, firmID)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}
	return &QueueSnapshot{FirmID: firmID, Entries: queue.Rank(snapshot)}, nil
}

// notifyStage publishes the trigger for the order's new stage. Publishing
// runs detached from the request and never affects the transition.
func (s *OrderService) notifyStage(ctx context.Context, order *models.Order) {
	trigger, ok := models.NotificationTrigger(order.Stage)
	if !ok || s.events == nil {
		return
	}

	event := &models.OrderStageChangedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		FirmID:      order.FirmID,
		ClientID:    order.ClientID,
		DriverID:    order.DriverID,
		Stage:       order.Stage,
		Trigger:     trigger,
	}
	if order.CancelReason != nil {
		event.CancelReason = *order.CancelReason
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, s.cfg.NotifyTimeout)
		defer cancel()

		if err := s.events.PublishOrderStageChanged(ctx, event); err != nil {
			util.NotificationFailuresTotal.WithLabelValues(trigger).Inc()
			s.logger.Error("Failed to publish order stage change",
				zap.String("order_id", event.OrderID),
				zap.String("trigger", trigger),
				zap.Error(err))
		}
	}()
}

// checkOrderID rejects ids that cannot name an order
func checkOrderID(orderID string) error {
	if _, err := uuid.Parse(orderID); err != nil {
		return fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}
	return nil
}
