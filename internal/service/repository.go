package service

import (
	"context"
	"time"

	"water-service/internal/models"
)

// OrderRepository is the order side of the ledger
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)
	CountOrdersSince(ctx context.Context, since time.Time) (int, error)
	ClaimOrder(ctx context.Context, orderID string, driverID int64) (*models.Order, error)
	UpdateOrderStage(ctx context.Context, orderID string, from, to models.OrderStage) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string, at time.Time) (*models.Order, error)
	ListQueuedOrders(ctx context.Context, firmID int64) ([]models.QueueEntry, error)
}

// CatalogRepository reads the collaborator tables orders are built from
type CatalogRepository interface {
	GetProductsByIDs(ctx context.Context, firmID int64, ids []int64) ([]models.Product, error)
	GetAddress(ctx context.Context, id int64) (*models.Address, error)
	GetBranch(ctx context.Context, id int64) (*models.Branch, error)
}

// DriverRepository looks drivers up by either identifier
type DriverRepository interface {
	GetDriverByID(ctx context.Context, id int64) (*models.Driver, error)
	GetDriverByAccountID(ctx context.Context, accountID int64) (*models.Driver, error)
}

// PaymentRepository is the payment side of the ledger
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByTransactionID(ctx context.Context, txID string) (*models.Payment, error)
	GetPaymentByExternalID(ctx context.Context, provider models.PaymentProvider, externalID string) (*models.Payment, error)
	ListPaymentsByFirm(ctx context.Context, firmID int64) ([]models.Payment, error)
	TransitionPayment(ctx context.Context, id int64, from []models.PaymentStatus, to models.PaymentStatus, change models.PaymentChange) (*models.Payment, error)
	CompletePayment(ctx context.Context, id int64, from []models.PaymentStatus, change models.PaymentChange, act *models.Activation) (*models.Payment, error)
}

// FirmRepository holds the firms' subscription windows
type FirmRepository interface {
	GetFirm(ctx context.Context, id int64) (*models.Firm, error)
	ExpireTrial(ctx context.Context, firmID int64, now time.Time) (bool, error)
	StartTrial(ctx context.Context, firmID int64, start, end time.Time) (*models.Firm, error)
}

// AccessCache caches evaluated access statuses
type AccessCache interface {
	GetAccessStatus(ctx context.Context, firmID int64) (*models.AccessStatus, error)
	SetAccessStatus(ctx context.Context, status *models.AccessStatus, ttl time.Duration) error
	InvalidateAccessStatus(ctx context.Context, firmID int64) error
}

// SequenceSource hands out the daily order number sequence
type SequenceSource interface {
	NextOrderSequence(ctx context.Context, day time.Time) (int64, error)
}

// EventPublisher publishes domain events for the notification worker
type EventPublisher interface {
	PublishOrderStageChanged(ctx context.Context, event *models.OrderStageChangedEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishSubscriptionActivated(ctx context.Context, event *models.SubscriptionActivatedEvent) error
}
