package models

import "time"

// Product represents a catalog entry of a firm
type Product struct {
	ID        int64     `db:"id" json:"id"`
	FirmID    int64     `db:"firm_id" json:"firm_id"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Branch is a firm's local service point
type Branch struct {
	ID          int64  `db:"id" json:"id"`
	FirmID      int64  `db:"firm_id" json:"firm_id"`
	Name        string `db:"name" json:"name"`
	DeliveryFee int64  `db:"delivery_fee" json:"delivery_fee"`
	EtaMinutes  int    `db:"eta_minutes" json:"eta_minutes"`
}

// Address is a saved client delivery address
type Address struct {
	ID       int64   `db:"id" json:"id"`
	ClientID int64   `db:"client_id" json:"client_id"`
	Line     string  `db:"line" json:"line"`
	Lat      float64 `db:"lat" json:"lat"`
	Lng      float64 `db:"lng" json:"lng"`
}

// Driver is a courier record. UserID is the driver's account id.
type Driver struct {
	ID       int64  `db:"id" json:"id"`
	UserID   int64  `db:"user_id" json:"user_id"`
	FirmID   int64  `db:"firm_id" json:"firm_id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// DriverRef is a resolved driver identity
type DriverRef struct {
	DriverID  int64 `json:"driver_id"`
	AccountID int64 `json:"account_id"`
	FirmID    int64 `json:"firm_id"`
}

// Order represents a client's delivery order
type Order struct {
	ID                    string         `db:"id" json:"id"`
	OrderNumber           string         `db:"order_number" json:"order_number"`
	FirmID                int64          `db:"firm_id" json:"firm_id"`
	BranchID              *int64         `db:"branch_id" json:"branch_id,omitempty"`
	ClientID              int64          `db:"client_id" json:"client_id"`
	AddressID             *int64         `db:"address_id" json:"address_id,omitempty"`
	DeliveryAddress       *InlineAddress `db:"delivery_address" json:"delivery_address,omitempty"`
	PaymentMethod         PaymentMethod  `db:"payment_method" json:"payment_method"`
	Stage                 OrderStage     `db:"stage" json:"stage"`
	DriverID              *int64         `db:"driver_id" json:"driver_id,omitempty"`
	Subtotal              int64          `db:"subtotal" json:"subtotal"`
	DeliveryFee           int64          `db:"delivery_fee" json:"delivery_fee"`
	TotalAmount           int64          `db:"total_amount" json:"total_amount"`
	PreferredDeliveryTime *time.Time     `db:"preferred_delivery_time" json:"preferred_delivery_time,omitempty"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
	CancelledAt           *time.Time     `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason          *string        `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

// OrderItem is a line item with the product name and price at order time
type OrderItem struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     string `db:"order_id" json:"order_id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	Quantity    int    `db:"quantity" json:"quantity"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
}

// QueueEntry is the part of a queued order the queue calculator needs
type QueueEntry struct {
	OrderID   string    `db:"id" json:"order_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OrderStatus is the client-facing progress view of an order
type OrderStatus struct {
	OrderID           string     `json:"order_id"`
	Stage             OrderStage `json:"stage"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
	QueuePosition     int        `json:"queue_position"`
	OrdersAhead       int        `json:"orders_ahead"`
}

// Payment represents a provider-settled payment
type Payment struct {
	ID            int64           `db:"id" json:"id"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	ExternalID    *string         `db:"external_id" json:"external_id,omitempty"`
	FirmID        int64           `db:"firm_id" json:"firm_id"`
	Type          PaymentType     `db:"type" json:"type"`
	Provider      PaymentProvider `db:"provider" json:"provider"`
	Amount        int64           `db:"amount" json:"amount"`
	Status        PaymentStatus   `db:"status" json:"status"`
	PlanID        Plan            `db:"plan_id" json:"plan_id"`
	BillingPeriod BillingPeriod   `db:"billing_period" json:"billing_period"`
	Metadata      JSONMap         `db:"metadata" json:"metadata,omitempty"`
	ErrorMessage  *string         `db:"error_message" json:"error_message,omitempty"`
	ProcessingAt  *time.Time      `db:"processing_at" json:"processing_at,omitempty"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt   *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentChange carries the optional fields written alongside a status move
type PaymentChange struct {
	ExternalID   *string
	ErrorMessage *string
	At           time.Time
}

// Firm holds the subscription window of a vendor tenant
type Firm struct {
	ID                 int64              `db:"id" json:"id"`
	Name               string             `db:"name" json:"name"`
	SubscriptionStatus SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	TrialStartAt       *time.Time         `db:"trial_start_at" json:"trial_start_at,omitempty"`
	TrialEndAt         *time.Time         `db:"trial_end_at" json:"trial_end_at,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// Activation is the firm write that accompanies a completed subscription payment
type Activation struct {
	FirmID int64     `json:"firm_id"`
	Plan   Plan      `json:"plan"`
	Until  time.Time `json:"until"`
}

// AccessStatus is the evaluated subscription state of a firm
type AccessStatus struct {
	FirmID         int64              `json:"firm_id"`
	Status         SubscriptionStatus `json:"status"`
	TrialStartAt   *time.Time         `json:"trial_start_at"`
	TrialEndAt     *time.Time         `json:"trial_end_at"`
	DaysRemaining  int                `json:"days_remaining"`
	IsTrialExpired bool               `json:"is_trial_expired"`
	HasAccess      bool               `json:"has_access"`
	// NeedsReconcile is set when the stored status still says TRIAL_ACTIVE
	// but the window has closed.
	NeedsReconcile bool `json:"-"`
}
