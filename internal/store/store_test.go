package store

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"water-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderCols = []string{
	"id", "order_number", "firm_id", "branch_id", "client_id", "address_id", "delivery_address",
	"payment_method", "stage", "driver_id", "subtotal", "delivery_fee", "total_amount",
	"preferred_delivery_time", "created_at", "updated_at", "cancelled_at", "cancel_reason",
}

var paymentCols = []string{
	"id", "transaction_id", "external_id", "firm_id", "type", "provider", "amount", "status",
	"plan_id", "billing_period", "metadata", "error_message", "processing_at", "completed_at",
	"cancelled_at", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

func pattern(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	out := quoted[0]
	for _, q := range quoted[1:] {
		out += ".*" + q
	}
	return out
}

func TestClaimOrderIsSingleConditionalUpdate(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(pattern(
		"UPDATE orders SET driver_id = $2, stage = $3",
		"WHERE id = $1 AND driver_id IS NULL AND stage = ANY($4)",
		"RETURNING",
	)).
		WithArgs("o-1", int64(7), "CONFIRMED", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(
			"o-1", "ORD-20260101-0001", int64(3), nil, int64(11), nil, []byte(`{"line":"Yunusobod 4"}`),
			"CASH", "CONFIRMED", int64(7), int64(2000), int64(0), int64(2000),
			nil, now, now, nil, nil,
		))

	order, err := s.ClaimOrder(context.Background(), "o-1", 7)
	require.NoError(t, err)
	require.NotNil(t, order.DriverID)
	assert.Equal(t, int64(7), *order.DriverID)
	assert.Equal(t, models.StageConfirmed, order.Stage)
	require.NotNil(t, order.DeliveryAddress)
	assert.Equal(t, "Yunusobod 4", order.DeliveryAddress.Line)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimOrderAlreadyTaken(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(pattern("UPDATE orders SET driver_id")).
		WillReturnRows(sqlmock.NewRows(orderCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)")).
		WithArgs("o-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := s.ClaimOrder(context.Background(), "o-1", 7)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimOrderUnknown(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(pattern("UPDATE orders SET driver_id")).
		WillReturnRows(sqlmock.NewRows(orderCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := s.ClaimOrder(context.Background(), "missing", 7)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancelOrderSkipsTerminalStages(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(pattern(
		"UPDATE orders SET stage = $2, cancelled_at = $3, cancel_reason = $4",
		"WHERE id = $1 AND stage <> ALL($5)",
	)).
		WithArgs("o-2", "CANCELLED", sqlmock.AnyArg(), "client unreachable", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(orderCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := s.CancelOrder(context.Background(), "o-2", "client unreachable", time.Now())
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStageGuardedByCurrentStage(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(pattern("UPDATE orders SET stage = $3", "WHERE id = $1 AND stage = $2")).
		WithArgs("o-3", "CONFIRMED", "PICKED_UP").
		WillReturnRows(sqlmock.NewRows(orderCols))

	_, err := s.UpdateOrderStage(context.Background(), "o-3", models.StageConfirmed, models.StagePickedUp)
	assert.ErrorIs(t, err, models.ErrStaleTransition)
}

func paymentRow(status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(paymentCols).AddRow(
		int64(1), "tx-1", "ext-1", int64(5), "SUBSCRIPTION", "PAYME", int64(199_000_00), status,
		"PRO", "yearly", []byte(`{}`), nil, now, now, nil, now, now,
	)
}

func TestCompletePaymentActivatesInSameTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	until := time.Now().AddDate(1, 0, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(pattern("UPDATE payments SET status = $2", "WHERE id = $1 AND status = ANY($5)")).
		WithArgs(int64(1), "COMPLETED", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(paymentRow("COMPLETED"))
	mock.ExpectExec(pattern("UPDATE firms SET subscription_status = $2, trial_end_at = $3")).
		WithArgs(int64(5), "PRO", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := s.CompletePayment(context.Background(), 1,
		[]models.PaymentStatus{models.PaymentStatusProcessing},
		models.PaymentChange{At: time.Now()},
		&models.Activation{FirmID: 5, Plan: models.PlanPro, Until: until})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletePaymentStaleWritesNothing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(pattern("UPDATE payments SET status = $2")).
		WillReturnRows(sqlmock.NewRows(paymentCols))
	mock.ExpectRollback()

	_, err := s.CompletePayment(context.Background(), 1,
		[]models.PaymentStatus{models.PaymentStatusProcessing},
		models.PaymentChange{At: time.Now()},
		&models.Activation{FirmID: 5, Plan: models.PlanPro, Until: time.Now()})
	assert.ErrorIs(t, err, models.ErrStaleTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireTrialIsConditional(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec(pattern(
		"UPDATE firms SET subscription_status = $1",
		"WHERE id = $2 AND subscription_status = $3",
	)).
		WithArgs("TRIAL_EXPIRED", int64(5), "TRIAL_ACTIVE", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(pattern("UPDATE firms SET subscription_status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	flipped, err := s.ExpireTrial(context.Background(), 5, now)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = s.ExpireTrial(context.Background(), 5, now)
	require.NoError(t, err)
	assert.False(t, flipped)
}

func TestStartTrialSkipsPaidFirms(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(pattern(
		"UPDATE firms SET subscription_status = $1, trial_start_at = $2, trial_end_at = $3",
		"WHERE id = $4 AND trial_start_at IS NULL AND NOT (subscription_status = ANY($5))",
	)).
		WithArgs("TRIAL_ACTIVE", now, now.AddDate(0, 0, 14), int64(5), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "subscription_status", "trial_start_at", "trial_end_at", "created_at", "updated_at"}))

	_, err := s.StartTrial(context.Background(), 5, now, now.AddDate(0, 0, 14))
	assert.ErrorIs(t, err, models.ErrStaleTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPaymentNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(pattern("FROM payments WHERE transaction_id = $1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(paymentCols))

	_, err := s.GetPaymentByTransactionID(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOrderLifecycleIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Integration test - requires database")
	}

	s, err := NewStore(dsn)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	var firmID int64
	require.NoError(t, s.db.GetContext(ctx, &firmID,
		"INSERT INTO firms (name) VALUES ('integration') RETURNING id"))

	order := &models.Order{
		ID:              uuid.NewString(),
		OrderNumber:     models.FormatOrderNumber(time.Now(), 1),
		FirmID:          firmID,
		ClientID:        1,
		DeliveryAddress: &models.InlineAddress{Line: "Mirzo Ulugbek 12"},
		PaymentMethod:   models.PaymentMethodCash,
		Stage:           models.StagePending,
		Subtotal:        1000,
		TotalAmount:     1000,
	}
	require.NoError(t, s.CreateOrder(ctx, order, nil))

	queued, err := s.ListQueuedOrders(ctx, firmID)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, order.ID, queued[0].OrderID)

	cancelled, err := s.CancelOrder(ctx, order.ID, "client unreachable", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.StageCancelled, cancelled.Stage)

	_, err = s.CancelOrder(ctx, order.ID, "again", time.Now())
	assert.ErrorIs(t, err, models.ErrConflict)
}
