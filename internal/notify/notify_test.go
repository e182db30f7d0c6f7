package notify

import (
	"context"
	"testing"
	"time"

	"water-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestForStageChange(t *testing.T) {
	n := ForStageChange(&models.OrderStageChangedEvent{
		OrderID:      "o-1",
		OrderNumber:  "ORD-20240301-0002",
		ClientID:     42,
		Trigger:      "order_cancelled",
		CancelReason: "client request",
	})

	assert.Equal(t, RecipientClient, n.RecipientKind)
	assert.Equal(t, int64(42), n.RecipientID)
	assert.Equal(t, "Order cancelled", n.Title)
	assert.Contains(t, n.Body, "ORD-20240301-0002")
	assert.Contains(t, n.Body, "client request")
}

func TestForActivation(t *testing.T) {
	n := ForActivation(&models.SubscriptionActivatedEvent{
		FirmID: 7,
		Plan:   models.PlanPro,
		Until:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, RecipientFirm, n.RecipientKind)
	assert.Equal(t, "PRO plan active until 2025-03-01", n.Body)
}

func TestForPaymentReceipt(t *testing.T) {
	n := ForPaymentReceipt(&models.PaymentCompletedEvent{
		TransactionID: "tx-9",
		FirmID:        7,
		Provider:      models.ProviderClick,
		Amount:        19_900_050,
	})

	assert.Equal(t, RecipientFirm, n.RecipientKind)
	assert.Equal(t, int64(7), n.RecipientID)
	assert.Equal(t, "199000.50 UZS received via CLICK (tx-9)", n.Body)
}

func TestLogPusher(t *testing.T) {
	assert.NoError(t, NewLogPusher().Push(context.Background(), Notification{Trigger: "order_queued"}))
}
