package subscription

import (
	"testing"
	"time"

	"water-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(t time.Time) *time.Time { return &t }

func TestPrice(t *testing.T) {
	amount, err := Price(models.PlanPro, models.BillingYearly)
	require.NoError(t, err)
	assert.Equal(t, int64(1_990_000*100), amount)

	monthly, err := Price(models.PlanBasic, models.BillingMonthly)
	require.NoError(t, err)
	yearly, err := Price(models.PlanBasic, models.BillingYearly)
	require.NoError(t, err)
	assert.Less(t, yearly, 12*monthly)

	_, err = Price("GOLD", models.BillingMonthly)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = Price(models.PlanMax, "weekly")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestNewActivation(t *testing.T) {
	now := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

	act, err := NewActivation(&models.Payment{
		FirmID:        9,
		Type:          models.PaymentTypeSubscription,
		PlanID:        models.PlanPro,
		BillingPeriod: models.BillingYearly,
	}, now)
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, int64(9), act.FirmID)
	assert.Equal(t, models.PlanPro, act.Plan)
	assert.Equal(t, now.AddDate(1, 0, 0), act.Until)

	act, err = NewActivation(&models.Payment{
		Type:          models.PaymentTypeSubscription,
		PlanID:        models.PlanBasic,
		BillingPeriod: models.BillingMonthly,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 1, 0), act.Until)

	act, err = NewActivation(&models.Payment{Type: models.PaymentTypeOther}, now)
	require.NoError(t, err)
	assert.Nil(t, act)
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		firm          models.Firm
		wantDays      int
		wantExpired   bool
		wantAccess    bool
		wantReconcile bool
	}{
		{
			name:       "active trial with partial day left rounds up",
			firm:       models.Firm{SubscriptionStatus: models.SubscriptionTrialActive, TrialEndAt: ptr(now.Add(36 * time.Hour))},
			wantDays:   2,
			wantAccess: true,
		},
		{
			name:          "trial ended in the past",
			firm:          models.Firm{SubscriptionStatus: models.SubscriptionTrialActive, TrialEndAt: ptr(now.Add(-time.Hour))},
			wantDays:      0,
			wantExpired:   true,
			wantReconcile: true,
		},
		{
			name:          "trial ending exactly now",
			firm:          models.Firm{SubscriptionStatus: models.SubscriptionTrialActive, TrialEndAt: ptr(now)},
			wantExpired:   true,
			wantReconcile: true,
		},
		{
			name:        "already reconciled trial",
			firm:        models.Firm{SubscriptionStatus: models.SubscriptionTrialExpired, TrialEndAt: ptr(now.Add(-48 * time.Hour))},
			wantExpired: true,
		},
		{
			name:       "paid plan inside window",
			firm:       models.Firm{SubscriptionStatus: models.SubscriptionPro, TrialEndAt: ptr(now.AddDate(1, 0, 0))},
			wantDays:   365,
			wantAccess: true,
		},
		{
			name:        "paid plan past its window",
			firm:        models.Firm{SubscriptionStatus: models.SubscriptionBasic, TrialEndAt: ptr(now.Add(-time.Minute))},
			wantExpired: true,
		},
		{
			name:          "trial without end date",
			firm:          models.Firm{SubscriptionStatus: models.SubscriptionTrialActive},
			wantExpired:   true,
			wantReconcile: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(&tt.firm, now)
			assert.Equal(t, tt.wantDays, got.DaysRemaining)
			assert.Equal(t, tt.wantExpired, got.IsTrialExpired)
			assert.Equal(t, tt.wantAccess, got.HasAccess)
			assert.Equal(t, tt.wantReconcile, got.NeedsReconcile)
		})
	}
}
