// Package subscription holds the static price table, the activation rule for
// completed payments and the trial/access evaluator.
package subscription

import (
	"fmt"
	"math"
	"time"

	"water-service/internal/models"
)

// MinorUnitsPerSum is the number of tiyin in one sum
const MinorUnitsPerSum = 100

// prices in sums
var prices = map[models.Plan]map[models.BillingPeriod]int64{
	models.PlanBasic: {
		models.BillingMonthly: 99_000,
		models.BillingYearly:  990_000,
	},
	models.PlanPro: {
		models.BillingMonthly: 199_000,
		models.BillingYearly:  1_990_000,
	},
	models.PlanMax: {
		models.BillingMonthly: 399_000,
		models.BillingYearly:  3_990_000,
	},
}

// Price returns the price of a plan for a billing period in minor units
func Price(plan models.Plan, period models.BillingPeriod) (int64, error) {
	byPeriod, ok := prices[plan]
	if !ok {
		return 0, fmt.Errorf("%w: unknown plan %q", models.ErrValidation, plan)
	}
	sums, ok := byPeriod[period]
	if !ok {
		return 0, fmt.Errorf("%w: unknown billing period %q", models.ErrValidation, period)
	}
	return sums * MinorUnitsPerSum, nil
}

// ExtendUntil returns the new paid-until instant for a period bought at now
func ExtendUntil(period models.BillingPeriod, now time.Time) (time.Time, error) {
	switch period {
	case models.BillingMonthly:
		return now.AddDate(0, 1, 0), nil
	case models.BillingYearly:
		return now.AddDate(1, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown billing period %q", models.ErrValidation, period)
}

// NewActivation computes the firm write for a completed payment. Payments
// that are not subscription charges activate nothing.
func NewActivation(p *models.Payment, now time.Time) (*models.Activation, error) {
	if p.Type != models.PaymentTypeSubscription {
		return nil, nil
	}
	until, err := ExtendUntil(p.BillingPeriod, now)
	if err != nil {
		return nil, err
	}
	return &models.Activation{
		FirmID: p.FirmID,
		Plan:   p.PlanID,
		Until:  until,
	}, nil
}

// Evaluate computes the effective access of a firm at now.
//
// trial_end_at doubles as paid-until once a plan is active, so a paid plan
// whose window has passed reports expired and no access. Only TRIAL_ACTIVE
// firms are marked for reconciliation.
func Evaluate(f *models.Firm, now time.Time) models.AccessStatus {
	status := models.AccessStatus{
		FirmID:       f.ID,
		Status:       f.SubscriptionStatus,
		TrialStartAt: f.TrialStartAt,
		TrialEndAt:   f.TrialEndAt,
	}

	days := 0
	if f.TrialEndAt != nil {
		days = int(math.Ceil(float64(f.TrialEndAt.Sub(now)) / float64(24*time.Hour)))
	}
	expired := days <= 0
	if days < 0 {
		days = 0
	}

	status.DaysRemaining = days
	status.IsTrialExpired = expired

	switch {
	case f.SubscriptionStatus.IsPaid():
		status.HasAccess = !expired
	case f.SubscriptionStatus == models.SubscriptionTrialActive:
		status.HasAccess = !expired
		if expired {
			status.NeedsReconcile = true
		}
	}
	return status
}
