package service

import (
	"context"
	"errors"
	"fmt"

	"water-service/internal/models"
)

// DriverResolver turns the identifier a driver client sends into a DriverRef.
// Clients may send either the driver record id or their account id; the
// record id is tried first.
type DriverResolver struct {
	drivers DriverRepository
}

// NewDriverResolver creates a new resolver
func NewDriverResolver(drivers DriverRepository) *DriverResolver {
	return &DriverResolver{drivers: drivers}
}

// Resolve looks the identifier up as a driver id, then as an account id
func (r *DriverResolver) Resolve(ctx context.Context, identifier int64) (*models.DriverRef, error) {
	if identifier <= 0 {
		return nil, fmt.Errorf("%w: driver identifier is required", models.ErrValidation)
	}

	driver, err := r.drivers.GetDriverByID(ctx, identifier)
	if errors.Is(err, models.ErrNotFound) {
		driver, err = r.drivers.GetDriverByAccountID(ctx, identifier)
	}
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("driver %d: %w", identifier, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve driver: %w", err)
	}

	if !driver.IsActive {
		return nil, fmt.Errorf("%w: driver %d is not active", models.ErrValidation, driver.ID)
	}

	return &models.DriverRef{
		DriverID:  driver.ID,
		AccountID: driver.UserID,
		FirmID:    driver.FirmID,
	}, nil
}
