package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"water-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection for readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetProductsByIDs retrieves the active products of a firm among ids
func (s *Store) GetProductsByIDs(ctx context.Context, firmID int64, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		`SELECT id, firm_id, name, price, is_active, created_at
		FROM products WHERE firm_id = $1 AND is_active AND id = ANY($2)`,
		firmID, pq.Array(ids))
	return products, err
}

// GetAddress retrieves a saved client address
func (s *Store) GetAddress(ctx context.Context, id int64) (*models.Address, error) {
	var addr models.Address
	err := s.db.GetContext(ctx, &addr,
		"SELECT id, client_id, line, lat, lng FROM addresses WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("address %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// GetBranch retrieves a branch
func (s *Store) GetBranch(ctx context.Context, id int64) (*models.Branch, error) {
	var branch models.Branch
	err := s.db.GetContext(ctx, &branch,
		"SELECT id, firm_id, name, delivery_fee, eta_minutes FROM branches WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("branch %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

const driverColumns = "id, user_id, firm_id, name, is_active"

// GetDriverByID retrieves a driver by its record id
func (s *Store) GetDriverByID(ctx context.Context, id int64) (*models.Driver, error) {
	return s.getDriver(ctx, "SELECT "+driverColumns+" FROM drivers WHERE id = $1", id)
}

// GetDriverByAccountID retrieves a driver by the account it belongs to
func (s *Store) GetDriverByAccountID(ctx context.Context, accountID int64) (*models.Driver, error) {
	return s.getDriver(ctx, "SELECT "+driverColumns+" FROM drivers WHERE user_id = $1", accountID)
}

func (s *Store) getDriver(ctx context.Context, query string, id int64) (*models.Driver, error) {
	var driver models.Driver
	err := s.db.GetContext(ctx, &driver, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("driver %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

const firmColumns = "id, name, subscription_status, trial_start_at, trial_end_at, created_at, updated_at"

// GetFirm retrieves a firm's subscription window
func (s *Store) GetFirm(ctx context.Context, id int64) (*models.Firm, error) {
	var firm models.Firm
	err := s.db.GetContext(ctx, &firm, "SELECT "+firmColumns+" FROM firms WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("firm %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &firm, nil
}

// ExpireTrial flips TRIAL_ACTIVE to TRIAL_EXPIRED once the window has closed.
// It reports whether this call performed the flip.
func (s *Store) ExpireTrial(ctx context.Context, firmID int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE firms SET subscription_status = $1, updated_at = NOW()
		WHERE id = $2 AND subscription_status = $3
		AND (trial_end_at IS NULL OR trial_end_at <= $4)`,
		models.SubscriptionTrialExpired, firmID, models.SubscriptionTrialActive, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// StartTrial opens a trial window for a firm that never had one
func (s *Store) StartTrial(ctx context.Context, firmID int64, start, end time.Time) (*models.Firm, error) {
	var firm models.Firm
	err := s.db.GetContext(ctx, &firm,
		`UPDATE firms SET subscription_status = $1, trial_start_at = $2, trial_end_at = $3, updated_at = NOW()
		WHERE id = $4 AND trial_start_at IS NULL AND NOT (subscription_status = ANY($5))
		RETURNING `+firmColumns,
		models.SubscriptionTrialActive, start, end, firmID,
		pq.Array([]string{string(models.SubscriptionBasic), string(models.SubscriptionPro), string(models.SubscriptionMax)}))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrStaleTransition
	}
	if err != nil {
		return nil, err
	}
	return &firm, nil
}
