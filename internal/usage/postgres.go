package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/reveworks/backend/pkg/database"
)

// pgPool is the subset of the pgx pool the store uses.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists records in a single usage_records table. The upsert
// serializes concurrent writers per row at the storage layer, which is why
// this backend is preferred as the primary.
//
// Expected schema:
//
//	CREATE TABLE usage_records (
//	    user_id                  TEXT PRIMARY KEY,
//	    generated_count          INTEGER NOT NULL DEFAULT 0,
//	    billing_status           TEXT NOT NULL DEFAULT 'free',
//	    provider_customer_id     TEXT NOT NULL DEFAULT '',
//	    provider_subscription_id TEXT NOT NULL DEFAULT '',
//	    updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresStore struct {
	pool pgPool
}

// NewPostgresStore creates a Postgres-backed usage store.
func NewPostgresStore(db *database.Database) *PostgresStore {
	return &PostgresStore{pool: db.Pool}
}

// Get returns the record for userID, inserting the default row on first access.
func (s *PostgresStore) Get(ctx context.Context, userID string) (Record, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_records (user_id, generated_count, billing_status, updated_at)
		VALUES ($1, 0, 'free', NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return Record{}, fmt.Errorf("failed to ensure usage record: %w", err)
	}

	return s.fetch(ctx, userID)
}

// Update applies mutate to the current-or-default record and upserts the
// result. Only a missing row falls back to the default record; any other
// fetch failure aborts the update so an existing row is never overwritten
// from stale state.
func (s *PostgresStore) Update(ctx context.Context, userID string, mutate func(*Record)) (Record, error) {
	rec, err := s.fetch(ctx, userID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Record{}, err
		}
		rec = NewRecord(userID)
	}

	mutate(&rec)
	rec.UserID = userID
	rec.UpdatedAt = time.Now().UTC()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO usage_records (
			user_id, generated_count, billing_status,
			provider_customer_id, provider_subscription_id, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			generated_count          = EXCLUDED.generated_count,
			billing_status           = EXCLUDED.billing_status,
			provider_customer_id     = EXCLUDED.provider_customer_id,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			updated_at               = EXCLUDED.updated_at
	`, rec.UserID, rec.GeneratedCount, string(rec.BillingStatus),
		rec.ProviderCustomerID, rec.ProviderSubscriptionID, rec.UpdatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("failed to upsert usage record: %w", err)
	}

	return rec, nil
}

func (s *PostgresStore) fetch(ctx context.Context, userID string) (Record, error) {
	var rec Record
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, generated_count, billing_status,
		       provider_customer_id, provider_subscription_id, updated_at
		FROM usage_records
		WHERE user_id = $1
	`, userID).Scan(&rec.UserID, &rec.GeneratedCount, &status,
		&rec.ProviderCustomerID, &rec.ProviderSubscriptionID, &rec.UpdatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("failed to query usage record: %w", err)
	}
	rec.BillingStatus = BillingStatus(status)
	return rec, nil
}
