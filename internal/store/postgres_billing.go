package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/dashactyl/pkg/models"
)

// --- Renewals ---

const renewalColumns = `server_id, email, renew_by, renew_cost, renewal_enabled`

func scanRenewal(row pgx.Row) (*models.Renewal, error) {
	var r models.Renewal
	if err := row.Scan(&r.ServerID, &r.Email, &r.RenewBy, &r.RenewCost, &r.RenewalEnabled); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateRenewal(ctx context.Context, r *models.Renewal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO renewals (`+renewalColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		r.ServerID, r.Email, r.RenewBy, r.RenewCost, r.RenewalEnabled)
	if err != nil {
		if isDuplicateKeyError(err) {
			return &DuplicateError{Field: "server_id"}
		}
		if isInvalidValue(err) {
			return ErrInvalidValue
		}
		return fmt.Errorf("create renewal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRenewal(ctx context.Context, serverID int) (*models.Renewal, error) {
	r, err := scanRenewal(s.pool.QueryRow(ctx,
		`SELECT `+renewalColumns+` FROM renewals WHERE server_id = $1`, serverID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get renewal: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListRenewals(ctx context.Context) ([]*models.Renewal, error) {
	return s.queryRenewals(ctx, "list renewals",
		`SELECT `+renewalColumns+` FROM renewals ORDER BY renew_by`)
}

func (s *PostgresStore) ListRenewalsByEmail(ctx context.Context, email string) ([]*models.Renewal, error) {
	return s.queryRenewals(ctx, "list user renewals",
		`SELECT `+renewalColumns+` FROM renewals WHERE email = $1 ORDER BY renew_by`, email)
}

func (s *PostgresStore) queryRenewals(ctx context.Context, op, query string, args ...any) ([]*models.Renewal, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	renewals := []*models.Renewal{}
	for rows.Next() {
		r, err := scanRenewal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan renewal: %w", err)
		}
		renewals = append(renewals, r)
	}
	return renewals, rows.Err()
}

func (s *PostgresStore) SetRenewBy(ctx context.Context, serverID int, renewBy int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE renewals SET renew_by = $2 WHERE server_id = $1`, serverID, renewBy)
	if err != nil {
		return fmt.Errorf("set renew by: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteRenewal(ctx context.Context, serverID int) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM renewals WHERE server_id = $1`, serverID)
	if err != nil {
		return fmt.Errorf("delete renewal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ChargeRenewal debits the owner and extends the renewal in one transaction.
// An expired renewal is extended from now rather than from its old deadline.
func (s *PostgresStore) ChargeRenewal(ctx context.Context, serverID int, cost int, extendMillis int64) (*models.Renewal, error) {
	var renewed *models.Renewal
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var email string
		err := tx.QueryRow(ctx,
			`SELECT email FROM renewals WHERE server_id = $1 FOR UPDATE`, serverID).Scan(&email)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock renewal: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE users SET coins = coins - $2, updated_at = NOW() WHERE email = $1 AND coins >= $2`,
			email, cost)
		if err != nil {
			return fmt.Errorf("debit coins: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientBalance
		}

		renewed, err = scanRenewal(tx.QueryRow(ctx,
			`UPDATE renewals
			 SET renew_by = GREATEST(renew_by, (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT) + $2
			 WHERE server_id = $1
			 RETURNING `+renewalColumns, serverID, extendMillis))
		if err != nil {
			return fmt.Errorf("extend renewal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renewed, nil
}

// --- API Keys ---

const apiKeyColumns = `id, key_hash, key_prefix, description, last_used_at, created_at`

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, key_hash, key_prefix, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		key.ID, key.KeyHash, key.KeyPrefix, key.Description, key.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	return s.queryAPIKeys(ctx, "get api key by prefix",
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1`, prefix)
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	return s.queryAPIKeys(ctx, "list api keys",
		`SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC`)
}

func (s *PostgresStore) queryAPIKeys(ctx context.Context, op, query string, args ...any) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.KeyHash, &k.KeyPrefix, &k.Description,
			&k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}
