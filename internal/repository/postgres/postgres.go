package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spectcast/identity/internal/domain"
	"github.com/spectcast/identity/internal/repository"
)

// Store implements repository.AccountStore on PostgreSQL, one row per
// username with the record stored as JSONB. Only single-row statements are
// used, matching the single-key atomicity contract; the Rename flow's
// cross-key behavior is sequenced by the caller, not by a transaction.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.AccountStore = (*Store)(nil)

// New constructs a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get fetches the account row for username.
func (s *Store) Get(ctx context.Context, username string) (*domain.Account, error) {
	const query = `SELECT record FROM accounts WHERE username = $1`
	var raw []byte
	if err := s.pool.QueryRow(ctx, query, username).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}
	var account domain.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("decode account %q: %w", username, err)
	}
	return &account, nil
}

// Put upserts the account row.
func (s *Store) Put(ctx context.Context, account *domain.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account %q: %w", account.Username, err)
	}
	const query = `INSERT INTO accounts (username, record, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET record = EXCLUDED.record`
	if _, err := s.pool.Exec(ctx, query, account.Username, raw, account.CreatedAt); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// Delete removes the account row. Missing rows are not an error.
func (s *Store) Delete(ctx context.Context, username string) error {
	const query = `DELETE FROM accounts WHERE username = $1`
	if _, err := s.pool.Exec(ctx, query, username); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// BatchGet returns the rows that exist among usernames, omitting the rest.
func (s *Store) BatchGet(ctx context.Context, usernames []string) ([]domain.Account, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	const query = `SELECT record FROM accounts WHERE username = ANY($1)`
	rows, err := s.pool.Query(ctx, query, usernames)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()
	accounts := make([]domain.Account, 0, len(usernames))
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		var account domain.Account
		if err := json.Unmarshal(raw, &account); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
