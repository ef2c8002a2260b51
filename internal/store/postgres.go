package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/flowapp/flow-backend/internal/model"
)

// PostgresStore implements Store on Postgres via the pgx stdlib adapter.
type PostgresStore struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS transactions (
		user_id VARCHAR(64) NOT NULL,
		idempotency_key VARCHAR(64) NOT NULL,
		txn_timestamp TIMESTAMPTZ NOT NULL,
		direction VARCHAR(3) NOT NULL,
		amount_base DECIMAL(12,2) NOT NULL,
		category VARCHAR(100) NOT NULL,
		doc JSONB NOT NULL,
		PRIMARY KEY (user_id, idempotency_key)
	);

	CREATE TABLE IF NOT EXISTS merchant_map (
		user_id VARCHAR(64) NOT NULL,
		pattern VARCHAR(255) NOT NULL,
		display_name VARCHAR(255),
		consolidated_name VARCHAR(255),
		category VARCHAR(100),
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, pattern)
	);

	CREATE TABLE IF NOT EXISTS recipients (
		user_id VARCHAR(64) NOT NULL,
		id VARCHAR(64) NOT NULL,
		phone VARCHAR(32),
		bank_account VARCHAR(64),
		short_name VARCHAR(128),
		long_name VARCHAR(255),
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, id)
	);

	CREATE TABLE IF NOT EXISTS fx_rates (
		user_id VARCHAR(64) NOT NULL,
		currency VARCHAR(8) NOT NULL,
		rate_to_base DECIMAL(12,6) NOT NULL,
		PRIMARY KEY (user_id, currency)
	);

	CREATE TABLE IF NOT EXISTS user_context (
		user_id VARCHAR(64) NOT NULL,
		position INTEGER NOT NULL,
		entry_type VARCHAR(64) NOT NULL,
		entry_key TEXT,
		entry_value TEXT,
		details TEXT,
		source VARCHAR(64),
		PRIMARY KEY (user_id, position)
	);

	CREATE TABLE IF NOT EXISTS goals (
		user_id VARCHAR(64) NOT NULL,
		category VARCHAR(100) NOT NULL,
		monthly_limit DECIMAL(12,2) NOT NULL,
		PRIMARY KEY (user_id, category)
	);

	CREATE TABLE IF NOT EXISTS local_overrides (
		user_id VARCHAR(64) NOT NULL,
		raw_text TEXT NOT NULL,
		display_name VARCHAR(255),
		consolidated_name VARCHAR(255),
		category VARCHAR(100),
		PRIMARY KEY (user_id, raw_text)
	);

	CREATE TABLE IF NOT EXISTS recurring_items (
		user_id VARCHAR(64) NOT NULL,
		merchant VARCHAR(255) NOT NULL,
		category VARCHAR(100),
		average_amount DECIMAL(12,2) NOT NULL,
		interval_days DECIMAL(8,2) NOT NULL,
		next_expected TIMESTAMPTZ,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		confidence DECIMAL(4,2),
		PRIMARY KEY (user_id, merchant)
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		user_id VARCHAR(64) PRIMARY KEY,
		last_sync TIMESTAMPTZ NOT NULL
	);
`

// NewPostgresStore connects to Postgres, waits for it to become ready and
// creates the schema.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if !strings.Contains(databaseURL, "sslmode=") {
		separator := "?"
		if strings.Contains(databaseURL, "?") {
			separator = "&"
		}
		databaseURL += separator + "sslmode=disable"
	}

	config, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	var db *sql.DB
	const maxRetries = 30
	for i := 0; i < maxRetries; i++ {
		db = stdlib.OpenDB(*config)
		if err = db.Ping(); err == nil {
			break
		}
		db.Close()
		if i == maxRetries-1 {
			return nil, fmt.Errorf("connect to database after %d attempts: %w", maxRetries, err)
		}
		time.Sleep(2 * time.Second)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) UpsertTransactions(ctx context.Context, userID string, txns []model.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	const q = `
		INSERT INTO transactions (user_id, idempotency_key, txn_timestamp, direction, amount_base, category, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, idempotency_key) DO UPDATE
		SET txn_timestamp = EXCLUDED.txn_timestamp,
		    direction = EXCLUDED.direction,
		    amount_base = EXCLUDED.amount_base,
		    category = EXCLUDED.category,
		    doc = EXCLUDED.doc`
	for _, t := range txns {
		doc, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal transaction: %w", err)
		}
		key := t.IdempotencyKey
		if key == "" {
			key = t.ID
		}
		if _, err := tx.ExecContext(ctx, q, userID, key, t.Timestamp, string(t.Direction), t.AmountBase, t.Category, doc); err != nil {
			return fmt.Errorf("upsert transaction: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM transactions WHERE user_id = $1 ORDER BY txn_timestamp DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var t model.Transaction
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReplaceMerchantRules(ctx context.Context, userID string, rules []model.MerchantRule) error {
	return s.replaceAll(ctx, userID, `DELETE FROM merchant_map WHERE user_id = $1`, func(tx *sql.Tx) error {
		const q = `INSERT INTO merchant_map (user_id, pattern, display_name, consolidated_name, category, position)
			VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (user_id, pattern) DO NOTHING`
		for i, r := range rules {
			if _, err := tx.ExecContext(ctx, q, userID, strings.ToLower(r.PatternText), r.DisplayName, r.ConsolidatedName, r.Category, i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListMerchantRules(ctx context.Context, userID string) ([]model.MerchantRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern, display_name, consolidated_name, category FROM merchant_map WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("list merchant rules: %w", err)
	}
	defer rows.Close()

	var out []model.MerchantRule
	for rows.Next() {
		var r model.MerchantRule
		if err := rows.Scan(&r.PatternText, &r.DisplayName, &r.ConsolidatedName, &r.Category); err != nil {
			return nil, fmt.Errorf("scan merchant rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReplaceRecipients(ctx context.Context, userID string, recipients []model.Recipient) error {
	return s.replaceAll(ctx, userID, `DELETE FROM recipients WHERE user_id = $1`, func(tx *sql.Tx) error {
		const q = `INSERT INTO recipients (user_id, id, phone, bank_account, short_name, long_name, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		for i, r := range recipients {
			if _, err := tx.ExecContext(ctx, q, userID, r.ID, r.Phone, r.BankAccount, r.ShortName, r.LongName, i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListRecipients(ctx context.Context, userID string) ([]model.Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, bank_account, short_name, long_name FROM recipients WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []model.Recipient
	for rows.Next() {
		var r model.Recipient
		if err := rows.Scan(&r.ID, &r.Phone, &r.BankAccount, &r.ShortName, &r.LongName); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReplaceFXRates(ctx context.Context, userID string, rates map[string]float64) error {
	return s.replaceAll(ctx, userID, `DELETE FROM fx_rates WHERE user_id = $1`, func(tx *sql.Tx) error {
		const q = `INSERT INTO fx_rates (user_id, currency, rate_to_base) VALUES ($1, $2, $3)`
		for currency, rate := range rates {
			if _, err := tx.ExecContext(ctx, q, userID, strings.ToUpper(currency), rate); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListFXRates(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT currency, rate_to_base FROM fx_rates WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list fx rates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var currency string
		var rate float64
		if err := rows.Scan(&currency, &rate); err != nil {
			return nil, fmt.Errorf("scan fx rate: %w", err)
		}
		out[currency] = rate
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReplaceUserContext(ctx context.Context, userID string, entries []model.UserContextEntry) error {
	return s.replaceAll(ctx, userID, `DELETE FROM user_context WHERE user_id = $1`, func(tx *sql.Tx) error {
		const q = `INSERT INTO user_context (user_id, position, entry_type, entry_key, entry_value, details, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		for i, e := range entries {
			if _, err := tx.ExecContext(ctx, q, userID, i, e.Type, e.Key, e.Value, e.Details, e.Source); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListUserContext(ctx context.Context, userID string) ([]model.UserContextEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_type, entry_key, entry_value, details, source FROM user_context WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user context: %w", err)
	}
	defer rows.Close()

	var out []model.UserContextEntry
	for rows.Next() {
		var e model.UserContextEntry
		if err := rows.Scan(&e.Type, &e.Key, &e.Value, &e.Details, &e.Source); err != nil {
			return nil, fmt.Errorf("scan user context entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReplaceGoals(ctx context.Context, userID string, goals []model.Goal) error {
	return s.replaceAll(ctx, userID, `DELETE FROM goals WHERE user_id = $1`, func(tx *sql.Tx) error {
		const q = `INSERT INTO goals (user_id, category, monthly_limit) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, category) DO UPDATE SET monthly_limit = EXCLUDED.monthly_limit`
		for _, g := range goals {
			if _, err := tx.ExecContext(ctx, q, userID, g.Category, g.MonthlyLimit); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListGoals(ctx context.Context, userID string) ([]model.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, monthly_limit FROM goals WHERE user_id = $1 ORDER BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []model.Goal
	for rows.Next() {
		var g model.Goal
		if err := rows.Scan(&g.Category, &g.MonthlyLimit); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutLocalOverride(ctx context.Context, userID, rawText string, override model.LocalOverride) error {
	const q = `INSERT INTO local_overrides (user_id, raw_text, display_name, consolidated_name, category)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, raw_text) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    consolidated_name = EXCLUDED.consolidated_name,
		    category = EXCLUDED.category`
	if _, err := s.db.ExecContext(ctx, q, userID, strings.ToLower(rawText), override.DisplayName, override.ConsolidatedName, override.Category); err != nil {
		return fmt.Errorf("put local override: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLocalOverrides(ctx context.Context, userID string) (map[string]model.LocalOverride, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_text, display_name, consolidated_name, category FROM local_overrides WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list local overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.LocalOverride)
	for rows.Next() {
		var rawText string
		var ov model.LocalOverride
		if err := rows.Scan(&rawText, &ov.DisplayName, &ov.ConsolidatedName, &ov.Category); err != nil {
			return nil, fmt.Errorf("scan local override: %w", err)
		}
		out[rawText] = ov
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReplaceRecurringItems(ctx context.Context, userID string, items []model.RecurringItem) error {
	return s.replaceAll(ctx, userID, `DELETE FROM recurring_items WHERE user_id = $1`, func(tx *sql.Tx) error {
		const q = `INSERT INTO recurring_items (user_id, merchant, category, average_amount, interval_days, next_expected, active, confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (user_id, merchant) DO NOTHING`
		for _, item := range items {
			if _, err := tx.ExecContext(ctx, q, userID, item.Merchant, item.Category, item.AverageAmount, item.IntervalDays, item.NextExpected, item.Active, item.Confidence); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListRecurringItems(ctx context.Context, userID string) ([]model.RecurringItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT merchant, category, average_amount, interval_days, next_expected, active, confidence
		 FROM recurring_items WHERE user_id = $1 ORDER BY merchant`, userID)
	if err != nil {
		return nil, fmt.Errorf("list recurring items: %w", err)
	}
	defer rows.Close()

	var out []model.RecurringItem
	for rows.Next() {
		var item model.RecurringItem
		if err := rows.Scan(&item.Merchant, &item.Category, &item.AverageAmount, &item.IntervalDays, &item.NextExpected, &item.Active, &item.Confidence); err != nil {
			return nil, fmt.Errorf("scan recurring item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetLastSync(ctx context.Context, userID string, ts time.Time) error {
	const q = `INSERT INTO sync_state (user_id, last_sync) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET last_sync = EXCLUDED.last_sync`
	if _, err := s.db.ExecContext(ctx, q, userID, ts); err != nil {
		return fmt.Errorf("set last sync: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLastSync(ctx context.Context, userID string) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT last_sync FROM sync_state WHERE user_id = $1`, userID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last sync: %w", err)
	}
	return ts, nil
}

// replaceAll runs a delete-then-insert table replacement in one transaction.
func (s *PostgresStore) replaceAll(ctx context.Context, userID, deleteQuery string, insert func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteQuery, userID); err != nil {
		return fmt.Errorf("clear table: %w", err)
	}
	if err := insert(tx); err != nil {
		return fmt.Errorf("insert rows: %w", err)
	}
	return tx.Commit()
}
