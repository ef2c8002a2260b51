// Package store provides persistence for the engine's inputs and outputs,
// with in-memory and Postgres implementations plus a Redis report cache.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowapp/flow-backend/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations used by the service. Lookup
// tables are replaced wholesale on each sync; transactions upsert on their
// idempotency key.
type Store interface {
	// Transactions
	UpsertTransactions(ctx context.Context, userID string, txns []model.Transaction) error
	ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error)

	// Merchant rules
	ReplaceMerchantRules(ctx context.Context, userID string, rules []model.MerchantRule) error
	ListMerchantRules(ctx context.Context, userID string) ([]model.MerchantRule, error)

	// Recipients
	ReplaceRecipients(ctx context.Context, userID string, recipients []model.Recipient) error
	ListRecipients(ctx context.Context, userID string) ([]model.Recipient, error)

	// FX rates into the reporting currency
	ReplaceFXRates(ctx context.Context, userID string, rates map[string]float64) error
	ListFXRates(ctx context.Context, userID string) (map[string]float64, error)

	// User context entries
	ReplaceUserContext(ctx context.Context, userID string, entries []model.UserContextEntry) error
	ListUserContext(ctx context.Context, userID string) ([]model.UserContextEntry, error)

	// Goals
	ReplaceGoals(ctx context.Context, userID string, goals []model.Goal) error
	ListGoals(ctx context.Context, userID string) ([]model.Goal, error)

	// Local overrides persist across syncs, keyed by lowercase raw text.
	PutLocalOverride(ctx context.Context, userID, rawText string, override model.LocalOverride) error
	ListLocalOverrides(ctx context.Context, userID string) (map[string]model.LocalOverride, error)

	// Recurring items
	ReplaceRecurringItems(ctx context.Context, userID string, items []model.RecurringItem) error
	ListRecurringItems(ctx context.Context, userID string) ([]model.RecurringItem, error)

	// Sync bookkeeping
	SetLastSync(ctx context.Context, userID string, ts time.Time) error
	GetLastSync(ctx context.Context, userID string) (time.Time, error)
}
