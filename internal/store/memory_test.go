package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowapp/flow-backend/internal/model"
)

func TestMemoryStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	txn := model.Transaction{
		IdempotencyKey: "key-1",
		Timestamp:      time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		Amount:         100,
		Category:       "Dining",
	}
	require.NoError(t, s.UpsertTransactions(ctx, "u1", []model.Transaction{txn}))

	// Re-upserting the same key replaces rather than duplicates.
	txn.Category = "Coffee"
	require.NoError(t, s.UpsertTransactions(ctx, "u1", []model.Transaction{txn}))

	txns, err := s.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "Coffee", txns[0].Category)
	assert.NotEmpty(t, txns[0].ID, "missing ids are assigned on write")
}

func TestMemoryStoreListSortedDescending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	day := func(d int) time.Time {
		return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
	}
	require.NoError(t, s.UpsertTransactions(ctx, "u1", []model.Transaction{
		{IdempotencyKey: "a", Timestamp: day(1)},
		{IdempotencyKey: "c", Timestamp: day(9)},
		{IdempotencyKey: "b", Timestamp: day(5)},
	}))

	txns, err := s.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.True(t, txns[0].Timestamp.After(txns[1].Timestamp))
	assert.True(t, txns[1].Timestamp.After(txns[2].Timestamp))
}

func TestMemoryStoreUsersIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertTransactions(ctx, "u1", []model.Transaction{{IdempotencyKey: "a"}}))

	txns, err := s.ListTransactions(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestMemoryStoreReplaceSemantics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.ReplaceMerchantRules(ctx, "u1", []model.MerchantRule{
		{PatternText: "starbucks", Category: "Coffee"},
		{PatternText: "carrefour", Category: "Groceries"},
	}))
	require.NoError(t, s.ReplaceMerchantRules(ctx, "u1", []model.MerchantRule{
		{PatternText: "uber", Category: "Transport"},
	}))

	rules, err := s.ListMerchantRules(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "uber", rules[0].PatternText)
}

func TestMemoryStoreLocalOverrides(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.PutLocalOverride(ctx, "u1", "pos purchase x", model.LocalOverride{Category: "Dining"}))
	require.NoError(t, s.PutLocalOverride(ctx, "u1", "pos purchase x", model.LocalOverride{Category: "Coffee"}))

	overrides, err := s.ListLocalOverrides(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "Coffee", overrides["pos purchase x"].Category)
}

func TestMemoryStoreFXRatesCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rates := map[string]float64{"USD": 3.64}
	require.NoError(t, s.ReplaceFXRates(ctx, "u1", rates))
	rates["USD"] = 99 // caller mutation must not leak in

	got, err := s.ListFXRates(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3.64, got["USD"])
}

func TestMemoryStoreLastSync(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetLastSync(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	ts := time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastSync(ctx, "u1", ts))

	got, err := s.GetLastSync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ts, got)
}
