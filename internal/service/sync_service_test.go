package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowapp/flow-backend/internal/model"
	"github.com/flowapp/flow-backend/internal/store"
)

var serviceNow = time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *store.MemoryStore) {
	st := store.NewMemoryStore()
	svc := NewService(st, nil, zerolog.Nop())
	svc.now = func() time.Time { return serviceNow }
	return svc, st
}

func row(id, ts, direction, amount, rawText string) model.RawRow {
	return model.RawRow{
		ID:        id,
		Timestamp: json.RawMessage(`"` + ts + `"`),
		Direction: direction,
		Amount:    json.RawMessage(amount),
		RawText:   rawText,
	}
}

func TestSyncFullCycle(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService()

	req := SyncRequest{
		Rows: []model.RawRow{
			row("r1", "2026-03-15T13:30:00", "OUT", "30", "POS purchase STARBUCKS DOHA"),
			row("r2", "2026-02-25T08:00:00", "IN", "15000", "SALARY credit ACME"),
		},
		MerchantRules: []model.MerchantRule{
			{PatternText: "starbucks", DisplayName: "Starbucks", ConsolidatedName: "Starbucks", Category: "Coffee"},
		},
	}

	result, err := svc.Sync(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewTransactions)
	assert.Equal(t, 2, result.TotalTransactions)

	txns, err := svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txns, 2)

	// Newest first; the coffee purchase resolved through the rule.
	assert.Equal(t, "Coffee", txns[0].Category)
	assert.Equal(t, "Starbucks", txns[0].DisplayName)
	assert.True(t, txns[1].IsSalary)

	// The cycle is recorded and the batch persisted.
	last, err := st.GetLastSync(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, serviceNow, last)

	stored, err := st.ListTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSyncIncrementalMerge(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Sync(ctx, "u1", SyncRequest{
		Rows: []model.RawRow{row("r1", "2026-03-10T10:00:00", "OUT", "100", "POS A")},
	})
	require.NoError(t, err)

	result, err := svc.Sync(ctx, "u1", SyncRequest{
		Incremental: true,
		Rows:        []model.RawRow{row("r2", "2026-03-15T10:00:00", "OUT", "50", "POS B")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewTransactions)
	assert.Equal(t, 2, result.TotalTransactions)

	// An empty incremental batch leaves the collection untouched.
	result, err = svc.Sync(ctx, "u1", SyncRequest{Incremental: true})
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewTransactions)
	assert.Equal(t, 2, result.TotalTransactions)

	txns, err := svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "r2", txns[0].ID)
}

func TestSyncFullReplacesCollection(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Sync(ctx, "u1", SyncRequest{
		Rows: []model.RawRow{row("old", "2026-03-01T10:00:00", "OUT", "10", "POS OLD")},
	})
	require.NoError(t, err)

	result, err := svc.Sync(ctx, "u1", SyncRequest{
		Rows: []model.RawRow{row("new", "2026-03-02T10:00:00", "OUT", "20", "POS NEW")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalTransactions)

	txns, err := svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "new", txns[0].ID)
}

func TestSetOverrideReclassifiesCollection(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService()

	_, err := svc.Sync(ctx, "u1", SyncRequest{
		Rows: []model.RawRow{row("r1", "2026-03-10T10:00:00", "OUT", "45", "POS purchase MYSTERY SHOP")},
	})
	require.NoError(t, err)

	override := model.LocalOverride{
		DisplayName:      "The Bakery",
		ConsolidatedName: "The Bakery",
		Category:         "Dining",
	}
	require.NoError(t, svc.SetOverride(ctx, "u1", "POS purchase MYSTERY SHOP", override))

	txns, err := svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "Dining", txns[0].Category)
	assert.Equal(t, "The Bakery", txns[0].DisplayName)
	assert.Equal(t, model.SourceManual, txns[0].Source)
	assert.Equal(t, 1.0, txns[0].Confidence)

	// The override is stored lowercased and wins on the next full sync.
	overrides, err := st.ListLocalOverrides(ctx, "u1")
	require.NoError(t, err)
	_, ok := overrides["pos purchase mystery shop"]
	assert.True(t, ok)

	_, err = svc.Sync(ctx, "u1", SyncRequest{
		Rows: []model.RawRow{row("r1", "2026-03-10T10:00:00", "OUT", "45", "POS purchase MYSTERY SHOP")},
	})
	require.NoError(t, err)
	txns, err = svc.Transactions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Dining", txns[0].Category)
}

func TestSetOverrideRejectsEmptyText(t *testing.T) {
	svc, _ := newTestService()
	err := svc.SetOverride(context.Background(), "u1", "   ", model.LocalOverride{Category: "Dining"})
	assert.Error(t, err)
}

func salaryRows() []model.RawRow {
	return []model.RawRow{
		row("s1", "2025-12-25T08:00:00", "IN", "15000", "SALARY credit ACME"),
		row("s2", "2026-01-25T08:00:00", "IN", "15000", "SALARY credit ACME"),
		row("s3", "2026-02-25T08:00:00", "IN", "15000", "SALARY credit ACME"),
		row("e1", "2026-02-01T19:00:00", "OUT", "100", "POS purchase PLACE A"),
		row("e2", "2026-03-10T19:00:00", "OUT", "200", "POS purchase PLACE B"),
	}
}

func TestSalaryReport(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Sync(ctx, "u1", SyncRequest{Rows: salaryRows()})
	require.NoError(t, err)

	report, err := svc.Salary(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 15000.0, report.Detection.ModalAmount)
	assert.Len(t, report.Detection.Salaries, 3)
	// Pay lands on the 25th; next occurrence after March 20.
	assert.Equal(t, time.Date(2026, time.March, 25, 0, 0, 0, 0, time.UTC), report.NextDate)
	// The reporting window opens at the second-most-recent salary.
	assert.Equal(t, time.Date(2026, time.January, 25, 8, 0, 0, 0, time.UTC), report.PeriodStart)
}

func TestForecastReport(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Sync(ctx, "u1", SyncRequest{Rows: salaryRows()})
	require.NoError(t, err)

	forecast, err := svc.Forecast(ctx, "u1")
	require.NoError(t, err)
	// Both spends fall inside the current salary period.
	assert.Equal(t, 300.0, forecast.SpentToDate)
	assert.Greater(t, forecast.DailyBurn, 0.0)
}

func TestGoalsReport(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Sync(ctx, "u1", SyncRequest{
		Rows: salaryRows(),
		Goals: []model.Goal{
			{Category: "Uncategorized", MonthlyLimit: 1000},
		},
	})
	require.NoError(t, err)

	goals, err := svc.Goals(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, 300.0, goals[0].SpentToDate)
}

func TestDailyBudgetReportWithBudgetPreference(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Sync(ctx, "u1", SyncRequest{
		Rows: salaryRows(),
		UserContext: []model.UserContextEntry{
			{Type: "preference", Key: "monthly budget", Value: "3,100"},
		},
	})
	require.NoError(t, err)

	report, err := svc.DailyBudget(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 3100.0, report.MonthlyBudget)
	// March spend so far is 200; 12 days of the month remain.
	assert.InDelta(t, (3100.0-200.0)/12.0, report.Allowance, 1e-9)
}

func TestReportsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	svc := NewService(st, nil, zerolog.Nop())
	svc.now = func() time.Time { return serviceNow }
	_, err := svc.Sync(ctx, "u1", SyncRequest{Rows: salaryRows()})
	require.NoError(t, err)

	// A fresh service over the same store hydrates from persistence.
	svc2 := NewService(st, nil, zerolog.Nop())
	svc2.now = func() time.Time { return serviceNow }

	txns, err := svc2.Transactions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, txns, 5)

	report, err := svc2.Salary(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, report.Detection.Salaries, 3)
}
