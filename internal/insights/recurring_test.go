package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowapp/flow-backend/internal/model"
)

func merchantTxn(merchant string, ts time.Time, amount float64, category string) model.Transaction {
	t := outTxn("", ts, amount, category)
	t.ConsolidatedName = merchant
	t.DisplayName = merchant
	return t
}

func TestDetectRecurring(t *testing.T) {
	start := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

	var txns []model.Transaction
	// Monthly streaming charge, four occurrences.
	for i := 0; i < 4; i++ {
		txns = append(txns, merchantTxn("Netflix", start.AddDate(0, 0, 30*i), 57, "Entertainment"))
	}
	// Weekly gym charge, five occurrences.
	for i := 0; i < 5; i++ {
		txns = append(txns, merchantTxn("Gym Club", start.AddDate(0, 0, 7*i), 100, "Health"))
	}
	// Two visits three days apart: no recognizable cadence.
	txns = append(txns,
		merchantTxn("Corner Shop", start, 40, "Groceries"),
		merchantTxn("Corner Shop", start.AddDate(0, 0, 3), 35, "Groceries"),
	)
	// A single occurrence never recurs.
	txns = append(txns, merchantTxn("One Off", start, 500, "Shopping"))

	items := DetectRecurring(txns)
	require.Len(t, items, 2)

	// Sorted by confidence descending: the gym has more occurrences.
	assert.Equal(t, "Gym Club", items[0].Merchant)
	assert.Equal(t, 1.0, items[0].Confidence)
	assert.Equal(t, 7.0, items[0].IntervalDays)
	assert.Equal(t, "Health", items[0].Category)

	assert.Equal(t, "Netflix", items[1].Merchant)
	assert.Equal(t, 57.0, items[1].AverageAmount)
	assert.Equal(t, 30.44, items[1].IntervalDays)
	assert.True(t, items[1].Active)
	// Next charge projected one cadence past the last occurrence.
	assert.Equal(t, start.AddDate(0, 0, 90).AddDate(0, 0, 30), items[1].NextExpected)
}

func TestDetectRecurringRejectsUnstableAmounts(t *testing.T) {
	start := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	txns := []model.Transaction{
		merchantTxn("Carrefour", start, 100, "Groceries"),
		merchantTxn("Carrefour", start.AddDate(0, 0, 30), 200, "Groceries"),
	}

	items := DetectRecurring(txns)
	assert.Empty(t, items)
}

func TestDetectRecurringIgnoresIncome(t *testing.T) {
	start := time.Date(2026, time.January, 25, 9, 0, 0, 0, time.UTC)
	var txns []model.Transaction
	for i := 0; i < 4; i++ {
		in := inTxn("", start.AddDate(0, 0, 30*i), 5000)
		in.ConsolidatedName = "Acme Payroll"
		txns = append(txns, in)
	}

	assert.Empty(t, DetectRecurring(txns))
}
