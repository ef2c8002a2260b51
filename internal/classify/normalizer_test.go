package classify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowapp/flow-backend/internal/model"
)

func fixedNow() time.Time {
	return time.Date(2026, time.March, 20, 12, 0, 0, 0, time.UTC)
}

func testContext() *Context {
	return &Context{Now: fixedNow}
}

func rawAmount(v string) json.RawMessage { return json.RawMessage(v) }
func rawTime(v string) json.RawMessage   { return json.RawMessage(v) }
func floatPtr(v float64) *float64        { return &v }

func TestNormalizeBasicRow(t *testing.T) {
	rows := []model.RawRow{{
		ID:           "row-1",
		Timestamp:    rawTime(`"2026-03-15T13:30:00"`),
		Direction:    "out",
		Amount:       rawAmount(`45.5`),
		Currency:     "QAR",
		RawText:      "POS purchase STARBUCKS DOHA",
		Counterparty: "STARBUCKS DOHA",
		Category:     "Coffee",
	}}

	txns := Normalize(rows, testContext())
	require.Len(t, txns, 1)
	txn := txns[0]

	assert.Equal(t, model.DirectionOut, txn.Direction)
	assert.Equal(t, 45.5, txn.Amount)
	assert.Equal(t, 45.5, txn.AmountBase)
	assert.Equal(t, "Coffee", txn.Category)
	assert.Equal(t, "Starbucks", txn.Counterparty)
	assert.Equal(t, time.Date(2026, time.March, 15, 13, 30, 0, 0, time.UTC), txn.Timestamp)
	assert.Equal(t, model.SizeSmall, txn.Dimensions.Size)
	assert.Equal(t, model.PatternNormal, txn.Dimensions.Pattern)
	assert.Contains(t, txn.Dimensions.When, model.TimeAfternoon)
	assert.Contains(t, txn.Dimensions.When, model.TimeWorkHours)
	assert.True(t, txn.IsWorkHours)
	assert.False(t, txn.IsWeekend)
	assert.NotEmpty(t, txn.IdempotencyKey)
}

func TestNormalizeDropsNonNumericAmount(t *testing.T) {
	rows := []model.RawRow{
		{ID: "bad-1", Amount: rawAmount(`"PENDING"`), Timestamp: rawTime(`"2026-03-01"`)},
		{ID: "bad-2", Amount: nil, Timestamp: rawTime(`"2026-03-01"`)},
		// The ingestion script nulls out NaN cells, so null amounts are
		// real input and must drop like any other missing amount.
		{ID: "bad-3", Amount: rawAmount(`null`), Timestamp: rawTime(`"2026-03-01"`)},
		{ID: "ok", Amount: rawAmount(`"1,250.00"`), Timestamp: rawTime(`"2026-03-01"`)},
	}

	txns := Normalize(rows, testContext())
	require.Len(t, txns, 1)
	assert.Equal(t, "ok", txns[0].ID)
	assert.Equal(t, 1250.0, txns[0].Amount)
}

func TestNormalizeSerialTimestamp(t *testing.T) {
	// 45000 days past 1899-12-30 is 2023-03-15; .75 is 18:00.
	rows := []model.RawRow{{
		ID:        "serial",
		Amount:    rawAmount(`10`),
		Timestamp: rawTime(`45000.75`),
	}}

	txns := Normalize(rows, testContext())
	require.Len(t, txns, 1)
	assert.Equal(t, time.Date(2023, time.March, 15, 18, 0, 0, 0, time.UTC), txns[0].Timestamp)
}

func TestNormalizeUnparseableTimestampFallsBackToNow(t *testing.T) {
	rows := []model.RawRow{
		{ID: "nodate", Amount: rawAmount(`10`), Timestamp: rawTime(`"not a date"`)},
		// A null timestamp must not decode as serial day zero and land
		// the row in 1899.
		{ID: "null", Amount: rawAmount(`10`), Timestamp: rawTime(`null`)},
		{ID: "missing", Amount: rawAmount(`10`)},
	}

	txns := Normalize(rows, testContext())
	require.Len(t, txns, 3)
	for _, txn := range txns {
		assert.Equal(t, fixedNow(), txn.Timestamp, "row %s", txn.ID)
	}
}

func TestNormalizeCurrencyChain(t *testing.T) {
	ctx := testContext()
	ctx.Rates = RateTable{"USD": 3.64}

	rows := []model.RawRow{
		{ID: "converted", Amount: rawAmount(`100`), Currency: "USD", AmountConverted: floatPtr(365.2), Timestamp: rawTime(`"2026-03-01"`)},
		{ID: "approx", Amount: rawAmount(`100`), Currency: "USD", AmountApprox: floatPtr(360), Timestamp: rawTime(`"2026-03-02"`)},
		{ID: "rate", Amount: rawAmount(`100`), Currency: "USD", Timestamp: rawTime(`"2026-03-03"`)},
		{ID: "unknown", Amount: rawAmount(`100`), Currency: "GBP", Timestamp: rawTime(`"2026-03-04"`)},
	}

	txns := Normalize(rows, ctx)
	require.Len(t, txns, 4)
	byID := map[string]model.Transaction{}
	for _, txn := range txns {
		byID[txn.ID] = txn
	}

	assert.Equal(t, 365.2, byID["converted"].AmountBase)
	assert.Equal(t, 360.0, byID["approx"].AmountBase)
	assert.InDelta(t, 364.0, byID["rate"].AmountBase, 1e-9)
	// Unknown currency falls back to rate 1.
	assert.Equal(t, 100.0, byID["unknown"].AmountBase)
}

func TestNormalizeSalaryDetection(t *testing.T) {
	flag := true
	rows := []model.RawRow{
		{ID: "flagged", Amount: rawAmount(`15000`), Direction: "IN", IsSalary: &flag, Timestamp: rawTime(`"2026-02-25"`)},
		{ID: "keyword", Amount: rawAmount(`15000`), Direction: "IN", RawText: "SALARY credit from ACME WLL", Timestamp: rawTime(`"2026-01-25"`)},
		{ID: "plain", Amount: rawAmount(`200`), Direction: "IN", RawText: "refund from shop", Timestamp: rawTime(`"2026-01-20"`)},
	}

	txns := Normalize(rows, testContext())
	require.Len(t, txns, 3)
	assert.True(t, txns[0].IsSalary)
	assert.True(t, txns[1].IsSalary)
	assert.False(t, txns[2].IsSalary)
}

func TestNormalizeWeekendAndLateNight(t *testing.T) {
	rows := []model.RawRow{{
		// 2026-03-20 is a Friday.
		ID:        "friday-night",
		Amount:    rawAmount(`80`),
		Timestamp: rawTime(`"2026-03-20T23:15:00"`),
	}}

	txns := Normalize(rows, testContext())
	require.Len(t, txns, 1)
	assert.True(t, txns[0].IsLateNight)
	assert.True(t, txns[0].IsWeekend)
	assert.False(t, txns[0].IsWorkHours)
}

func TestNormalizeSizeTiers(t *testing.T) {
	rows := []model.RawRow{
		{ID: "small", Amount: rawAmount(`50`), Timestamp: rawTime(`"2026-03-01"`)},
		{ID: "medium", Amount: rawAmount(`350`), Timestamp: rawTime(`"2026-03-02"`)},
		{ID: "large", Amount: rawAmount(`2500`), Timestamp: rawTime(`"2026-03-03"`)},
	}

	txns := Normalize(rows, testContext())
	require.Len(t, txns, 3)
	byID := map[string]model.SizeTier{}
	for _, txn := range txns {
		byID[txn.ID] = txn.Dimensions.Size
	}
	assert.Equal(t, model.SizeSmall, byID["small"])
	assert.Equal(t, model.SizeMedium, byID["medium"])
	assert.Equal(t, model.SizeLarge, byID["large"])
}

func TestNormalizeTransferRecipient(t *testing.T) {
	ctx := testContext()
	ctx.Recipients = []model.Recipient{
		{ID: "r-nic", ShortName: "Nicole", LongName: "Nicole Daou"},
	}

	rows := []model.RawRow{
		{ID: "transfer", Amount: rawAmount(`500`), Direction: "OUT", TxnType: "Fawran Transfer",
			RawText: "fawran to NICOLE DAOU", Timestamp: rawTime(`"2026-03-01"`)},
		{ID: "pos", Amount: rawAmount(`50`), Direction: "OUT", TxnType: "POS",
			RawText: "POS purchase NICOLE DAOU CAFE", Timestamp: rawTime(`"2026-03-02"`)},
	}

	txns := Normalize(rows, ctx)
	require.Len(t, txns, 2)
	byID := map[string]model.Transaction{}
	for _, txn := range txns {
		byID[txn.ID] = txn
	}

	require.NotNil(t, byID["transfer"].Recipient)
	assert.Equal(t, "r-nic", byID["transfer"].Recipient.Recipient.ID)
	// Non-transfer rows are never recipient-matched.
	assert.Nil(t, byID["pos"].Recipient)
}

func TestNormalizeServerRecipientID(t *testing.T) {
	ctx := testContext()
	ctx.Recipients = []model.Recipient{{ID: "r-sam", LongName: "Samir Haddad"}}

	rows := []model.RawRow{{
		ID: "srv", Amount: rawAmount(`100`), RecipientID: "r-sam",
		Timestamp: rawTime(`"2026-03-01"`),
	}}

	txns := Normalize(rows, ctx)
	require.Len(t, txns, 1)
	require.NotNil(t, txns[0].Recipient)
	assert.Equal(t, model.MatchServer, txns[0].Recipient.MatchType)
}

func TestNormalizeSortsDescending(t *testing.T) {
	rows := []model.RawRow{
		{ID: "older", Amount: rawAmount(`1`), Timestamp: rawTime(`"2026-03-01"`)},
		{ID: "newer", Amount: rawAmount(`1`), Timestamp: rawTime(`"2026-03-10"`)},
	}

	txns := Normalize(rows, testContext())
	require.Len(t, txns, 2)
	assert.Equal(t, "newer", txns[0].ID)
	assert.Equal(t, "older", txns[1].ID)
}

func TestIdempotencyKeyStability(t *testing.T) {
	ts := time.Date(2026, time.March, 1, 10, 30, 45, 0, time.UTC)

	k1 := IdempotencyKey("POS purchase STARBUCKS DOHA", ts)
	// Whitespace squashing, casing and sub-minute precision do not change
	// the key.
	k2 := IdempotencyKey("pos  purchase   starbucks doha", ts.Add(14*time.Second))
	assert.Equal(t, k1, k2)

	k3 := IdempotencyKey("POS purchase STARBUCKS DOHA", ts.Add(time.Minute))
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 64)
}

func TestMergeIncremental(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
	}
	existing := []model.Transaction{
		{ID: "c", Timestamp: day(9)},
		{ID: "a", Timestamp: day(1)},
	}
	fresh := []model.Transaction{
		{ID: "d", Timestamp: day(12)},
		{ID: "b", Timestamp: day(5)},
	}

	merged := MergeIncremental(existing, fresh)
	require.Len(t, merged, 4)
	ids := []string{merged[0].ID, merged[1].ID, merged[2].ID, merged[3].ID}
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids)

	// An empty fresh batch leaves the existing slice untouched.
	same := MergeIncremental(existing, nil)
	assert.Len(t, same, 2)
	assert.Equal(t, "c", same[0].ID)
}
