package classify

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flowapp/flow-backend/internal/model"
)

// Default size-tier thresholds in the reporting currency.
const (
	defaultMediumThreshold = 200
	defaultLargeThreshold  = 1000
)

// transferKeywords mark rows eligible for recipient matching.
var transferKeywords = []string{"transfer", "fawran", "internal transfer"}

var longDigitRun = regexp.MustCompile(`\d{8,}`)

// Context supplies the lookup tables and knobs the normalizer needs. The
// zero value is usable: defaults kick in for the base currency, thresholds
// and clock.
type Context struct {
	BaseCurrency    string
	Rates           RateTable
	Rules           []model.MerchantRule
	Overrides       map[string]model.LocalOverride
	Recipients      []model.Recipient
	MediumThreshold float64
	LargeThreshold  float64

	// Now is the clock used for unparseable timestamps; tests pin it.
	Now func() time.Time
}

func (c *Context) base() string {
	if c.BaseCurrency == "" {
		return DefaultBaseCurrency
	}
	return c.BaseCurrency
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Context) medium() float64 {
	if c.MediumThreshold > 0 {
		return c.MediumThreshold
	}
	return defaultMediumThreshold
}

func (c *Context) large() float64 {
	if c.LargeThreshold > 0 {
		return c.LargeThreshold
	}
	return defaultLargeThreshold
}

// Normalize assembles raw ingestion rows into canonical transactions. Rows
// with a missing or non-numeric amount are dropped; every other malformed
// field degrades to a default instead of failing the batch. The result is
// sorted descending by timestamp.
func Normalize(rows []model.RawRow, ctx *Context) []model.Transaction {
	if ctx == nil {
		ctx = &Context{}
	}
	out := make([]model.Transaction, 0, len(rows))
	for _, row := range rows {
		txn, ok := normalizeRow(row, ctx)
		if !ok {
			continue
		}
		out = append(out, txn)
	}
	sortByTimestampDesc(out)
	return out
}

func normalizeRow(row model.RawRow, ctx *Context) (model.Transaction, bool) {
	amount, ok := parseAmount(row.Amount)
	if !ok {
		return model.Transaction{}, false
	}

	ts := parseTimestamp(row.Timestamp, ctx.now())
	cleaned := CleanCounterparty(row.Counterparty)
	res := Resolve(row.RawText, row.AICategory, cleaned, row.Category, ctx.Rules, ctx.Overrides)

	base := BaseAmount(amount, row.Currency, ctx.base(), row.AmountConverted, row.AmountApprox, ctx.Rates)

	direction := model.Direction(strings.ToUpper(strings.TrimSpace(row.Direction)))
	if direction != model.DirectionIn {
		direction = model.DirectionOut
	}

	when := row.TimeTags
	if len(when) == 0 {
		when = timeTags(ts)
	}
	size := model.SizeTier(row.SizeTier)
	if size == "" {
		size = sizeTier(base, ctx)
	}
	pattern := model.PatternTag(row.Pattern)
	if pattern == "" {
		pattern = model.PatternNormal
	}

	currency := strings.ToUpper(strings.TrimSpace(row.Currency))
	if currency == "" {
		currency = ctx.base()
	}

	txn := model.Transaction{
		ID:             row.ID,
		IdempotencyKey: IdempotencyKey(row.RawText, ts),
		Timestamp:      ts,
		Direction:      direction,
		Amount:         amount,
		Currency:       currency,
		AmountBase:     base,
		RawText:        row.RawText,
		Counterparty:   cleaned,
		Card:           row.Card,
		TxnType:        row.TxnType,

		Category:         res.Category,
		DisplayName:      res.DisplayName,
		ConsolidatedName: res.ConsolidatedName,
		Dimensions: model.Dimensions{
			What:    res.Category,
			When:    when,
			Size:    size,
			Pattern: pattern,
		},
		Confidence: res.Confidence,
		Source:     res.Source,
		Context:    parseContext(row.Context),
	}

	txn.IsSalary = detectSalary(row)
	txn.IsLarge = size == model.SizeLarge
	txn.IsLateNight = hasTag(when, model.TimeLateNight)
	txn.IsWorkHours = hasTag(when, model.TimeWorkHours)
	txn.IsWeekend = hasTag(when, model.TimeWeekend)

	txn.Recipient = resolveRecipient(row, txn, ctx)
	return txn, true
}

var jsonNull = []byte("null")

// parseAmount accepts JSON numbers and numeric strings (with thousands
// separators). Anything else, including a JSON null, marks the row as
// malformed. Null needs an explicit check: json.Unmarshal treats it as a
// no-op and would leave a zero amount behind.
func parseAmount(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return 0, false
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, false
	}
	str = strings.ReplaceAll(strings.TrimSpace(str), ",", "")
	num, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

// serialEpoch is day zero of spreadsheet serial dates.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

// parseTimestamp handles ISO-like strings and spreadsheet serial day counts
// with a fractional time-of-day. Unparseable values fall back to now.
func parseTimestamp(raw json.RawMessage, now time.Time) time.Time {
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return now
	}
	var serial float64
	if err := json.Unmarshal(raw, &serial); err == nil {
		days := int(serial)
		frac := serial - float64(days)
		return serialEpoch.AddDate(0, 0, days).
			Add(time.Duration(frac * 24 * float64(time.Hour)))
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return now
	}
	str = strings.TrimSpace(str)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, str); err == nil {
			return ts
		}
	}
	return now
}

// parseContext decodes the row's embedded JSON metadata; a decode failure
// nulls the field rather than aborting the batch.
func parseContext(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func detectSalary(row model.RawRow) bool {
	if row.IsSalary != nil {
		return *row.IsSalary
	}
	haystack := strings.ToLower(row.RawText + " " + row.Counterparty + " " + row.Card + " " + row.TxnType)
	return strings.Contains(haystack, "salary")
}

// timeTags buckets the hour of day and flags the Friday/Saturday weekend.
func timeTags(ts time.Time) []string {
	var tags []string
	hour := ts.Hour()
	switch {
	case hour >= 22 || hour < 5:
		tags = append(tags, model.TimeLateNight)
	case hour < 12:
		tags = append(tags, model.TimeMorning)
	case hour < 17:
		tags = append(tags, model.TimeAfternoon)
	default:
		tags = append(tags, model.TimeEvening)
	}
	weekend := ts.Weekday() == time.Friday || ts.Weekday() == time.Saturday
	if weekend {
		tags = append(tags, model.TimeWeekend)
	}
	if !weekend && hour >= 9 && hour < 17 {
		tags = append(tags, model.TimeWorkHours)
	}
	return tags
}

func sizeTier(baseAmount float64, ctx *Context) model.SizeTier {
	abs := baseAmount
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= ctx.large():
		return model.SizeLarge
	case abs >= ctx.medium():
		return model.SizeMedium
	default:
		return model.SizeSmall
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// resolveRecipient prefers a backend-asserted recipient id; otherwise only
// transfer-like rows are matched against the recipient table.
func resolveRecipient(row model.RawRow, txn model.Transaction, ctx *Context) *model.RecipientMatch {
	if row.RecipientID != "" {
		for _, r := range ctx.Recipients {
			if r.ID == row.RecipientID {
				return &model.RecipientMatch{Recipient: r, MatchType: model.MatchServer}
			}
		}
		return nil
	}
	if !isTransferLike(row, txn) {
		return nil
	}
	if m := MatchRecipient(txn.Counterparty, ctx.Recipients); m != nil {
		return m
	}
	return MatchRecipient(row.RawText, ctx.Recipients)
}

func isTransferLike(row model.RawRow, txn model.Transaction) bool {
	haystack := strings.ToLower(row.TxnType + " " + row.RawText)
	for _, kw := range transferKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return txn.Direction == model.DirectionOut && longDigitRun.MatchString(row.Counterparty)
}

// IdempotencyKey derives a stable key from the squashed SMS text and the
// minute-truncated timestamp, matching the backend's upsert key.
func IdempotencyKey(rawText string, ts time.Time) string {
	content := strings.ToLower(strings.Join(strings.Fields(rawText), ""))
	if len(content) > 100 {
		content = content[:100]
	}
	base := content + "|" + ts.Truncate(time.Minute).Format("2006-01-02T15:04")
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// MergeIncremental prepends a freshly normalized batch onto an existing
// collection and re-sorts descending by timestamp. There is deliberately no
// row-level dedup by id: the backend contract is that an incremental
// response never re-sends an already-seen row.
func MergeIncremental(existing, fresh []model.Transaction) []model.Transaction {
	if len(fresh) == 0 {
		return existing
	}
	merged := make([]model.Transaction, 0, len(existing)+len(fresh))
	merged = append(merged, fresh...)
	merged = append(merged, existing...)
	sortByTimestampDesc(merged)
	return merged
}

func sortByTimestampDesc(txns []model.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Timestamp.After(txns[j].Timestamp)
	})
}
