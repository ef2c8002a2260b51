// Package insights post-processes the normalized transaction collection:
// behavioral pattern tagging, salary-cycle inference, recurring-payment
// detection and budget projection.
package insights

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/flowapp/flow-backend/internal/model"
)

// Categories eligible for night-out clustering.
var nightOutCategories = map[string]bool{
	"Bars & Nightlife": true,
	"Dining":           true,
	"Coffee":           true,
}

// Categories eligible for work-expense tagging.
var workExpenseCategories = map[string]bool{
	"Dining": true,
	"Coffee": true,
}

const (
	splurgeMultiplier     = 3.0
	subscriptionMinDays   = 25.0
	subscriptionMaxDays   = 35.0
	subscriptionTolerance = 0.10
)

// DetectPatterns tags behavioral clusters on OUT transactions, mutating the
// pattern dimension in place. If any transaction already carries a
// non-Normal tag the detector is a no-op: externally computed tags are never
// clobbered by these weaker local heuristics, which also makes repeated sync
// cycles idempotent once the backend takes over.
func DetectPatterns(txns []model.Transaction, entries []model.UserContextEntry) {
	for i := range txns {
		if txns[i].Dimensions.Pattern != model.PatternNormal {
			return
		}
	}

	tagNightOuts(txns)
	tagWorkExpenses(txns)
	tagSplurges(txns, entries)
	tagSubscriptions(txns)
}

func setPattern(t *model.Transaction, tag model.PatternTag) {
	t.Dimensions.Pattern = tag
}

// tagNightOuts groups OUT transactions by calendar day; two or more
// late-night transactions in nightlife categories on the same day tag the
// whole cluster.
func tagNightOuts(txns []model.Transaction) {
	byDay := make(map[string][]int)
	for i := range txns {
		t := &txns[i]
		if t.Direction != model.DirectionOut || !t.IsLateNight || !nightOutCategories[t.Category] {
			continue
		}
		day := t.Timestamp.Format("2006-01-02")
		byDay[day] = append(byDay[day], i)
	}
	for _, idxs := range byDay {
		if len(idxs) < 2 {
			continue
		}
		for _, i := range idxs {
			setPattern(&txns[i], model.PatternNightOut)
		}
	}
}

func tagWorkExpenses(txns []model.Transaction) {
	for i := range txns {
		t := &txns[i]
		if t.Direction != model.DirectionOut || !t.IsWorkHours {
			continue
		}
		if t.Dimensions.Pattern == model.PatternNormal && workExpenseCategories[t.Category] {
			setPattern(t, model.PatternWorkExpense)
		}
	}
}

// tagSplurges flags still-Normal transactions more than 3x their category's
// mean, unless a user context entry exempts them.
func tagSplurges(txns []model.Transaction, entries []model.UserContextEntry) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i := range txns {
		t := &txns[i]
		if t.Direction != model.DirectionOut {
			continue
		}
		sums[t.Category] += t.AmountBase
		counts[t.Category]++
	}
	for i := range txns {
		t := &txns[i]
		if t.Direction != model.DirectionOut || t.Dimensions.Pattern != model.PatternNormal {
			continue
		}
		n := counts[t.Category]
		if n == 0 {
			continue
		}
		mean := sums[t.Category] / float64(n)
		if mean <= 0 || t.AmountBase <= splurgeMultiplier*mean {
			continue
		}
		if splurgeExempt(t, entries) {
			continue
		}
		setPattern(t, model.PatternSplurge)
	}
}

// Phrases in a user context entry that mark an expense as expected rather
// than impulsive.
var splurgeExemptHints = []string{
	"not a splurge", "bill", "rent", "subscription", "regular", "recurring", "monthly", "planned",
}

// splurgeExempt checks whether a user context entry vouches for this
// transaction. The entry's key/value text is fuzzy-matched against the
// transaction's raw, counterparty and display text, or its rounded amount.
func splurgeExempt(t *model.Transaction, entries []model.UserContextEntry) bool {
	haystack := strings.ToLower(t.RawText + " " + t.Counterparty + " " + t.DisplayName)
	rounded := strconv.Itoa(int(math.Round(t.Amount)))
	for _, e := range entries {
		text := strings.ToLower(e.Value + " " + e.Details)
		hinted := false
		for _, hint := range splurgeExemptHints {
			if strings.Contains(text, hint) {
				hinted = true
				break
			}
		}
		if !hinted {
			continue
		}
		if strings.Contains(text, rounded) || strings.Contains(strings.ToLower(e.Key), rounded) {
			return true
		}
		for _, w := range strings.Fields(strings.ToLower(e.Key + " " + e.Value)) {
			if len(w) > 3 && strings.Contains(haystack, w) {
				return true
			}
		}
	}
	return false
}

// tagSubscriptions finds merchants with a steady ~monthly cadence and
// near-constant amounts, and tags every transaction for that merchant. This
// deliberately overwrites earlier tags: a subscription signal is treated as
// stronger than night-out/work/splurge heuristics.
func tagSubscriptions(txns []model.Transaction) {
	byMerchant := make(map[string][]int)
	for i := range txns {
		t := &txns[i]
		if t.Direction != model.DirectionOut {
			continue
		}
		key := t.ConsolidatedName
		if key == "" {
			key = t.DisplayName
		}
		if key == "" {
			continue
		}
		byMerchant[key] = append(byMerchant[key], i)
	}

	for _, idxs := range byMerchant {
		if len(idxs) < 2 {
			continue
		}
		sort.Slice(idxs, func(a, b int) bool {
			return txns[idxs[a]].Timestamp.Before(txns[idxs[b]].Timestamp)
		})

		var intervalSum, amountSum float64
		for i := 1; i < len(idxs); i++ {
			gap := txns[idxs[i]].Timestamp.Sub(txns[idxs[i-1]].Timestamp).Hours() / 24
			intervalSum += gap
		}
		meanInterval := intervalSum / float64(len(idxs)-1)
		if meanInterval < subscriptionMinDays || meanInterval > subscriptionMaxDays {
			continue
		}

		for _, i := range idxs {
			amountSum += txns[i].AmountBase
		}
		meanAmount := amountSum / float64(len(idxs))
		if meanAmount <= 0 {
			continue
		}
		steady := true
		for _, i := range idxs {
			if math.Abs(txns[i].AmountBase-meanAmount) > subscriptionTolerance*meanAmount {
				steady = false
				break
			}
		}
		if !steady {
			continue
		}

		for _, i := range idxs {
			setPattern(&txns[i], model.PatternSubscription)
		}
	}
}
