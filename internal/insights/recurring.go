package insights

import (
	"math"
	"sort"

	"github.com/flowapp/flow-backend/internal/model"
)

// frequencyWindow is an accepted cadence for a recurring payment.
type frequencyWindow struct {
	min, max   float64
	targetDays float64
}

var frequencyWindows = []frequencyWindow{
	{5, 9, 7},
	{12, 16, 14},
	{27, 34, 30.44},
	{85, 95, 91.3},
	{355, 375, 365.25},
}

const minRecurringConfidence = 0.5

// DetectRecurring derives recurring-payment records from the transaction
// history, used for the recurring-load report when the server supplies none.
// A merchant qualifies when its OUT transactions repeat on a recognizable
// cadence with consistent amounts.
func DetectRecurring(txns []model.Transaction) []model.RecurringItem {
	groups := make(map[string][]model.Transaction)
	for _, t := range txns {
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
		groups[key] = append(groups[key], t)
	}

	var items []model.RecurringItem
	for merchant, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})

		var intervals []float64
		for i := 1; i < len(group); i++ {
			days := group[i].Timestamp.Sub(group[i-1].Timestamp).Hours() / 24
			if days > 0 {
				intervals = append(intervals, days)
			}
		}
		if len(intervals) == 0 {
			continue
		}

		window, freqConfidence := matchFrequency(intervals)
		if window == nil {
			continue
		}

		var totalAmount float64
		for _, t := range group {
			totalAmount += t.AmountBase
		}
		avgAmount := totalAmount / float64(len(group))
		amountConfidence := 1.0
		if avgAmount > 0 {
			cv := math.Sqrt(variance(group, avgAmount)) / avgAmount
			if cv > 0.25 {
				amountConfidence = 0.3
			} else if cv > 0.10 {
				amountConfidence = 0.7
			}
		}

		occurrenceBoost := math.Min(float64(len(group))/5.0, 1.0)
		confidence := freqConfidence * amountConfidence * (0.5 + 0.5*occurrenceBoost)
		if confidence < minRecurringConfidence {
			continue
		}

		last := group[len(group)-1]
		items = append(items, model.RecurringItem{
			Merchant:      merchant,
			Category:      mostCommonCategory(group),
			AverageAmount: math.Round(avgAmount*100) / 100,
			IntervalDays:  window.targetDays,
			NextExpected:  last.Timestamp.AddDate(0, 0, int(math.Round(window.targetDays))),
			Active:        true,
			Confidence:    math.Round(confidence*100) / 100,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Confidence > items[j].Confidence
	})
	return items
}

func matchFrequency(intervals []float64) (*frequencyWindow, float64) {
	var avg float64
	for _, d := range intervals {
		avg += d
	}
	avg /= float64(len(intervals))

	for i := range frequencyWindows {
		w := &frequencyWindows[i]
		if avg < w.min || avg > w.max {
			continue
		}
		matchCount := 0
		for _, d := range intervals {
			if d >= w.min && d <= w.max {
				matchCount++
			}
		}
		return w, float64(matchCount) / float64(len(intervals))
	}
	return nil, 0
}

func variance(txns []model.Transaction, mean float64) float64 {
	if len(txns) < 2 {
		return 0
	}
	var sumSq float64
	for _, t := range txns {
		d := t.AmountBase - mean
		sumSq += d * d
	}
	return sumSq / float64(len(txns)-1)
}

func mostCommonCategory(txns []model.Transaction) string {
	counts := make(map[string]int)
	for _, t := range txns {
		counts[t.Category]++
	}
	best, bestCount := "", 0
	for category, count := range counts {
		if count > bestCount {
			best, bestCount = category, count
		}
	}
	return best
}
