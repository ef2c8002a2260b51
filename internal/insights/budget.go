package insights

import (
	"math"
	"sort"
	"time"

	"github.com/flowapp/flow-backend/internal/model"
)

// Forecast is the period-end spending projection.
type Forecast struct {
	DailyBurn        float64 `json:"dailyBurn"`
	SpentToDate      float64 `json:"spentToDate"`
	ProjectedSpend   float64 `json:"projectedSpend"`
	ProjectedBalance float64 `json:"projectedBalance"`
	Confidence       string  `json:"confidence"` // high | medium | low
}

// CategoryTrend compares this month's spend in a category against the
// average of the prior two months.
type CategoryTrend struct {
	Category      string  `json:"category"`
	CurrentMonth  float64 `json:"currentMonth"`
	PriorAverage  float64 `json:"priorAverage"`
	ChangePercent float64 `json:"changePercent"`
	Trend         string  `json:"trend"` // rising | falling | stable
}

// GoalForecast is the per-goal trajectory for the current period.
type GoalForecast struct {
	Category     string  `json:"category"`
	MonthlyLimit float64 `json:"monthlyLimit"`
	SpentToDate  float64 `json:"spentToDate"`
	Projected    float64 `json:"projected"`
	Status       string  `json:"status"` // safe | warning | over
	// DaysToExceed is -1 when the limit will never be crossed at the
	// current rate.
	DaysToExceed int `json:"daysToExceed"`
}

const trendThreshold = 10.0

// ForecastPeriod projects period-end spending from the period-to-date burn
// rate. Days elapsed is floored at 1 so a fresh period never divides by
// zero.
func ForecastPeriod(txns []model.Transaction, periodStart, periodEnd, now time.Time) Forecast {
	var outTotal, inTotal float64
	for _, t := range txns {
		if t.Timestamp.Before(periodStart) || t.Timestamp.After(now) {
			continue
		}
		if t.Direction == model.DirectionOut {
			outTotal += t.AmountBase
		} else {
			inTotal += t.AmountBase
		}
	}

	daysElapsed := daysBetween(periodStart, now)
	if daysElapsed < 1 {
		daysElapsed = 1
	}
	daysRemaining := daysBetween(now, periodEnd)
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	burn := outTotal / float64(daysElapsed)
	projected := burn * float64(daysRemaining)

	return Forecast{
		DailyBurn:        burn,
		SpentToDate:      outTotal,
		ProjectedSpend:   projected,
		ProjectedBalance: inTotal - projected,
		Confidence:       forecastConfidence(txns, now),
	}
}

// forecastConfidence grades the projection on history depth and the
// stability of the last 30 days of daily spending.
func forecastConfidence(txns []model.Transaction, now time.Time) string {
	var oldest time.Time
	for _, t := range txns {
		if oldest.IsZero() || t.Timestamp.Before(oldest) {
			oldest = t.Timestamp
		}
	}
	monthsOfHistory := 0.0
	if !oldest.IsZero() {
		monthsOfHistory = now.Sub(oldest).Hours() / 24 / 30.44
	}

	cv := dailySpendCV(txns, now)
	switch {
	case monthsOfHistory >= 3 && cv < 0.5:
		return "high"
	case monthsOfHistory >= 2 || cv < 0.8:
		return "medium"
	default:
		return "low"
	}
}

// dailySpendCV is the coefficient of variation of per-day OUT totals over
// the trailing 30 days, zero-spend days included.
func dailySpendCV(txns []model.Transaction, now time.Time) float64 {
	start := now.AddDate(0, 0, -30)
	byDay := make(map[string]float64)
	for _, t := range txns {
		if t.Direction != model.DirectionOut || t.Timestamp.Before(start) || t.Timestamp.After(now) {
			continue
		}
		byDay[t.Timestamp.Format("2006-01-02")] += t.AmountBase
	}

	var daily []float64
	for d := start; !d.After(now); d = d.AddDate(0, 0, 1) {
		daily = append(daily, byDay[d.Format("2006-01-02")])
	}
	if len(daily) == 0 {
		return 0
	}
	var sum float64
	for _, v := range daily {
		sum += v
	}
	mean := sum / float64(len(daily))
	if mean == 0 {
		return 0
	}
	var varianceSum float64
	for _, v := range daily {
		diff := v - mean
		varianceSum += diff * diff
	}
	return math.Sqrt(varianceSum/float64(len(daily))) / mean
}

// CategoryTrends flags categories whose current-month spend moved more than
// 10% against the prior two-month average. Categories with no spend either
// side are dropped; the result is sorted by absolute change descending.
func CategoryTrends(txns []model.Transaction, now time.Time) []CategoryTrend {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev2Start := monthStart.AddDate(0, -2, 0)

	current := make(map[string]float64)
	prior := make(map[string]float64)
	for _, t := range txns {
		if t.Direction != model.DirectionOut {
			continue
		}
		switch {
		case !t.Timestamp.Before(monthStart) && !t.Timestamp.After(now):
			current[t.Category] += t.AmountBase
		case !t.Timestamp.Before(prev2Start) && t.Timestamp.Before(monthStart):
			prior[t.Category] += t.AmountBase
		}
	}

	seen := make(map[string]bool)
	for c := range current {
		seen[c] = true
	}
	for c := range prior {
		seen[c] = true
	}

	var trends []CategoryTrend
	for category := range seen {
		cur := current[category]
		priorAvg := prior[category] / 2
		if cur == 0 && priorAvg == 0 {
			continue
		}
		var change float64
		if priorAvg > 0 {
			change = (cur - priorAvg) / priorAvg * 100
		} else {
			change = 100
		}
		trend := "stable"
		if change > trendThreshold {
			trend = "rising"
		} else if change < -trendThreshold {
			trend = "falling"
		}
		trends = append(trends, CategoryTrend{
			Category:      category,
			CurrentMonth:  cur,
			PriorAverage:  priorAvg,
			ChangePercent: change,
			Trend:         trend,
		})
	}
	sort.Slice(trends, func(i, j int) bool {
		return math.Abs(trends[i].ChangePercent) > math.Abs(trends[j].ChangePercent)
	})
	return trends
}

// RecurringLoad sums the monthly cost of active recurring items, scaling
// non-monthly cadences onto a 30.44-day month.
func RecurringLoad(items []model.RecurringItem) float64 {
	var total float64
	for _, item := range items {
		if !item.Active {
			continue
		}
		if item.IntervalDays > 0 {
			total += item.AverageAmount * 30.44 / item.IntervalDays
		} else {
			total += item.AverageAmount
		}
	}
	return total
}

// ForecastGoals projects each goal's end-of-period spend from the current
// daily rate.
func ForecastGoals(txns []model.Transaction, goals []model.Goal, periodStart, periodEnd, now time.Time) []GoalForecast {
	daysElapsed := daysBetween(periodStart, now)
	if daysElapsed < 1 {
		daysElapsed = 1
	}
	daysRemaining := daysBetween(now, periodEnd)
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	spentByCategory := make(map[string]float64)
	for _, t := range txns {
		if t.Direction != model.DirectionOut || t.Timestamp.Before(periodStart) || t.Timestamp.After(now) {
			continue
		}
		spentByCategory[t.Category] += t.AmountBase
	}

	var out []GoalForecast
	for _, goal := range goals {
		if goal.MonthlyLimit <= 0 {
			continue
		}
		spent := spentByCategory[goal.Category]
		dailyRate := spent / float64(daysElapsed)
		projected := spent + dailyRate*float64(daysRemaining)

		status := "safe"
		switch {
		case spent > goal.MonthlyLimit:
			status = "over"
		case projected > goal.MonthlyLimit:
			status = "warning"
		}

		daysToExceed := -1
		if dailyRate > 0 && spent <= goal.MonthlyLimit {
			daysToExceed = int(math.Ceil((goal.MonthlyLimit - spent) / dailyRate))
		} else if spent > goal.MonthlyLimit {
			daysToExceed = 0
		}

		out = append(out, GoalForecast{
			Category:     goal.Category,
			MonthlyLimit: goal.MonthlyLimit,
			SpentToDate:  spent,
			Projected:    projected,
			Status:       status,
			DaysToExceed: daysToExceed,
		})
	}
	return out
}

// DailyBudget computes today's allowance. With a configured monthly budget
// it spreads what is left over the rest of the calendar month; otherwise it
// spreads the period's net income over the days until the next salary.
func DailyBudget(txns []model.Transaction, monthlyBudget float64, periodStart, now, nextSalary time.Time) float64 {
	if monthlyBudget > 0 {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		var spent float64
		for _, t := range txns {
			if t.Direction == model.DirectionOut && !t.Timestamp.Before(monthStart) && !t.Timestamp.After(now) {
				spent += t.AmountBase
			}
		}
		remainingDays := daysInMonth(now.Year(), now.Month()) - now.Day() + 1
		if remainingDays < 1 {
			remainingDays = 1
		}
		return (monthlyBudget - spent) / float64(remainingDays)
	}

	var net float64
	for _, t := range txns {
		if t.Timestamp.Before(periodStart) || t.Timestamp.After(now) {
			continue
		}
		if t.Direction == model.DirectionIn {
			net += t.AmountBase
		} else {
			net -= t.AmountBase
		}
	}
	daysToSalary := daysBetween(now, nextSalary)
	if daysToSalary < 1 {
		daysToSalary = 1
	}
	return net / float64(daysToSalary)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
