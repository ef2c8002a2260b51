package insights

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flowapp/flow-backend/internal/model"
)

const (
	defaultSalaryInterval = 30.0
	salaryAmountTolerance = 0.10
	maxSalaryGaps         = 6
	payDayClusterWindow   = 3.0
)

// SalaryDetection is the inferred pay history.
type SalaryDetection struct {
	Salaries        []model.Transaction `json:"salaries"`
	AvgIntervalDays float64             `json:"avgIntervalDays"`
	ModalAmount     float64             `json:"modalAmount"`
}

// DetectSalary infers the user's regular pay from income transactions. The
// modal amount (rounded to the nearest 100) separates regular pay from
// one-off bonuses and advances; only transactions within 10% of it count as
// salaries.
func DetectSalary(txns []model.Transaction) SalaryDetection {
	var incomes []model.Transaction
	for _, t := range txns {
		if t.Direction == model.DirectionIn && t.IsSalary {
			incomes = append(incomes, t)
		}
	}
	if len(incomes) == 0 {
		return SalaryDetection{AvgIntervalDays: defaultSalaryInterval}
	}
	sort.Slice(incomes, func(i, j int) bool {
		return incomes[i].Timestamp.Before(incomes[j].Timestamp)
	})

	modal := modalAmount(incomes)
	var salaries []model.Transaction
	for _, t := range incomes {
		if modal > 0 && math.Abs(t.AmountBase-modal) <= salaryAmountTolerance*modal {
			salaries = append(salaries, t)
		}
	}

	return SalaryDetection{
		Salaries:        salaries,
		AvgIntervalDays: averageInterval(salaries),
		ModalAmount:     modal,
	}
}

// modalAmount returns the most frequent base amount rounded to the nearest
// 100. Ties break toward the larger amount so a real salary beats a
// same-frequency small stipend.
func modalAmount(incomes []model.Transaction) float64 {
	counts := make(map[float64]int)
	for _, t := range incomes {
		rounded := math.Round(t.AmountBase/100) * 100
		counts[rounded]++
	}
	var best float64
	bestCount := 0
	for amount, count := range counts {
		if count > bestCount || (count == bestCount && amount > best) {
			best = amount
			bestCount = count
		}
	}
	return best
}

// averageInterval uses up to the 6 most recent salary-to-salary gaps.
func averageInterval(salaries []model.Transaction) float64 {
	if len(salaries) < 2 {
		return defaultSalaryInterval
	}
	var gaps []float64
	for i := 1; i < len(salaries); i++ {
		gaps = append(gaps, salaries[i].Timestamp.Sub(salaries[i-1].Timestamp).Hours()/24)
	}
	if len(gaps) > maxSalaryGaps {
		gaps = gaps[len(gaps)-maxSalaryGaps:]
	}
	var sum float64
	for _, g := range gaps {
		sum += g
	}
	return sum / float64(len(gaps))
}

var dayOfMonthPattern = regexp.MustCompile(`\b([0-9]{1,2})(?:st|nd|rd|th)?\b`)

// NextSalaryDate projects the next pay date. A backend-asserted date wins;
// then an explicit income-day preference from the user's context entries;
// then day-of-month clustering over the recent salary history; then last
// salary plus the average interval.
func NextSalaryDate(det SalaryDetection, serverDate *time.Time, entries []model.UserContextEntry, now time.Time) time.Time {
	if serverDate != nil {
		return *serverDate
	}
	if day, ok := incomeDayPreference(entries); ok {
		return projectToDay(day, now)
	}
	if day, ok := clusteredPayDay(det.Salaries); ok {
		return projectToDay(day, now)
	}
	if len(det.Salaries) > 0 {
		last := det.Salaries[len(det.Salaries)-1].Timestamp
		return last.AddDate(0, 0, int(math.Round(det.AvgIntervalDays)))
	}
	return now.AddDate(0, 0, int(defaultSalaryInterval))
}

// incomeDayPreference scans context entries for a stated salary day.
func incomeDayPreference(entries []model.UserContextEntry) (int, bool) {
	for _, e := range entries {
		meta := strings.ToLower(e.Type + " " + e.Key)
		if !strings.Contains(meta, "income") && !strings.Contains(meta, "salary") {
			continue
		}
		m := dayOfMonthPattern.FindStringSubmatch(e.Value)
		if m == nil {
			continue
		}
		day, err := strconv.Atoi(m[1])
		if err != nil || day < 1 || day > 31 {
			continue
		}
		return day, true
	}
	return 0, false
}

// clusteredPayDay checks whether the last salaries land on a consistent
// day of month (within 3 days of their average).
func clusteredPayDay(salaries []model.Transaction) (int, bool) {
	if len(salaries) < 2 {
		return 0, false
	}
	recent := salaries
	if len(recent) > maxSalaryGaps {
		recent = recent[len(recent)-maxSalaryGaps:]
	}
	var sum float64
	for _, t := range recent {
		sum += float64(t.Timestamp.Day())
	}
	avg := sum / float64(len(recent))
	for _, t := range recent {
		if math.Abs(float64(t.Timestamp.Day())-avg) > payDayClusterWindow {
			return 0, false
		}
	}
	return int(math.Round(avg)), true
}

// projectToDay finds the next occurrence of a day-of-month strictly after
// now, clamped to the target month's real length and shifted off the
// Friday/Saturday weekend to the preceding Thursday.
func projectToDay(day int, now time.Time) time.Time {
	candidate := dateOnDay(now.Year(), now.Month(), day, now.Location())
	if !candidate.After(now) {
		next := now.AddDate(0, 1, 0)
		candidate = dateOnDay(next.Year(), next.Month(), day, now.Location())
	}
	switch candidate.Weekday() {
	case time.Friday:
		candidate = candidate.AddDate(0, 0, -1)
	case time.Saturday:
		candidate = candidate.AddDate(0, 0, -2)
	}
	return candidate
}

func dateOnDay(year int, month time.Month, day int, loc *time.Location) time.Time {
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// SalaryPeriod defines the reporting window: from the second-most-recent
// salary when two or more exist, from the only salary when there is one,
// else a trailing 90 days.
func SalaryPeriod(det SalaryDetection, now time.Time) (start, end time.Time) {
	n := len(det.Salaries)
	switch {
	case n >= 2:
		return det.Salaries[n-2].Timestamp, now
	case n == 1:
		return det.Salaries[0].Timestamp, now
	default:
		return now.AddDate(0, 0, -90), now
	}
}
