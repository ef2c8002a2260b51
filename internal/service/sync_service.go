// Package service orchestrates sync cycles and exposes the engine's outputs
// over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowapp/flow-backend/internal/classify"
	"github.com/flowapp/flow-backend/internal/insights"
	"github.com/flowapp/flow-backend/internal/model"
	"github.com/flowapp/flow-backend/internal/store"
)

// SyncRequest is one sync cycle's payload: the fetched rows plus the lookup
// tables, which replace the prior copies wholesale. Local overrides are the
// exception — they persist client-side across syncs and are managed through
// their own endpoint.
type SyncRequest struct {
	Rows          []model.RawRow           `json:"rows"`
	Incremental   bool                     `json:"incremental"`
	MerchantRules []model.MerchantRule     `json:"merchantRules,omitempty"`
	Recipients    []model.Recipient        `json:"recipients,omitempty"`
	FXRates       map[string]float64       `json:"fxRates,omitempty"`
	UserContext   []model.UserContextEntry `json:"userContext,omitempty"`
	Goals         []model.Goal             `json:"goals,omitempty"`
}

// SyncResult summarizes a completed sync cycle.
type SyncResult struct {
	NewTransactions   int `json:"newTransactions"`
	TotalTransactions int `json:"totalTransactions"`
	RecurringItems    int `json:"recurringItems"`
}

// SalaryReport is the inferred pay schedule plus the derived reporting
// window.
type SalaryReport struct {
	Detection   insights.SalaryDetection `json:"detection"`
	NextDate    time.Time                `json:"nextDate"`
	PeriodStart time.Time                `json:"periodStart"`
	PeriodEnd   time.Time                `json:"periodEnd"`
}

// DailyBudgetReport is today's allowance and its inputs.
type DailyBudgetReport struct {
	Allowance     float64 `json:"allowance"`
	MonthlyBudget float64 `json:"monthlyBudget,omitempty"`
	RecurringLoad float64 `json:"recurringLoad"`
}

// Service owns the per-user in-memory transaction collections and drives
// the engine. All engine computation is synchronous; the mutex serializes
// sync cycles so the normalizer and pattern detector never run concurrently
// on the same collection.
type Service struct {
	store store.Store
	cache *store.ReportCache
	log   zerolog.Logger

	mu       sync.Mutex
	sessions map[string][]model.Transaction

	now func() time.Time
}

// NewService creates a Service. cache may be nil.
func NewService(st store.Store, cache *store.ReportCache, log zerolog.Logger) *Service {
	return &Service{
		store:    st,
		cache:    cache,
		log:      log,
		sessions: make(map[string][]model.Transaction),
		now:      time.Now,
	}
}

// Sync runs one sync cycle: replace the lookup tables, normalize the row
// batch, merge it into the user's collection, re-run pattern detection and
// persist the result.
func (s *Service) Sync(ctx context.Context, userID string, req SyncRequest) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replaceTables(ctx, userID, req); err != nil {
		return SyncResult{}, err
	}

	cctx, err := s.classifyContext(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	existing, err := s.collection(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}

	batch := classify.Normalize(req.Rows, cctx)

	var merged []model.Transaction
	switch {
	case req.Incremental && len(batch) == 0:
		// Nothing new; the existing collection is left untouched.
		merged = existing
	case req.Incremental:
		merged = classify.MergeIncremental(existing, batch)
	default:
		merged = batch
	}

	entries, err := s.store.ListUserContext(ctx, userID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("load user context: %w", err)
	}
	insights.DetectPatterns(merged, entries)

	recurring := insights.DetectRecurring(merged)
	if err := s.store.ReplaceRecurringItems(ctx, userID, recurring); err != nil {
		return SyncResult{}, fmt.Errorf("save recurring items: %w", err)
	}

	if len(merged) > 0 {
		if err := s.store.UpsertTransactions(ctx, userID, merged); err != nil {
			return SyncResult{}, fmt.Errorf("save transactions: %w", err)
		}
	}
	if err := s.store.SetLastSync(ctx, userID, s.now()); err != nil {
		return SyncResult{}, fmt.Errorf("record sync time: %w", err)
	}

	s.sessions[userID] = merged
	s.cache.Invalidate(ctx, userID)

	s.log.Info().
		Str("user", userID).
		Int("new", len(batch)).
		Int("total", len(merged)).
		Bool("incremental", req.Incremental).
		Msg("sync complete")

	return SyncResult{
		NewTransactions:   len(batch),
		TotalTransactions: len(merged),
		RecurringItems:    len(recurring),
	}, nil
}

// Transactions returns the user's current collection, newest first.
func (s *Service) Transactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection(ctx, userID)
}

// SetOverride stores a local override and re-resolves the collection so the
// correction applies immediately. Pattern tags are left as-is; the next sync
// cycle recomputes them.
func (s *Service) SetOverride(ctx context.Context, userID, rawText string, override model.LocalOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rawText = strings.ToLower(strings.TrimSpace(rawText))
	if rawText == "" {
		return errors.New("raw text must not be empty")
	}
	if err := s.store.PutLocalOverride(ctx, userID, rawText, override); err != nil {
		return err
	}

	txns, err := s.collection(ctx, userID)
	if err != nil {
		return err
	}
	for i := range txns {
		if strings.ToLower(txns[i].RawText) != rawText {
			continue
		}
		txns[i].Category = override.Category
		txns[i].DisplayName = override.DisplayName
		txns[i].ConsolidatedName = override.ConsolidatedName
		txns[i].Dimensions.What = override.Category
		txns[i].Source = model.SourceManual
		txns[i].Confidence = 1.0
	}
	if len(txns) > 0 {
		if err := s.store.UpsertTransactions(ctx, userID, txns); err != nil {
			return fmt.Errorf("save transactions: %w", err)
		}
	}
	s.sessions[userID] = txns
	s.cache.Invalidate(ctx, userID)
	return nil
}

// Forecast computes the period-end projection for the current salary
// period.
func (s *Service) Forecast(ctx context.Context, userID string) (insights.Forecast, error) {
	var cached insights.Forecast
	if s.cache.Get(ctx, userID, "forecast", &cached) {
		return cached, nil
	}

	txns, entries, err := s.reportInputs(ctx, userID)
	if err != nil {
		return insights.Forecast{}, err
	}
	now := s.now()
	det := insights.DetectSalary(txns)
	start, _ := insights.SalaryPeriod(det, now)
	end := insights.NextSalaryDate(det, serverNextSalary(entries), entries, now)

	forecast := insights.ForecastPeriod(txns, start, end, now)
	s.cache.Set(ctx, userID, "forecast", forecast)
	return forecast, nil
}

// Trends computes the per-category month-over-month movement.
func (s *Service) Trends(ctx context.Context, userID string) ([]insights.CategoryTrend, error) {
	var cached []insights.CategoryTrend
	if s.cache.Get(ctx, userID, "trends", &cached) {
		return cached, nil
	}

	txns, _, err := s.reportInputs(ctx, userID)
	if err != nil {
		return nil, err
	}
	trends := insights.CategoryTrends(txns, s.now())
	s.cache.Set(ctx, userID, "trends", trends)
	return trends, nil
}

// Goals computes the per-goal trajectory for the current salary period.
func (s *Service) Goals(ctx context.Context, userID string) ([]insights.GoalForecast, error) {
	var cached []insights.GoalForecast
	if s.cache.Get(ctx, userID, "goals", &cached) {
		return cached, nil
	}

	txns, entries, err := s.reportInputs(ctx, userID)
	if err != nil {
		return nil, err
	}
	goals, err := s.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	now := s.now()
	det := insights.DetectSalary(txns)
	start, _ := insights.SalaryPeriod(det, now)
	end := insights.NextSalaryDate(det, serverNextSalary(entries), entries, now)

	out := insights.ForecastGoals(txns, goals, start, end, now)
	s.cache.Set(ctx, userID, "goals", out)
	return out, nil
}

// Salary computes the inferred pay schedule and reporting window.
func (s *Service) Salary(ctx context.Context, userID string) (SalaryReport, error) {
	var cached SalaryReport
	if s.cache.Get(ctx, userID, "salary", &cached) {
		return cached, nil
	}

	txns, entries, err := s.reportInputs(ctx, userID)
	if err != nil {
		return SalaryReport{}, err
	}
	now := s.now()
	det := insights.DetectSalary(txns)
	start, end := insights.SalaryPeriod(det, now)

	report := SalaryReport{
		Detection:   det,
		NextDate:    insights.NextSalaryDate(det, serverNextSalary(entries), entries, now),
		PeriodStart: start,
		PeriodEnd:   end,
	}
	s.cache.Set(ctx, userID, "salary", report)
	return report, nil
}

// DailyBudget computes today's allowance.
func (s *Service) DailyBudget(ctx context.Context, userID string) (DailyBudgetReport, error) {
	var cached DailyBudgetReport
	if s.cache.Get(ctx, userID, "daily-budget", &cached) {
		return cached, nil
	}

	txns, entries, err := s.reportInputs(ctx, userID)
	if err != nil {
		return DailyBudgetReport{}, err
	}
	items, err := s.store.ListRecurringItems(ctx, userID)
	if err != nil {
		return DailyBudgetReport{}, fmt.Errorf("load recurring items: %w", err)
	}

	now := s.now()
	det := insights.DetectSalary(txns)
	start, _ := insights.SalaryPeriod(det, now)
	nextSalary := insights.NextSalaryDate(det, serverNextSalary(entries), entries, now)
	monthlyBudget := monthlyBudgetPreference(entries)

	report := DailyBudgetReport{
		Allowance:     insights.DailyBudget(txns, monthlyBudget, start, now, nextSalary),
		MonthlyBudget: monthlyBudget,
		RecurringLoad: insights.RecurringLoad(items),
	}
	s.cache.Set(ctx, userID, "daily-budget", report)
	return report, nil
}

// replaceTables swaps in the sync payload's lookup tables. Absent tables are
// kept as-is so a pure row sync does not wipe configuration.
func (s *Service) replaceTables(ctx context.Context, userID string, req SyncRequest) error {
	if req.MerchantRules != nil {
		if err := s.store.ReplaceMerchantRules(ctx, userID, req.MerchantRules); err != nil {
			return fmt.Errorf("replace merchant rules: %w", err)
		}
	}
	if req.Recipients != nil {
		if err := s.store.ReplaceRecipients(ctx, userID, req.Recipients); err != nil {
			return fmt.Errorf("replace recipients: %w", err)
		}
	}
	if req.FXRates != nil {
		if err := s.store.ReplaceFXRates(ctx, userID, req.FXRates); err != nil {
			return fmt.Errorf("replace fx rates: %w", err)
		}
	}
	if req.UserContext != nil {
		if err := s.store.ReplaceUserContext(ctx, userID, req.UserContext); err != nil {
			return fmt.Errorf("replace user context: %w", err)
		}
	}
	if req.Goals != nil {
		if err := s.store.ReplaceGoals(ctx, userID, req.Goals); err != nil {
			return fmt.Errorf("replace goals: %w", err)
		}
	}
	return nil
}

func (s *Service) classifyContext(ctx context.Context, userID string) (*classify.Context, error) {
	rules, err := s.store.ListMerchantRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load merchant rules: %w", err)
	}
	overrides, err := s.store.ListLocalOverrides(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load local overrides: %w", err)
	}
	recipients, err := s.store.ListRecipients(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	rates, err := s.store.ListFXRates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load fx rates: %w", err)
	}
	return &classify.Context{
		Rates:      classify.RateTable(rates),
		Rules:      rules,
		Overrides:  overrides,
		Recipients: recipients,
		Now:        s.now,
	}, nil
}

// collection returns the in-memory collection, hydrating it from the store
// on first access after startup.
func (s *Service) collection(ctx context.Context, userID string) ([]model.Transaction, error) {
	if txns, ok := s.sessions[userID]; ok {
		return txns, nil
	}
	txns, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	s.sessions[userID] = txns
	return txns, nil
}

func (s *Service) reportInputs(ctx context.Context, userID string) ([]model.Transaction, []model.UserContextEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txns, err := s.collection(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.store.ListUserContext(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user context: %w", err)
	}
	return txns, entries, nil
}

// serverNextSalary extracts a backend-asserted next pay date from the
// context entries, when present.
func serverNextSalary(entries []model.UserContextEntry) *time.Time {
	for _, e := range entries {
		meta := strings.ToLower(e.Type + " " + e.Key)
		if !strings.Contains(meta, "next salary") && !strings.Contains(meta, "next pay") {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if ts, err := time.Parse(layout, strings.TrimSpace(e.Value)); err == nil {
				return &ts
			}
		}
	}
	return nil
}

// monthlyBudgetPreference extracts a configured monthly budget from the
// context entries; zero means none configured.
func monthlyBudgetPreference(entries []model.UserContextEntry) float64 {
	for _, e := range entries {
		meta := strings.ToLower(e.Type + " " + e.Key)
		if !strings.Contains(meta, "monthly budget") && !strings.Contains(meta, "budget") {
			continue
		}
		value := strings.ReplaceAll(strings.TrimSpace(e.Value), ",", "")
		if budget, err := strconv.ParseFloat(value, 64); err == nil && budget > 0 {
			return budget
		}
	}
	return 0
}
