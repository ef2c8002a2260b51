package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowapp/flow-backend/internal/model"
)

// MemoryStore implements Store with in-memory maps, used for local
// development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	transactions   map[string]map[string]model.Transaction // user -> idempotency key -> txn
	merchantRules  map[string][]model.MerchantRule
	recipients     map[string][]model.Recipient
	fxRates        map[string]map[string]float64
	userContext    map[string][]model.UserContextEntry
	goals          map[string][]model.Goal
	localOverrides map[string]map[string]model.LocalOverride
	recurringItems map[string][]model.RecurringItem
	lastSync       map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions:   make(map[string]map[string]model.Transaction),
		merchantRules:  make(map[string][]model.MerchantRule),
		recipients:     make(map[string][]model.Recipient),
		fxRates:        make(map[string]map[string]float64),
		userContext:    make(map[string][]model.UserContextEntry),
		goals:          make(map[string][]model.Goal),
		localOverrides: make(map[string]map[string]model.LocalOverride),
		recurringItems: make(map[string][]model.RecurringItem),
		lastSync:       make(map[string]time.Time),
	}
}

func (s *MemoryStore) UpsertTransactions(_ context.Context, userID string, txns []model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.transactions[userID]
	if !ok {
		byKey = make(map[string]model.Transaction)
		s.transactions[userID] = byKey
	}
	for _, t := range txns {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		key := t.IdempotencyKey
		if key == "" {
			key = t.ID
		}
		byKey[key] = t
	}
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byKey := s.transactions[userID]
	out := make([]model.Transaction, 0, len(byKey))
	for _, t := range byKey {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (s *MemoryStore) ReplaceMerchantRules(_ context.Context, userID string, rules []model.MerchantRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merchantRules[userID] = append([]model.MerchantRule(nil), rules...)
	return nil
}

func (s *MemoryStore) ListMerchantRules(_ context.Context, userID string) ([]model.MerchantRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.MerchantRule(nil), s.merchantRules[userID]...), nil
}

func (s *MemoryStore) ReplaceRecipients(_ context.Context, userID string, recipients []model.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[userID] = append([]model.Recipient(nil), recipients...)
	return nil
}

func (s *MemoryStore) ListRecipients(_ context.Context, userID string) ([]model.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Recipient(nil), s.recipients[userID]...), nil
}

func (s *MemoryStore) ReplaceFXRates(_ context.Context, userID string, rates map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]float64, len(rates))
	for k, v := range rates {
		copied[k] = v
	}
	s.fxRates[userID] = copied
	return nil
}

func (s *MemoryStore) ListFXRates(_ context.Context, userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.fxRates[userID]))
	for k, v := range s.fxRates[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) ReplaceUserContext(_ context.Context, userID string, entries []model.UserContextEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userContext[userID] = append([]model.UserContextEntry(nil), entries...)
	return nil
}

func (s *MemoryStore) ListUserContext(_ context.Context, userID string) ([]model.UserContextEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.UserContextEntry(nil), s.userContext[userID]...), nil
}

func (s *MemoryStore) ReplaceGoals(_ context.Context, userID string, goals []model.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[userID] = append([]model.Goal(nil), goals...)
	return nil
}

func (s *MemoryStore) ListGoals(_ context.Context, userID string) ([]model.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Goal(nil), s.goals[userID]...), nil
}

func (s *MemoryStore) PutLocalOverride(_ context.Context, userID, rawText string, override model.LocalOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byText, ok := s.localOverrides[userID]
	if !ok {
		byText = make(map[string]model.LocalOverride)
		s.localOverrides[userID] = byText
	}
	byText[rawText] = override
	return nil
}

func (s *MemoryStore) ListLocalOverrides(_ context.Context, userID string) (map[string]model.LocalOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.LocalOverride, len(s.localOverrides[userID]))
	for k, v := range s.localOverrides[userID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) ReplaceRecurringItems(_ context.Context, userID string, items []model.RecurringItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recurringItems[userID] = append([]model.RecurringItem(nil), items...)
	return nil
}

func (s *MemoryStore) ListRecurringItems(_ context.Context, userID string) ([]model.RecurringItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.RecurringItem(nil), s.recurringItems[userID]...), nil
}

func (s *MemoryStore) SetLastSync(_ context.Context, userID string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync[userID] = ts
	return nil
}

func (s *MemoryStore) GetLastSync(_ context.Context, userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.lastSync[userID]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return ts, nil
}
