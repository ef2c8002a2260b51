// Package model defines the domain types shared across the engine.
package model

import (
	"encoding/json"
	"time"
)

// Direction indicates money flow relative to the user's account.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// SizeTier buckets a transaction by base-currency amount.
type SizeTier string

const (
	SizeSmall  SizeTier = "Small"
	SizeMedium SizeTier = "Medium"
	SizeLarge  SizeTier = "Large"
)

// PatternTag is a behavioral label assigned after normalization.
type PatternTag string

const (
	PatternNormal       PatternTag = "Normal"
	PatternNightOut     PatternTag = "Night Out"
	PatternWorkExpense  PatternTag = "Work Expense"
	PatternSplurge      PatternTag = "Splurge"
	PatternSubscription PatternTag = "Subscription"
)

// Time-context tags derived from the transaction timestamp.
const (
	TimeMorning   = "Morning"
	TimeAfternoon = "Afternoon"
	TimeEvening   = "Evening"
	TimeLateNight = "Late Night"
	TimeWorkHours = "Work Hours"
	TimeWeekend   = "Weekend"
)

// MatchType records how a recipient was resolved.
type MatchType string

const (
	MatchPhone     MatchType = "phone"
	MatchAccount   MatchType = "account"
	MatchName      MatchType = "name"
	MatchShortName MatchType = "shortName"
	MatchManual    MatchType = "manual"
	MatchServer    MatchType = "server"
)

// Source records which resolution path produced the classification.
type Source string

const (
	SourceRule   Source = "rule"
	SourceAI     Source = "ai"
	SourceManual Source = "manual"
)

// Dimensions are the four independent classification axes of a transaction.
type Dimensions struct {
	What    string     `json:"what"`
	When    []string   `json:"when"`
	Size    SizeTier   `json:"size"`
	Pattern PatternTag `json:"pattern"`
}

// RecipientMatch is a resolved recipient plus provenance.
type RecipientMatch struct {
	Recipient Recipient `json:"recipient"`
	MatchType MatchType `json:"matchType"`
}

// Transaction is the canonical normalized record. Identity fields are
// immutable after normalization; classification fields may be rewritten by
// the pattern detector or by explicit user/server corrections.
type Transaction struct {
	ID             string    `json:"id,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Direction      Direction `json:"direction"`
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	AmountBase     float64   `json:"amountBase"`

	RawText      string `json:"rawText"`
	Counterparty string `json:"counterparty"`
	Card         string `json:"card,omitempty"`
	TxnType      string `json:"txnType,omitempty"`

	Category         string     `json:"category"`
	DisplayName      string     `json:"displayName"`
	ConsolidatedName string     `json:"consolidatedName"`
	Dimensions       Dimensions `json:"dimensions"`

	// Cached from dimensions for fast filtering.
	IsSalary    bool `json:"isSalary"`
	IsLarge     bool `json:"isLarge"`
	IsLateNight bool `json:"isLateNight"`
	IsWorkHours bool `json:"isWorkHours"`
	IsWeekend   bool `json:"isWeekend"`

	Recipient *RecipientMatch `json:"recipient,omitempty"`

	Confidence float64        `json:"confidence"`
	Source     Source         `json:"source"`
	Context    map[string]any `json:"context,omitempty"`
}

// RawRow is a single ingestion row as received from the sync layer.
// Timestamp and Amount are left raw because the upstream sheet export mixes
// ISO strings with spreadsheet serial numbers.
type RawRow struct {
	ID              string          `json:"id,omitempty"`
	Timestamp       json.RawMessage `json:"timestamp"`
	Direction       string          `json:"direction"`
	Amount          json.RawMessage `json:"amount"`
	Currency        string          `json:"currency"`
	AmountConverted *float64        `json:"amountConverted,omitempty"`
	AmountApprox    *float64        `json:"amountApprox,omitempty"`
	RawText         string          `json:"rawText"`
	Counterparty    string          `json:"counterparty"`
	Card            string          `json:"card,omitempty"`
	TxnType         string          `json:"txnType,omitempty"`
	Category        string          `json:"category,omitempty"`
	AICategory      string          `json:"aiCategory,omitempty"`
	IsSalary        *bool           `json:"isSalary,omitempty"`
	TimeTags        []string        `json:"timeTags,omitempty"`
	SizeTier        string          `json:"sizeTier,omitempty"`
	Pattern         string          `json:"pattern,omitempty"`
	RecipientID     string          `json:"recipientId,omitempty"`
	Context         string          `json:"context,omitempty"`
}

// MerchantRule maps a raw-text substring to a curated merchant identity.
type MerchantRule struct {
	PatternText      string `json:"patternText"`
	DisplayName      string `json:"displayName"`
	ConsolidatedName string `json:"consolidatedName"`
	Category         string `json:"category"`
}

// LocalOverride is a user correction keyed by exact lowercased raw text.
// It wins over every other resolution source.
type LocalOverride struct {
	DisplayName      string `json:"displayName"`
	ConsolidatedName string `json:"consolidatedName"`
	Category         string `json:"category"`
}

// Recipient is a known transfer counterparty.
type Recipient struct {
	ID          string `json:"id"`
	Phone       string `json:"phone,omitempty"`
	BankAccount string `json:"bankAccount,omitempty"`
	ShortName   string `json:"shortName,omitempty"`
	LongName    string `json:"longName,omitempty"`
}

// UserContextEntry is a free-text correction supplied by the user. Entries
// only exempt transactions from splurge tagging; they never re-categorize.
type UserContextEntry struct {
	Type    string `json:"type"`
	Key     string `json:"key,omitempty"`
	Value   string `json:"value"`
	Details string `json:"details,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Goal is a per-category monthly spending limit.
type Goal struct {
	Category     string  `json:"category"`
	MonthlyLimit float64 `json:"monthlyLimit"`
}

// RecurringItem is a detected or server-supplied recurring payment.
type RecurringItem struct {
	Merchant      string    `json:"merchant"`
	Category      string    `json:"category"`
	AverageAmount float64   `json:"averageAmount"`
	IntervalDays  float64   `json:"intervalDays"`
	NextExpected  time.Time `json:"nextExpected"`
	Active        bool      `json:"active"`
	Confidence    float64   `json:"confidence"`
}

// SalaryCycle is the inferred pay schedule.
type SalaryCycle struct {
	PayDay           int       `json:"payDay,omitempty"`
	IntervalDays     float64   `json:"intervalDays"`
	ModalAmount      float64   `json:"modalAmount"`
	NextExpectedDate time.Time `json:"nextExpectedDate"`
}
