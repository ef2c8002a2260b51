// Package classify turns raw ingestion rows into canonical transactions:
// category resolution, recipient matching, currency conversion and the
// derived time/size dimensions.
package classify

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CategoryUncategorized is the fallback when no resolution source matches.
const CategoryUncategorized = "Uncategorized"

// canonicalCategories is the category set all sources are mapped onto.
var canonicalCategories = map[string]bool{
	"Groceries":        true,
	"Dining":           true,
	"Coffee":           true,
	"Bars & Nightlife": true,
	"Shopping":         true,
	"Transport":        true,
	"Travel":           true,
	"Entertainment":    true,
	"Utilities":        true,
	"Rent":             true,
	"Health":           true,
	"Education":        true,
	"Salary":           true,
	"Transfer":         true,
	"Fees":             true,
	CategoryUncategorized: true,
}

// legacyCategoryMap translates alternate or legacy subcategory labels still
// present in older backend rows and AI suggestions onto the canonical set.
var legacyCategoryMap = map[string]string{
	"Bars & Hotels":   "Bars & Nightlife",
	"Nightlife":       "Bars & Nightlife",
	"Transfers":       "Transfer",
	"Restaurants":     "Dining",
	"Food & Drink":    "Dining",
	"Cafes":           "Coffee",
	"Cafe":            "Coffee",
	"Supermarket":     "Groceries",
	"Transportation":  "Transport",
	"Medical":         "Health",
	"Pharmacy":        "Health",
	"Bills":           "Utilities",
	"Subscriptions":   "Entertainment",
	"Bank Fees":       "Fees",
	"Uncategorised":   CategoryUncategorized,
}

// CanonicalCategory maps a label from any source onto the canonical set.
// Returns "" when the label is empty or unknown.
func CanonicalCategory(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	if mapped, ok := legacyCategoryMap[label]; ok {
		return mapped
	}
	if canonicalCategories[label] {
		return label
	}
	return ""
}

var (
	branchSuffix = regexp.MustCompile(`(?i)\s+(branch|br|doha|qatar|qa|wll|llc|co)\.?$`)
	longNumbers  = regexp.MustCompile(`\d{6,}`)
	specialChars = regexp.MustCompile(`[*#]+`)
	titleCaser   = cases.Title(language.English)
)

// CleanCounterparty tidies a raw counterparty string for display: strips
// trailing branch suffixes, long card/reference numbers and separator
// characters, then title-cases each word.
func CleanCounterparty(raw string) string {
	cleaned := branchSuffix.ReplaceAllString(raw, "")
	cleaned = longNumbers.ReplaceAllString(cleaned, "")
	cleaned = specialChars.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	words := strings.Fields(cleaned)
	for i, word := range words {
		if len(word) > 2 {
			words[i] = titleCaser.String(strings.ToLower(word))
		} else {
			words[i] = strings.ToUpper(word)
		}
	}

	result := strings.Join(words, " ")
	if len(result) > 50 {
		result = result[:50]
	}
	return result
}
