package classify

import (
	"strings"

	"github.com/flowapp/flow-backend/internal/model"
)

// Resolution is the outcome of category resolution for one transaction.
type Resolution struct {
	DisplayName      string
	ConsolidatedName string
	Category         string
	Source           model.Source
	Confidence       float64
}

// resolveInput carries everything a resolution step may consult.
type resolveInput struct {
	rawText      string // original raw text
	lowerText    string // lowercased raw text, the match key
	aiCategory   string
	counterparty string // pre-cleaned upstream
	dbCategory   string
	rules        []model.MerchantRule
	overrides    map[string]model.LocalOverride
}

// A resolveStep returns a Resolution and whether it matched. Steps are
// evaluated in order with first-match-wins semantics so the priority chain
// stays independently testable.
type resolveStep func(in resolveInput) (Resolution, bool)

var resolveChain = []resolveStep{
	resolveLocalOverride,
	resolveBackendCategory,
	resolveMerchantRule,
	resolveFallback,
}

// Resolve assigns a category and display identity to a raw transaction
// description. Pure and deterministic: the same inputs always produce the
// same resolution.
func Resolve(rawText, aiCategory, counterparty, dbCategory string, rules []model.MerchantRule, overrides map[string]model.LocalOverride) Resolution {
	in := resolveInput{
		rawText:      rawText,
		lowerText:    strings.ToLower(rawText),
		aiCategory:   aiCategory,
		counterparty: strings.TrimSpace(counterparty),
		dbCategory:   dbCategory,
		rules:        rules,
		overrides:    overrides,
	}
	for _, step := range resolveChain {
		if res, ok := step(in); ok {
			return res
		}
	}
	// resolveFallback always matches; not reached.
	return Resolution{Category: CategoryUncategorized, Source: model.SourceRule}
}

// resolveLocalOverride: an exact-text user correction is always
// authoritative. This is how a manual fix sticks across future identical
// transactions before the server round-trips.
func resolveLocalOverride(in resolveInput) (Resolution, bool) {
	ov, ok := in.overrides[in.lowerText]
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		DisplayName:      ov.DisplayName,
		ConsolidatedName: ov.ConsolidatedName,
		Category:         ov.Category,
		Source:           model.SourceManual,
		Confidence:       1.0,
	}, true
}

// resolveBackendCategory trusts a category the backend already wrote. When
// the AI-suggested subcategory maps onto the canonical set, it is preferred
// over the coarser backend label.
func resolveBackendCategory(in resolveInput) (Resolution, bool) {
	if strings.TrimSpace(in.dbCategory) == "" {
		return Resolution{}, false
	}
	name := in.displayText()
	category := CanonicalCategory(in.dbCategory)
	if category == "" {
		category = in.dbCategory
	}
	source := model.SourceRule
	if ai := CanonicalCategory(in.aiCategory); ai != "" {
		category = ai
		source = model.SourceAI
	}
	return Resolution{
		DisplayName:      name,
		ConsolidatedName: name,
		Category:         category,
		Source:           source,
		Confidence:       0.9,
	}, true
}

// resolveMerchantRule applies the first curated rule whose pattern text is a
// substring of the lowercased raw text.
func resolveMerchantRule(in resolveInput) (Resolution, bool) {
	for _, rule := range in.rules {
		pattern := strings.ToLower(strings.TrimSpace(rule.PatternText))
		if pattern == "" || !strings.Contains(in.lowerText, pattern) {
			continue
		}
		category := CanonicalCategory(rule.Category)
		if category == "" {
			category = rule.Category
		}
		display := rule.DisplayName
		if display == "" {
			display = in.displayText()
		}
		consolidated := rule.ConsolidatedName
		if consolidated == "" {
			consolidated = display
		}
		return Resolution{
			DisplayName:      display,
			ConsolidatedName: consolidated,
			Category:         category,
			Source:           model.SourceRule,
			Confidence:       0.8,
		}, true
	}
	return Resolution{}, false
}

func resolveFallback(in resolveInput) (Resolution, bool) {
	name := in.displayText()
	return Resolution{
		DisplayName:      name,
		ConsolidatedName: name,
		Category:         CategoryUncategorized,
		Source:           model.SourceRule,
		Confidence:       0.3,
	}, true
}

// displayText prefers the pre-cleaned counterparty over the raw SMS text.
func (in resolveInput) displayText() string {
	if in.counterparty != "" {
		return in.counterparty
	}
	return strings.TrimSpace(in.rawText)
}
