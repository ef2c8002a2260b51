package classify

import (
	"regexp"
	"strings"

	"github.com/flowapp/flow-backend/internal/model"
)

const countryCodePrefix = "974"

var nonDigits = regexp.MustCompile(`\D+`)

// NormalizePhone strips non-digits and a leading country-code prefix when the
// remainder still looks like a full local number.
func NormalizePhone(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if strings.HasPrefix(digits, countryCodePrefix) && len(digits)-len(countryCodePrefix) >= 8 {
		digits = digits[len(countryCodePrefix):]
	}
	return digits
}

// extractDigits returns the concatenated digit stream of a string.
func extractDigits(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

// A recipientMatcher reports whether a single recipient matches the
// counterparty text. Matchers run in priority order across all recipients, so
// a phone match on a later recipient still beats a short-name match on an
// earlier one.
type recipientMatcher struct {
	matchType model.MatchType
	matches   func(text, lowerText, digits string, r model.Recipient) bool
}

var recipientMatchers = []recipientMatcher{
	{model.MatchPhone, matchByPhone},
	{model.MatchAccount, matchByAccount},
	{model.MatchName, matchByFullName},
	{model.MatchName, matchByReversedName},
	{model.MatchShortName, matchByShortName},
}

// MatchRecipient resolves a transfer's free-text counterparty to a known
// recipient. Returns nil when nothing matches; callers must not treat that as
// an error.
func MatchRecipient(text string, recipients []model.Recipient) *model.RecipientMatch {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lowerText := strings.ToLower(text)
	digits := extractDigits(text)

	for _, m := range recipientMatchers {
		for _, r := range recipients {
			if m.matches(text, lowerText, digits, r) {
				return &model.RecipientMatch{Recipient: r, MatchType: m.matchType}
			}
		}
	}
	return nil
}

func matchByPhone(_, _, digits string, r model.Recipient) bool {
	phone := NormalizePhone(r.Phone)
	return phone != "" && strings.Contains(digits, phone)
}

func matchByAccount(_, lowerText, digits string, r model.Recipient) bool {
	account := strings.TrimSpace(r.BankAccount)
	if account == "" {
		return false
	}
	if strings.Contains(lowerText, strings.ToLower(account)) {
		return true
	}
	accountDigits := extractDigits(account)
	if len(accountDigits) < 4 {
		return false
	}
	return strings.Contains(digits, accountDigits[len(accountDigits)-4:])
}

// matchByFullName: every substantial word of the recipient's long name
// appears in the counterparty text.
func matchByFullName(_, lowerText string, _ string, r model.Recipient) bool {
	words := substantialWords(r.LongName)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(lowerText, w) {
			return false
		}
	}
	return true
}

// matchByReversedName: every substantial word of the counterparty text
// appears inside the recipient's long name. Handles truncated or reordered
// SMS names ("Afif Bou Nassif" vs "AFIF BOU NASSIF OR NICOLE DAOU").
func matchByReversedName(text, _, _ string, r model.Recipient) bool {
	longName := strings.ToLower(r.LongName)
	if strings.TrimSpace(longName) == "" {
		return false
	}
	words := substantialWords(text)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(longName, w) {
			return false
		}
	}
	return true
}

func matchByShortName(_, lowerText string, _ string, r model.Recipient) bool {
	short := strings.ToLower(strings.TrimSpace(r.ShortName))
	if len(short) < 3 {
		return false
	}
	pattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(short) + `\b`)
	if err != nil {
		return false
	}
	return pattern.MatchString(lowerText)
}

// substantialWords returns the lowercased whitespace-delimited words longer
// than two characters.
func substantialWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}
