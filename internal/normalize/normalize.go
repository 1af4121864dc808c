// Package normalize coerces the allocator's raw input text into the
// canonical integer join keys and identifier strings the rest of the
// engine assumes, and derives the natural-order mentor sort key.
package normalize

import (
	"strconv"
	"strings"
)

// digitFold maps Persian (U+06F0-U+06F9) and Arabic-Indic (U+0660-U+0669)
// digits onto ASCII '0'-'9'.
var digitFold = map[rune]rune{
	'۰': '0', '۱': '1', '۲': '2', '۳': '3', '۴': '4',
	'۵': '5', '۶': '6', '۷': '7', '۸': '8', '۹': '9',
	'٠': '0', '١': '1', '٢': '2', '٣': '3', '٤': '4',
	'٥': '5', '٦': '6', '٧': '7', '٨': '8', '٩': '9',
}

// letterFold maps the Arabic presentation forms of two letters onto
// their Persian keyboard equivalents.
var letterFold = map[rune]rune{
	'ي': 'ی',
	'ك': 'ک',
}

const zeroWidthJoiner = '‌'

// Text folds Persian/Arabic digits and letters to their ASCII/Persian
// canonical forms and strips zero-width joiners. It does not trim
// whitespace; callers needing a trimmed identifier should call
// strings.TrimSpace on the result themselves, or use NationalCode for
// the national-code-specific rules.
func Text(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == zeroWidthJoiner {
			continue
		}
		if folded, ok := digitFold[r]; ok {
			r = folded
		} else if folded, ok := letterFold[r]; ok {
			r = folded
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NationalCode normalizes a national-code identifier: digit/letter
// folding, zero-width-joiner stripping, leading/trailing whitespace
// trim, and removal of the common separators '-' and ' ' that appear
// inside the code itself.
func NationalCode(s string) string {
	folded := Text(strings.TrimSpace(s))
	folded = strings.ReplaceAll(folded, "-", "")
	folded = strings.ReplaceAll(folded, " ", "")
	return folded
}

// MentorID normalizes a mentor identifier: digit/letter folding,
// zero-width-joiner stripping, and whitespace trim. Internal separators
// are preserved since they are significant to the natural sort key.
func MentorID(s string) string {
	return strings.TrimSpace(Text(s))
}

// Int coerces a raw join-key value to an integer after digit folding.
// Returns ok=false when the value cannot be parsed.
func Int(raw string) (value int, ok bool) {
	folded := strings.TrimSpace(Text(raw))
	if folded == "" {
		return 0, false
	}
	n, err := strconv.Atoi(folded)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortKey is the total-order key used to break ties between mentors
// with equal ranking-rule scores: lexicographic on Prefix, then numeric
// on Digits, then lexicographic on Raw (the normalized original
// string). Strings without a trailing digit run get Digits == 0 and
// Prefix == the whole string, per spec.md §4.2.
type SortKey struct {
	Prefix string
	Digits int
	Raw    string
}

// Less reports whether a sorts before b under the natural-order rule:
// prefix lexicographic, then digits numeric, then raw lexicographic.
// This is a total order: any two distinct SortKeys compare unequal on
// at least Raw, which is injective over normalized mentor IDs.
func (a SortKey) Less(b SortKey) bool {
	if a.Prefix != b.Prefix {
		return a.Prefix < b.Prefix
	}
	if a.Digits != b.Digits {
		return a.Digits < b.Digits
	}
	return a.Raw < b.Raw
}

// SchoolTokens splits a possibly multi-valued school-code string on the
// common delimiters ',', ';' and '|', trims whitespace from each token,
// and folds digits. Empty tokens are dropped; callers apply the
// empty/zero-as-wildcard policy flags themselves.
func SchoolTokens(raw string) []string {
	folded := Text(raw)
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// NaturalSortKey decomposes a normalized mentor ID into its natural
// sort key: the longest non-digit prefix followed by a trailing run of
// digits. A string with no trailing digit run yields
// SortKey{Prefix: s, Digits: 0, Raw: s}.
func NaturalSortKey(normalizedMentorID string) SortKey {
	s := normalizedMentorID
	end := len(s)
	start := end
	for start > 0 && s[start-1] >= '0' && s[start-1] <= '9' {
		start--
	}
	if start == end {
		// no trailing digit run
		return SortKey{Prefix: s, Digits: 0, Raw: s}
	}
	digits := s[start:end]
	n, err := strconv.Atoi(digits)
	if err != nil {
		// digits run overflows int; treat as no trailing digits rather
		// than silently truncating the comparison.
		return SortKey{Prefix: s, Digits: 0, Raw: s}
	}
	return SortKey{Prefix: s[:start], Digits: n, Raw: s}
}
