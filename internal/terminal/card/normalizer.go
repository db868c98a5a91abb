// Package card canonicalizes raw NFC tag identifiers. Different scanners and
// manual-entry paths format the same physical UID differently (colon or dash
// separators, mixed case, partial prefixes), so every comparison in the
// system goes through a single canonical form.
package card

import "strings"

// Prefix is the canonical prefix every normalized card identifier carries.
const Prefix = "CARD-"

// Unknown is the sentinel produced for empty or unreadable raw input.
const Unknown = "CARD-UNKNOWN"

// Normalize strips every non-alphanumeric character from raw, uppercases the
// remainder, and ensures exactly one canonical CARD- prefix. A cleaned value
// that already begins with the letters CARD gets a single hyphen reinserted
// after them rather than a duplicated prefix.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return Unknown
	}
	if strings.HasPrefix(cleaned, "CARD") {
		return "CARD-" + cleaned[len("CARD"):]
	}
	return Prefix + cleaned
}

// MatchesAny resolves a raw scanned value against a set of stored
// identifiers. Rules are tried in order and the first hit wins:
//  1. exact case-insensitive match against the stored string as-is
//  2. equality after normalizing both sides
//  3. equality after normalizing both sides and dropping the prefix
//  4. the raw's normalized suffix equals a prefixed stored id's suffix
//
// Returns the stored identifier that matched, or ("", false).
func MatchesAny(raw string, candidates []string) (string, bool) {
	normRaw := Normalize(raw)
	if normRaw == Unknown {
		return "", false
	}
	rawSuffix := strings.TrimPrefix(normRaw, Prefix)

	for _, stored := range candidates {
		if strings.EqualFold(raw, stored) {
			return stored, true
		}
	}
	for _, stored := range candidates {
		if normRaw == Normalize(stored) {
			return stored, true
		}
	}
	for _, stored := range candidates {
		if rawSuffix == strings.TrimPrefix(Normalize(stored), Prefix) {
			return stored, true
		}
	}
	for _, stored := range candidates {
		upper := strings.ToUpper(stored)
		if strings.HasPrefix(upper, Prefix) && rawSuffix == strings.TrimPrefix(upper, Prefix) {
			return stored, true
		}
	}
	return "", false
}
