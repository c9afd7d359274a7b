// Package identity implements the athlete identity-resolution core: name
// normalization, similarity scoring, resolve-or-create, and duplicate merge.
package identity

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Some source systems bake a session or birth date into the athlete folder
// name ("Weiss, Ryan 11-25"). These patterns strip the common numeric forms
// before any matching happens.
var (
	fullDateRe = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{4}|\d{4}-\d{1,2}-\d{1,2})\b`)
	bareDateRe = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}\b`)
	bareYearRe = regexp.MustCompile(`\b\d{4}\b`)
	multiSpace = regexp.MustCompile(`\s{2,}`)
)

// Normalize turns a raw athlete name into the canonical comparison key:
//  1. Strip calendar-date substrings (MM/DD/YYYY, MM-DD-YYYY, YYYY-MM-DD,
//     and bare MM-DD / MM/DD tokens).
//  2. Strip bare 4-digit year tokens.
//  3. Trim surrounding whitespace.
//  4. Reorder a single-comma "Last, First" into "First Last". Two or more
//     commas are ambiguous and left unchanged.
//  5. Collapse whitespace runs and uppercase.
//
// Empty or whitespace-only input returns "". The result is the basis of the
// store's uniqueness constraint: these rules must not change without a
// migration that re-normalizes every existing row.
func Normalize(raw string) string {
	name := stripDates(raw)
	name = reorderComma(name)

	name = multiSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	return strings.ToUpper(name)
}

// DisplayName renders a raw name for humans: same date stripping and comma
// reordering as Normalize, but Title Case instead of uppercase. Never used
// for matching.
func DisplayName(raw string) string {
	name := stripDates(raw)
	name = reorderComma(name)

	name = multiSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	return cases.Title(language.English).String(strings.ToLower(name))
}

func stripDates(name string) string {
	name = fullDateRe.ReplaceAllString(name, " ")
	name = bareDateRe.ReplaceAllString(name, " ")
	name = bareYearRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// reorderComma rewrites "Last, First" as "First Last" when the string splits
// on exactly one comma into two non-empty parts. Anything else is returned
// unchanged rather than guessed at.
func reorderComma(name string) string {
	if strings.Count(name, ",") != 1 {
		return name
	}
	last, first, _ := strings.Cut(name, ",")
	last = strings.TrimSpace(last)
	first = strings.TrimSpace(first)
	if last == "" || first == "" {
		return name
	}
	return first + " " + last
}
