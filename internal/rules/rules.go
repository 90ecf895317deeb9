// Package rules implements ordered keyword rule tables used to classify free
// text such as digest themes and paper abstracts.
package rules

import (
	"strings"

	"golang.org/x/text/cases"
)

// Normalize case-folds s and collapses runs of whitespace. A Caser is not
// safe for concurrent use, so each call builds its own.
func Normalize(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// Rule maps a keyword set to a category. A rule matches when any keyword
// occurs in the text.
type Rule struct {
	Category string
	Keywords []string
}

// Table is an ordered list of rules with a fallback category.
type Table struct {
	rules    []Rule
	fallback string
}

// NewTable builds a table. Keywords are normalized once here.
func NewTable(fallback string, rules ...Rule) *Table {
	t := &Table{fallback: fallback, rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = Normalize(k); k != "" {
				kws = append(kws, k)
			}
		}
		t.rules = append(t.rules, Rule{Category: r.Category, Keywords: kws})
	}
	return t
}

// Len returns the number of rules.
func (t *Table) Len() int { return len(t.rules) }

// Fallback returns the category used when nothing matches.
func (t *Table) Fallback() string { return t.fallback }

// Classify returns the category of the first matching rule, or the fallback.
func (t *Table) Classify(text string) string {
	norm := Normalize(text)
	for _, r := range t.rules {
		if r.matches(norm) {
			return r.Category
		}
	}
	return t.fallback
}

// MatchAll returns the categories of every matching rule in table order,
// without duplicates. It returns nil when nothing matches.
func (t *Table) MatchAll(text string) []string {
	norm := Normalize(text)
	var out []string
	seen := make(map[string]bool)
	for _, r := range t.rules {
		if !seen[r.Category] && r.matches(norm) {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return out
}

// MatchAllOrFallback is MatchAll with the fallback as a single-element
// result when nothing matches.
func (t *Table) MatchAllOrFallback(text string) []string {
	if out := t.MatchAll(text); len(out) > 0 {
		return out
	}
	if t.fallback == "" {
		return nil
	}
	return []string{t.fallback}
}

func (r Rule) matches(norm string) bool {
	for _, k := range r.Keywords {
		if strings.Contains(norm, k) {
			return true
		}
	}
	return false
}
