package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Rule assigns Category when any keyword occurs in the usage text.
// Keywords match case-insensitively as substrings.
type Rule struct {
	Category string
	Keywords []string
}

// Rules is a keyword classifier; the first matching rule wins.
type Rules []Rule

func (rs Rules) Classify(_ context.Context, text string, _ decimal.Decimal) (string, bool) {
	lower := strings.ToLower(text)
	for _, r := range rs {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return r.Category, true
			}
		}
	}
	return "", false
}

// ParseRule parses "Category:keyword|keyword".
func ParseRule(s string) (Rule, error) {
	cat, kws, ok := strings.Cut(s, ":")
	cat = strings.TrimSpace(cat)
	if !ok || cat == "" {
		return Rule{}, fmt.Errorf("rule %q: want Category:keyword|keyword", s)
	}
	r := Rule{Category: cat}
	for _, kw := range strings.Split(kws, "|") {
		if kw = strings.TrimSpace(kw); kw != "" {
			r.Keywords = append(r.Keywords, kw)
		}
	}
	if len(r.Keywords) == 0 {
		return Rule{}, fmt.Errorf("rule %q: no keywords", s)
	}
	return r, nil
}

// ParseRules parses every rule string with ParseRule.
func ParseRules(defs []string) (Rules, error) {
	rules := make(Rules, 0, len(defs))
	for _, s := range defs {
		r, err := ParseRule(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
