// Package classify guesses a category for a cleaned statement line.
//
// Classification is best effort. A Classifier either returns a category name
// or reports no match; the import pipeline owns the fallback policy.
package classify

import (
	"context"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Classifier maps cleaned usage text and a signed amount to a category name.
type Classifier interface {
	Classify(ctx context.Context, text string, amount decimal.Decimal) (category string, ok bool)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, text string, amount decimal.Decimal) (string, bool)

func (f Func) Classify(ctx context.Context, text string, amount decimal.Decimal) (string, bool) {
	return f(ctx, text, amount)
}

// None never matches.
var None Classifier = Func(func(context.Context, string, decimal.Decimal) (string, bool) {
	return "", false
})

// Chain asks each classifier in order and returns the first match.
type Chain []Classifier

func (c Chain) Classify(ctx context.Context, text string, amount decimal.Decimal) (string, bool) {
	for _, cl := range c {
		if cl == nil {
			continue
		}
		if cat, ok := cl.Classify(ctx, text, amount); ok {
			return cat, true
		}
	}
	return "", false
}

// Tokenize lowercases text and splits it into words of at least two letters
// or digits.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) >= 2 {
			out = append(out, w)
		}
	}
	return out
}
