package classify

import (
	"context"
	"fmt"

	"github.com/jbrukh/bayesian"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/bookkeeper/internal/ledger"
	"github.com/JonMunkholm/bookkeeper/internal/store"
)

// Sample is one labelled usage text.
type Sample struct {
	Text     string
	Amount   decimal.Decimal
	Category string
}

// Bayes is a naive Bayes classifier trained on already categorized
// transactions. The zero value and nil never match.
type Bayes struct {
	cl      *bayesian.Classifier
	classes []bayesian.Class
	minProb float64
}

// Sign tokens let the learner separate incoming from outgoing payments with
// the same text.
const (
	creditToken = "__credit"
	debitToken  = "__debit"
)

func terms(text string, amount decimal.Decimal) []string {
	t := Tokenize(text)
	if amount.IsNegative() {
		return append(t, debitToken)
	}
	return append(t, creditToken)
}

// Train builds a classifier from samples. A prediction is only returned when
// its posterior probability reaches minProb. With fewer than two distinct
// categories there is nothing to discriminate and the result never matches.
func Train(samples []Sample, minProb float64) *Bayes {
	seen := make(map[string]bool)
	var classes []bayesian.Class
	for _, s := range samples {
		if s.Category == "" || seen[s.Category] {
			continue
		}
		seen[s.Category] = true
		classes = append(classes, bayesian.Class(s.Category))
	}
	if len(classes) < 2 {
		return &Bayes{}
	}

	cl := bayesian.NewClassifier(classes...)
	for _, s := range samples {
		if s.Category == "" {
			continue
		}
		cl.Learn(terms(s.Text, s.Amount), bayesian.Class(s.Category))
	}
	return &Bayes{cl: cl, classes: classes, minProb: minProb}
}

// Classes returns the categories the classifier can predict.
func (b *Bayes) Classes() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.classes))
	for i, c := range b.classes {
		out[i] = string(c)
	}
	return out
}

func (b *Bayes) Classify(_ context.Context, text string, amount decimal.Decimal) (string, bool) {
	if b == nil || b.cl == nil {
		return "", false
	}
	doc := Tokenize(text)
	if len(doc) == 0 {
		return "", false
	}
	scores, idx, strict := b.cl.ProbScores(terms(text, amount))
	if !strict || scores[idx] < b.minProb {
		return "", false
	}
	return string(b.classes[idx]), true
}

// Learn trains a Bayes classifier from the transactions visible to r.
// Transactions without usage text and those in the fallback categories are
// ignored, since they say nothing about the text.
func Learn(ctx context.Context, r store.Reader, minProb float64) (*Bayes, error) {
	txs, err := r.Transactions(ctx, store.TxFilter{})
	if err != nil {
		return nil, fmt.Errorf("load training data: %w", err)
	}
	samples := make([]Sample, 0, len(txs))
	for _, t := range txs {
		if t.Usage == "" || t.Category == ledger.OtherCategory || t.Category == ledger.IncomeCategory {
			continue
		}
		samples = append(samples, Sample{Text: t.Usage, Amount: t.Amount, Category: t.Category})
	}
	return Train(samples, minProb), nil
}
