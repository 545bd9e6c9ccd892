package royalty

import "github.com/shopspring/decimal"

// ActiveContributors returns the contributors that take part in distribution.
func (t Track) ActiveContributors() []Contributor {
	out := make([]Contributor, 0, len(t.Contributors))
	for _, c := range t.Contributors {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// SplitTotal sums the active contributor percentages.
func (t Track) SplitTotal() decimal.Decimal {
	total := decimal.Zero
	for _, c := range t.ActiveContributors() {
		total = total.Add(c.PercentSplit)
	}
	return total
}
