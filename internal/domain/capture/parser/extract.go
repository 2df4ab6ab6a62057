package parser

import (
	"regexp"

	"github.com/shopspring/decimal"
)

type extraction struct {
	amount      decimal.Decimal
	description *string
}

// extractionTable lists the amount/description templates in priority order.
// units is the alternation of currency words allowed right after a leading
// amount.
func extractionTable(units string) Table[extraction] {
	patterns := []struct {
		name string
		re   *regexp.Regexp
	}{
		{
			name: "verb-amount",
			re:   regexp.MustCompile(`\b(?:earned|made|received|spent|paid|bought|got)\s+` + numberPattern + `\s*(?:(?:from|on|for)\s+)?(.*)$`),
		},
		{
			name: "amount-preposition",
			re:   regexp.MustCompile(`^` + numberPattern + `\s+(?:for|on)\s+(.+)$`),
		},
		{
			name: "amount-first",
			re:   regexp.MustCompile(`^` + numberPattern + `\s*(?:(?:` + units + `)\b)?\s*(.*)$`),
		},
		{
			name: "description-first",
			re:   regexp.MustCompile(`^(.+?)\s+` + numberPattern + `$`),
		},
	}

	table := make(Table[extraction], 0, len(patterns))
	for i, p := range patterns {
		descFirst := i == len(patterns)-1
		table = append(table, Rule[extraction]{Name: p.name, Match: matchExtraction(p.re, descFirst)})
	}
	return table
}

// matchExtraction expects two capture groups. Amount-first templates capture
// (amount, description); the description-first template captures them the
// other way round.
func matchExtraction(re *regexp.Regexp, descFirst bool) func(string) (extraction, bool) {
	amountGroup, descGroup := 1, 2
	if descFirst {
		amountGroup, descGroup = 2, 1
	}

	return func(text string) (extraction, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return extraction{}, false
		}

		amount, err := ParseAmount(m[amountGroup])
		if err != nil {
			return extraction{}, false
		}

		return extraction{amount: amount, description: cleanDescription(m[descGroup])}, true
	}
}
