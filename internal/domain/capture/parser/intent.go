package parser

import (
	"regexp"
	"strings"
)

// Intent is the classifier's verdict on transaction direction.
type Intent struct {
	Income     bool
	Confidence Confidence
}

var strongIncomePhrases = []string{
	"earned",
	"made money",
	"income",
	"freelance payment",
	"client paid",
	"received payment",
	"salary",
	"bonus",
	"refund",
	"cashback",
	"sold something",
	"gift money",
	"got paid",
	"paycheck",
	"dividend",
	"reimbursed",
}

var strongExpensePhrases = []string{
	"spent",
	"bought",
	"purchased",
	"paid for",
	"cost me",
	"bill",
	"subscription",
	"fee",
	"charge",
	"rent",
	// common things people pay for
	"coffee",
	"lunch",
	"dinner",
	"breakfast",
	"groceries",
	"grocery",
	"restaurant",
	"taxi",
	"uber",
	"fuel",
	"parking",
	"ticket",
	"pizza",
	"snack",
	"beer",
	"pharmacy",
	"gym",
}

var structuralExpensePatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{name: "amount-preposition-word", re: regexp.MustCompile(`\d+(?:[.,]\d+)?\s+(?:on|for)\s+[a-z]+`)},
	{name: "word-bare-amount", re: regexp.MustCompile(`\b[a-z]+\s+\$?\d+(?:[.,]\d+)?\s*$`)},
	{name: "spent-amount", re: regexp.MustCompile(`spent.*\d`)},
	{name: "bought-amount", re: regexp.MustCompile(`bought.*\d`)},
}

var (
	weakIncomeWords  = []string{"got", "received", "from", "sold", "gift", "deposit", "plus", "earn", "won"}
	weakExpenseWords = []string{"paid", "pay", "for", "on", "at", "buy", "cost", "minus", "to"}
)

var wordPattern = regexp.MustCompile(`[a-z']+`)

// intentTable is evaluated against the lower-cased original text. The income
// phrases are checked before the expense phrases, so a message carrying both
// reads as income.
func intentTable() Table[Intent] {
	table := Table[Intent]{
		phraseRule("strong-income", strongIncomePhrases, Intent{Income: true, Confidence: ConfidenceExplicit}),
		phraseRule("strong-expense", strongExpensePhrases, Intent{Income: false, Confidence: ConfidenceExplicit}),
	}
	for _, p := range structuralExpensePatterns {
		table = append(table, patternRule(p.name, p.re, Intent{Income: false, Confidence: ConfidenceStructural}))
	}
	return append(table,
		Rule[Intent]{Name: "weak-keywords", Match: matchWeakKeywords},
		alwaysRule("default-expense", Intent{Income: false, Confidence: ConfidenceDefault}),
	)
}

// matchWeakKeywords compares whole-word counts of the weak sets. A tie is not
// a match.
func matchWeakKeywords(text string) (Intent, bool) {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	income := countWords(words, weakIncomeWords)
	expense := countWords(words, weakExpenseWords)

	switch {
	case income > expense:
		return Intent{Income: true, Confidence: ConfidenceWeak}, true
	case expense > income:
		return Intent{Income: false, Confidence: ConfidenceWeak}, true
	default:
		return Intent{}, false
	}
}

func countWords(words, keywords []string) int {
	n := 0
	for _, w := range words {
		for _, k := range keywords {
			if w == k {
				n++
				break
			}
		}
	}
	return n
}
