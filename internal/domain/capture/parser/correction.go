package parser

import (
	"regexp"

	"github.com/shopspring/decimal"
)

type correction struct {
	amount      decimal.Decimal
	description *string
}

var correctionPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{
		name: "correction-phrase",
		re: regexp.MustCompile(`(?i)\b(?:actually|wait|i meant|i mean|should be|should have been|correction|make that|make it|change to|change it to|change that to|fix that|sorry|oops)\b[\s,!.\-]*(?:it'?s\s+|it\s+was\s+|to\s+)?` +
			numberPattern),
	},
	{
		name: "amount-then-correction",
		re:   regexp.MustCompile(`(?i)^\s*` + numberPattern + `\s+(?:correction|corrected|fix|fixed|change|changed)\b`),
	},
	{
		name: "correction-colon",
		re:   regexp.MustCompile(`(?i)\bcorrection\s*:\s*` + numberPattern),
	},
}

func correctionTable() Table[correction] {
	table := make(Table[correction], 0, len(correctionPatterns))
	for _, p := range correctionPatterns {
		table = append(table, Rule[correction]{Name: p.name, Match: matchCorrection(p.re)})
	}
	return table
}

// matchCorrection removes the matched span and keeps whatever is left as the
// description.
func matchCorrection(re *regexp.Regexp) func(string) (correction, bool) {
	return func(text string) (correction, bool) {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			return correction{}, false
		}

		amount, err := ParseAmount(text[loc[2]:loc[3]])
		if err != nil {
			return correction{}, false
		}

		return correction{
			amount:      amount,
			description: cleanDescription(text[:loc[0]] + " " + text[loc[1]:]),
		}, true
	}
}
