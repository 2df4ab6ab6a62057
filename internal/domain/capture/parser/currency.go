package parser

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// DefaultCurrency is used when a message names no currency.
const DefaultCurrency = "USD"

// currencyWords maps currency words and abbreviations to ISO codes. Words that
// are common English in their own right ("won", "real") are left out.
var currencyWords = map[string]string{
	"dollar":  "USD",
	"dollars": "USD",
	"usd":     "USD",
	"buck":    "USD",
	"bucks":   "USD",
	"euro":    "EUR",
	"euros":   "EUR",
	"eur":     "EUR",
	"yuan":    "CNY",
	"rmb":     "CNY",
	"cny":     "CNY",
	"rupee":   "INR",
	"rupees":  "INR",
	"inr":     "INR",
	"pound":   "GBP",
	"pounds":  "GBP",
	"gbp":     "GBP",
	"quid":    "GBP",
	"yen":     "JPY",
	"jpy":     "JPY",
	"peso":    "MXN",
	"pesos":   "MXN",
	"mxn":     "MXN",
	"cad":     "CAD",
	"aud":     "AUD",
	"franc":   "CHF",
	"francs":  "CHF",
	"chf":     "CHF",
	"krw":     "KRW",
	"baht":    "THB",
	"thb":     "THB",
	"reais":   "BRL",
	"brl":     "BRL",
	"zloty":   "PLN",
	"pln":     "PLN",
}

var tokenPattern = regexp.MustCompile(`\S+`)

// currencyMatch is what the currency table produces: a code and the text with
// the indicator removed.
type currencyMatch struct {
	code     string
	residual string
}

func currencyTable(words map[string]string) Table[currencyMatch] {
	return Table[currencyMatch]{
		{Name: "currency-word", Match: matchCurrencyWord(words)},
		{Name: "dollar-sign", Match: matchDollarSign},
	}
}

// matchCurrencyWord scans whitespace tokens left to right and removes the
// first one whose punctuation-stripped form is a known currency word. The whole
// token goes, punctuation included, so "5 euros!" leaves "5 ".
func matchCurrencyWord(words map[string]string) func(string) (currencyMatch, bool) {
	return func(text string) (currencyMatch, bool) {
		for _, loc := range tokenPattern.FindAllStringIndex(text, -1) {
			token := text[loc[0]:loc[1]]
			core := strings.TrimFunc(token, unicode.IsPunct)
			if core == "" {
				continue
			}
			code, ok := words[strings.ToLower(core)]
			if !ok {
				continue
			}
			return currencyMatch{
				code:     code,
				residual: text[:loc[0]] + text[loc[1]:],
			}, true
		}
		return currencyMatch{}, false
	}
}

func matchDollarSign(text string) (currencyMatch, bool) {
	if !strings.Contains(text, "$") {
		return currencyMatch{}, false
	}
	return currencyMatch{code: "USD", residual: strings.ReplaceAll(text, "$", "")}, true
}

// unitAlternation renders the currency words as a regexp alternation, longest
// first so "dollars" wins over "dollar".
func unitAlternation(words map[string]string) string {
	keys := make([]string, 0, len(words))
	for k := range words {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return strings.Join(keys, "|")
}
