package parser

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableFirstMatchWins(t *testing.T) {
	table := Table[int]{
		phraseRule("ab", []string{"ab"}, 1),
		patternRule("digits", regexp.MustCompile(`\d+`), 2),
		alwaysRule("fallback", 3),
	}

	tests := []struct {
		input string
		value int
		name  string
	}{
		{"ab12", 1, "ab"},
		{"x12", 2, "digits"},
		{"zzz", 3, "fallback"},
	}

	for _, tt := range tests {
		v, name, ok := table.First(tt.input)
		assert.True(t, ok)
		assert.Equal(t, tt.value, v, "input %q", tt.input)
		assert.Equal(t, tt.name, name, "input %q", tt.input)
	}

	assert.Equal(t, []string{"ab", "digits", "fallback"}, table.Names())
}

func TestTableFirstNoMatch(t *testing.T) {
	table := Table[string]{phraseRule("x", []string{"x"}, "hit")}

	v, name, ok := table.First("nothing")
	assert.False(t, ok)
	assert.Empty(t, v)
	assert.Empty(t, name)
}

func TestIntentTableOrder(t *testing.T) {
	assert.Equal(t, []string{
		"strong-income",
		"strong-expense",
		"amount-preposition-word",
		"word-bare-amount",
		"spent-amount",
		"bought-amount",
		"weak-keywords",
		"default-expense",
	}, intentTable().Names())
}

func TestWeakKeywords(t *testing.T) {
	tests := []struct {
		input string
		want  Intent
		ok    bool
	}{
		{"got it from grandma", Intent{Income: true, Confidence: ConfidenceWeak}, true},
		{"paid at the shop", Intent{Income: false, Confidence: ConfidenceWeak}, true},
		{"from mom to dad", Intent{}, false},
		{"phone money", Intent{}, false},
	}

	for _, tt := range tests {
		got, ok := matchWeakKeywords(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestDetectCurrency(t *testing.T) {
	p := New()
	tests := []struct {
		input    string
		code     string
		residual string
	}{
		{"Coffee 5 dollars", "USD", "Coffee 5 "},
		{"20 euros lunch", "EUR", "20  lunch"},
		{"lunch 20 EUR.", "EUR", "lunch 20 "},
		{"lunch 20 (euros)", "EUR", "lunch 20 "},
		{"Pounds 5 for tea", "GBP", " 5 for tea"},
		{"10 yuan and 5 euros", "CNY", "10  and 5 euros"},
		{"$5 coffee", "USD", "5 coffee"},
		{"5dollars", "USD", "5dollars"},
		{"coffee 5", "USD", "coffee 5"},
	}

	for _, tt := range tests {
		code, residual, _ := p.detectCurrency(tt.input)
		if code != tt.code || residual != tt.residual {
			t.Errorf("detectCurrency(%q) = (%q, %q), want (%q, %q)", tt.input, code, residual, tt.code, tt.residual)
		}
	}
}

func TestUnitAlternationPrefersLongerWords(t *testing.T) {
	alt := unitAlternation(map[string]string{"dollar": "USD", "dollars": "USD", "eur": "EUR"})
	assert.Equal(t, "dollars|dollar|eur", alt)
}
