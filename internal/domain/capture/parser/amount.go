package parser

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount format")

// numberPattern captures one amount. The optional "$" stays outside the group.
const numberPattern = `\$?(\d[\d,]*(?:\.\d+)?)`

// decimalComma matches "12,5" and "12,50": a single comma followed by one or
// two trailing digits reads as a decimal separator, not thousands.
var decimalComma = regexp.MustCompile(`^\d+,\d{1,2}$`)

// ParseAmount converts a captured number into a non-negative decimal rounded
// to cents. "1,200" is twelve hundred, "12,50" is twelve and a half.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if cleaned == "" {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	if decimalComma.MatchString(cleaned) {
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	return d.Round(2), nil
}

// cleanDescription drops one leading on/for/from and surrounding punctuation.
// An empty remainder is reported as absent.
func cleanDescription(s string) *string {
	fields := strings.Fields(s)
	if len(fields) > 0 {
		switch fields[0] {
		case "on", "for", "from":
			fields = fields[1:]
		}
	}

	out := strings.Trim(strings.Join(fields, " "), " \t.,;:!?-")
	if out == "" {
		return nil
	}
	return &out
}

// normalize lower-cases text, collapses whitespace and drops trailing
// sentence punctuation.
func normalize(text string) string {
	out := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return strings.TrimRight(out, ".!?,;: ")
}
