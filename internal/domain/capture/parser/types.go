// Package parser turns a short free-text money message ("Coffee 5 dollars",
// "Earned 200 from client", "actually 12.50") into a ParsedMessage.
//
// Parsing is a pure function of the input and a set of read-only rule tables,
// so a Parser can be shared by any number of goroutines.
package parser

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind is the final classification of a parsed message.
type Kind string

const (
	KindExpense       Kind = "expense"
	KindIncome        Kind = "income"
	KindCorrection    Kind = "correction"
	KindUnclearAmount Kind = "unclear_amount"
	KindUnclear       Kind = "unclear"
	KindCommand       Kind = "command"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindExpense, KindIncome, KindCorrection, KindUnclearAmount, KindUnclear, KindCommand:
		return true
	}
	return false
}

// Tristate is a three-valued boolean. The zero value is Undetermined.
type Tristate uint8

const (
	Undetermined Tristate = iota
	Yes
	No
)

// TristateOf lifts a plain bool.
func TristateOf(b bool) Tristate {
	if b {
		return Yes
	}
	return No
}

// TristateFromPtr maps nil to Undetermined.
func TristateFromPtr(p *bool) Tristate {
	if p == nil {
		return Undetermined
	}
	return TristateOf(*p)
}

// Bool returns the value and whether it is determined.
func (t Tristate) Bool() (value bool, ok bool) {
	switch t {
	case Yes:
		return true, true
	case No:
		return false, true
	default:
		return false, false
	}
}

// Ptr returns nil for Undetermined. Used for nullable storage columns.
func (t Tristate) Ptr() *bool {
	v, ok := t.Bool()
	if !ok {
		return nil
	}
	return &v
}

func (t Tristate) String() string {
	switch t {
	case Yes:
		return "true"
	case No:
		return "false"
	default:
		return "undetermined"
	}
}

func (t Tristate) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Ptr())
}

func (t *Tristate) UnmarshalJSON(data []byte) error {
	var p *bool
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("tristate: %w", err)
	}
	*t = TristateFromPtr(p)
	return nil
}

// Confidence is how sure the intent classifier is about the income/expense
// direction.
type Confidence uint8

const (
	ConfidenceDefault    Confidence = iota // nothing matched, expense assumed
	ConfidenceWeak                         // weak keyword count
	ConfidenceStructural                   // expense-shaped template
	ConfidenceExplicit                     // strong keyword
)

func (c Confidence) String() string {
	return fmt.Sprintf("%d", uint8(c))
}

// ParsedMessage is the result of parsing one message. Values are built fresh
// for every call and never shared.
type ParsedMessage struct {
	RawText     string              `json:"raw_text"`
	Amount      decimal.NullDecimal `json:"amount"`
	Currency    string              `json:"currency"`
	Description *string             `json:"description"`
	IsIncome    Tristate            `json:"is_income"`
	Confidence  Confidence          `json:"confidence"`
	Kind        Kind                `json:"kind"`
}

// HasAmount reports whether an amount was isolated.
func (m ParsedMessage) HasAmount() bool {
	return m.Amount.Valid
}

// DescriptionOr returns the description, or fallback when it is absent.
func (m ParsedMessage) DescriptionOr(fallback string) string {
	if m.Description == nil {
		return fallback
	}
	return *m.Description
}
