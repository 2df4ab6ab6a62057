package parser

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCommandPrefix marks bot commands such as "/start".
const DefaultCommandPrefix = "/"

// Parser holds the rule tables. Tables are built by New and never modified,
// so one Parser may be used concurrently.
type Parser struct {
	baseCurrency  string
	commandPrefix string

	currencies  Table[currencyMatch]
	corrections Table[correction]
	intents     Table[Intent]
	extractors  Table[extraction]
}

// Option configures a Parser.
type Option func(*Parser)

// WithBaseCurrency sets the code reported when a message names no currency.
func WithBaseCurrency(code string) Option {
	return func(p *Parser) {
		if code = strings.ToUpper(strings.TrimSpace(code)); len(code) == 3 {
			p.baseCurrency = code
		}
	}
}

// WithCommandPrefix sets the prefix that marks a command. An empty prefix
// disables command detection.
func WithCommandPrefix(prefix string) Option {
	return func(p *Parser) {
		p.commandPrefix = prefix
	}
}

// New builds a Parser with the default rule tables.
func New(opts ...Option) *Parser {
	p := &Parser{
		baseCurrency:  DefaultCurrency,
		commandPrefix: DefaultCommandPrefix,
		currencies:    currencyTable(currencyWords),
		corrections:   correctionTable(),
		intents:       intentTable(),
		extractors:    extractionTable(unitAlternation(currencyWords)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = New()

// Parse parses text with the default Parser.
func Parse(text string) ParsedMessage {
	return defaultParser.Parse(text)
}

// Trace names the rule that fired at each stage. Empty means nothing matched.
type Trace struct {
	Currency   string
	Correction string
	Intent     string
	Extraction string
}

// Parse never fails; text that cannot be read comes back as KindUnclear.
func (p *Parser) Parse(text string) ParsedMessage {
	msg, _ := p.ParseWithTrace(text)
	return msg
}

// ParseWithTrace is Parse plus the names of the rules that decided the result.
func (p *Parser) ParseWithTrace(text string) (ParsedMessage, Trace) {
	var trace Trace
	msg := ParsedMessage{
		RawText:  text,
		IsIncome: No,
	}

	var residual string
	msg.Currency, residual, trace.Currency = p.detectCurrency(text)

	if p.IsCommand(text) {
		msg.Kind = KindCommand
		return msg, trace
	}

	lowered := normalize(residual)

	if fix, name, ok := p.corrections.First(lowered); ok {
		trace.Correction = name
		msg.Kind = KindCorrection
		msg.Amount = decimal.NewNullDecimal(fix.amount)
		msg.Description = fix.description
		msg.IsIncome = Undetermined
		msg.Confidence = ConfidenceExplicit
		return msg, trace
	}

	intent, intentName, _ := p.intents.First(strings.ToLower(text))
	trace.Intent = intentName
	msg.IsIncome = TristateOf(intent.Income)
	msg.Confidence = intent.Confidence

	found, extractName, ok := p.extractors.First(lowered)
	if !ok {
		msg.Kind = KindUnclear
		return msg, trace
	}
	trace.Extraction = extractName
	msg.Amount = decimal.NewNullDecimal(found.amount)
	msg.Description = found.description

	switch {
	case found.description == nil:
		msg.Kind = KindUnclearAmount
	case intent.Income:
		msg.Kind = KindIncome
	default:
		msg.Kind = KindExpense
	}

	return msg, trace
}

// detectCurrency falls back to the base currency with text unchanged.
func (p *Parser) detectCurrency(text string) (code, residual, rule string) {
	if hit, name, ok := p.currencies.First(text); ok {
		return hit.code, hit.residual, name
	}
	return p.baseCurrency, text, ""
}

// BaseCurrency reports the currency used when none is named.
func (p *Parser) BaseCurrency() string {
	return p.baseCurrency
}

// IsCommand reports whether text starts with the command prefix.
func (p *Parser) IsCommand(text string) bool {
	return p.commandPrefix != "" && strings.HasPrefix(strings.TrimSpace(text), p.commandPrefix)
}
