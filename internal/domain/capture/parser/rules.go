package parser

import (
	"regexp"
	"strings"
)

// Rule is one named entry in a Table. Match reports whether the rule applies
// to text and, if so, what it produced.
type Rule[T any] struct {
	Name  string
	Match func(text string) (T, bool)
}

// Table is an ordered list of rules evaluated first-match-wins.
type Table[T any] []Rule[T]

// First runs the rules in order and returns the result and name of the first
// one that matches.
func (t Table[T]) First(text string) (T, string, bool) {
	for _, rule := range t {
		if v, ok := rule.Match(text); ok {
			return v, rule.Name, true
		}
	}
	var zero T
	return zero, "", false
}

// Names lists the rule names in evaluation order.
func (t Table[T]) Names() []string {
	names := make([]string, 0, len(t))
	for _, rule := range t {
		names = append(names, rule.Name)
	}
	return names
}

// phraseRule matches when any phrase occurs as a substring of text.
func phraseRule[T any](name string, phrases []string, result T) Rule[T] {
	return Rule[T]{
		Name: name,
		Match: func(text string) (T, bool) {
			for _, phrase := range phrases {
				if strings.Contains(text, phrase) {
					return result, true
				}
			}
			var zero T
			return zero, false
		},
	}
}

// patternRule matches when re matches anywhere in text.
func patternRule[T any](name string, re *regexp.Regexp, result T) Rule[T] {
	return Rule[T]{
		Name: name,
		Match: func(text string) (T, bool) {
			if re.MatchString(text) {
				return result, true
			}
			var zero T
			return zero, false
		},
	}
}

// alwaysRule is a table terminator.
func alwaysRule[T any](name string, result T) Rule[T] {
	return Rule[T]{
		Name: name,
		Match: func(string) (T, bool) {
			return result, true
		},
	}
}
