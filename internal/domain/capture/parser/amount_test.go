package parser

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"5", "5.00"},
		{"12.50", "12.50"},
		{"$7", "7.00"},
		{"1,200", "1200.00"},
		{"1,234.56", "1234.56"},
		{"12,5", "12.50"},
		{"12,50", "12.50"},
		{"3.456", "3.46"},
		{" 42 ", "42.00"},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.input)
		if err != nil {
			t.Errorf("ParseAmount(%q) error = %v", tt.input, err)
			continue
		}
		if got.StringFixed(2) != tt.expected {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got.StringFixed(2), tt.expected)
		}
	}
}

func TestParseAmountInvalid(t *testing.T) {
	for _, input := range []string{"", "$", "abc", "-5", "1.2.3"} {
		if _, err := ParseAmount(input); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAmount(%q) error = %v, want ErrInvalidAmount", input, err)
		}
	}
}

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		input    string
		expected string // empty means absent
	}{
		{"for lunch", "lunch"},
		{"on book", "book"},
		{"from client", "client"},
		{"  groceries  ", "groceries"},
		{"for for", "for"},
		{"coffee,", "coffee"},
		{"for", ""},
		{"", ""},
		{" - ", ""},
	}

	for _, tt := range tests {
		got := cleanDescription(tt.input)
		if tt.expected == "" {
			if got != nil {
				t.Errorf("cleanDescription(%q) = %q, want absent", tt.input, *got)
			}
			continue
		}
		if got == nil || *got != tt.expected {
			t.Errorf("cleanDescription(%q) = %v, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Coffee   5 ", "coffee 5"},
		{"Lunch 12.50.", "lunch 12.50"},
		{"TAXI 9!", "taxi 9"},
		{"coffee 5 .", "coffee 5"},
		{"taxi 12 ! ", "taxi 12"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalize(tt.input); got != tt.expected {
			t.Errorf("normalize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
