package categorizer

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultExpenseFallback = "Other"
	DefaultIncomeFallback  = "Income - Other"
)

// DefaultCategories is the closed list offered to the model.
var DefaultCategories = []string{
	"Food & Dining",
	"Transportation",
	"Personal Care",
	"Health & Fitness",
	"Shopping & Retail",
	"Entertainment",
	"Bills & Utilities",
	"Professional & Work",
	"Education & Learning",
	"Travel",
	"Home & Garden",
	"Income - Freelance",
	"Income - Salary",
	"Income - Other",
	"Other",
}

// Categories is a closed category list plus the labels used when a model
// answer cannot be matched to it.
type Categories struct {
	Names           []string `yaml:"categories"`
	ExpenseFallback string   `yaml:"expense_fallback"`
	IncomeFallback  string   `yaml:"income_fallback"`
}

// Defaults returns the built-in category list.
func Defaults() Categories {
	return Categories{
		Names:           slices.Clone(DefaultCategories),
		ExpenseFallback: DefaultExpenseFallback,
		IncomeFallback:  DefaultIncomeFallback,
	}
}

// LoadCategories reads a YAML category file. An empty path returns Defaults.
func LoadCategories(path string) (Categories, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Categories{}, fmt.Errorf("failed to read categories file: %w", err)
	}

	var c Categories
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Categories{}, fmt.Errorf("failed to parse categories file %s: %w", path, err)
	}
	if c.ExpenseFallback == "" {
		c.ExpenseFallback = DefaultExpenseFallback
	}
	if c.IncomeFallback == "" {
		c.IncomeFallback = DefaultIncomeFallback
	}
	if err := c.validate(); err != nil {
		return Categories{}, fmt.Errorf("invalid categories file %s: %w", path, err)
	}
	return c, nil
}

func (c Categories) validate() error {
	var errs []error
	if len(c.Names) == 0 {
		errs = append(errs, errors.New("at least one category is required"))
	}
	seen := make(map[string]struct{}, len(c.Names))
	for _, name := range c.Names {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("category names must not be blank"))
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("duplicate category %q", name))
		}
		seen[name] = struct{}{}
	}
	return errors.Join(errs...)
}

// Fallback is the label for answers that match nothing.
func (c Categories) Fallback(isIncome bool) string {
	if isIncome {
		return c.IncomeFallback
	}
	return c.ExpenseFallback
}

// Validate maps a model answer onto the closed list: an exact match first,
// then a case-insensitive match, then containment in either direction in
// list order, then the fallback.
func (c Categories) Validate(label string, isIncome bool) string {
	label = cleanLabel(label)
	if label == "" {
		return c.Fallback(isIncome)
	}
	if slices.Contains(c.Names, label) {
		return label
	}

	lower := strings.ToLower(label)
	for _, name := range c.Names {
		if strings.ToLower(name) == lower {
			return name
		}
	}
	for _, name := range c.Names {
		n := strings.ToLower(name)
		if strings.Contains(n, lower) || strings.Contains(lower, n) {
			return name
		}
	}
	return c.Fallback(isIncome)
}

// cleanLabel strips the decoration models like to add around a one-word
// answer.
func cleanLabel(label string) string {
	label = strings.TrimSpace(label)
	if i := strings.IndexByte(label, '\n'); i >= 0 {
		label = label[:i]
	}
	if rest, ok := strings.CutPrefix(strings.TrimSpace(label), "Category:"); ok {
		label = rest
	}
	return strings.Trim(label, " \t\"'`*.")
}
