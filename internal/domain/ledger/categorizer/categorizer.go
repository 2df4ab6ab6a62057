// Package categorizer assigns one label from a closed category list to a
// transaction, using a Gemini model when one is configured.
package categorizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

const (
	temperature     = 0.1
	maxOutputTokens = 30
)

// Categorizer picks a category for a transaction.
type Categorizer interface {
	Categorize(ctx context.Context, description string, amount decimal.Decimal, isIncome bool) (string, error)
}

// Generator sends a prompt to a language model and returns its text answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is a Generator backed by the Gemini API.
type GeminiGenerator struct {
	models      *genai.Models
	model       string
	temperature float32
	maxTokens   int32
}

// NewGeminiGenerator creates a Gemini API client for model.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{
		models:      client.Models,
		model:       model,
		temperature: temperature,
		maxTokens:   maxOutputTokens,
	}, nil
}

// WithSettings returns a generator sharing g's client with different
// sampling settings. The default is tuned for one-label answers.
func (g *GeminiGenerator) WithSettings(temperature float32, maxTokens int32) *GeminiGenerator {
	out := *g
	out.temperature = temperature
	out.maxTokens = maxTokens
	return &out
}

// Generate sends prompt with the generator's sampling settings.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return resp.Text(), nil
}

// LLMCategorizer asks a Generator for a category and validates the answer
// against its closed list.
type LLMCategorizer struct {
	generator  Generator
	categories Categories
	timeout    time.Duration
	logger     *slog.Logger
}

var _ Categorizer = (*LLMCategorizer)(nil)

// NewLLMCategorizer creates a categorizer. A zero timeout leaves the
// caller's deadline in charge.
func NewLLMCategorizer(generator Generator, categories Categories, timeout time.Duration, logger *slog.Logger) *LLMCategorizer {
	return &LLMCategorizer{
		generator:  generator,
		categories: categories,
		timeout:    timeout,
		logger:     logger,
	}
}

// Categorize returns a category from the closed list. Only a model failure
// is an error; an unusable answer becomes the fallback category.
func (c *LLMCategorizer) Categorize(ctx context.Context, description string, amount decimal.Decimal, isIncome bool) (string, error) {
	l := c.logger.With(slog.String("method", "Categorize"))

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	answer, err := c.generator.Generate(ctx, BuildPrompt(c.categories.Names, description, amount, isIncome))
	if err != nil {
		l.ErrorContext(ctx, "categorization request failed", slog.Any("error", err))
		return "", fmt.Errorf("failed to categorize transaction: %w", err)
	}

	category := c.categories.Validate(answer, isIncome)
	if category == c.categories.Fallback(isIncome) && cleanLabel(answer) != category {
		l.WarnContext(ctx, "model returned unknown category, using fallback",
			slog.String("answer", answer),
			slog.String("fallback", category),
		)
	}
	return category, nil
}

// FallbackCategorizer files everything under the fallback categories. It
// stands in when no model is configured.
type FallbackCategorizer struct {
	categories Categories
}

var _ Categorizer = FallbackCategorizer{}

// NewFallbackCategorizer creates a categorizer that never calls a model.
func NewFallbackCategorizer(categories Categories) FallbackCategorizer {
	return FallbackCategorizer{categories: categories}
}

// Categorize returns the fallback category for the direction.
func (f FallbackCategorizer) Categorize(_ context.Context, _ string, _ decimal.Decimal, isIncome bool) (string, error) {
	return f.categories.Fallback(isIncome), nil
}

// BuildPrompt renders the categorization prompt.
func BuildPrompt(categories []string, description string, amount decimal.Decimal, isIncome bool) string {
	kind := "expense"
	if isIncome {
		kind = "income"
	}

	var b strings.Builder
	b.WriteString("You are a helpful financial categorization assistant.\n\n")
	b.WriteString("Your job is to categorize transactions into one of these categories:\n")
	b.WriteString(strings.Join(categories, ", "))
	fmt.Fprintf(&b, "\n\nGiven this %s:\n", kind)
	fmt.Fprintf(&b, "- Description: %q\n", description)
	fmt.Fprintf(&b, "- Amount: %s\n", amount.StringFixed(2))
	fmt.Fprintf(&b, "- Type: %s\n\n", kind)
	b.WriteString("Return ONLY the category name, nothing else. Choose the most appropriate category from the list above.\n\n")
	b.WriteString("Examples for expenses:\n")
	b.WriteString("- \"coffee\" -> Food & Dining\n")
	b.WriteString("- \"uber ride\" -> Transportation\n")
	b.WriteString("- \"moisturizer\" -> Personal Care\n")
	b.WriteString("- \"gym membership\" -> Health & Fitness\n")
	b.WriteString("- \"netflix subscription\" -> Entertainment\n\n")
	b.WriteString("Examples for income:\n")
	b.WriteString("- \"freelance project\" -> Income - Freelance\n")
	b.WriteString("- \"client payment\" -> Income - Freelance\n")
	b.WriteString("- \"salary\" -> Income - Salary\n")
	b.WriteString("- \"bonus\" -> Income - Salary\n")
	b.WriteString("- \"gift money\" -> Income - Other\n\n")
	b.WriteString("Category:")
	return b.String()
}
