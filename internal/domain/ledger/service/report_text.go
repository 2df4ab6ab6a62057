package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

func money(d decimal.Decimal, currency string) string {
	return d.StringFixed(2) + " " + currency
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}

func flowLabel(isIncome bool) string {
	if isIncome {
		return "income"
	}
	return "expense"
}

// Text renders the summary for chat replies and the report command.
func (s *PeriodSummary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary for %s\n", s.Period.Name)
	if s.TransactionCount == 0 {
		b.WriteString("No transactions in this period.")
		return b.String()
	}
	fmt.Fprintf(&b, "Transactions: %d\n", s.TransactionCount)

	for _, c := range s.Currencies {
		fmt.Fprintf(&b, "\n%s  earned %s  spent %s  net %s\n",
			c.Currency, c.IncomeTotal.StringFixed(2), c.ExpenseTotal.StringFixed(2), signed(c.Net))
		if c.TopCategory != "" {
			fmt.Fprintf(&b, "Top spending: %s (%s)\n", c.TopCategory, money(c.TopCategoryTotal, c.Currency))
		}
		for _, cat := range c.Categories {
			fmt.Fprintf(&b, "  %s [%s]: %s in %d, avg %s, largest %s\n",
				cat.Category, flowLabel(cat.IsIncome), cat.Total.StringFixed(2), cat.Count,
				cat.Average.StringFixed(2), cat.Largest.StringFixed(2))
		}
	}

	if s.Insights != "" {
		b.WriteString("\nInsights:\n")
		b.WriteString(s.Insights)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Text renders the weeks oldest first followed by the trends.
func (w *WeekComparison) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weekly trends (last %d weeks)\n", len(w.Weeks))
	for _, week := range w.Weeks {
		fmt.Fprintf(&b, "\n%s\n", week.Period.Name)
		if len(week.Currencies) == 0 {
			b.WriteString("  no transactions\n")
			continue
		}
		for _, c := range week.Currencies {
			fmt.Fprintf(&b, "  %s  spent %s  earned %s  net %s\n",
				c.Currency, c.ExpenseTotal.StringFixed(2), c.IncomeTotal.StringFixed(2), signed(c.Net))
		}
	}

	if len(w.Trends) > 0 {
		b.WriteString("\n")
	}
	for _, t := range w.Trends {
		fmt.Fprintf(&b, "Trend %s: spending %s (recent avg %s, earlier avg %s)\n",
			t.Currency, t.Direction, t.RecentAverage.StringFixed(2), t.OlderAverage.StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Text renders the report in the plain layout used for the exported file.
func (r *TaxReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TAX RECORDS FOR %d\n", r.Year)
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	if r.TransactionCount == 0 {
		fmt.Fprintf(&b, "No transactions found for %d\n", r.Year)
		return b.String()
	}

	b.WriteString("POTENTIAL BUSINESS DEDUCTIONS:\n")
	b.WriteString(strings.Repeat("-", 30) + "\n")
	for _, d := range r.Deductions {
		fmt.Fprintf(&b, "%s | %s | %s | %s\n",
			d.OccurredAt.UTC().Format("2006-01-02"), d.Category, money(d.Amount, d.Currency), d.Description)
	}
	if len(r.DeductionTotals) == 0 {
		b.WriteString("\nTotal Potential Business Deductions: none\n")
	}
	for _, t := range r.DeductionTotals {
		fmt.Fprintf(&b, "\nTotal Potential Business Deductions: %s\n", money(t.Amount, t.Currency))
	}

	b.WriteString("\nCATEGORY TOTALS:\n")
	b.WriteString(strings.Repeat("-", 20) + "\n")
	for _, c := range r.CategoryTotals {
		fmt.Fprintf(&b, "%s: %s (%d)\n", c.Category, money(c.Total, c.Currency), c.Count)
	}
	return b.String()
}
