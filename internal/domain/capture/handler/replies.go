package handler

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/quick-capture/internal/domain/capture/parser"
	"github.com/FACorreiaa/quick-capture/internal/domain/capture/repository"
	ledgerRepo "github.com/FACorreiaa/quick-capture/internal/domain/ledger/repository"
)

const usageText = `Send me what you spent or earned, one line at a time:
  Coffee 5 dollars
  Lunch €12.50
  Earned 200 from client
  actually 12.50   (fixes your last entry)

Commands:
  /stats    totals per currency and category
  /summary  this week, or lastweek, month, quarter, year
  /weeks    spending trend over the last weeks
  /ask      a question about your spending
  /recent   your last messages
  /help     this text`

// FormatReply is the one-line confirmation sent back for a captured message.
func FormatReply(m *repository.PendingMessage) string {
	amount := ""
	if m.Amount.Valid {
		amount = m.Amount.Decimal.StringFixed(2) + " " + m.Currency
	}

	switch m.Kind {
	case parser.KindExpense:
		return fmt.Sprintf("Logged expense: %s for %s.", amount, m.Parsed().DescriptionOr("unspecified"))
	case parser.KindIncome:
		return fmt.Sprintf("Logged income: %s from %s.", amount, m.Parsed().DescriptionOr("unspecified"))
	case parser.KindCorrection:
		return fmt.Sprintf("Got it, your last entry will be changed to %s.", amount)
	case parser.KindUnclearAmount:
		return fmt.Sprintf("Logged %s. Add a description next time so it can be categorized.", amount)
	case parser.KindCommand:
		return "Unknown command. Send /help for usage."
	default:
		return `I couldn't find an amount in that. Try something like "Coffee 5".`
	}
}

func formatRecent(msgs []*repository.PendingMessage) string {
	if len(msgs) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	b.WriteString("Recent messages:")
	for _, m := range msgs {
		status := "pending"
		if m.Processed {
			status = "done"
		}
		fmt.Fprintf(&b, "\n%s  %s  [%s, %s]", m.CreatedAt.Format("Jan 02 15:04"), m.RawMessage, m.Kind, status)
	}
	return b.String()
}

func formatStats(stats *ledgerRepo.Stats) string {
	if stats == nil || len(stats.Currencies) == 0 {
		return "No transactions recorded yet."
	}
	var b strings.Builder
	b.WriteString("Totals:")
	for _, c := range stats.Currencies {
		fmt.Fprintf(&b, "\n%s  spent %s (%d)  earned %s (%d)  net %s",
			c.Currency,
			c.ExpenseTotal.StringFixed(2), c.ExpenseCount,
			c.IncomeTotal.StringFixed(2), c.IncomeCount,
			c.Net.StringFixed(2),
		)
	}
	if len(stats.Categories) > 0 {
		b.WriteString("\n\nBy category:")
		for _, c := range stats.Categories {
			fmt.Fprintf(&b, "\n%s: %s (%d)", c.Category, c.Total.StringFixed(2), c.Count)
		}
	}
	return b.String()
}
