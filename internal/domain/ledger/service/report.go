package service

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/quick-capture/internal/domain/common"
	"github.com/FACorreiaa/quick-capture/internal/domain/ledger/repository"
)

// PeriodKind names the calendar span a summary covers.
type PeriodKind string

const (
	PeriodWeek    PeriodKind = "week"
	PeriodMonth   PeriodKind = "month"
	PeriodQuarter PeriodKind = "quarter"
	PeriodYear    PeriodKind = "year"
	PeriodCustom  PeriodKind = "custom"
)

const (
	DefaultCompareWeeks = 4
	MaxCompareWeeks     = 52
	maxWeeksAgo         = 520
	minReportYear       = 1970
	maxReportYear       = 9999
)

// Period is the half-open UTC range [Start, End).
type Period struct {
	Kind  PeriodKind `json:"kind"`
	Name  string     `json:"name"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekPeriod returns the Monday to Sunday week weeksAgo weeks before the
// one containing now.
func WeekPeriod(now time.Time, weeksAgo int) Period {
	today := startOfDay(now)
	sinceMonday := (int(today.Weekday()) + 6) % 7
	start := today.AddDate(0, 0, -sinceMonday-7*weeksAgo)
	end := start.AddDate(0, 0, 7)
	last := end.AddDate(0, 0, -1)

	var name string
	switch weeksAgo {
	case 0:
		name = fmt.Sprintf("This Week (%s - %s)", start.Format("Jan 02"), last.Format("Jan 02"))
	case 1:
		name = fmt.Sprintf("Last Week (%s - %s)", start.Format("Jan 02"), last.Format("Jan 02"))
	default:
		name = "Week of " + start.Format("Jan 02, 2006")
	}
	return Period{Kind: PeriodWeek, Name: name, Start: start, End: end}
}

func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Kind:  PeriodMonth,
		Name:  fmt.Sprintf("%s %d", month, year),
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// QuarterPeriod expects quarter in 1..4.
func QuarterPeriod(year, quarter int) Period {
	start := time.Date(year, time.Month(3*(quarter-1)+1), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Kind:  PeriodQuarter,
		Name:  fmt.Sprintf("Q%d %d", quarter, year),
		Start: start,
		End:   start.AddDate(0, 3, 0),
	}
}

func YearPeriod(year int) Period {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Kind:  PeriodYear,
		Name:  fmt.Sprintf("%d", year),
		Start: start,
		End:   start.AddDate(1, 0, 0),
	}
}

// CustomPeriod covers the calendar days from through to, both included.
func CustomPeriod(from, to time.Time) Period {
	start, last := startOfDay(from), startOfDay(to)
	return Period{
		Kind:  PeriodCustom,
		Name:  fmt.Sprintf("%s - %s", start.Format("Jan 02, 2006"), last.Format("Jan 02, 2006")),
		Start: start,
		End:   last.AddDate(0, 0, 1),
	}
}

// PeriodRequest selects a Period. A zero Year, Month or Quarter means the
// current one.
type PeriodRequest struct {
	Kind     PeriodKind `json:"kind"`
	WeeksAgo int        `json:"weeks_ago,omitempty"`
	Year     int        `json:"year,omitempty"`
	Month    int        `json:"month,omitempty"`
	Quarter  int        `json:"quarter,omitempty"`
	From     time.Time  `json:"from,omitzero"`
	To       time.Time  `json:"to,omitzero"`
}

// Resolve turns the request into a Period relative to now. An empty Kind
// selects the current week.
func (r PeriodRequest) Resolve(now time.Time) (Period, error) {
	now = now.UTC()
	year := r.Year
	if year == 0 {
		year = now.Year()
	}
	if year < minReportYear || year > maxReportYear {
		return Period{}, fmt.Errorf("%w: year %d out of range", common.ErrBadRequest, year)
	}

	switch r.Kind {
	case "", PeriodWeek:
		if r.WeeksAgo < 0 || r.WeeksAgo > maxWeeksAgo {
			return Period{}, fmt.Errorf("%w: weeks_ago must be between 0 and %d", common.ErrBadRequest, maxWeeksAgo)
		}
		return WeekPeriod(now, r.WeeksAgo), nil
	case PeriodMonth:
		month := r.Month
		if month == 0 {
			month = int(now.Month())
		}
		if month < 1 || month > 12 {
			return Period{}, fmt.Errorf("%w: month must be between 1 and 12", common.ErrBadRequest)
		}
		return MonthPeriod(year, time.Month(month)), nil
	case PeriodQuarter:
		quarter := r.Quarter
		if quarter == 0 {
			quarter = (int(now.Month())-1)/3 + 1
		}
		if quarter < 1 || quarter > 4 {
			return Period{}, fmt.Errorf("%w: quarter must be between 1 and 4", common.ErrBadRequest)
		}
		return QuarterPeriod(year, quarter), nil
	case PeriodYear:
		return YearPeriod(year), nil
	case PeriodCustom:
		if r.From.IsZero() || r.To.IsZero() {
			return Period{}, fmt.Errorf("%w: custom periods need from and to", common.ErrBadRequest)
		}
		if r.To.Before(r.From) {
			return Period{}, fmt.Errorf("%w: to is before from", common.ErrBadRequest)
		}
		return CustomPeriod(r.From, r.To), nil
	default:
		return Period{}, fmt.Errorf("%w: unknown period %q", common.ErrBadRequest, r.Kind)
	}
}

// CategorySummary describes one category within one currency.
type CategorySummary struct {
	Category string          `json:"category"`
	IsIncome bool            `json:"is_income"`
	Count    int64           `json:"count"`
	Total    decimal.Decimal `json:"total"`
	Average  decimal.Decimal `json:"average"`
	Largest  decimal.Decimal `json:"largest"`
	Smallest decimal.Decimal `json:"smallest"`
}

// CurrencySummary holds a period's totals in one currency.
type CurrencySummary struct {
	Currency         string            `json:"currency"`
	IncomeCount      int64             `json:"income_count"`
	IncomeTotal      decimal.Decimal   `json:"income_total"`
	ExpenseCount     int64             `json:"expense_count"`
	ExpenseTotal     decimal.Decimal   `json:"expense_total"`
	Net              decimal.Decimal   `json:"net"`
	TopCategory      string            `json:"top_category,omitempty"`
	TopCategoryTotal decimal.Decimal   `json:"top_category_total"`
	Categories       []CategorySummary `json:"categories"`
}

// PeriodSummary is the report for one period. Insights is empty unless a
// model is configured and answered.
type PeriodSummary struct {
	Period           Period            `json:"period"`
	TransactionCount int               `json:"transaction_count"`
	Currencies       []CurrencySummary `json:"currencies"`
	Insights         string            `json:"insights,omitempty"`
}

// Currency returns the totals for code.
func (s *PeriodSummary) Currency(code string) (CurrencySummary, bool) {
	for _, c := range s.Currencies {
		if c.Currency == code {
			return c, true
		}
	}
	return CurrencySummary{}, false
}

type categoryKey struct {
	category string
	isIncome bool
}

// Summarize totals txs per currency and per category. Transactions outside
// the period are ignored.
func Summarize(period Period, txs []*repository.Transaction) *PeriodSummary {
	summary := &PeriodSummary{Period: period, Currencies: []CurrencySummary{}}

	currencies := map[string]*CurrencySummary{}
	categories := map[string]map[categoryKey]*CategorySummary{}

	for _, tx := range txs {
		if !period.Contains(tx.OccurredAt) {
			continue
		}
		summary.TransactionCount++

		cs, ok := currencies[tx.Currency]
		if !ok {
			cs = &CurrencySummary{Currency: tx.Currency}
			currencies[tx.Currency] = cs
			categories[tx.Currency] = map[categoryKey]*CategorySummary{}
		}
		if tx.IsIncome {
			cs.IncomeCount++
			cs.IncomeTotal = cs.IncomeTotal.Add(tx.Amount)
		} else {
			cs.ExpenseCount++
			cs.ExpenseTotal = cs.ExpenseTotal.Add(tx.Amount)
		}

		key := categoryKey{category: tx.Category, isIncome: tx.IsIncome}
		cat, ok := categories[tx.Currency][key]
		if !ok {
			cat = &CategorySummary{Category: tx.Category, IsIncome: tx.IsIncome, Largest: tx.Amount, Smallest: tx.Amount}
			categories[tx.Currency][key] = cat
		}
		cat.Count++
		cat.Total = cat.Total.Add(tx.Amount)
		if tx.Amount.GreaterThan(cat.Largest) {
			cat.Largest = tx.Amount
		}
		if tx.Amount.LessThan(cat.Smallest) {
			cat.Smallest = tx.Amount
		}
	}

	for code, cs := range currencies {
		cs.Net = cs.IncomeTotal.Sub(cs.ExpenseTotal)
		for _, cat := range categories[code] {
			cat.Average = cat.Total.Div(decimal.NewFromInt(cat.Count)).Round(2)
			cs.Categories = append(cs.Categories, *cat)
		}
		sortCategorySummaries(cs.Categories)
		for _, cat := range cs.Categories {
			if !cat.IsIncome {
				cs.TopCategory = cat.Category
				cs.TopCategoryTotal = cat.Total
				break
			}
		}
		summary.Currencies = append(summary.Currencies, *cs)
	}
	slices.SortFunc(summary.Currencies, func(a, b CurrencySummary) int {
		return cmp.Compare(a.Currency, b.Currency)
	})
	return summary
}

// sortCategorySummaries orders income first, then larger totals, then name.
func sortCategorySummaries(cats []CategorySummary) {
	slices.SortFunc(cats, func(a, b CategorySummary) int {
		if a.IsIncome != b.IsIncome {
			if a.IsIncome {
				return -1
			}
			return 1
		}
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
}

// TrendDirection is the week-over-week spending direction.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// CurrencyTrend compares average weekly spending of the two most recent
// weeks with the weeks before them.
type CurrencyTrend struct {
	Currency      string          `json:"currency"`
	RecentAverage decimal.Decimal `json:"recent_average"`
	OlderAverage  decimal.Decimal `json:"older_average"`
	Direction     TrendDirection  `json:"direction"`
}

// WeekComparison lists consecutive weeks oldest first.
type WeekComparison struct {
	Weeks  []*PeriodSummary `json:"weeks"`
	Trends []CurrencyTrend  `json:"trends"`
}

var (
	trendUpper = decimal.RequireFromString("1.1")
	trendLower = decimal.RequireFromString("0.9")
)

// CompareSummaries derives spending trends from weeks ordered oldest first.
// With fewer than three weeks the older average equals the recent one, so
// the trend is stable.
func CompareSummaries(weeks []*PeriodSummary) []CurrencyTrend {
	trends := []CurrencyTrend{}
	if len(weeks) < 2 {
		return trends
	}

	var codes []string
	for _, w := range weeks {
		for _, c := range w.Currencies {
			if !slices.Contains(codes, c.Currency) {
				codes = append(codes, c.Currency)
			}
		}
	}
	slices.Sort(codes)

	split := len(weeks) - 2
	for _, code := range codes {
		recent := averageExpense(weeks[split:], code)
		older := recent
		if split > 0 {
			older = averageExpense(weeks[:split], code)
		}

		direction := TrendStable
		switch {
		case recent.GreaterThan(older.Mul(trendUpper)):
			direction = TrendIncreasing
		case recent.LessThan(older.Mul(trendLower)):
			direction = TrendDecreasing
		}
		trends = append(trends, CurrencyTrend{
			Currency:      code,
			RecentAverage: recent,
			OlderAverage:  older,
			Direction:     direction,
		})
	}
	return trends
}

func averageExpense(weeks []*PeriodSummary, code string) decimal.Decimal {
	total := decimal.Zero
	for _, w := range weeks {
		if c, ok := w.Currency(code); ok {
			total = total.Add(c.ExpenseTotal)
		}
	}
	return total.Div(decimal.NewFromInt(int64(len(weeks)))).Round(2)
}

// TaxLine is one potentially deductible expense.
type TaxLine struct {
	OccurredAt  time.Time       `json:"occurred_at"`
	Category    string          `json:"category"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// CurrencyAmount is a total in one currency.
type CurrencyAmount struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// CategoryAmount is a category total in one currency.
type CategoryAmount struct {
	Category string          `json:"category"`
	Currency string          `json:"currency"`
	Count    int64           `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

// TaxReport lists a year's expenses in business categories along with every
// category total.
type TaxReport struct {
	Year             int              `json:"year"`
	TransactionCount int              `json:"transaction_count"`
	Deductions       []TaxLine        `json:"deductions"`
	DeductionTotals  []CurrencyAmount `json:"deduction_totals"`
	CategoryTotals   []CategoryAmount `json:"category_totals"`
}

// BuildTaxReport expects txs ordered oldest first. Business categories match
// case-insensitively and only expenses count as deductions.
func BuildTaxReport(year int, businessCategories []string, txs []*repository.Transaction) *TaxReport {
	report := &TaxReport{
		Year:            year,
		Deductions:      []TaxLine{},
		DeductionTotals: []CurrencyAmount{},
		CategoryTotals:  []CategoryAmount{},
	}
	period := YearPeriod(year)

	business := make(map[string]struct{}, len(businessCategories))
	for _, c := range businessCategories {
		business[strings.ToLower(c)] = struct{}{}
	}

	deductions := map[string]decimal.Decimal{}
	type key struct{ category, currency string }
	totals := map[key]*CategoryAmount{}

	for _, tx := range txs {
		if !period.Contains(tx.OccurredAt) {
			continue
		}
		report.TransactionCount++

		if _, ok := business[strings.ToLower(tx.Category)]; ok && !tx.IsIncome {
			report.Deductions = append(report.Deductions, TaxLine{
				OccurredAt:  tx.OccurredAt,
				Category:    tx.Category,
				Currency:    tx.Currency,
				Amount:      tx.Amount,
				Description: tx.Description,
			})
			deductions[tx.Currency] = deductions[tx.Currency].Add(tx.Amount)
		}

		k := key{category: tx.Category, currency: tx.Currency}
		ct, ok := totals[k]
		if !ok {
			ct = &CategoryAmount{Category: tx.Category, Currency: tx.Currency}
			totals[k] = ct
		}
		ct.Count++
		ct.Total = ct.Total.Add(tx.Amount)
	}

	for code, amount := range deductions {
		report.DeductionTotals = append(report.DeductionTotals, CurrencyAmount{Currency: code, Amount: amount})
	}
	slices.SortFunc(report.DeductionTotals, func(a, b CurrencyAmount) int {
		return cmp.Compare(a.Currency, b.Currency)
	})

	for _, ct := range totals {
		report.CategoryTotals = append(report.CategoryTotals, *ct)
	}
	slices.SortFunc(report.CategoryTotals, func(a, b CategoryAmount) int {
		if c := cmp.Compare(a.Currency, b.Currency); c != 0 {
			return c
		}
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return report
}
