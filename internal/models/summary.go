package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// InMonth reports whether date falls in the same calendar month as now.
// Unparseable dates are never in month.
func InMonth(date string, now time.Time) bool {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		t, err = ParseTimestamp(date)
		if err != nil {
			return false
		}
	}
	return t.Year() == now.Year() && t.Month() == now.Month()
}

// RecomputeBudgetActuals returns a copy of budgets whose Actual values are the
// current-month expense totals of each category.
func RecomputeBudgetActuals(expenses []Expense, budgets map[string]Budget, now time.Time) map[string]Budget {
	totals := make(map[string]decimal.Decimal, len(budgets))
	for _, e := range expenses {
		if _, ok := budgets[e.Category]; !ok || !InMonth(e.Date, now) {
			continue
		}
		totals[e.Category] = totals[e.Category].Add(decimal.NewFromFloat(e.Amount))
	}

	out := make(map[string]Budget, len(budgets))
	for category, b := range budgets {
		b.Actual = totals[category].InexactFloat64()
		out[category] = b
	}
	return out
}

// Summary holds the dashboard aggregates derived from a dataset.
type Summary struct {
	MonthlyIncome        decimal.Decimal
	ThisMonthSpent       decimal.Decimal
	CurrentMonthExpenses int
	CurrentSavings       decimal.Decimal
	SavingsRate          string
	TotalPlannedBudget   decimal.Decimal
	TotalInvestments     decimal.Decimal
	TotalReturns         decimal.Decimal
	PortfolioValue       decimal.Decimal
	EmergencyFundCurrent decimal.Decimal
}

// Summarize computes the month-to-date aggregates as of now.
func Summarize(d Dataset, now time.Time) Summary {
	var s Summary
	s.MonthlyIncome = decimal.NewFromFloat(d.UserProfile.MonthlyIncome)
	for _, e := range d.Expenses {
		if InMonth(e.Date, now) {
			s.ThisMonthSpent = s.ThisMonthSpent.Add(decimal.NewFromFloat(e.Amount))
			s.CurrentMonthExpenses++
		}
	}
	for _, b := range d.Budgets {
		s.TotalPlannedBudget = s.TotalPlannedBudget.Add(decimal.NewFromFloat(b.Planned))
	}
	for _, inv := range d.Investments {
		s.TotalInvestments = s.TotalInvestments.Add(decimal.NewFromFloat(inv.Amount))
		s.TotalReturns = s.TotalReturns.Add(decimal.NewFromFloat(inv.Returns))
	}
	s.PortfolioValue = s.TotalInvestments.Add(s.TotalReturns)
	s.EmergencyFundCurrent = decimal.NewFromFloat(d.EmergencyFund.Current)

	s.CurrentSavings = s.MonthlyIncome.
		Sub(s.ThisMonthSpent).
		Sub(decimal.NewFromFloat(d.UserProfile.FamilySupport)).
		Sub(decimal.NewFromFloat(d.UserProfile.BrotherSupport))

	if s.MonthlyIncome.IsZero() {
		s.SavingsRate = decimal.Zero.StringFixed(1)
	} else {
		s.SavingsRate = s.CurrentSavings.Div(s.MonthlyIncome).Mul(hundred).StringFixed(1)
	}
	return s
}
