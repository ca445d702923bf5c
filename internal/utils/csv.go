package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"finance-tracker/internal/models"
)

// CSVFilename names a CSV export made at now.
func CSVFilename(now time.Time) string {
	return fmt.Sprintf("tracker-data-%s.csv", now.UTC().Format(models.DateLayout))
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// GenerateDatasetCSV writes the dataset as a sectioned CSV report
func GenerateDatasetCSV(d models.Dataset, s models.Summary, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)

	summary := [][]string{
		{"FINANCIAL SUMMARY"},
		{"Metric", "Value"},
		{"Monthly Income", s.MonthlyIncome.String()},
		{"Current Savings", s.CurrentSavings.String()},
		{"Savings Rate", s.SavingsRate + "%"},
		{"Total Expenses", s.ThisMonthSpent.String()},
		{"Total Investments", s.TotalInvestments.String()},
		{"Emergency Fund", s.EmergencyFundCurrent.String()},
		{},
	}
	for _, row := range summary {
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}

	// Expenses section
	if err := csvWriter.Write([]string{"EXPENSES"}); err != nil {
		return err
	}
	if err := csvWriter.Write([]string{"Date", "Category", "Amount", "Note"}); err != nil {
		return err
	}
	for _, e := range d.Expenses {
		if err := csvWriter.Write([]string{e.Date, e.Category, money(e.Amount), e.Note}); err != nil {
			return fmt.Errorf("failed to write expense %d: %w", e.ID, err)
		}
	}
	if err := csvWriter.Write([]string{}); err != nil {
		return err
	}

	// Investments section
	if err := csvWriter.Write([]string{"INVESTMENTS"}); err != nil {
		return err
	}
	if err := csvWriter.Write([]string{"Date", "Name", "Type", "Amount", "Returns"}); err != nil {
		return err
	}
	for _, inv := range d.Investments {
		row := []string{inv.Date, inv.Name, inv.Type, money(inv.Amount), money(inv.Returns)}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write investment %d: %w", inv.ID, err)
		}
	}
	if err := csvWriter.Write([]string{}); err != nil {
		return err
	}

	// Budget section, sorted by category
	if err := csvWriter.Write([]string{"BUDGET"}); err != nil {
		return err
	}
	if err := csvWriter.Write([]string{"Category", "Planned", "Actual"}); err != nil {
		return err
	}
	categories := make([]string, 0, len(d.Budgets))
	for c := range d.Budgets {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		b := d.Budgets[c]
		if err := csvWriter.Write([]string{c, money(b.Planned), money(b.Actual)}); err != nil {
			return fmt.Errorf("failed to write budget %q: %w", c, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
