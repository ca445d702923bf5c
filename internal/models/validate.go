package models

import (
	"fmt"
	"strings"
)

func nonNegative(name string, v float64) error {
	if v < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Category) == "" {
		return fmt.Errorf("expense %d: category is required", e.ID)
	}
	return nonNegative("expense amount", e.Amount)
}

// Validate checks the amount; returns may be negative.
func (i Investment) Validate() error {
	return nonNegative("investment amount", i.Amount)
}

func (b Budget) Validate() error {
	if err := nonNegative("budget planned", b.Planned); err != nil {
		return err
	}
	return nonNegative("budget actual", b.Actual)
}

func (f EmergencyFund) Validate() error {
	for name, v := range map[string]float64{
		"target":              f.Target,
		"current":             f.Current,
		"monthlyContribution": f.MonthlyContribution,
	} {
		if err := nonNegative("emergency fund "+name, v); err != nil {
			return err
		}
	}
	return nil
}

func (g Goals) Validate() error {
	if err := nonNegative("monthly savings target", g.MonthlySavingsTarget); err != nil {
		return err
	}
	if err := nonNegative("total savings goal", g.TotalSavingsGoal); err != nil {
		return err
	}
	if g.CurrentStreak < 0 {
		return fmt.Errorf("current streak must not be negative")
	}
	return nil
}

func (c CustomGoal) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("custom goal %d: name is required", c.ID)
	}
	if err := nonNegative("custom goal target", c.Target); err != nil {
		return err
	}
	return nonNegative("custom goal current", c.Current)
}

func (p UserProfile) Validate() error {
	if err := nonNegative("monthly income", p.MonthlyIncome); err != nil {
		return err
	}
	if err := nonNegative("family support", p.FamilySupport); err != nil {
		return err
	}
	return nonNegative("brother support", p.BrotherSupport)
}

// ValidateExpenses checks every element and id uniqueness.
func ValidateExpenses(items []Expense) error {
	seen := make(map[int64]bool, len(items))
	for _, e := range items {
		if seen[e.ID] {
			return fmt.Errorf("duplicate expense id %d", e.ID)
		}
		seen[e.ID] = true
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func ValidateInvestments(items []Investment) error {
	seen := make(map[int64]bool, len(items))
	for _, inv := range items {
		if seen[inv.ID] {
			return fmt.Errorf("duplicate investment id %d", inv.ID)
		}
		seen[inv.ID] = true
		if err := inv.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func ValidateCustomGoals(items []CustomGoal) error {
	seen := make(map[int64]bool, len(items))
	for _, g := range items {
		if seen[g.ID] {
			return fmt.Errorf("duplicate custom goal id %d", g.ID)
		}
		seen[g.ID] = true
		if err := g.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func ValidateBudgets(budgets map[string]Budget) error {
	for category, b := range budgets {
		if strings.TrimSpace(category) == "" {
			return fmt.Errorf("budget category name is required")
		}
		if err := b.Validate(); err != nil {
			return fmt.Errorf("budget %q: %w", category, err)
		}
	}
	return nil
}
