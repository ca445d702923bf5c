package insights

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finance-tracker/internal/models"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")
	bareObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// BuildPrompt describes the month's figures for the model.
func BuildPrompt(d models.Dataset, now time.Time) string {
	s := models.Summarize(d, now)

	var b strings.Builder
	b.WriteString("Analyze this financial data and provide actionable insights:\n\n")
	fmt.Fprintf(&b, "Monthly Income: ₹%s\n", s.MonthlyIncome)
	fmt.Fprintf(&b, "Current Savings: ₹%s\n", s.CurrentSavings)
	fmt.Fprintf(&b, "Savings Rate: %s%%\n", s.SavingsRate)
	fmt.Fprintf(&b, "Total Monthly Expenses: ₹%s\n", s.ThisMonthSpent)
	fmt.Fprintf(&b, "Total Investments: ₹%s\n", s.TotalInvestments)
	fmt.Fprintf(&b, "Total Returns: ₹%s\n", s.TotalReturns)
	fmt.Fprintf(&b, "Emergency Fund: ₹%s / ₹%s\n",
		decimal.NewFromFloat(d.EmergencyFund.Current), decimal.NewFromFloat(d.EmergencyFund.Target))

	b.WriteString("\nBudget Categories:\n")
	categories := make([]string, 0, len(d.Budgets))
	for c := range d.Budgets {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		bud := d.Budgets[c]
		fmt.Fprintf(&b, "%s: Planned ₹%s, Actual ₹%s\n", c,
			decimal.NewFromFloat(bud.Planned), decimal.NewFromFloat(bud.Actual))
	}

	b.WriteString("\nRecent Expenses:\n")
	recent := d.Expenses
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	for _, e := range recent {
		fmt.Fprintf(&b, "%s: ₹%s (%s)\n", e.Category, decimal.NewFromFloat(e.Amount), e.Note)
	}

	b.WriteString(`
Please provide:
1. 4 specific insights with actionable advice
2. 5 investment tips
3. Format as JSON with insights array and investmentTips array
4. Each insight should have title, message, type (success/warning/info), and action
`)
	return b.String()
}

// ParseInsights extracts the insights JSON from model output, fenced or bare.
func ParseInsights(text string) (models.AIInsights, error) {
	var raw string
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else if m := bareObject.FindString(text); m != "" {
		raw = m
	} else {
		return models.AIInsights{}, fmt.Errorf("%w: no JSON found", ErrParsing)
	}

	var parsed struct {
		Insights       []models.AIInsight `json:"insights"`
		InvestmentTips []json.RawMessage  `json:"investmentTips"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return models.AIInsights{}, fmt.Errorf("%w: %v", ErrParsing, err)
	}

	out := models.AIInsights{Insights: parsed.Insights, InvestmentTips: make([]string, 0, len(parsed.InvestmentTips))}
	for _, tip := range parsed.InvestmentTips {
		var s string
		if err := json.Unmarshal(tip, &s); err == nil {
			out.InvestmentTips = append(out.InvestmentTips, s)
			continue
		}
		out.InvestmentTips = append(out.InvestmentTips, string(tip))
	}
	return out, nil
}

// Fallback builds rule-based insights from the figures alone, for when the
// model cannot be reached.
func Fallback(d models.Dataset, now time.Time) models.AIInsights {
	s := models.Summarize(d, now)
	rate, _ := decimal.NewFromString(s.SavingsRate)

	savings := models.AIInsight{Title: "Savings Performance"}
	switch {
	case rate.GreaterThan(decimal.NewFromInt(20)):
		savings.Message = fmt.Sprintf("Your %s%% savings rate is excellent.", s.SavingsRate)
		savings.Type, savings.Action = "success", "Consider increasing investments"
	case rate.GreaterThan(decimal.NewFromInt(15)):
		savings.Message = fmt.Sprintf("Your %s%% savings rate is good.", s.SavingsRate)
		savings.Type, savings.Action = "info", "Try to reduce expenses in non-essential categories"
	default:
		savings.Message = fmt.Sprintf("Your %s%% savings rate needs improvement.", s.SavingsRate)
		savings.Type, savings.Action = "warning", "Try to reduce expenses in non-essential categories"
	}

	fund := models.AIInsight{Title: "Emergency Fund Status"}
	pct := "0"
	if d.EmergencyFund.Target > 0 {
		pct = decimal.NewFromFloat(d.EmergencyFund.Current).
			Div(decimal.NewFromFloat(d.EmergencyFund.Target)).
			Mul(decimal.NewFromInt(100)).StringFixed(0)
	}
	fund.Message = fmt.Sprintf("You have ₹%s in emergency fund (%s%% of target).", decimal.NewFromFloat(d.EmergencyFund.Current), pct)
	if d.EmergencyFund.Current >= d.EmergencyFund.Target*0.5 {
		fund.Type, fund.Action = "success", "Great progress! Keep contributing regularly."
	} else {
		fund.Type, fund.Action = "warning", "Prioritize building emergency fund to 6 months of expenses."
	}

	growth := models.AIInsight{
		Title:   "Investment Growth",
		Message: fmt.Sprintf("Total investments: ₹%s with returns of ₹%s.", s.TotalInvestments, s.TotalReturns),
		Type:    "info",
		Action:  "Start systematic investing with small amounts",
	}
	if s.TotalInvestments.GreaterThan(decimal.NewFromInt(10000)) {
		growth.Action = "Consider diversifying across asset classes"
	}

	return models.AIInsights{
		Insights: []models.AIInsight{savings, fund, growth},
		InvestmentTips: []string{
			"Index funds suit a monthly SIP regardless of short-term moves",
			"Keep speculative assets under 5% of the portfolio",
			"Build the emergency fund before aggressive investments",
			"Increase SIP amounts annually by about 10%",
		},
		Timestamp: now.UnixMilli(),
	}
}
