package utils

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

// ValidateAmount validates and parses amount from string
func ValidateAmount(text string) (float64, error) {
	text = strings.TrimSpace(text)

	amount, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount format")
	}

	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}

	return amount, nil
}

// ExpenseInput is a parsed "amount [category] [note...]" message.
type ExpenseInput struct {
	Amount   float64
	Category string
	Note     string
}

// ParseExpenseInput parses a quick-entry message. Category matching is
// case-insensitive against known; an unknown second word starts the note.
func ParseExpenseInput(text string, known []string) (ExpenseInput, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ExpenseInput{}, fmt.Errorf("empty message")
	}
	amount, err := ValidateAmount(fields[0])
	if err != nil {
		return ExpenseInput{}, err
	}

	in := ExpenseInput{Amount: amount}
	rest := fields[1:]
	if len(rest) > 0 {
		for _, c := range known {
			if strings.EqualFold(c, rest[0]) {
				in.Category = c
				rest = rest[1:]
				break
			}
		}
	}
	in.Note = strings.Join(rest, " ")
	return in, nil
}

// FormatAmount renders a rupee amount, masked when hidden.
func FormatAmount(amount decimal.Decimal, hidden bool) string {
	if hidden {
		return "₹****"
	}
	return "₹" + amount.StringFixed(2)
}

// BuildCategoryKeyboard builds inline keyboard for category selection
func BuildCategoryKeyboard(categories []string, pendingID string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	// 2 buttons per row
	for i := 0; i < len(categories); i += 2 {
		var row []tgbotapi.InlineKeyboardButton
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			categories[i],
			fmt.Sprintf("category_%s_%s", categories[i], pendingID),
		))
		if i+1 < len(categories) {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(
				categories[i+1],
				fmt.Sprintf("category_%s_%s", categories[i+1], pendingID),
			))
		}
		rows = append(rows, row)
	}

	cancelBtn := tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "discard_"+pendingID)
	rows = append(rows, []tgbotapi.InlineKeyboardButton{cancelBtn})

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// BuildConfirmKeyboard asks the user to confirm a destructive action.
func BuildConfirmKeyboard(action string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Yes, delete", "confirm_"+action),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "cancel_"+action),
		),
	)
}

// ParseCategoryCallback splits "category_<name>_<pendingID>". Category names
// may contain underscores; the pending id may not.
func ParseCategoryCallback(data string) (category, pendingID string, ok bool) {
	rest, found := strings.CutPrefix(data, "category_")
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, "_")
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// BuildDeleteKeyboard offers removal of a saved expense.
func BuildDeleteKeyboard(expenseID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑️ Delete", fmt.Sprintf("delete_%d", expenseID)),
		),
	)
}
