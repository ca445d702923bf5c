package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"finance-tracker/internal/backup"
	"finance-tracker/internal/models"
	"finance-tracker/internal/utils"
)

// maxUploadBytes bounds a restore file download.
const maxUploadBytes = 10 << 20

// EventHandler handles Telegram events
type EventHandler struct {
	Deps
	commands   *CommandHandler
	httpClient *http.Client

	mu sync.Mutex
	// pending holds bare amounts awaiting a category, keyed by message id.
	pending map[string]utils.ExpenseInput
	// saved maps the user's message id to the expense it created.
	saved map[int]int64
}

// NewEventHandler creates a new event handler
func NewEventHandler(deps Deps) *EventHandler {
	return &EventHandler{
		Deps:       deps,
		commands:   NewCommandHandler(deps),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pending:    make(map[string]utils.ExpenseInput),
		saved:      make(map[int]int64),
	}
}

// HandleMessage handles incoming messages
func (h *EventHandler) HandleMessage(ctx context.Context, bot Bot, message *tgbotapi.Message) {
	if message.From != nil && message.From.IsBot {
		return
	}
	if message.Chat == nil || !h.Config.IsAuthorizedChat(message.Chat.ID) {
		return
	}

	if message.Document != nil {
		h.handleDocument(ctx, bot, message)
		return
	}

	if message.IsCommand() {
		h.handleCommand(ctx, bot, message)
		return
	}

	if message.EditDate != 0 {
		h.handleEditedMessage(bot, message)
		return
	}

	h.handleNewExpense(bot, message)
}

// handleCommand processes bot commands
func (h *EventHandler) handleCommand(ctx context.Context, bot Bot, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := message.CommandArguments()

	switch message.Command() {
	case "summary", "totals":
		h.commands.SendSummary(bot, chatID)
	case "history":
		h.commands.SendHistory(bot, chatID, args)
	case "sync":
		h.commands.SyncNow(ctx)
	case "load":
		h.commands.LoadNow(ctx)
	case "clear":
		h.commands.AskConfirmation(bot, chatID, "clear",
			"Delete all cloud data for this user? This cannot be undone.")
	case "reset":
		h.commands.AskConfirmation(bot, chatID, "reset",
			"Clear all local data and settings? Cloud data is kept.")
	case "status":
		h.commands.SendStatus(bot, chatID)
	case "backup":
		h.commands.SendBackup(bot, chatID)
	case "export":
		h.commands.SendExport(bot, chatID)
	case "csv":
		h.commands.SendCSV(bot, chatID)
	case "autobackup":
		h.commands.SetAutoBackup(bot, chatID, args)
	case "autosync":
		h.commands.SetAutoSync(bot, chatID, args)
	case "insights":
		h.commands.SendInsights(ctx, bot, chatID)
	case "privacy":
		h.commands.TogglePrivacy(bot, chatID, args)
	case "budget":
		h.commands.SetBudget(bot, chatID, args)
	case "goal":
		h.commands.AddGoal(bot, chatID, args)
	case "invest":
		h.commands.AddInvestment(bot, chatID, args)
	case "income":
		h.commands.SetIncome(bot, chatID, args)
	case "restore", "import":
		reply(bot, chatID, "Send the backup file with /"+message.Command()+" as its caption.")
	case "help", "start":
		h.commands.SendHelp(bot, chatID)
	}
}

// handleNewExpense adds "amount [category] [note]" messages. Without a
// category the amount waits for a keyboard choice.
func (h *EventHandler) handleNewExpense(bot Bot, message *tgbotapi.Message) {
	in, err := utils.ParseExpenseInput(message.Text, h.Config.Categories)
	if err != nil {
		// Not an expense, ignore
		return
	}

	if in.Category != "" {
		h.saveExpense(bot, message.Chat.ID, message.MessageID, in)
		return
	}

	pendingID := strconv.Itoa(message.MessageID)
	h.mu.Lock()
	h.pending[pendingID] = in
	h.mu.Unlock()

	msg := tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("Select a category for %s:", utils.FormatAmount(money(in.Amount), false)))
	msg.ReplyMarkup = utils.BuildCategoryKeyboard(h.Config.Categories, pendingID)
	if _, err := bot.Send(msg); err != nil {
		slog.Error("failed to send category selection", "err", err)
	}
}

func (h *EventHandler) saveExpense(bot Bot, chatID int64, messageID int, in utils.ExpenseInput) {
	e, err := h.State.AddExpense(models.Expense{Amount: in.Amount, Category: in.Category, Note: in.Note})
	if err != nil {
		slog.Error("failed to add expense", "err", err)
		reply(bot, chatID, "Failed to save expense.")
		return
	}
	h.mu.Lock()
	h.saved[messageID] = e.ID
	h.mu.Unlock()

	msg := tgbotapi.NewMessage(chatID, h.addedText(e))
	msg.ReplyMarkup = utils.BuildDeleteKeyboard(e.ID)
	if _, err := bot.Send(msg); err != nil {
		slog.Error("failed to send confirmation", "err", err)
	}
}

func (h *EventHandler) addedText(e models.Expense) string {
	text := fmt.Sprintf("✅ Added %s to %s", utils.FormatAmount(money(e.Amount), false), e.Category)
	d := h.State.Snapshot()
	if b, ok := d.Budgets[e.Category]; ok && b.Planned > 0 {
		text += fmt.Sprintf("\n📋 %s of %s budget used", utils.FormatAmount(money(b.Actual), false),
			utils.FormatAmount(money(b.Planned), false))
		if b.Actual > b.Planned {
			text += " ⚠️"
		}
	}
	return text
}

// HandleCallbackQuery handles inline button callbacks
func (h *EventHandler) HandleCallbackQuery(ctx context.Context, bot Bot, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || callback.Message.Chat == nil || !h.Config.IsAuthorizedChat(callback.Message.Chat.ID) {
		return
	}

	switch data := callback.Data; {
	case strings.HasPrefix(data, "category_"):
		h.handleCategorySelection(bot, callback)
	case strings.HasPrefix(data, "discard_"):
		h.mu.Lock()
		delete(h.pending, strings.TrimPrefix(data, "discard_"))
		h.mu.Unlock()
		h.deleteMessage(bot, callback.Message)
	case strings.HasPrefix(data, "delete_"):
		h.handleExpenseDeletion(bot, callback)
	case data == "confirm_clear":
		h.deleteMessage(bot, callback.Message)
		h.commands.ClearRemote(ctx)
	case data == "confirm_reset":
		h.deleteMessage(bot, callback.Message)
		h.commands.ResetLocal(bot, callback.Message.Chat.ID)
	case strings.HasPrefix(data, "cancel_"):
		edit := tgbotapi.NewEditMessageText(callback.Message.Chat.ID, callback.Message.MessageID, "Cancelled.")
		if _, err := bot.Send(edit); err != nil {
			slog.Debug("failed to edit message", "err", err)
		}
	}

	// Answer the callback to remove loading state
	if _, err := bot.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		slog.Debug("failed to answer callback", "err", err)
	}
}

// handleCategorySelection saves a pending amount under the chosen category
func (h *EventHandler) handleCategorySelection(bot Bot, callback *tgbotapi.CallbackQuery) {
	category, pendingID, ok := utils.ParseCategoryCallback(callback.Data)
	if !ok {
		return
	}

	h.mu.Lock()
	in, found := h.pending[pendingID]
	delete(h.pending, pendingID)
	h.mu.Unlock()
	if !found {
		h.deleteMessage(bot, callback.Message)
		return
	}

	in.Category = category
	e, err := h.State.AddExpense(models.Expense{Amount: in.Amount, Category: in.Category, Note: in.Note})
	if err != nil {
		slog.Error("failed to add expense", "err", err)
		return
	}
	if messageID, err := strconv.Atoi(pendingID); err == nil {
		h.mu.Lock()
		h.saved[messageID] = e.ID
		h.mu.Unlock()
	}

	keyboard := utils.BuildDeleteKeyboard(e.ID)
	editMsg := tgbotapi.NewEditMessageText(callback.Message.Chat.ID, callback.Message.MessageID, h.addedText(e))
	editMsg.ReplyMarkup = &keyboard
	if _, err := bot.Send(editMsg); err != nil {
		slog.Error("failed to update category selection message", "err", err)
	}
}

// handleExpenseDeletion removes an expense via its delete button
func (h *EventHandler) handleExpenseDeletion(bot Bot, callback *tgbotapi.CallbackQuery) {
	id, err := strconv.ParseInt(strings.TrimPrefix(callback.Data, "delete_"), 10, 64)
	if err != nil {
		return
	}
	h.deleteMessage(bot, callback.Message)

	if err := h.State.DeleteExpense(id); err != nil {
		slog.Warn("failed to delete expense", "id", id, "err", err)
		return
	}
	h.mu.Lock()
	for msgID, expenseID := range h.saved {
		if expenseID == id {
			delete(h.saved, msgID)
		}
	}
	h.mu.Unlock()
	reply(bot, callback.Message.Chat.ID, "🗑️ Expense deleted")
}

// handleEditedMessage updates the amount of a pending or saved expense
func (h *EventHandler) handleEditedMessage(bot Bot, message *tgbotapi.Message) {
	edited, err := utils.ParseExpenseInput(message.Text, h.Config.Categories)
	if err != nil {
		// Not a valid amount, ignore
		return
	}
	newAmount := edited.Amount

	pendingID := strconv.Itoa(message.MessageID)
	h.mu.Lock()
	in, isPending := h.pending[pendingID]
	if isPending {
		in.Amount = newAmount
		h.pending[pendingID] = in
	}
	expenseID, isSaved := h.saved[message.MessageID]
	h.mu.Unlock()

	if isPending || !isSaved {
		return
	}

	for _, e := range h.State.Snapshot().Expenses {
		if e.ID != expenseID {
			continue
		}
		e.Amount = newAmount
		if err := h.State.UpdateExpense(e); err != nil {
			slog.Error("failed to update expense amount", "err", err)
			return
		}
		reply(bot, message.Chat.ID, fmt.Sprintf("✅ Updated to %s in %s", utils.FormatAmount(money(newAmount), false), e.Category))
		return
	}
}

// handleDocument restores or imports an uploaded snapshot file.
func (h *EventHandler) handleDocument(ctx context.Context, bot Bot, message *tgbotapi.Message) {
	words := strings.Fields(message.Caption)
	if len(words) == 0 {
		return
	}
	command := strings.TrimPrefix(words[0], "/")
	if i := strings.Index(command, "@"); i >= 0 {
		command = command[:i]
	}
	if command != "restore" && command != "import" {
		return
	}
	chatID := message.Chat.ID

	body, err := h.download(ctx, bot, message.Document.FileID)
	if err != nil {
		slog.Error("failed to download file", "file", message.Document.FileName, "err", err)
		reply(bot, chatID, "⚠️ Failed to download file.")
		return
	}
	defer body.Close()

	var res *backup.Result
	if command == "restore" {
		res, err = h.Backups.RestoreFromFile(body)
	} else {
		res, err = h.Backups.ImportSnapshot(body)
	}
	if err != nil {
		slog.Warn("restore failed", "file", message.Document.FileName, "err", err)
		reply(bot, chatID, "❌ "+err.Error())
		return
	}
	if res.NeedsReinitialize {
		h.State.Reinitialize()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "♻️ Restored %d fields from %s", len(res.Applied), message.Document.FileName)
	for _, skipped := range res.Skipped() {
		fmt.Fprintf(&b, "\n   skipped %s: %s", skipped.Field, skipped.Reason)
	}
	reply(bot, chatID, b.String())
}

func (h *EventHandler) download(ctx context.Context, bot Bot, fileID string) (io.ReadCloser, error) {
	url, err := bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxUploadBytes), resp.Body}, nil
}

func (h *EventHandler) deleteMessage(bot Bot, message *tgbotapi.Message) {
	if _, err := bot.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
		slog.Debug("failed to delete message", "err", err)
	}
}
