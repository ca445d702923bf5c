package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"finance-tracker/internal/backup"
	"finance-tracker/internal/config"
	"finance-tracker/internal/insights"
	"finance-tracker/internal/localstore"
	"finance-tracker/internal/models"
	"finance-tracker/internal/state"
	"finance-tracker/internal/syncer"
	"finance-tracker/internal/utils"
)

// LocalMarkers is the local bookkeeping read by /status and cleared by /reset.
type LocalMarkers interface {
	SyncStatus() (*localstore.SyncRecord, error)
	ClearLocal() error
}

// Deps are the session components the handlers drive.
type Deps struct {
	Config   *config.Config
	State    *state.Store
	Sync     *syncer.Orchestrator
	Backups  *backup.Manager
	Insights *insights.Client
	Local    LocalMarkers
}

// CommandHandler handles bot commands
type CommandHandler struct {
	Deps
	now func() time.Time
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(deps Deps) *CommandHandler {
	return &CommandHandler{Deps: deps, now: time.Now}
}

func money(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// SendSummary sends the month-to-date dashboard, honouring privacy masks.
func (h *CommandHandler) SendSummary(bot Bot, chatID int64) {
	d := h.State.Snapshot()
	s := models.Summarize(d, h.now())
	p := d.PrivacySettings

	var b strings.Builder
	b.WriteString("📊 FINANCIAL SUMMARY\n")
	b.WriteString("═══════════════════\n\n")
	fmt.Fprintf(&b, "💰 Monthly income: %s\n", utils.FormatAmount(s.MonthlyIncome, p.HideIncome))
	fmt.Fprintf(&b, "💸 Spent this month: %s (%d expenses)\n",
		utils.FormatAmount(s.ThisMonthSpent, p.HideExpenses), s.CurrentMonthExpenses)
	fmt.Fprintf(&b, "🏦 Current savings: %s\n", utils.FormatAmount(s.CurrentSavings, p.HideSavings))
	if p.HideSavings {
		b.WriteString("📈 Savings rate: **%\n")
	} else {
		fmt.Fprintf(&b, "📈 Savings rate: %s%%\n", s.SavingsRate)
	}
	fmt.Fprintf(&b, "📦 Portfolio: %s (returns %s)\n",
		utils.FormatAmount(s.PortfolioValue, p.HideInvestments), utils.FormatAmount(s.TotalReturns, p.HideInvestments))
	fmt.Fprintf(&b, "🛟 Emergency fund: %s of %s\n",
		utils.FormatAmount(s.EmergencyFundCurrent, p.HideSavings), utils.FormatAmount(money(d.EmergencyFund.Target), p.HideSavings))

	if len(d.Budgets) > 0 {
		b.WriteString("\n📋 Budgets (actual / planned):\n")
		writeBudgets(&b, d.Budgets, p.HideExpenses)
	}

	b.WriteString("\n🔄 Use /history to see recent expenses")
	reply(bot, chatID, b.String())
}

func writeBudgets(b *strings.Builder, budgets map[string]models.Budget, hidden bool) {
	categories := make([]string, 0, len(budgets))
	for c := range budgets {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		bud := budgets[c]
		marker := ""
		if bud.Planned > 0 && bud.Actual > bud.Planned {
			marker = " ⚠️"
		}
		fmt.Fprintf(b, "   %s: %s / %s%s\n", c,
			utils.FormatAmount(money(bud.Actual), hidden), utils.FormatAmount(money(bud.Planned), hidden), marker)
	}
}

// SendHistory sends the most recent expenses, newest first.
func (h *CommandHandler) SendHistory(bot Bot, chatID int64, args string) {
	limit := 10
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil && n > 0 {
		limit = n
	}

	d := h.State.Snapshot()
	if len(d.Expenses) == 0 {
		reply(bot, chatID, "No expenses found.")
		return
	}

	expenses := append([]models.Expense(nil), d.Expenses...)
	sort.SliceStable(expenses, func(i, j int) bool {
		if expenses[i].Date != expenses[j].Date {
			return expenses[i].Date > expenses[j].Date
		}
		return expenses[i].ID > expenses[j].ID
	})
	if len(expenses) > limit {
		expenses = expenses[:limit]
	}

	var b strings.Builder
	b.WriteString("📜 Recent expenses:\n")
	for i, e := range expenses {
		fmt.Fprintf(&b, "%d. %s %s (%s)", i+1, e.Date,
			utils.FormatAmount(money(e.Amount), d.PrivacySettings.HideExpenses), e.Category)
		if e.Note != "" {
			fmt.Fprintf(&b, " - %s", e.Note)
		}
		b.WriteString("\n")
	}
	reply(bot, chatID, b.String())
}

// SyncNow, LoadNow and ClearRemote report through the orchestrator's notifier.

func (h *CommandHandler) SyncNow(ctx context.Context) {
	if err := h.Sync.SyncNow(ctx); err != nil {
		slog.Warn("manual sync failed", "err", err)
	}
}

func (h *CommandHandler) LoadNow(ctx context.Context) {
	if err := h.Sync.LoadNow(ctx); err != nil {
		slog.Warn("manual load failed", "err", err)
	}
}

// AskConfirmation sends a yes/cancel keyboard for a destructive action.
func (h *CommandHandler) AskConfirmation(bot Bot, chatID int64, action, prompt string) {
	msg := tgbotapi.NewMessage(chatID, prompt)
	msg.ReplyMarkup = utils.BuildConfirmKeyboard(action)
	if _, err := bot.Send(msg); err != nil {
		slog.Error("failed to send confirmation", "err", err)
	}
}

// ClearRemote deletes the cloud copy. The chat confirmation already happened.
func (h *CommandHandler) ClearRemote(ctx context.Context) {
	err := h.Sync.ClearRemote(ctx, func(string) bool { return true })
	if err != nil {
		slog.Warn("clear remote failed", "err", err)
	}
}

// ResetLocal wipes local markers and the in-memory dataset. The user id is kept
// so /load can bring the cloud copy back.
func (h *CommandHandler) ResetLocal(bot Bot, chatID int64) {
	if err := h.Local.ClearLocal(); err != nil {
		slog.Error("failed to clear local data", "err", err)
		reply(bot, chatID, "Failed to clear local data.")
		return
	}
	if err := h.Sync.SetSyncEnabled(true); err != nil {
		slog.Warn("failed to restore sync preference", "err", err)
	}

	d := models.DefaultDataset(h.now())
	d.UserID = h.Sync.UserID()
	h.State.Replace(d)
	reply(bot, chatID, "🧹 Local data cleared. Use /load to restore from cloud.")
}

// SendStatus reports sync, backup and quota state.
func (h *CommandHandler) SendStatus(bot Bot, chatID int64) {
	var b strings.Builder
	b.WriteString("🔌 STATUS\n\n")
	fmt.Fprintf(&b, "User: %s\n", h.Sync.UserID())
	fmt.Fprintf(&b, "Cloud sync: %s\n", onOff(h.Sync.SyncEnabled()))
	fmt.Fprintf(&b, "Sync status: %s", h.Sync.Status())
	if err := h.Sync.LastError(); err != nil {
		fmt.Fprintf(&b, " (%v)", err)
	}
	b.WriteString("\n")
	if h.Sync.Pending() {
		b.WriteString("Pending push: yes\n")
	}

	if rec, err := h.Local.SyncStatus(); err != nil {
		slog.Warn("failed to read sync markers", "err", err)
	} else if rec != nil {
		fmt.Fprintf(&b, "Last sync: %s\n", orNever(rec.LastSync))
		fmt.Fprintf(&b, "Last load: %s\n", orNever(rec.LastLoad))
	}

	if enabled, err := h.Backups.AutoBackupEnabled(); err == nil {
		fmt.Fprintf(&b, "\nAuto backup: %s\n", onOff(enabled))
	}
	if last, err := h.Backups.LastBackupDate(); err == nil {
		fmt.Fprintf(&b, "Last backup: %s\n", orNever(last))
	}
	if history, err := h.Backups.History(); err == nil && len(history) > 0 {
		b.WriteString("Recent backups:\n")
		for _, entry := range history {
			fmt.Fprintf(&b, "   • %s\n", entry)
		}
	}

	if h.Insights != nil {
		if until, err := h.Insights.Limiter().CooldownUntil(); err == nil && !until.IsZero() {
			fmt.Fprintf(&b, "\nAI cooldown until %s\n", until.UTC().Format("15:04 MST"))
		}
	}
	reply(bot, chatID, b.String())
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func orNever(s string) string {
	if s == "" {
		return "never"
	}
	return s
}

// SendBackup writes a manual snapshot and uploads it.
func (h *CommandHandler) SendBackup(bot Bot, chatID int64) {
	art, err := h.Backups.CreateSnapshot(false)
	if err != nil {
		slog.Error("failed to create snapshot", "err", err)
		reply(bot, chatID, "⚠️ Backup failed: "+err.Error())
		return
	}
	stats := h.Backups.Statistics()
	h.sendFile(bot, chatID, art.Name, art.Bytes, fmt.Sprintf("💾 Backup saved to %s\n%d expenses, %d investments",
		art.Path, stats.TotalExpenses, stats.TotalInvestments))
}

// SendExport uploads a portable export without the API key.
func (h *CommandHandler) SendExport(bot Bot, chatID int64) {
	art, err := h.Backups.ExportSnapshot()
	if err != nil {
		slog.Error("failed to export", "err", err)
		reply(bot, chatID, "⚠️ Export failed: "+err.Error())
		return
	}
	h.sendFile(bot, chatID, art.Name, art.Bytes, "📤 Data export")
}

// SendCSV uploads the dataset as a CSV report.
func (h *CommandHandler) SendCSV(bot Bot, chatID int64) {
	now := h.now()
	d := h.State.Snapshot()

	var buffer bytes.Buffer
	if err := utils.GenerateDatasetCSV(d, models.Summarize(d, now), &buffer); err != nil {
		slog.Error("failed to generate CSV", "err", err)
		reply(bot, chatID, "⚠️ CSV generation failed.")
		return
	}
	h.sendFile(bot, chatID, utils.CSVFilename(now), buffer.Bytes(),
		fmt.Sprintf("📊 %d expenses, %d investments", len(d.Expenses), len(d.Investments)))
}

func (h *CommandHandler) sendFile(bot Bot, chatID int64, name string, data []byte, caption string) {
	documentMsg := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	documentMsg.Caption = caption
	if _, err := bot.Send(documentMsg); err != nil {
		slog.Error("failed to send file", "name", name, "err", err)
		reply(bot, chatID, "⚠️ Failed to send file.")
	}
}

// parseToggle reads "on"/"off"; anything else reports the current value.
func parseToggle(args string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on", "true", "yes":
		return true, true
	case "off", "false", "no":
		return false, true
	}
	return false, false
}

func (h *CommandHandler) SetAutoBackup(bot Bot, chatID int64, args string) {
	v, ok := parseToggle(args)
	if !ok {
		enabled, _ := h.Backups.AutoBackupEnabled()
		reply(bot, chatID, fmt.Sprintf("Auto backup is %s. Usage: /autobackup on|off", onOff(enabled)))
		return
	}
	if err := h.Backups.SetAutoBackupEnabled(v); err != nil {
		slog.Error("failed to save auto backup preference", "err", err)
		reply(bot, chatID, "Failed to save preference.")
		return
	}
	reply(bot, chatID, "Auto backup "+onOff(v))
}

func (h *CommandHandler) SetAutoSync(bot Bot, chatID int64, args string) {
	v, ok := parseToggle(args)
	if !ok {
		reply(bot, chatID, fmt.Sprintf("Cloud sync is %s. Usage: /autosync on|off", onOff(h.Sync.SyncEnabled())))
		return
	}
	if err := h.Sync.SetSyncEnabled(v); err != nil {
		slog.Error("failed to save sync preference", "err", err)
		reply(bot, chatID, "Failed to save preference.")
		return
	}
	reply(bot, chatID, "Cloud sync "+onOff(v))
}

// SendInsights asks the text-generation service for insights and falls back
// to locally computed ones when it is unavailable.
func (h *CommandHandler) SendInsights(ctx context.Context, bot Bot, chatID int64) {
	now := h.now()
	d := h.State.Snapshot()
	ai := h.State.AISettings()

	var (
		out  models.AIInsights
		note string
	)
	if h.Insights == nil {
		out, note = insights.Fallback(d, now), "AI insights are not configured."
	} else {
		var err error
		out, err = h.Insights.Insights(ctx, ai, d, now)
		switch {
		case err == nil:
			ai.AIInsights = out
			h.State.SetAISettings(ai)
		case errors.Is(err, insights.ErrQuotaExceeded):
			out, note = insights.Fallback(d, now), "AI quota reached, showing basic insights."
		case errors.Is(err, insights.ErrRateLimited):
			out, note = insights.Fallback(d, now), "Please wait before requesting new insights."
		case errors.Is(err, insights.ErrNotConfigured):
			out, note = insights.Fallback(d, now), "AI insights are not configured."
		default:
			slog.Warn("insights request failed", "err", err)
			out, note = insights.Fallback(d, now), "AI insights unavailable, showing basic insights."
		}
	}

	var b strings.Builder
	b.WriteString("💡 INSIGHTS\n")
	if note != "" {
		fmt.Fprintf(&b, "(%s)\n", note)
	}
	for _, in := range out.Insights {
		fmt.Fprintf(&b, "\n%s %s\n%s\n", insightIcon(in.Type), in.Title, in.Message)
		if in.Action != "" {
			fmt.Fprintf(&b, "→ %s\n", in.Action)
		}
	}
	if len(out.InvestmentTips) > 0 {
		b.WriteString("\n📈 Investment tips:\n")
		for _, tip := range out.InvestmentTips {
			fmt.Fprintf(&b, "   • %s\n", tip)
		}
	}
	reply(bot, chatID, b.String())
}

func insightIcon(kind string) string {
	switch kind {
	case "success":
		return "✅"
	case "warning":
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// TogglePrivacy flips one of income, savings, expenses or investments.
func (h *CommandHandler) TogglePrivacy(bot Bot, chatID int64, args string) {
	flags := map[string]models.PrivacyFlag{
		"income":      models.HideIncome,
		"savings":     models.HideSavings,
		"expenses":    models.HideExpenses,
		"investments": models.HideInvestments,
	}
	name := strings.ToLower(strings.TrimSpace(args))
	flag, ok := flags[name]
	if !ok {
		reply(bot, chatID, "Usage: /privacy income|savings|expenses|investments")
		return
	}
	hidden, err := h.State.TogglePrivacy(flag)
	if err != nil {
		reply(bot, chatID, "Failed to update privacy: "+err.Error())
		return
	}
	shown := "shown"
	if hidden {
		shown = "hidden"
	}
	reply(bot, chatID, fmt.Sprintf("🙈 %s are now %s", strings.ToUpper(name[:1])+name[1:], shown))
}

// SetBudget handles "/budget <category> <planned>"; no arguments lists budgets.
func (h *CommandHandler) SetBudget(bot Bot, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		d := h.State.Snapshot()
		if len(d.Budgets) == 0 {
			reply(bot, chatID, "No budgets set. Usage: /budget <category> <amount>")
			return
		}
		var b strings.Builder
		b.WriteString("📋 Budgets (actual / planned):\n")
		writeBudgets(&b, d.Budgets, d.PrivacySettings.HideExpenses)
		reply(bot, chatID, b.String())
		return
	}
	if len(fields) != 2 {
		reply(bot, chatID, "Usage: /budget <category> <amount>")
		return
	}
	planned, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		reply(bot, chatID, "Invalid amount.")
		return
	}
	category := h.matchCategory(fields[0])
	if planned == 0 {
		if err := h.State.DeleteBudget(category); err != nil {
			reply(bot, chatID, "Failed to remove budget: "+err.Error())
			return
		}
		reply(bot, chatID, fmt.Sprintf("Removed %s budget", category))
		return
	}
	if err := h.State.SetBudget(category, planned); err != nil {
		reply(bot, chatID, "Failed to set budget: "+err.Error())
		return
	}
	reply(bot, chatID, fmt.Sprintf("📋 %s budget set to %s", category, utils.FormatAmount(money(planned), false)))
}

func (h *CommandHandler) matchCategory(name string) string {
	for _, c := range h.Config.Categories {
		if strings.EqualFold(c, name) {
			return c
		}
	}
	return name
}

// AddGoal handles "/goal <target> <name...>"; no arguments lists goals.
func (h *CommandHandler) AddGoal(bot Bot, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		d := h.State.Snapshot()
		if len(d.CustomGoals) == 0 {
			reply(bot, chatID, "No goals yet. Usage: /goal <target> <name>")
			return
		}
		var b strings.Builder
		b.WriteString("🎯 Goals:\n")
		for _, g := range d.CustomGoals {
			fmt.Fprintf(&b, "   %s: %s / %s\n", g.Name,
				utils.FormatAmount(money(g.Current), d.PrivacySettings.HideSavings),
				utils.FormatAmount(money(g.Target), d.PrivacySettings.HideSavings))
		}
		reply(bot, chatID, b.String())
		return
	}
	if len(fields) < 2 {
		reply(bot, chatID, "Usage: /goal <target> <name>")
		return
	}
	target, err := utils.ValidateAmount(fields[0])
	if err != nil {
		reply(bot, chatID, "Invalid target: "+err.Error())
		return
	}
	g, err := h.State.AddCustomGoal(models.CustomGoal{Name: strings.Join(fields[1:], " "), Target: target})
	if err != nil {
		reply(bot, chatID, "Failed to add goal: "+err.Error())
		return
	}
	reply(bot, chatID, fmt.Sprintf("🎯 Goal %q added (%s)", g.Name, utils.FormatAmount(money(g.Target), false)))
}

// AddInvestment handles "/invest <amount> <type> <name...>".
func (h *CommandHandler) AddInvestment(bot Bot, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		reply(bot, chatID, "Usage: /invest <amount> <type> <name>")
		return
	}
	amount, err := utils.ValidateAmount(fields[0])
	if err != nil {
		reply(bot, chatID, "Invalid amount: "+err.Error())
		return
	}
	inv, err := h.State.AddInvestment(models.Investment{
		Amount: amount,
		Type:   fields[1],
		Name:   strings.Join(fields[2:], " "),
	})
	if err != nil {
		reply(bot, chatID, "Failed to add investment: "+err.Error())
		return
	}
	reply(bot, chatID, fmt.Sprintf("📈 Added %s in %s (%s)", utils.FormatAmount(money(inv.Amount), false), inv.Name, inv.Type))
}

// SetIncome handles "/income <amount>".
func (h *CommandHandler) SetIncome(bot Bot, chatID int64, args string) {
	amount, err := utils.ValidateAmount(args)
	if err != nil {
		reply(bot, chatID, "Usage: /income <amount>")
		return
	}
	p := h.State.Snapshot().UserProfile
	p.MonthlyIncome = amount
	if err := h.State.UpdateProfile(p); err != nil {
		reply(bot, chatID, "Failed to update income: "+err.Error())
		return
	}
	reply(bot, chatID, "💰 Monthly income set to "+utils.FormatAmount(money(amount), false))
}

// SendHelp sends help information
func (h *CommandHandler) SendHelp(bot Bot, chatID int64) {
	helpText := fmt.Sprintf(`📊 Finance Tracker Bot

💰 Adding expenses:
• Send "250 food lunch" to add an expense
• Send a bare amount and pick a category
• Edit your message to update the amount

📋 Planning:
• /summary - Month-to-date summary
• /history [n] - Recent expenses
• /budget <category> <amount> - Set a budget (0 removes)
• /goal <target> <name> - Add a savings goal
• /invest <amount> <type> <name> - Add an investment
• /income <amount> - Set monthly income
• /privacy income|savings|expenses|investments - Toggle masking
• /insights - Financial insights

☁️ Cloud:
• /sync - Push data to cloud
• /load - Load data from cloud
• /clear - Delete cloud data ⚠️
• /autosync on|off - Automatic sync
• /status - Sync and backup status

💾 Backups:
• /backup - Create a backup file
• /export - Export data (no API key)
• /csv - CSV report
• /autobackup on|off - Daily automatic backup
• Send a backup file captioned /restore or /import
• /reset - Clear local data ⚠️

🗂️ Categories:
%s`, strings.Join(h.Config.Categories, ", "))

	reply(bot, chatID, helpText)
}
