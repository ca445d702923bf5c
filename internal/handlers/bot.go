package handlers

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the subset of *tgbotapi.BotAPI the handlers use.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// ChatNotifier reports sync outcomes to the configured chat.
type ChatNotifier struct {
	Bot    Bot
	ChatID int64
}

func (n ChatNotifier) Info(msg string)  { n.send("✅ " + msg) }
func (n ChatNotifier) Error(msg string) { n.send("⚠️ " + msg) }

func (n ChatNotifier) send(text string) {
	if _, err := n.Bot.Send(tgbotapi.NewMessage(n.ChatID, text)); err != nil {
		slog.Error("failed to send notification", "err", err)
	}
}

func reply(bot Bot, chatID int64, text string) {
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("failed to send message", "chat", chatID, "err", err)
	}
}
