// Package telegram bridges the bot to the Telegram Bot API: long-polling for
// inbound messages, command dispatch, and outbound delivery of text and card
// images.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/arcana/internal/reading"
	"github.com/user/arcana/internal/types"
)

const maxTelegramMessage = 4096

const welcomeMessage = "🔮 Greetings, seeker. I am Arcana, keeper of the tarot.\n\n" +
	"Ask me any question and I will lay out three cards for you: past, present, and future.\n\n" +
	"Simply write your question as a message."

// Adapter connects Telegram to the reading orchestrator. It implements
// types.Transport for outbound delivery, so the orchestrator narrates
// sessions through the same bot connection the updates arrive on.
type Adapter struct {
	bot  *tgbotapi.BotAPI
	orch *reading.Orchestrator
}

// New creates a Telegram adapter. The orchestrator is attached afterwards via
// SetOrchestrator because the orchestrator itself needs the adapter as its
// transport.
func New(token string) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{bot: bot}, nil
}

// SetOrchestrator attaches the session orchestrator. Must be called before
// Start.
func (a *Adapter) SetOrchestrator(orch *reading.Orchestrator) {
	a.orch = orch
}

// Start begins long-polling for Telegram updates and blocks until the context
// is cancelled.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	slog.Info("telegram adapter started", "bot", a.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	req := reading.Request{
		UserID:   types.UserID(msg.From.ID),
		Username: displayName(msg.From),
		ChatID:   types.ChatID(msg.Chat.ID),
		Question: msg.Text,
		Now:      time.Now(),
	}
	if err := a.orch.HandleReadingRequest(ctx, req); err != nil {
		slog.Warn("reading request not accepted", "user_id", msg.From.ID, "error", err)
		a.sendResponse(msg.Chat.ID, "🌑 The cards cannot hear an empty question… Ask me something.")
	}
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := types.UserID(msg.From.ID)

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, welcomeMessage)

	case "id":
		a.sendResponse(chatID, fmt.Sprintf("Your ID: `%d`\nChat ID: `%d`", msg.From.ID, msg.Chat.ID))

	case "stats":
		days := 7
		if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				a.sendResponse(chatID, "Usage: /stats [days]")
				return
			}
			days = n
		}
		stats, err := a.orch.HandleStatsRequest(ctx, userID, days)
		if err != nil {
			a.denyOrReport(chatID, err)
			return
		}
		a.sendResponse(chatID, formatStats(stats, days))

	case "cooldown":
		arg := strings.TrimSpace(msg.CommandArguments())
		minutes, err := strconv.Atoi(arg)
		if err != nil {
			a.sendResponse(chatID, "Usage: /cooldown <minutes>")
			return
		}
		if err := a.orch.HandleSetCooldown(ctx, userID, minutes); err != nil {
			a.denyOrReport(chatID, err)
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("⏳ Cooldown set to %d minutes.", minutes))

	case "mode":
		on, err := a.orch.HandleToggleTestMode(ctx, userID)
		if err != nil {
			a.denyOrReport(chatID, err)
			return
		}
		if on {
			a.sendResponse(chatID, "🧪 Test mode is ON. Admin readings skip interpretation.")
		} else {
			a.sendResponse(chatID, "🔮 Test mode is OFF. Readings run in full.")
		}

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /id, /stats, /cooldown, /mode")
	}
}

func (a *Adapter) denyOrReport(chatID int64, err error) {
	if errors.Is(err, reading.ErrAccessDenied) {
		a.sendResponse(chatID, "🚫 This command is reserved for the keepers of the deck.")
		return
	}
	slog.Error("admin command failed", "error", err)
	a.sendResponse(chatID, "🌑 Something went wrong. Try again later.")
}

// SendText implements types.Transport.
func (a *Adapter) SendText(_ context.Context, chatID types.ChatID, text string) error {
	return a.sendResponse(int64(chatID), text)
}

// SendImage implements types.Transport. The file is uploaded from disk; the
// caller falls back to a text caption on error.
func (a *Adapter) SendImage(_ context.Context, chatID types.ChatID, path, caption string) error {
	photo := tgbotapi.NewPhoto(int64(chatID), tgbotapi.FilePath(path))
	photo.Caption = caption
	if _, err := a.bot.Send(photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

func (a *Adapter) sendResponse(chatID int64, text string) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func formatStats(s *types.Stats, days int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Readings over the last %d days\n\n", days)
	fmt.Fprintf(&b, "Total: %d\n", s.Total)
	fmt.Fprintf(&b, "Unique seekers: %d\n", s.UniqueUsers)
	fmt.Fprintf(&b, "Completed: %d\n", s.Success)
	fmt.Fprintf(&b, "Failed: %d\n", s.Failure)

	if len(s.TopUsers) > 0 {
		b.WriteString("\nMost frequent seekers:\n")
		for i, u := range s.TopUsers {
			name := u.Username
			if name == "" {
				name = "(anonymous)"
			}
			fmt.Fprintf(&b, "%d. %s — %d\n", i+1, name, u.Count)
		}
	}
	if len(s.TopQuestions) > 0 {
		b.WriteString("\nMost asked questions:\n")
		for i, q := range s.TopQuestions {
			fmt.Fprintf(&b, "%d. %s — %d\n", i+1, truncateQuestion(q.Question), q.Count)
		}
	}
	return b.String()
}

// truncateQuestion keeps stats messages compact; long questions are cut at a
// rune boundary.
func truncateQuestion(q string) string {
	const max = 60
	runes := []rune(q)
	if len(runes) <= max {
		return q
	}
	return string(runes[:max-1]) + "…"
}
