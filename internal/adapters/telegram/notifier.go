package telegram

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/twquant/twse-agents/internal/adapters/config"
	"github.com/twquant/twse-agents/internal/events"
	"github.com/twquant/twse-agents/pkg/logger"
)

// Notifier pushes operator alerts to a single Telegram chat. It consumes
// the event bus, so a slow or unavailable bot never blocks sessions.
type Notifier struct {
	api    *tgbotapi.BotAPI
	cfg    *config.TelegramConfig
	cancel func()
	done   chan struct{}
}

// NewNotifier creates the notifier; it does not subscribe yet
func NewNotifier(cfg *config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	bot.Debug = false

	logger.Info("telegram notifier initialized",
		zap.String("bot_username", bot.Self.UserName),
	)
	return &Notifier{api: bot, cfg: cfg, done: make(chan struct{})}, nil
}

// Start subscribes to the bus and consumes events until Stop
func (n *Notifier) Start(bus *events.Bus) {
	ch, cancel := bus.Subscribe()
	n.cancel = cancel

	go func() {
		defer close(n.done)
		for evt := range ch {
			n.handle(evt)
		}
	}()
}

// Stop unsubscribes and waits for the consumer loop to drain
func (n *Notifier) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	select {
	case <-n.done:
	case <-time.After(5 * time.Second):
		logger.Warn("telegram notifier did not drain in time")
	}
}

func (n *Notifier) handle(evt events.Event) {
	switch evt.Type {
	case events.TransactionRecorded:
		if !n.cfg.AlertOnTrades {
			return
		}
		if p, ok := evt.Payload.(events.TransactionPayload); ok {
			n.send(fmt.Sprintf(
				"%s *%s* %s %d × %s @ %s\nAgent: `%s`",
				sideEmoji(p.Side), p.Side, p.Symbol, p.Quantity, p.Price, p.Notional, evt.AgentID,
			))
		}

	case events.SessionFailed:
		if !n.cfg.AlertOnErrors {
			return
		}
		if p, ok := evt.Payload.(events.SessionPayload); ok {
			n.send(fmt.Sprintf(
				"❌ Session failed\nAgent: `%s`\nSession: `%s`\nError: %s (%s)",
				evt.AgentID, evt.SessionID, p.ErrorMessage, p.ErrorKind,
			))
		}

	case events.ErrorOccurred:
		if !n.cfg.AlertOnErrors {
			return
		}
		if p, ok := evt.Payload.(events.ErrorPayload); ok {
			n.send(fmt.Sprintf(
				"⚠️ Error\nAgent: `%s`\n%s: %s",
				evt.AgentID, p.Kind, p.Message,
			))
		}

	case events.AgentStatusChanged:
		if p, ok := evt.Payload.(events.StatusChangedPayload); ok && p.NewStatus == "error" {
			n.send(fmt.Sprintf("🛑 Agent `%s` entered error state", evt.AgentID))
		}
	}
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.cfg.ChatID, text)
	msg.ParseMode = "Markdown"

	if _, err := n.api.Send(msg); err != nil {
		logger.Error("failed to send telegram message",
			zap.Int64("chat_id", n.cfg.ChatID),
			zap.Error(err),
		)
	}
}

func sideEmoji(side string) string {
	switch side {
	case "buy":
		return "📈"
	case "sell":
		return "📉"
	default:
		return "🤖"
	}
}
