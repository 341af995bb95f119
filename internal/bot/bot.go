package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"news_digest/internal/config"
	"news_digest/internal/pipeline"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that serves digests and manages user settings.
// A chat ID doubles as the user ID.
type Bot struct {
	api  telegramAPI
	pipe *pipeline.Pipeline
	cfg  *config.Config
	log  *slog.Logger
}

// New creates a Bot with the given Telegram token, pipeline, and config.
func New(token string, pipe *pipeline.Pipeline, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:  api,
		pipe: pipe,
		cfg:  cfg,
		log:  log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdDigest:
		b.handleDigest(ctx, chatID, args)
	case "refresh":
		b.handleRefresh(ctx, chatID)
	case "history":
		b.handleHistory(ctx, chatID, args)
	case "prefs":
		b.handlePrefs(ctx, chatID)
	case "lang":
		b.handleLang(ctx, chatID, args)
	case "region":
		b.handleRegion(ctx, chatID, args)
	case "limit":
		b.handleLimit(ctx, chatID, args)
	case "push":
		b.handlePush(ctx, chatID, args)
	case "include":
		b.handleKeywords(ctx, chatID, args, true)
	case "exclude":
		b.handleKeywords(ctx, chatID, args, false)
	case "categories":
		b.handleCategories(ctx, chatID, args)
	case "academic":
		b.handleAcademic(ctx, chatID, args)
	case cmdBlock, cmdFav, cmdLater, cmdRead:
		b.handleItemState(ctx, chatID, cmd, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
