package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"news_digest/internal/model"
)

const (
	cmdDigest = "digest"
	cmdBlock  = "block"
	cmdFav    = "fav"
	cmdLater  = "later"
	cmdRead   = "read"
)

var stateFields = map[string]model.ItemStateField{
	cmdBlock: model.StateBlocked,
	cmdFav:   model.StateFavorite,
	cmdLater: model.StateLater,
	cmdRead:  model.StateRead,
}

// entryKeyboard offers state buttons for each brief entry.
func entryKeyboard(entries []model.BriefEntry) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(entries))
	for _, e := range entries {
		id := strconv.FormatInt(e.ItemID, 10)
		rank := strconv.Itoa(e.Rank)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("★ "+rank, cmdFav+":"+id),
			tgbotapi.NewInlineKeyboardButtonData("⏰ "+rank, cmdLater+":"+id),
			tgbotapi.NewInlineKeyboardButtonData("✓ "+rank, cmdRead+":"+id),
			tgbotapi.NewInlineKeyboardButtonData("🚫 "+rank, cmdBlock+":"+id),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return
	}

	action := parts[0]
	idStr := parts[1]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	if _, ok := stateFields[action]; ok {
		b.handleItemState(ctx, chatID, action, idStr)
	}
}
