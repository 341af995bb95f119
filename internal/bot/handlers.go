package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"news_digest/internal/model"
	"news_digest/internal/preference"
	"news_digest/internal/storage"
)

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	if _, err := b.pipe.Preference(ctx, chatID); err != nil {
		b.log.Error("create preference", "user_id", chatID, "error", err)
		b.reply(chatID, "Something went wrong, please try again later.")
		return
	}
	b.reply(chatID, `Welcome to News Digest Bot!

Every day you get a ranked digest of news and papers matching your interests.

Quick start:
1. /include ai, chips — keywords you care about
2. /exclude gossip — keywords to drop
3. /digest — today's digest

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Digest:
/digest [YYYY-MM-DD] — show the digest (today by default)
/refresh — fetch sources now and rebuild today's digest
/history [n] — list your past digests

Settings:
/prefs — show your settings
/lang <code|-> — digest language and language filter
/region <code|-> — region filter
/limit <n> — items per digest (`+tierList(b.cfg.DailyLimitTiers)+`)
/push <HH:MM|off> — daily delivery time
/include <words|-> — keywords that boost items
/exclude <words|-> — keywords that drop items
/categories <names|-> — source categories to follow
/academic <on|off> — include academic papers

Items:
/fav <id> — toggle favorite
/later <id> — toggle read later
/read <id> — toggle read
/block <id> — hide an item from your digests

Lists are separated by commas, semicolons or new lines. Use - to clear.`)
}

func (b *Bot) handleDigest(ctx context.Context, chatID int64, args string) {
	date, err := ParseDateArg(args, b.pipe.Today())
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	b.sendBrief(ctx, chatID, date)
}

func (b *Bot) handleRefresh(ctx context.Context, chatID int64) {
	b.reply(chatID, "Fetching sources, this may take a while...")
	if _, err := b.pipe.Refresh(ctx, chatID); err != nil {
		b.log.Error("refresh", "user_id", chatID, "error", err)
		b.reply(chatID, fmt.Sprintf("Refresh failed: %v", err))
		return
	}
	b.sendBrief(ctx, chatID, b.pipe.Today())
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64, args string) {
	n, err := ParseCountArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /history [n], e.g. /history 7")
		return
	}
	digests, err := b.pipe.History(ctx, chatID, n)
	if err != nil {
		b.log.Error("history", "user_id", chatID, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to load history: %v", err))
		return
	}
	b.reply(chatID, FormatHistory(digests))
}

func (b *Bot) sendBrief(ctx context.Context, chatID int64, date string) {
	entries, err := b.pipe.Brief(ctx, chatID, date)
	if err != nil {
		b.log.Error("brief", "user_id", chatID, "date", date, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to load digest: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatBrief(date, entries))
	msg.DisableWebPagePreview = true
	if len(entries) > 0 {
		msg.ReplyMarkup = entryKeyboard(entries)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send digest", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handlePrefs(ctx context.Context, chatID int64) {
	pref, err := b.pipe.Preference(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatPreference(pref))
}

func (b *Bot) handleLang(ctx context.Context, chatID int64, args string) {
	lang, err := ParseOptionalArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /lang <code|->, e.g. /lang en")
		return
	}
	b.updatePreference(ctx, chatID, func(p *model.UserPreference) { p.Language = strings.ToLower(lang) })
}

func (b *Bot) handleRegion(ctx context.Context, chatID int64, args string) {
	region, err := ParseOptionalArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /region <code|->, e.g. /region cn")
		return
	}
	b.updatePreference(ctx, chatID, func(p *model.UserPreference) { p.Region = strings.ToLower(region) })
}

func (b *Bot) handleLimit(ctx context.Context, chatID int64, args string) {
	n, err := ParseLimitArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /limit <n>, one of "+tierList(b.cfg.DailyLimitTiers))
		return
	}
	b.updatePreference(ctx, chatID, func(p *model.UserPreference) { p.DailyLimit = n })
}

func (b *Bot) handlePush(ctx context.Context, chatID int64, args string) {
	value, err := ParseOptionalArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /push <HH:MM|off>")
		return
	}
	if strings.EqualFold(value, "off") {
		value = ""
	}
	b.updatePreference(ctx, chatID, func(p *model.UserPreference) { p.PushTime = value })
}

func (b *Bot) handleKeywords(ctx context.Context, chatID int64, args string, include bool) {
	words, err := ParseListArg(args)
	if err != nil {
		cmd := "exclude"
		if include {
			cmd = "include"
		}
		b.reply(chatID, fmt.Sprintf("Usage: /%s <word, word...|->", cmd))
		return
	}
	b.updatePreference(ctx, chatID, func(p *model.UserPreference) {
		if include {
			p.IncludeKeywords = words
		} else {
			p.ExcludeKeywords = words
		}
	})
}

func (b *Bot) handleCategories(ctx context.Context, chatID int64, args string) {
	cats, err := ParseListArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /categories <name, name...|->")
		return
	}
	b.updatePreference(ctx, chatID, func(p *model.UserPreference) { p.Categories = cats })
}

func (b *Bot) handleAcademic(ctx context.Context, chatID int64, args string) {
	on, err := ParseSwitchArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /academic <on|off>")
		return
	}
	b.updatePreference(ctx, chatID, func(p *model.UserPreference) { p.IncludeAcademic = on })
}

func (b *Bot) updatePreference(ctx context.Context, chatID int64, mutate func(*model.UserPreference)) {
	pref, err := b.pipe.Preference(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	mutate(&pref)

	saved, err := b.pipe.SavePreference(ctx, pref)
	switch {
	case errors.Is(err, preference.ErrInvalidDailyLimit):
		b.reply(chatID, "Daily limit must be one of "+tierList(b.cfg.DailyLimitTiers)+".")
		return
	case errors.Is(err, preference.ErrTooManyKeywords):
		b.reply(chatID, fmt.Sprintf("At most %d keywords per list.", preference.MaxKeywords))
		return
	case errors.Is(err, preference.ErrInvalidPushTime):
		b.reply(chatID, "Push time must look like 08:00.")
		return
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, "Saved.\n\n"+FormatPreference(saved))
}

func (b *Bot) handleItemState(ctx context.Context, chatID int64, cmd, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <item_id>", cmd))
		return
	}
	field := stateFields[cmd]

	var st model.UserItemState
	if field == model.StateBlocked {
		st, err = b.pipe.SetItemState(ctx, chatID, id, field, true)
	} else {
		st, err = b.pipe.ToggleItemState(ctx, chatID, id, field)
	}
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Item %d not found.", id))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatState(st))
}

func tierList(tiers []int) string {
	if len(tiers) == 0 {
		tiers = preference.DefaultTiers
	}
	parts := make([]string, len(tiers))
	for i, t := range tiers {
		parts[i] = fmt.Sprint(t)
	}
	return strings.Join(parts, ", ")
}
