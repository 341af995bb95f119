package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"news_digest/internal/config"
	"news_digest/internal/dedup"
	"news_digest/internal/digest"
	"news_digest/internal/fetcher"
	"news_digest/internal/model"
	"news_digest/internal/pipeline"
	"news_digest/internal/ranker"
	"news_digest/internal/sources"
	"news_digest/internal/storage"
	"news_digest/internal/summarizer"
)

// --- mocks ---

type sentMsg struct {
	ChatID    int64
	Text      string
	HasMarkup bool
}

type mockAPI struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, HasMarkup: msg.ReplyMarkup != nil})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) last() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) lastText() string {
	return m.last().Text
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type mockHTTPClient struct {
	body string
}

func (m *mockHTTPClient) Do(_ *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

// --- helpers ---

func newTestBot(t *testing.T, httpBody string) (*Bot, *mockAPI, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := fetcher.New(&mockHTTPClient{body: httpBody}, fetcher.Options{MaxRetries: -1})
	pipe := pipeline.New(
		store,
		sources.NewRegistry(sources.NewRSS(client, time.UTC, log)),
		digest.NewBuilder(store, ranker.DefaultParams(), log),
		summarizer.NewService(nil, store, log),
		pipeline.Options{CandidateWindow: 48 * time.Hour, Location: time.UTC},
		log,
	)
	err = pipe.SyncSources(context.Background(), []model.Source{{
		Name: "Tech Daily", Type: model.SourceRSS, Kind: model.KindRSS,
		Endpoint: "https://news.example.com/rss", Weight: 1, Enabled: true,
	}})
	if err != nil {
		t.Fatalf("sync sources: %v", err)
	}

	api := &mockAPI{}
	b := &Bot{
		api:  api,
		pipe: pipe,
		cfg:  &config.Config{DailyLimitTiers: []int{10, 20, 30}},
		log:  log,
	}
	return b, api, store
}

func seedItems(t *testing.T, store *storage.SQLite, titles ...string) []model.Item {
	t.Helper()
	srcID := int64(1)
	now := time.Now().UTC()
	items := make([]model.Item, len(titles))
	for i, title := range titles {
		items[i] = model.Item{
			Type:        model.ItemNews,
			SourceID:    &srcID,
			Title:       title,
			Summary:     title + " in detail.",
			URL:         fmt.Sprintf("https://news.example.com/%d", i),
			PublishedAt: now.Add(-time.Duration(i+1) * time.Hour),
		}
		dedup.Apply(&items[i])
	}
	if _, err := store.UpsertItems(context.Background(), items); err != nil {
		t.Fatalf("seed items: %v", err)
	}
	return items
}

func loadSampleXML(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/sample.xml")
	if err != nil {
		t.Fatalf("read sample xml: %v", err)
	}
	return string(data)
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	b, api, store := newTestBot(t, "")
	b.handleStart(context.Background(), 100)
	requireContains(t, api.lastText(), "Welcome to News Digest Bot")

	if _, err := store.GetPreference(context.Background(), 100); err != nil {
		t.Errorf("preference should be created on start: %v", err)
	}
}

func TestHandleHelp(t *testing.T) {
	b, api, _ := newTestBot(t, "")
	b.handleHelp(100)
	requireContains(t, api.lastText(), "/digest")
	requireContains(t, api.lastText(), "/include")
	requireContains(t, api.lastText(), "10, 20, 30")
}

func TestHandleDigest(t *testing.T) {
	ctx := context.Background()

	t.Run("bad date", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleDigest(ctx, 100, "31/05/2025")
		requireContains(t, api.lastText(), "invalid date")
	})

	t.Run("empty", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleDigest(ctx, 100, "")
		requireContains(t, api.lastText(), "is empty")
		if api.last().HasMarkup {
			t.Error("empty digest should have no keyboard")
		}
	})

	t.Run("ranked entries with keyboard", func(t *testing.T) {
		b, api, store := newTestBot(t, "")
		seedItems(t, store, "Chip fab opens", "Rust release")

		b.handleDigest(ctx, 100, "")
		reply := api.last()
		requireContains(t, reply.Text, "(2 items)")
		requireContains(t, reply.Text, "1. Chip fab opens [Tech Daily]")
		requireContains(t, reply.Text, "2. Rust release")
		if !reply.HasMarkup {
			t.Error("digest should carry a keyboard")
		}
	})
}

func TestHandleRefresh(t *testing.T) {
	b, api, _ := newTestBot(t, loadSampleXML(t))
	b.handleRefresh(context.Background(), 100)

	reply := api.lastText()
	// Only the undated entry falls inside the candidate window.
	requireContains(t, reply, "Market wrap")
	if strings.Contains(reply, "Rust 2.0") {
		t.Errorf("old entry should be outside the window:\n%s", reply)
	}
}

func TestHandleHistory(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, loadSampleXML(t))

	b.handleHistory(ctx, 100, "")
	requireContains(t, api.lastText(), "No digests yet")

	b.handleRefresh(ctx, 100)
	b.handleDigest(ctx, 100, "2025-05-31")
	api.reset()

	b.handleHistory(ctx, 100, "")
	reply := api.lastText()
	today := b.pipe.Today()
	requireContains(t, reply, today+" — 1 items")
	requireContains(t, reply, "2025-05-31 — 1 items")
	if strings.Index(reply, today) > strings.Index(reply, "2025-05-31") {
		t.Errorf("history should list newest first:\n%s", reply)
	}

	b.handleHistory(ctx, 100, "1")
	if strings.Contains(api.lastText(), "2025-05-31") {
		t.Errorf("limit 1 should show only the newest digest:\n%s", api.lastText())
	}
}

func TestHandlePreferences(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		run      func(b *Bot)
		contains string
		check    func(t *testing.T, p *model.UserPreference)
	}{
		{
			name:     "language lowercased",
			run:      func(b *Bot) { b.handleLang(ctx, 100, "EN") },
			contains: "Language: en",
			check: func(t *testing.T, p *model.UserPreference) {
				if p.Language != "en" {
					t.Errorf("Language = %q, want en", p.Language)
				}
			},
		},
		{
			name:     "region usage",
			run:      func(b *Bot) { b.handleRegion(ctx, 100, "") },
			contains: "Usage: /region",
		},
		{
			name:     "limit outside tiers",
			run:      func(b *Bot) { b.handleLimit(ctx, 100, "15") },
			contains: "must be one of 10, 20, 30",
		},
		{
			name:     "limit accepted",
			run:      func(b *Bot) { b.handleLimit(ctx, 100, "30") },
			contains: "Daily limit: 30",
		},
		{
			name:     "include keywords normalized",
			run:      func(b *Bot) { b.handleKeywords(ctx, 100, "ai, 芯片；AI", true) },
			contains: "Include: ai, 芯片",
			check: func(t *testing.T, p *model.UserPreference) {
				if diff := cmp.Diff([]string{"ai", "芯片"}, p.IncludeKeywords); diff != "" {
					t.Errorf("IncludeKeywords mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name:     "exclude cleared",
			run:      func(b *Bot) { b.handleKeywords(ctx, 100, "-", false) },
			contains: "Exclude: none",
		},
		{
			name:     "bad push time",
			run:      func(b *Bot) { b.handlePush(ctx, 100, "7:00") },
			contains: "Push time must look like",
		},
		{
			name:     "push off",
			run:      func(b *Bot) { b.handlePush(ctx, 100, "off") },
			contains: "Push time: none",
		},
		{
			name:     "academic off",
			run:      func(b *Bot) { b.handleAcademic(ctx, 100, "off") },
			contains: "Academic papers: no",
		},
		{
			name:     "categories",
			run:      func(b *Bot) { b.handleCategories(ctx, 100, "tech; science") },
			contains: "Categories: tech, science",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, store := newTestBot(t, "")
			tt.run(b)
			requireContains(t, api.lastText(), tt.contains)
			if tt.check == nil {
				return
			}
			p, err := store.GetPreference(ctx, 100)
			if err != nil {
				t.Fatalf("get preference: %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestHandleItemState(t *testing.T) {
	ctx := context.Background()

	t.Run("usage", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleItemState(ctx, 100, cmdFav, "abc")
		requireContains(t, api.lastText(), "Usage: /fav")
	})

	t.Run("not found", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleItemState(ctx, 100, cmdFav, "999")
		requireContains(t, api.lastText(), "Item 999 not found")
	})

	t.Run("favorite toggles", func(t *testing.T) {
		b, api, store := newTestBot(t, "")
		items := seedItems(t, store, "Chip fab opens")
		id := fmt.Sprint(items[0].ID)

		b.handleItemState(ctx, 100, cmdFav, id)
		requireContains(t, api.lastText(), "favorite")
		b.handleItemState(ctx, 100, cmdFav, id)
		requireContains(t, api.lastText(), ": none")
	})

	t.Run("block removes from digest", func(t *testing.T) {
		b, api, store := newTestBot(t, "")
		items := seedItems(t, store, "Chip fab opens", "Rust release")
		b.handleDigest(ctx, 100, "")
		requireContains(t, api.lastText(), "Chip fab opens")

		b.handleItemState(ctx, 100, cmdBlock, fmt.Sprint(items[0].ID))
		requireContains(t, api.lastText(), "blocked")

		b.handleDigest(ctx, 100, "")
		if strings.Contains(api.lastText(), "Chip fab opens") {
			t.Errorf("blocked item still listed:\n%s", api.lastText())
		}
		requireContains(t, api.lastText(), "1. Rust release")
	})
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()

	makeMsg := func(cmd, args string) *tgbotapi.Message {
		text := "/" + cmd
		if args != "" {
			text += " " + args
		}
		return &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 100},
			Text: text,
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
			},
		}
	}

	b, api, _ := newTestBot(t, "")
	cmds := []struct {
		cmd      string
		args     string
		contains string
	}{
		{"start", "", "Welcome"},
		{"help", "", "/digest"},
		{"prefs", "", "Daily limit: 20"},
		{"digest", "", "is empty"},
		{"history", "", "Your digests"},
		{"history", "many", "Usage: /history"},
		{"lang", "zh", "Language: zh"},
		{"limit", "10", "Daily limit: 10"},
		{"include", "go", "Include: go"},
		{"read", "", "Usage: /read"},
		{"unknown_cmd", "", "Unknown command"},
	}
	for _, tc := range cmds {
		api.reset()
		b.handleCommand(ctx, makeMsg(tc.cmd, tc.args))
		requireContains(t, api.lastText(), tc.contains)
	}
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid data format", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb1",
			Data:    "nocolon",
			From:    &tgbotapi.User{ID: 100},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb2",
			Data:    "fav:abc",
			From:    &tgbotapi.User{ID: 100},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("later callback", func(t *testing.T) {
		b, api, store := newTestBot(t, "")
		items := seedItems(t, store, "Chip fab opens")
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb3",
			Data:    fmt.Sprintf("later:%d", items[0].ID),
			From:    &tgbotapi.User{ID: 100},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		requireContains(t, api.lastText(), "later")

		st, err := store.GetItemState(ctx, 100, items[0].ID)
		if err != nil {
			t.Fatalf("get state: %v", err)
		}
		if !st.Later {
			t.Error("later flag should be set")
		}
	})

	t.Run("unknown action ignored", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		cb := &tgbotapi.CallbackQuery{
			ID:      "cb4",
			Data:    "delete:1",
			From:    &tgbotapi.User{ID: 100},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
		b.handleCallback(ctx, cb)
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})
}
