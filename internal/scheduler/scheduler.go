package scheduler

import (
	"context"
	"log/slog"
	"time"

	"news_digest/internal/bot"
	"news_digest/internal/pipeline"
	"news_digest/internal/storage"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Scheduler periodically fetches sources, builds the day's digests and
// delivers them at each user's push time.
type Scheduler struct {
	pipe       *pipeline.Pipeline
	store      storage.Storage
	sender     Sender
	log        *slog.Logger
	tick       time.Duration
	fetchEvery time.Duration
	lastFetch  time.Time
	now        func() time.Time
}

// New creates a Scheduler. A nil sender disables delivery.
func New(pipe *pipeline.Pipeline, store storage.Storage, sender Sender, fetchEvery time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		pipe:       pipe,
		store:      store,
		sender:     sender,
		log:        log,
		tick:       1 * time.Minute,
		fetchEvery: fetchEvery,
		now:        time.Now,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	now := s.now()
	if s.lastFetch.IsZero() || now.Sub(s.lastFetch) >= s.fetchEvery {
		if _, err := s.pipe.FetchAll(ctx); err != nil {
			s.log.Error("fetch sources", "error", err)
		}
		s.lastFetch = now
	}
	if ctx.Err() != nil {
		return
	}

	local := now.In(s.pipe.Location())
	today := local.Format(pipeline.DateLayout)
	built, err := s.pipe.BuildDigests(ctx, today, false)
	if err != nil {
		s.log.Error("build digests", "date", today, "error", err)
	} else if built > 0 {
		s.log.Info("digests built", "date", today, "count", built)
	}

	if s.sender != nil {
		s.deliverDue(ctx, today, local.Format("15:04"))
	}
}

// deliverDue sends today's digest to every user whose push time has passed
// and who has not received it yet.
func (s *Scheduler) deliverDue(ctx context.Context, today, clock string) {
	prefs, err := s.store.ListPreferences(ctx)
	if err != nil {
		s.log.Error("list preferences", "error", err)
		return
	}

	for _, pref := range prefs {
		if ctx.Err() != nil {
			return
		}
		if !pref.Enabled || pref.PushTime == "" || pref.PushTime > clock || pref.LastPushDate >= today {
			continue
		}

		entries, err := s.pipe.Brief(ctx, pref.UserID, today)
		if err != nil {
			s.log.Error("load brief", "user_id", pref.UserID, "date", today, "error", err)
			continue
		}
		s.sender.SendMessage(pref.UserID, bot.FormatBrief(today, entries))

		if err := s.store.SetLastPushDate(ctx, pref.UserID, today); err != nil {
			s.log.Error("mark pushed", "user_id", pref.UserID, "error", err)
		}
		s.log.Info("digest delivered", "user_id", pref.UserID, "date", today, "entries", len(entries))

		// Rate limit: ~20 messages/sec max for Telegram
		time.Sleep(50 * time.Millisecond)
	}
}
