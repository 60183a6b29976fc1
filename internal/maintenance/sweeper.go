// Package maintenance runs periodic background jobs over the store.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/velvetfox/velvetfox/internal/memory"
	"github.com/velvetfox/velvetfox/internal/store"
)

// Sweeper periodically re-schedules consolidations that were missed or
// failed: any chat whose turn count runs ahead of the summary watermark by
// at least the threshold gets another pass. The store's monotone watermark
// makes overlap with a live trigger harmless.
type Sweeper struct {
	store        store.HistoryStore
	consolidator *memory.Consolidator
	schedule     string
	cron         *robfigcron.Cron
}

// New creates a sweeper firing on the given cron schedule (robfig syntax,
// e.g. "@every 10m").
func New(st store.HistoryStore, cons *memory.Consolidator, schedule string) *Sweeper {
	if schedule == "" {
		schedule = "@every 10m"
	}
	return &Sweeper{
		store:        st,
		consolidator: cons,
		schedule:     schedule,
		cron:         robfigcron.New(),
	}
}

// Run starts the schedule and blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("maintenance sweeper started", "schedule", s.schedule)

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		slog.Warn("maintenance sweeper stop timed out")
	}
	slog.Info("maintenance sweeper stopped")
	return ctx.Err()
}

// Sweep runs one pass over all chats. Errors are logged per chat and never
// abort the pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	chats, err := s.store.ListChats(ctx)
	if err != nil {
		slog.Error("sweep: list chats failed", "err", err)
		return
	}

	var recovered int
	for _, chatID := range chats {
		if ctx.Err() != nil {
			return
		}
		rec, err := s.store.GetSession(ctx, chatID)
		if err != nil {
			slog.Warn("sweep: load session failed", "chat", chatID, "err", err)
			continue
		}
		if rec != nil && !rec.MemoryEnabled {
			continue
		}
		due, err := s.consolidator.Due(ctx, chatID)
		if err != nil {
			slog.Warn("sweep: due check failed", "chat", chatID, "err", err)
			continue
		}
		if !due {
			continue
		}
		applied, err := s.consolidator.Consolidate(ctx, chatID)
		if err != nil {
			slog.Warn("sweep: consolidation failed", "chat", chatID, "err", err)
			continue
		}
		if applied {
			recovered++
		}
	}
	if recovered > 0 {
		slog.Info("sweep recovered missed consolidations", "chats", recovered)
	}
}
