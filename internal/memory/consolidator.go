// Package memory distils chat history into a persistent long-term summary.
package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/velvetfox/velvetfox/internal/queue"
	"github.com/velvetfox/velvetfox/internal/schema"
	"github.com/velvetfox/velvetfox/internal/store"
)

// consolidationInstruction is the summarization request appended after the
// raw turns.
const consolidationInstruction = "You are a memory consolidation module. Analyze the preceding conversation. Create a concise, third-person, past-tense summary of the key plot points, character decisions, and newly established facts. Ignore conversational filler. The summary must be objective and factual based only on the text provided. This summary will serve as long-term memory."

// DefaultThreshold is the number of accepted turns between consolidations.
const DefaultThreshold = 15

// Consolidator folds turns past the summary watermark into the stored
// summary. All LLM traffic goes through the request queue; the store's
// monotone watermark makes a duplicate run (crash-and-resume, overlapping
// sweep) a no-op.
type Consolidator struct {
	store     store.HistoryStore
	queue     *queue.Queue
	threshold int
	model     string
}

func New(st store.HistoryStore, q *queue.Queue, threshold int, model string) *Consolidator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Consolidator{store: st, queue: q, threshold: threshold, model: model}
}

// Threshold returns the configured consolidation interval.
func (c *Consolidator) Threshold() int { return c.threshold }

// Due reports whether the chat has accumulated enough un-summarized turns
// for a consolidation to be worthwhile. Used by the maintenance sweep to
// catch up after missed or failed runs.
func (c *Consolidator) Due(ctx context.Context, chatID string) (bool, error) {
	count, err := c.store.TurnCount(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("count turns: %w", err)
	}
	var watermark int
	if _, wm, ok, err := c.store.GetSummary(ctx, chatID); err != nil {
		return false, fmt.Errorf("get summary: %w", err)
	} else if ok {
		watermark = wm
	}
	return count-watermark >= c.threshold, nil
}

// Consolidate runs one consolidation pass for the chat. Returns true if a
// new summary was stored; false means there was nothing to do or a
// concurrent run already covered these turns. Errors leave the prior
// summary untouched.
func (c *Consolidator) Consolidate(ctx context.Context, chatID string) (bool, error) {
	prior, watermark, hasPrior, err := c.store.GetSummary(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("get summary: %w", err)
	}
	if !hasPrior {
		watermark = 0
	}

	turns, err := c.store.TurnsAfter(ctx, chatID, watermark)
	if err != nil {
		return false, fmt.Errorf("load turns: %w", err)
	}
	if len(turns) == 0 {
		return false, nil
	}

	msgs := buildPrompt(prior, turns)
	opts := schema.NewChatOptions(c.model, 1024, 0.3)

	pending, err := c.queue.Submit(&queue.Request{
		Kind:     queue.KindSummary,
		ChatID:   chatID,
		Messages: msgs,
		Opts:     opts,
	})
	if err != nil {
		return false, fmt.Errorf("submit summarization: %w", err)
	}
	fresh, err := pending.Wait(ctx)
	if err != nil {
		return false, fmt.Errorf("summarization: %w", err)
	}

	merged := fresh
	if prior != "" {
		merged = prior + "\n\n" + fresh
	}
	applied, err := c.store.SetSummary(ctx, chatID, merged, watermark+len(turns))
	if err != nil {
		return false, fmt.Errorf("store summary: %w", err)
	}
	if !applied {
		slog.Debug("summary superseded by concurrent consolidation", "chat", chatID)
		return false, nil
	}

	slog.Info("memory consolidated", "chat", chatID, "turns", len(turns), "watermark", watermark+len(turns))
	return true, nil
}

// buildPrompt renders the prior summary (if any), the raw turns, and the
// consolidation instruction as a message list.
func buildPrompt(prior string, turns []schema.Turn) schema.Messages {
	msgs := schema.NewMessages()
	if prior != "" {
		msgs.AddSystem("(Memory so far: " + prior + ")")
	}
	for _, turn := range turns {
		switch turn.Role {
		case "assistant":
			msgs.AddAssistant(turn.Content)
		default:
			msgs.AddUser(turn.Content)
		}
	}
	msgs.AddUser(consolidationInstruction)
	return msgs
}
