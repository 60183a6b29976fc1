// Package store persists chat history, memory summaries, and session
// records in a single SQLite database.
package store

import (
	"context"

	"github.com/velvetfox/velvetfox/internal/schema"
)

// HistoryStore is the durable per-chat state the controller and the memory
// consolidator depend on. Turns are append-only; the summary is a single
// mutable record guarded by a monotone watermark; the session record holds
// persona, scene, profile, and wizard state.
//
// Every method maps to a single statement or transaction so interleaved
// chats never observe partial writes.
type HistoryStore interface {
	AppendTurn(ctx context.Context, chatID, role, content string) error
	RecentTurns(ctx context.Context, chatID string, n int) ([]schema.Turn, error)
	TurnsAfter(ctx context.Context, chatID string, offset int) ([]schema.Turn, error)
	TurnCount(ctx context.Context, chatID string) (int, error)
	// DeleteLastAssistantTurn removes the newest turn if it is an assistant
	// turn, returning whether one was removed. When the removed turn was
	// already covered by the summary watermark, the watermark is clamped to
	// the remaining turn count.
	DeleteLastAssistantTurn(ctx context.Context, chatID string) (bool, error)
	// ClearTurns removes every turn and resets the summary watermark to
	// zero; the summary text survives.
	ClearTurns(ctx context.Context, chatID string) error

	// GetSummary returns the memory summary and its watermark; ok is false
	// when no summary exists yet.
	GetSummary(ctx context.Context, chatID string) (summary string, watermark int, ok bool, err error)
	// SetSummary stores the summary if watermark is not behind the stored
	// one, returning whether the write was applied. The watermark counts
	// turn rows covered by the summary and only moves forward, except when
	// the history itself shrinks (ClearTurns, DeleteLastAssistantTurn).
	SetSummary(ctx context.Context, chatID, summary string, watermark int) (applied bool, err error)
	ClearSummary(ctx context.Context, chatID string) error

	GetSession(ctx context.Context, chatID string) (*schema.SessionRecord, error)
	SaveSession(ctx context.Context, rec *schema.SessionRecord) error
	ListChats(ctx context.Context) ([]string, error)

	// DeleteChat removes turns, summary, and session record in one
	// transaction.
	DeleteChat(ctx context.Context, chatID string) error

	Close() error
}
