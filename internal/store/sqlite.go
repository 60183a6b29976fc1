package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/velvetfox/velvetfox/internal/schema"
)

// SQLiteStore implements HistoryStore on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ HistoryStore = (*SQLiteStore)(nil)

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Failure here is fatal to startup; nothing else is.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// modernc sqlite serialises writes; a single connection avoids
	// SQLITE_BUSY under concurrent chats.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.ensureTables(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id    TEXT    NOT NULL,
			role       TEXT    NOT NULL,
			content    TEXT    NOT NULL,
			created_ts BIGINT  NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_chat ON turns(chat_id)`,
		`CREATE TABLE IF NOT EXISTS memory (
			chat_id   TEXT PRIMARY KEY,
			summary   TEXT    NOT NULL,
			watermark INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			chat_id TEXT PRIMARY KEY,
			data    TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure tables: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Turns

func (s *SQLiteStore) AppendTurn(ctx context.Context, chatID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (chat_id, role, content, created_ts) VALUES (?, ?, ?, ?)`,
		chatID, role, content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append turn for chat %s: %w", chatID, err)
	}
	return nil
}

// RecentTurns returns the last n turns in insertion order.
// n <= 0 returns all turns.
func (s *SQLiteStore) RecentTurns(ctx context.Context, chatID string, n int) ([]schema.Turn, error) {
	var rows *sql.Rows
	var err error
	if n <= 0 {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, role, content, created_ts FROM turns WHERE chat_id = ? ORDER BY id ASC`,
			chatID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, role, content, created_ts FROM (
				SELECT * FROM turns WHERE chat_id = ? ORDER BY id DESC LIMIT ?
			) ORDER BY id ASC`,
			chatID, n)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch recent turns for chat %s: %w", chatID, err)
	}
	defer rows.Close()
	return scanTurns(rows, chatID)
}

// TurnsAfter returns all turns past the first offset ones, in insertion
// order. Used by consolidation to read the slice beyond the watermark.
func (s *SQLiteStore) TurnsAfter(ctx context.Context, chatID string, offset int) ([]schema.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_ts FROM turns
		 WHERE chat_id = ? ORDER BY id ASC LIMIT -1 OFFSET ?`,
		chatID, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch turns after %d for chat %s: %w", offset, chatID, err)
	}
	defer rows.Close()
	return scanTurns(rows, chatID)
}

func (s *SQLiteStore) TurnCount(ctx context.Context, chatID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE chat_id = ?`, chatID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count turns for chat %s: %w", chatID, err)
	}
	return count, nil
}

func (s *SQLiteStore) DeleteLastAssistantTurn(ctx context.Context, chatID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("delete last assistant turn for chat %s: %w", chatID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM turns WHERE id = (
			SELECT id FROM turns WHERE chat_id = ? AND role = 'assistant'
			ORDER BY id DESC LIMIT 1
		) AND id = (SELECT MAX(id) FROM turns WHERE chat_id = ?)`,
		chatID, chatID)
	if err != nil {
		return false, fmt.Errorf("delete last assistant turn for chat %s: %w", chatID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, tx.Commit()
	}

	// The watermark counts turn rows. If the deleted turn was already
	// summarized, clamp the watermark to the remaining rows so the next
	// consolidation pass lines up with what is actually stored.
	if _, err := tx.ExecContext(ctx,
		`UPDATE memory SET watermark = (SELECT COUNT(*) FROM turns WHERE chat_id = ?)
		 WHERE chat_id = ? AND watermark > (SELECT COUNT(*) FROM turns WHERE chat_id = ?)`,
		chatID, chatID, chatID); err != nil {
		return false, fmt.Errorf("clamp watermark for chat %s: %w", chatID, err)
	}
	return true, tx.Commit()
}

func (s *SQLiteStore) ClearTurns(ctx context.Context, chatID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear turns for chat %s: %w", chatID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear turns for chat %s: %w", chatID, err)
	}
	// With the rows gone the watermark restarts at zero; the summary text
	// itself survives a history clear.
	if _, err := tx.ExecContext(ctx,
		`UPDATE memory SET watermark = 0 WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("reset watermark for chat %s: %w", chatID, err)
	}
	return tx.Commit()
}

func scanTurns(rows *sql.Rows, chatID string) ([]schema.Turn, error) {
	var turns []schema.Turn
	for rows.Next() {
		var t schema.Turn
		var ts int64
		if err := rows.Scan(&t.ID, &t.Role, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.ChatID = chatID
		t.CreatedAt = time.Unix(ts, 0)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ---------------------------------------------------------------------------
// Memory summary

func (s *SQLiteStore) GetSummary(ctx context.Context, chatID string) (string, int, bool, error) {
	var summary string
	var watermark int
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, watermark FROM memory WHERE chat_id = ?`, chatID).
		Scan(&summary, &watermark)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("get summary for chat %s: %w", chatID, err)
	}
	return summary, watermark, true, nil
}

// SetSummary upserts the summary. The conflict clause enforces the
// monotone watermark: a write carrying an already-passed watermark is a
// no-op and reports applied=false.
func (s *SQLiteStore) SetSummary(ctx context.Context, chatID, summary string, watermark int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memory (chat_id, summary, watermark) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
			summary = excluded.summary,
			watermark = excluded.watermark
		 WHERE excluded.watermark > memory.watermark`,
		chatID, summary, watermark)
	if err != nil {
		return false, fmt.Errorf("set summary for chat %s: %w", chatID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) ClearSummary(ctx context.Context, chatID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear summary for chat %s: %w", chatID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Session records

func (s *SQLiteStore) GetSession(ctx context.Context, chatID string) (*schema.SessionRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE chat_id = ?`, chatID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session for chat %s: %w", chatID, err)
	}

	var rec schema.SessionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode session for chat %s: %w", chatID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, rec *schema.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session for chat %s: %w", rec.ChatID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (chat_id, data) VALUES (?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET data = excluded.data`,
		rec.ChatID, string(data))
	if err != nil {
		return fmt.Errorf("save session for chat %s: %w", rec.ChatID, err)
	}
	return nil
}

func (s *SQLiteStore) ListChats(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM sessions UNION SELECT chat_id FROM turns ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		chats = append(chats, id)
	}
	return chats, rows.Err()
}

// ---------------------------------------------------------------------------
// Deletion

func (s *SQLiteStore) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete for chat %s: %w", chatID, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM turns WHERE chat_id = ?`,
		`DELETE FROM memory WHERE chat_id = ?`,
		`DELETE FROM sessions WHERE chat_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, chatID); err != nil {
			return fmt.Errorf("delete chat %s: %w", chatID, err)
		}
	}
	return tx.Commit()
}
