package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"OverlayAssistant/internal/provider"
	"OverlayAssistant/internal/service/conversation"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store хранит завершённые реплики в SQLite. Реализует provider.TurnSink.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

var _ provider.TurnSink = (*Store)(nil)

// Open открывает (или создаёт) базу и применяет схему.
func Open(ctx context.Context, path string, logger *zap.SugaredLogger) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// один писатель
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Infow("History database opened", "path", path)
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS turns (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id    INTEGER NOT NULL,
		ts            INTEGER NOT NULL,
		transcription TEXT    NOT NULL,
		ai_response   TEXT    NOT NULL,
		has_image     INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, ts);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// PersistTurn дописывает реплику в историю сессии.
func (s *Store) PersistTurn(ctx context.Context, sessionID conversation.SessionID, turn conversation.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, ts, transcription, ai_response, has_image) VALUES (?, ?, ?, ?, ?)`,
		sessionID.Int(), turn.Timestamp, turn.Transcription, turn.AIResponse, turn.HasImage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// Sessions возвращает последние сессии, новые первыми.
func (s *Store) Sessions(ctx context.Context, limit int) ([]conversation.Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.session_id, COUNT(*), MIN(t.ts), MAX(t.ts),
		       (SELECT transcription FROM turns f WHERE f.session_id = t.session_id ORDER BY f.ts, f.id LIMIT 1)
		FROM turns t
		GROUP BY t.session_id
		ORDER BY MAX(t.ts) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []conversation.Summary
	for rows.Next() {
		var (
			sum conversation.Summary
			id  int64
		)
		if err := rows.Scan(&id, &sum.Turns, &sum.FirstTS, &sum.LastTS, &sum.Preview); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.SessionID = conversation.SessionID(id)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// History возвращает реплики сессии в порядке записи.
func (s *Store) History(ctx context.Context, sessionID conversation.SessionID) ([]conversation.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, transcription, ai_response, has_image FROM turns WHERE session_id = ? ORDER BY ts, id`,
		sessionID.Int(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []conversation.Turn
	for rows.Next() {
		var t conversation.Turn
		if err := rows.Scan(&t.Timestamp, &t.Transcription, &t.AIResponse, &t.HasImage); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
