package session

import (
	"context"
	"fmt"

	"siterag/internal/log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages session persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a session store on the given pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		pool:   pool,
		logger: logger.With("component", "session"),
	}
}

// AppendExchange stores one user query and its assistant answer as two
// consecutive turns. The session row is created on first use and locked for
// the duration of the transaction, so sequence numbers stay gapless under
// concurrent appends. Either both turns land or neither does.
func (s *Store) AppendExchange(ctx context.Context, sessionID, query, answer string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING`, sessionID); err != nil {
		return fmt.Errorf("ensuring session %q: %w", sessionID, err)
	}

	// SELECT ... FOR UPDATE serializes appends per session.
	if _, err := tx.Exec(ctx, `
		SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID); err != nil {
		return fmt.Errorf("locking session %q: %w", sessionID, err)
	}

	var maxSeq int
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0)
		FROM session_turns WHERE session_id = $1`, sessionID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("reading sequence number for session %q: %w", sessionID, err)
	}

	const insert = `
		INSERT INTO session_turns (session_id, role, content, sequence_number)
		VALUES ($1, $2, $3, $4)`

	if _, err := tx.Exec(ctx, insert, sessionID, RoleUser, query, maxSeq+1); err != nil {
		return fmt.Errorf("inserting user turn: %w", err)
	}
	if _, err := tx.Exec(ctx, insert, sessionID, RoleAssistant, answer, maxSeq+2); err != nil {
		return fmt.Errorf("inserting assistant turn: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sessions
		SET turn_count = $2, updated_at = now()
		WHERE id = $1`, sessionID, maxSeq+2); err != nil {
		return fmt.Errorf("updating session %q: %w", sessionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing exchange for session %q: %w", sessionID, err)
	}

	s.logger.Debug("appended exchange", "session_id", sessionID, "sequence", maxSeq+2)
	return nil
}

// Turns returns the full history of a session, oldest first. A session with
// no stored turns yields an empty slice.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, content
		FROM session_turns
		WHERE session_id = $1
		ORDER BY sequence_number ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading turns for session %q: %w", sessionID, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		if err := rows.Scan(&turn.Role, &turn.Content); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}

	return turns, nil
}

// LastN returns the most recent n turns, oldest first.
func (s *Store) LastN(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, content FROM (
			SELECT role, content, sequence_number
			FROM session_turns
			WHERE session_id = $1
			ORDER BY sequence_number DESC
			LIMIT $2
		) recent
		ORDER BY sequence_number ASC`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("loading last %d turns for session %q: %w", n, sessionID, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		if err := rows.Scan(&turn.Role, &turn.Content); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}

	return turns, nil
}

// Delete removes a session and all its turns (ON DELETE CASCADE).
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("deleting session %q: %w", sessionID, err)
	}

	s.logger.Debug("deleted session", "session_id", sessionID)
	return nil
}

// List returns all sessions ordered by most recently updated.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, turn_count
		FROM sessions
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.TurnCount); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading session rows: %w", err)
	}

	return sessions, nil
}
