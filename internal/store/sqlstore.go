package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/util"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Queries are written with ? placeholders and rewritten by bind.
type sqlStore struct {
	db   *sql.DB
	name string
	bind func(string) string
}

func (s *sqlStore) exec(query string, args ...any) (sql.Result, error) {
	return s.db.Exec(s.bind(query), args...)
}

func (s *sqlStore) queryRow(query string, args ...any) *sql.Row {
	return s.db.QueryRow(s.bind(query), args...)
}

func (s *sqlStore) query(query string, args ...any) (*sql.Rows, error) {
	return s.db.Query(s.bind(query), args...)
}

func (s *sqlStore) CreateSession(sess models.Session) error {
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}
	_, err = s.exec(`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		slog.Error(s.name+".CreateSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (s *sqlStore) GetSession(id string) (*models.Session, error) {
	sess, err := scanSession(s.queryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &sess, nil
}

func (s *sqlStore) UpdateSession(sess models.Session) error {
	args, err := sessionArgs(sess)
	if err != nil {
		return err
	}
	// id moves from the front of the column list to the WHERE clause
	args = append(args[1:], args[0])
	res, err := s.exec(`UPDATE sessions SET status = ?, current_phase = ?, pre_conviction = ?, post_conviction = ?,
		turn_number = ?, message_count = ?, counters_json = ?, profile_json = ?, quality_json = ?,
		start_time = ?, end_time = ?, last_activity = ? WHERE id = ?`, args...)
	if err != nil {
		slog.Error(s.name+".UpdateSession failed", "error", err, "sessionID", sess.ID)
		return fmt.Errorf("update session failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) ListSessions() ([]models.Session, error) {
	rows, err := s.query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	defer rows.Close()
	var out []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session failed: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddMessage(m models.Message) error {
	_, err := s.exec(`INSERT INTO messages (id, session_id, role, content, phase, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, string(m.Role), m.Content, m.Phase.String(), utcOrNow(m.Timestamp))
	if err != nil {
		slog.Error(s.name+".AddMessage failed", "error", err, "sessionID", m.SessionID)
		return fmt.Errorf("add message failed: %w", err)
	}
	return nil
}

func (s *sqlStore) ListMessages(sessionID string) ([]models.Message, error) {
	rows, err := s.query(`SELECT id, session_id, role, content, phase, timestamp FROM messages
		WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message failed: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Thought logs are stored whole as JSON; only the lookup columns are broken out.
func (s *sqlStore) AddThoughtLog(l models.ThoughtLog) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode thought log: %w", err)
	}
	_, err = s.exec(`INSERT INTO thought_logs (id, session_id, turn_number, data_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.SessionID, l.TurnNumber, string(data), utcOrNow(l.CreatedAt))
	if err != nil {
		slog.Error(s.name+".AddThoughtLog failed", "error", err, "sessionID", l.SessionID, "turn", l.TurnNumber)
		return fmt.Errorf("add thought log failed: %w", err)
	}
	return nil
}

func (s *sqlStore) ListThoughtLogs(sessionID string) ([]models.ThoughtLog, error) {
	rows, err := s.query(`SELECT data_json FROM thought_logs WHERE session_id = ? ORDER BY turn_number ASC, created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list thought logs failed: %w", err)
	}
	defer rows.Close()
	var out []models.ThoughtLog
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan thought log failed: %w", err)
		}
		var l models.ThoughtLog
		if err := json.Unmarshal([]byte(data), &l); err != nil {
			return nil, fmt.Errorf("decode thought log failed: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	id := util.NewJobID()
	now := time.Now().UTC()

	if dedupeKey != "" {
		var existingID string
		err := s.queryRow(`SELECT id FROM jobs WHERE dedupe_key = ? AND status NOT IN ('done', 'canceled')`, dedupeKey).Scan(&existingID)
		if err == nil {
			slog.Debug(s.name+".EnqueueJob: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("dedupe check failed: %w", err)
		}
	}

	_, err := s.exec(`INSERT INTO jobs (id, kind, run_at, payload_json, status, attempt, max_attempts, dedupe_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?, ?)`,
		id, kind, runAt.UTC(), payloadJSON, DefaultMaxAttempts, nilIfEmpty(dedupeKey), now, now)
	if err != nil {
		return "", fmt.Errorf("enqueue job failed: %w", err)
	}
	slog.Debug(s.name+".EnqueueJob", "id", id, "kind", kind, "runAt", runAt)
	return id, nil
}

func (s *sqlStore) CompleteJob(id string) error {
	if _, err := s.exec(`UPDATE jobs SET status = 'done', locked_at = NULL, updated_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("complete job failed: %w", err)
	}
	return nil
}

func (s *sqlStore) FailJob(id string, errMsg string, nextRunAt time.Time) error {
	now := time.Now().UTC()
	var attempt, maxAttempts int
	if err := s.queryRow(`SELECT attempt, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempt, &maxAttempts); err != nil {
		return fmt.Errorf("fail job lookup failed: %w", err)
	}

	attempt++
	var err error
	if attempt >= maxAttempts {
		_, err = s.exec(`UPDATE jobs SET status = 'failed', attempt = ?, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
			attempt, errMsg, now, id)
	} else {
		_, err = s.exec(`UPDATE jobs SET status = 'queued', attempt = ?, last_error = ?, run_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
			attempt, errMsg, nextRunAt.UTC(), now, id)
	}
	if err != nil {
		return fmt.Errorf("fail job update failed: %w", err)
	}
	return nil
}

func (s *sqlStore) CancelJob(id string) error {
	if _, err := s.exec(`UPDATE jobs SET status = 'canceled', locked_at = NULL, updated_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("cancel job failed: %w", err)
	}
	return nil
}

func (s *sqlStore) RequeueStaleRunningJobs(staleBefore time.Time) (int, error) {
	res, err := s.exec(`UPDATE jobs SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'running' AND locked_at < ?`,
		time.Now().UTC(), staleBefore.UTC())
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info(s.name+".RequeueStaleRunningJobs", "requeued", n)
	}
	return int(n), nil
}

func (s *sqlStore) GetJob(id string) (*Job, error) {
	j, err := scanJob(s.queryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job failed: %w", err)
	}
	return &j, nil
}
