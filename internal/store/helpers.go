package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// bindDollar rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func bindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func bindQuestion(query string) string { return query }

const jobColumns = `id, kind, run_at, payload_json, status, attempt, max_attempts, last_error, locked_at, dedupe_key, created_at, updated_at`

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}

const sessionColumns = `id, status, current_phase, pre_conviction, post_conviction, turn_number, message_count,
	counters_json, profile_json, quality_json, start_time, end_time, last_activity`

// sessionArgs flattens a session into column values in sessionColumns order.
func sessionArgs(s models.Session) ([]any, error) {
	counters, err := json.Marshal(s.Counters)
	if err != nil {
		return nil, fmt.Errorf("encode counters: %w", err)
	}
	profile, err := json.Marshal(s.Profile)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	var quality any
	if s.Quality != nil {
		data, err := json.Marshal(s.Quality)
		if err != nil {
			return nil, fmt.Errorf("encode quality: %w", err)
		}
		quality = string(data)
	}
	var post any
	if s.PostConviction != nil {
		post = *s.PostConviction
	}
	var end any
	if s.EndTime != nil {
		end = s.EndTime.UTC()
	}
	return []any{
		s.ID, string(s.Status), s.CurrentPhase.String(), s.PreConviction, post, s.TurnNumber, s.MessageCount,
		string(counters), string(profile), quality, s.StartTime.UTC(), end, s.LastActivity.UTC(),
	}, nil
}

func scanSession(row rowScanner) (models.Session, error) {
	var s models.Session
	var status, phase, counters, profile string
	var quality sql.NullString
	var post sql.NullInt64
	var end sql.NullTime
	err := row.Scan(&s.ID, &status, &phase, &s.PreConviction, &post, &s.TurnNumber, &s.MessageCount,
		&counters, &profile, &quality, &s.StartTime, &end, &s.LastActivity)
	if err != nil {
		return s, err
	}
	s.Status = models.SessionStatus(status)
	if s.CurrentPhase, err = models.ParsePhase(phase); err != nil {
		return s, fmt.Errorf("session %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(counters), &s.Counters); err != nil {
		return s, fmt.Errorf("session %s: decode counters: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(profile), &s.Profile); err != nil {
		return s, fmt.Errorf("session %s: decode profile: %w", s.ID, err)
	}
	if quality.Valid && quality.String != "" {
		var q models.QualityScore
		if err := json.Unmarshal([]byte(quality.String), &q); err != nil {
			return s, fmt.Errorf("session %s: decode quality: %w", s.ID, err)
		}
		s.Quality = &q
	}
	if post.Valid {
		v := int(post.Int64)
		s.PostConviction = &v
	}
	if end.Valid {
		t := end.Time
		s.EndTime = &t
	}
	return s, nil
}

func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var role, phase string
	if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &phase, &m.Timestamp); err != nil {
		return m, err
	}
	m.Role = models.Role(role)
	p, err := models.ParsePhase(phase)
	if err != nil {
		return m, fmt.Errorf("message %s: %w", m.ID, err)
	}
	m.Phase = p
	return m, nil
}

func utcOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
