package models

import (
	"errors"
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a conversation.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Role identifies who sent a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Validation bounds for API input.
const (
	MinPreConviction    = 1
	MaxPreConviction    = 10
	MaxMessageLength    = 4096
	SessionIDLength     = 8
	DefaultHistoryLimit = 10
)

var (
	ErrInvalidPreConviction  = errors.New("pre_conviction must be between 1 and 10")
	ErrInvalidPostConviction = errors.New("post_conviction must be between 1 and 10")
	ErrEmptyMessage          = errors.New("content cannot be empty")
	ErrMessageTooLong        = errors.New("content exceeds maximum length")
)

// Session is one prospect conversation and its decision state.
type Session struct {
	ID             string          `json:"id"`
	Status         SessionStatus   `json:"status"`
	CurrentPhase   Phase           `json:"current_phase"`
	PreConviction  int             `json:"pre_conviction"`
	PostConviction *int            `json:"post_conviction,omitempty"`
	TurnNumber     int             `json:"turn_number"`
	MessageCount   int             `json:"message_count"`
	Counters       SessionCounters `json:"counters"`
	Profile        ProspectProfile `json:"profile"`
	Quality        *QualityScore   `json:"quality,omitempty"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
	LastActivity   time.Time       `json:"last_activity"`
}

// IsActive reports whether the session still accepts messages.
func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

// Message is one utterance in a session transcript.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// ThoughtLog records everything the engine saw and decided on one turn.
type ThoughtLog struct {
	ID               string          `json:"id"`
	SessionID        string          `json:"session_id"`
	TurnNumber       int             `json:"turn_number"`
	UserMessage      string          `json:"user_message"`
	PhaseBefore      Phase           `json:"phase_before"`
	Analysis         Analysis        `json:"analysis"`
	CountersBefore   SessionCounters `json:"counters_before"`
	Decision         Decision        `json:"decision"`
	CountersAfter    SessionCounters `json:"counters_after"`
	ProfileSnapshot  ProspectProfile `json:"profile_snapshot"`
	ResponseText     string          `json:"response_text"`
	SessionStartTime time.Time       `json:"session_start_time"`
	DecidedAt        time.Time       `json:"decided_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// QualityScore is the post-conversation assessment of the agent's replies.
type QualityScore struct {
	MirroringScore       int       `json:"mirroring_score"`
	MirroringDetails     string    `json:"mirroring_details,omitempty"`
	EnergyMatchingScore  int       `json:"energy_matching_score"`
	EnergyMatchingDetail string    `json:"energy_matching_details,omitempty"`
	StructureScore       int       `json:"structure_score"`
	StructureDetails     string    `json:"structure_details,omitempty"`
	EmotionalArcScore    int       `json:"emotional_arc_score"`
	EmotionalArcDetails  string    `json:"emotional_arc_details,omitempty"`
	OverallScore         int       `json:"overall_score"`
	Recommendations      []string  `json:"recommendations,omitempty"`
	ScoredAt             time.Time `json:"scored_at"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	PreConviction int `json:"pre_conviction"`
}

// Validate checks the pre-conviction rating.
func (r *CreateSessionRequest) Validate() error {
	if r.PreConviction < MinPreConviction || r.PreConviction > MaxPreConviction {
		return ErrInvalidPreConviction
	}
	return nil
}

// SendMessageRequest is the body of POST /api/sessions/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// Validate checks the message content.
func (r *SendMessageRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyMessage
	}
	if len(r.Content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// EndSessionRequest is the optional body of POST /api/sessions/{id}/end.
type EndSessionRequest struct {
	PostConviction *int `json:"post_conviction,omitempty"`
}

// Validate checks the optional post-conviction rating.
func (r *EndSessionRequest) Validate() error {
	if r.PostConviction == nil {
		return nil
	}
	if *r.PostConviction < MinPreConviction || *r.PostConviction > MaxPreConviction {
		return ErrInvalidPostConviction
	}
	return nil
}

// CreateSessionResponse is returned when a session starts.
type CreateSessionResponse struct {
	SessionID     string  `json:"session_id"`
	CurrentPhase  Phase   `json:"current_phase"`
	PreConviction int     `json:"pre_conviction"`
	Greeting      Message `json:"greeting"`
}

// TurnResult is returned after a prospect message has been processed.
type TurnResult struct {
	UserMessage      Message  `json:"user_message"`
	AssistantMessage Message  `json:"assistant_message"`
	PreviousPhase    Phase    `json:"previous_phase"`
	CurrentPhase     Phase    `json:"current_phase"`
	PhaseChanged     bool     `json:"phase_changed"`
	SessionEnded     bool     `json:"session_ended"`
	Decision         Decision `json:"decision"`
}

// SessionDetail is a session together with its transcript.
type SessionDetail struct {
	Session
	Messages []Message `json:"messages"`
}

// PhaseCount pairs a phase with a number of sessions.
type PhaseCount struct {
	Phase Phase `json:"phase"`
	Count int   `json:"count"`
}

// Metrics aggregates session outcomes.
type Metrics struct {
	TotalSessions        int          `json:"total_sessions"`
	ActiveSessions       int          `json:"active_sessions"`
	CompletedSessions    int          `json:"completed_sessions"`
	AbandonedSessions    int          `json:"abandoned_sessions"`
	AveragePreConviction float64      `json:"average_pre_conviction"`
	ConversionRate       float64      `json:"conversion_rate"`
	PhaseDistribution    []PhaseCount `json:"phase_distribution"`
	FailureModes         []PhaseCount `json:"failure_modes"`
}

// ComputeMetrics summarizes sessions. Conversion rate is the percentage of
// sessions that completed, rounded to one decimal place.
func ComputeMetrics(sessions []Session) Metrics {
	m := Metrics{
		PhaseDistribution: []PhaseCount{},
		FailureModes:      []PhaseCount{},
	}
	m.TotalSessions = len(sessions)
	if m.TotalSessions == 0 {
		return m
	}

	byPhase := map[Phase]int{}
	abandonedByPhase := map[Phase]int{}
	convictionSum := 0
	for _, s := range sessions {
		convictionSum += s.PreConviction
		byPhase[s.CurrentPhase]++
		switch s.Status {
		case SessionActive:
			m.ActiveSessions++
		case SessionCompleted:
			m.CompletedSessions++
		case SessionAbandoned:
			m.AbandonedSessions++
			abandonedByPhase[s.CurrentPhase]++
		}
	}

	m.AveragePreConviction = round1(float64(convictionSum) / float64(m.TotalSessions))
	m.ConversionRate = round1(float64(m.CompletedSessions) / float64(m.TotalSessions) * 100)

	for _, p := range append(append([]Phase{}, PhaseOrder...), PhaseTerminated) {
		if n := byPhase[p]; n > 0 {
			m.PhaseDistribution = append(m.PhaseDistribution, PhaseCount{Phase: p, Count: n})
		}
		if n := abandonedByPhase[p]; n > 0 {
			m.FailureModes = append(m.FailureModes, PhaseCount{Phase: p, Count: n})
		}
	}
	return m
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
