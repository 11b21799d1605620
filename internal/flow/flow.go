// Package flow orchestrates one prospect turn: comprehension, decision,
// response and persistence, serialized per session.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/SalesPipe/internal/analyst"
	"github.com/BTreeMap/SalesPipe/internal/decision"
	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/sessionlock"
	"github.com/BTreeMap/SalesPipe/internal/speaker"
	"github.com/BTreeMap/SalesPipe/internal/store"
	"github.com/BTreeMap/SalesPipe/internal/util"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInactive is returned when a message arrives for a finished session.
	ErrSessionInactive = errors.New("session is no longer active")
)

// DefaultIdleTimeout is how long an active session may sit idle before the
// sweeper abandons it.
const DefaultIdleTimeout = 30 * time.Minute

// SalesFlow runs the turn pipeline for every session.
type SalesFlow struct {
	state   StateManager
	store   store.Store
	analyst analyst.Analyst
	speaker speaker.Speaker
	engine  *decision.Engine
	locker  sessionlock.Locker
	clock   func() time.Time

	qualityScoring bool
	closingLinks   []string
}

// Option configures a SalesFlow.
type Option func(*SalesFlow)

// WithLocker replaces the in-process session locker, e.g. with a Redis locker.
func WithLocker(l sessionlock.Locker) Option {
	return func(f *SalesFlow) { f.locker = l }
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(f *SalesFlow) { f.clock = clock }
}

// WithQualityScoring enables the post-session quality scoring job.
func WithQualityScoring(enabled bool) Option {
	return func(f *SalesFlow) { f.qualityScoring = enabled }
}

// WithClosingLinks lists the payment and booking links whose presence in a
// final reply triggers the closing-link SMS.
func WithClosingLinks(links ...string) Option {
	return func(f *SalesFlow) {
		for _, l := range links {
			if strings.TrimSpace(l) != "" {
				f.closingLinks = append(f.closingLinks, l)
			}
		}
	}
}

// NewSalesFlow wires the turn pipeline on top of st.
func NewSalesFlow(st store.Store, a analyst.Analyst, sp speaker.Speaker, engine *decision.Engine, opts ...Option) *SalesFlow {
	f := &SalesFlow{
		state:   NewStoreBasedStateManager(st),
		store:   st,
		analyst: a,
		speaker: sp,
		engine:  engine,
		locker:  sessionlock.NewLocalLocker(sessionlock.DefaultWait),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// StartSession creates a session in CONNECTION with the fixed greeting.
func (f *SalesFlow) StartSession(ctx context.Context, preConviction int) (*models.CreateSessionResponse, error) {
	req := models.CreateSessionRequest{PreConviction: preConviction}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := f.clock().UTC()
	sess := models.Session{
		ID:            util.NewSessionID(),
		Status:        models.SessionActive,
		CurrentPhase:  models.PhaseConnection,
		PreConviction: preConviction,
		MessageCount:  1,
		Counters:      models.NewSessionCounters(),
		StartTime:     now,
		LastActivity:  now,
	}
	greeting := models.Message{
		ID:        util.NewMessageID(),
		SessionID: sess.ID,
		Role:      models.RoleAssistant,
		Content:   speaker.Greeting,
		Phase:     models.PhaseConnection,
		Timestamp: now,
	}
	if err := f.state.CreateSession(ctx, sess, greeting); err != nil {
		slog.Error("SalesFlow.StartSession: failed to create session", "error", err)
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("SalesFlow.StartSession: session started", "sessionID", sess.ID, "preConviction", preConviction)
	return &models.CreateSessionResponse{
		SessionID:     sess.ID,
		CurrentPhase:  sess.CurrentPhase,
		PreConviction: preConviction,
		Greeting:      greeting,
	}, nil
}

// ProcessTurn handles one prospect message. Turns for the same session are
// serialized by the locker.
func (f *SalesFlow) ProcessTurn(ctx context.Context, sessionID, text string) (*models.TurnResult, error) {
	msgReq := models.SendMessageRequest{Content: text}
	if err := msgReq.Validate(); err != nil {
		return nil, err
	}

	unlock, err := f.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	sess, history, err := f.state.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive() {
		return nil, ErrSessionInactive
	}

	now := f.clock().UTC()
	phase := sess.CurrentPhase
	turn := sess.TurnNumber + 1

	userMsg := models.Message{
		ID:        util.NewMessageID(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   text,
		Phase:     phase,
		Timestamp: now,
	}
	if err := f.state.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	analysis, err := f.analyst.Analyze(ctx, analyst.Request{
		Phase:   phase,
		Message: text,
		History: history,
		Profile: sess.Profile,
	})
	if err != nil {
		// The analyst already fell back to the conservative analysis.
		slog.Warn("SalesFlow.ProcessTurn: analyst failed, continuing conservatively", "sessionID", sessionID, "error", err)
	}

	profile := sess.Profile.Clone()
	profile.Merge(analysis.ProfileUpdates)
	recordObjections(&profile, analysis)

	before := sess.Counters
	observed := decision.Observe(before, phase, analysis)
	d := f.engine.Decide(decision.Input{
		Phase:        phase,
		Analysis:     analysis,
		Profile:      profile,
		Counters:     observed,
		TurnNumber:   turn,
		SessionStart: sess.StartTime,
		Now:          now,
	})
	after := decision.Apply(observed, phase, d)

	reply, err := f.speaker.Respond(ctx, speaker.Request{
		Decision:    d,
		Analysis:    analysis,
		Counters:    after,
		Profile:     profile,
		UserMessage: text,
		History:     history,
	})
	if err != nil {
		slog.Warn("SalesFlow.ProcessTurn: speaker failed, sending fallback", "sessionID", sessionID, "error", err)
		if reply == "" {
			reply = speaker.ErrorReply
		}
	}
	if d.TargetPhase == models.PhaseOwnership {
		after.OwnershipSubstep = decision.MarkOwnershipAsked(after.OwnershipSubstep)
	}

	assistantMsg := models.Message{
		ID:        util.NewMessageID(),
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   reply,
		Phase:     d.TargetPhase,
		Timestamp: f.clock().UTC(),
	}
	thought := models.ThoughtLog{
		ID:               util.NewThoughtLogID(),
		SessionID:        sessionID,
		TurnNumber:       turn,
		UserMessage:      text,
		PhaseBefore:      phase,
		Analysis:         analysis,
		CountersBefore:   before,
		Decision:         d,
		CountersAfter:    after,
		ProfileSnapshot:  profile.Clone(),
		ResponseText:     reply,
		SessionStartTime: sess.StartTime,
		DecidedAt:        now,
		CreatedAt:        assistantMsg.Timestamp,
	}

	sess.CurrentPhase = d.TargetPhase
	sess.Counters = after
	sess.Profile = profile
	sess.TurnNumber = turn
	sess.MessageCount += 2
	sess.LastActivity = assistantMsg.Timestamp
	if d.Ends() {
		end := assistantMsg.Timestamp
		sess.Status = models.SessionCompleted
		sess.EndTime = &end
	}
	if err := f.state.CommitTurn(ctx, *sess, assistantMsg, thought); err != nil {
		slog.Error("SalesFlow.ProcessTurn: failed to persist turn", "sessionID", sessionID, "error", err)
		return nil, fmt.Errorf("persist turn: %w", err)
	}
	if d.Ends() {
		f.enqueuePostSession(*sess, reply)
	}

	slog.Info("SalesFlow.ProcessTurn: turn complete", "sessionID", sessionID, "turn", turn,
		"from", phase.String(), "to", d.TargetPhase.String(), "action", d.Action, "reason", d.Reason)
	return &models.TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		PreviousPhase:    phase,
		CurrentPhase:     d.TargetPhase,
		PhaseChanged:     d.TargetPhase != phase,
		SessionEnded:     d.Ends(),
		Decision:         d,
	}, nil
}

// EndSession marks an active session abandoned. Ending a finished session
// leaves its status alone but still records a post-conviction rating.
func (f *SalesFlow) EndSession(ctx context.Context, sessionID string, req models.EndSessionRequest) (*models.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	unlock, err := f.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	sess, _, err := f.state.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	changed := false
	if sess.IsActive() {
		end := f.clock().UTC()
		sess.Status = models.SessionAbandoned
		sess.EndTime = &end
		changed = true
	}
	if req.PostConviction != nil {
		v := *req.PostConviction
		sess.PostConviction = &v
		changed = true
	}
	if changed {
		if err := f.state.SaveSession(ctx, *sess); err != nil {
			return nil, fmt.Errorf("end session: %w", err)
		}
		slog.Info("SalesFlow.EndSession: session ended", "sessionID", sessionID, "status", sess.Status, "phase", sess.CurrentPhase.String())
	}
	return sess, nil
}

// SweepStale abandons active sessions idle for longer than idle. Sessions
// whose lock is busy are mid-turn and skipped.
func (f *SalesFlow) SweepStale(ctx context.Context, idle time.Duration) (int, error) {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	sessions, err := f.store.ListSessions()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	cutoff := f.clock().UTC().Add(-idle)
	swept := 0
	for _, s := range sessions {
		if !s.IsActive() || !s.LastActivity.Before(cutoff) {
			continue
		}
		if err := f.abandonIfIdle(ctx, s.ID, cutoff); err != nil {
			slog.Warn("SalesFlow.SweepStale: skipped session", "sessionID", s.ID, "error", err)
			continue
		}
		swept++
	}
	if swept > 0 {
		slog.Info("SalesFlow.SweepStale: abandoned idle sessions", "count", swept, "idle", idle)
	}
	return swept, nil
}

func (f *SalesFlow) abandonIfIdle(ctx context.Context, sessionID string, cutoff time.Time) error {
	lockCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlock, err := f.locker.Lock(lockCtx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	// Re-read under the lock: a turn may have landed since the listing.
	sess, _, err := f.state.LoadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.IsActive() || !sess.LastActivity.Before(cutoff) {
		return errors.New("session no longer idle")
	}
	end := f.clock().UTC()
	sess.Status = models.SessionAbandoned
	sess.EndTime = &end
	return f.state.SaveSession(ctx, *sess)
}

// recordObjections keeps objections_encountered and objections_resolved in step
// with the analysis.
func recordObjections(p *models.ProspectProfile, a models.Analysis) {
	if a.HasObjection() {
		p.RecordObjection(a.ObjectionType, a.ObjectionDetail)
	}
	if a.ObjectionDiffusionStatus == models.DiffusionResolved {
		o := a.ObjectionType
		if !a.HasObjection() {
			o = p.LastObjection()
		}
		if o != models.ObjectionNone && o != "" {
			p.RecordResolvedObjection(o)
		}
	}
}
