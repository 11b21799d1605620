package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/store"
)

// Job kinds run after a session ends.
const (
	JobKindScoreSession    = "score_session"
	JobKindSendClosingLink = "send_closing_link"
)

// ScoreSessionPayload is the JSON payload for score_session jobs.
type ScoreSessionPayload struct {
	SessionID string `json:"session_id"`
}

// SendClosingLinkPayload is the JSON payload for send_closing_link jobs.
type SendClosingLinkPayload struct {
	SessionID string `json:"session_id"`
	Phone     string `json:"phone"`
	Link      string `json:"link"`
	Name      string `json:"name,omitempty"`
}

// Scorer rates a finished conversation.
type Scorer interface {
	Score(ctx context.Context, messages []models.Message, logs []models.ThoughtLog) models.QualityScore
}

// Notifier delivers a text message to a phone number.
type Notifier interface {
	Send(ctx context.Context, to, body string) error
}

// enqueuePostSession schedules the work that follows a completed session.
// Enqueue failures are logged; the turn itself has already been committed.
func (f *SalesFlow) enqueuePostSession(sess models.Session, reply string) {
	now := f.clock().UTC()
	if f.qualityScoring {
		payload, _ := json.Marshal(ScoreSessionPayload{SessionID: sess.ID})
		if _, err := f.store.EnqueueJob(JobKindScoreSession, now, string(payload), "score:"+sess.ID); err != nil {
			slog.Error("SalesFlow.enqueuePostSession: score job", "sessionID", sess.ID, "error", err)
		}
	}

	link := f.linkIn(reply)
	if link == "" || sess.Profile.Phone == "" {
		return
	}
	payload, _ := json.Marshal(SendClosingLinkPayload{
		SessionID: sess.ID,
		Phone:     sess.Profile.Phone,
		Link:      link,
		Name:      sess.Profile.Name,
	})
	if _, err := f.store.EnqueueJob(JobKindSendClosingLink, now, string(payload), "closing:"+sess.ID); err != nil {
		slog.Error("SalesFlow.enqueuePostSession: closing link job", "sessionID", sess.ID, "error", err)
	}
}

func (f *SalesFlow) linkIn(reply string) string {
	for _, l := range f.closingLinks {
		if strings.Contains(reply, l) {
			return l
		}
	}
	return ""
}

// RegisterJobHandlers registers the post-session job handlers. A nil scorer
// or notifier leaves that kind unhandled.
func (f *SalesFlow) RegisterJobHandlers(runner *store.JobRunner, scorer Scorer, notifier Notifier) {
	if scorer != nil {
		runner.RegisterHandler(JobKindScoreSession, f.makeScoreSessionHandler(scorer))
	}
	if notifier != nil {
		runner.RegisterHandler(JobKindSendClosingLink, makeSendClosingLinkHandler(notifier))
	}
}

func (f *SalesFlow) makeScoreSessionHandler(scorer Scorer) store.JobHandler {
	return func(ctx context.Context, payload string) error {
		var p ScoreSessionPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid score_session payload: %w", err)
		}
		slog.Info("JobHandler.score_session: executing", "sessionID", p.SessionID)

		sess, messages, err := f.state.LoadSession(ctx, p.SessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if sess.Quality != nil {
			slog.Info("JobHandler.score_session: already scored, skipping", "sessionID", p.SessionID)
			return nil
		}
		logs, err := f.store.ListThoughtLogs(p.SessionID)
		if err != nil {
			return fmt.Errorf("load thought logs: %w", err)
		}
		score := scorer.Score(ctx, messages, logs)

		// Scoring can take a while; re-read under the lock before writing.
		unlock, err := f.locker.Lock(ctx, p.SessionID)
		if err != nil {
			return err
		}
		defer unlock()
		sess, _, err = f.state.LoadSession(ctx, p.SessionID)
		if err != nil {
			return fmt.Errorf("reload session: %w", err)
		}
		sess.Quality = &score
		if err := f.state.SaveSession(ctx, *sess); err != nil {
			return fmt.Errorf("save quality score: %w", err)
		}
		slog.Info("JobHandler.score_session: stored", "sessionID", p.SessionID, "overall", score.OverallScore)
		return nil
	}
}

func makeSendClosingLinkHandler(notifier Notifier) store.JobHandler {
	return func(ctx context.Context, payload string) error {
		var p SendClosingLinkPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid send_closing_link payload: %w", err)
		}
		slog.Info("JobHandler.send_closing_link: executing", "sessionID", p.SessionID)
		if err := notifier.Send(ctx, p.Phone, ClosingLinkMessage(p.Name, p.Link)); err != nil {
			return fmt.Errorf("failed to send closing link: %w", err)
		}
		return nil
	}
}

// ClosingLinkMessage is the SMS body carrying the payment or booking link.
func ClosingLinkMessage(name, link string) string {
	greeting := "Hi"
	if n := strings.TrimSpace(name); n != "" {
		greeting += " " + n
	}
	return greeting + ", it's Sally from 100x. Thanks for the chat! Here's your link: " + link
}
