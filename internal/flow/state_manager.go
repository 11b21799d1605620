package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/SalesPipe/internal/models"
	"github.com/BTreeMap/SalesPipe/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

func (sm *StoreBasedStateManager) LoadSession(ctx context.Context, sessionID string) (*models.Session, []models.Message, error) {
	sess, err := sm.store.GetSession(sessionID)
	if err != nil {
		slog.Error("StateManager LoadSession error", "error", err, "sessionID", sessionID)
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrSessionNotFound
	}
	history, err := sm.store.ListMessages(sessionID)
	if err != nil {
		slog.Error("StateManager LoadSession messages error", "error", err, "sessionID", sessionID)
		return nil, nil, err
	}
	return sess, history, nil
}

func (sm *StoreBasedStateManager) CreateSession(ctx context.Context, sess models.Session, greeting models.Message) error {
	if err := sm.store.CreateSession(sess); err != nil {
		return err
	}
	if err := sm.store.AddMessage(greeting); err != nil {
		return fmt.Errorf("store greeting: %w", err)
	}
	slog.Debug("StateManager CreateSession succeeded", "sessionID", sess.ID)
	return nil
}

func (sm *StoreBasedStateManager) AppendMessage(ctx context.Context, m models.Message) error {
	return sm.store.AddMessage(m)
}

func (sm *StoreBasedStateManager) CommitTurn(ctx context.Context, sess models.Session, reply models.Message, log models.ThoughtLog) error {
	if err := sm.store.AddMessage(reply); err != nil {
		return fmt.Errorf("store reply: %w", err)
	}
	if err := sm.store.AddThoughtLog(log); err != nil {
		return fmt.Errorf("store thought log: %w", err)
	}
	if err := sm.store.UpdateSession(sess); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	slog.Debug("StateManager CommitTurn succeeded", "sessionID", sess.ID, "turn", sess.TurnNumber, "phase", sess.CurrentPhase.String())
	return nil
}

func (sm *StoreBasedStateManager) SaveSession(ctx context.Context, sess models.Session) error {
	if err := sm.store.UpdateSession(sess); err != nil {
		slog.Error("StateManager SaveSession error", "error", err, "sessionID", sess.ID)
		return err
	}
	return nil
}
