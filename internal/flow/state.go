// Package flow defines state management interfaces for sales conversations.
package flow

import (
	"context"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

// StateManager loads and persists the state a turn works on.
type StateManager interface {
	// LoadSession returns the session and its transcript, or ErrSessionNotFound.
	LoadSession(ctx context.Context, sessionID string) (*models.Session, []models.Message, error)

	// CreateSession persists a new session together with its opening message.
	CreateSession(ctx context.Context, sess models.Session, greeting models.Message) error

	// AppendMessage adds one message to the transcript.
	AppendMessage(ctx context.Context, m models.Message) error

	// CommitTurn stores the reply, the thought log and the updated session.
	CommitTurn(ctx context.Context, sess models.Session, reply models.Message, log models.ThoughtLog) error

	// SaveSession overwrites the session row.
	SaveSession(ctx context.Context, sess models.Session) error
}
