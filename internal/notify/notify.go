// Package notify delivers the closing payment or booking link to the
// prospect by SMS once a conversation has closed.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrInvalidNumber is returned for a destination that is not an E.164-like number.
var ErrInvalidNumber = errors.New("notify: invalid phone number")

// Notifier sends a text message to a phone number.
type Notifier interface {
	Send(ctx context.Context, to, body string) error
}

// Opts holds the Twilio credentials and sender number.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option configures a TwilioNotifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the SMS sender number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// messageAPI is the slice of the Twilio REST API used here.
type messageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioNotifier sends SMS through the Twilio REST API.
type TwilioNotifier struct {
	api  messageAPI
	from string
}

var _ Notifier = (*TwilioNotifier)(nil)

// NewTwilioNotifier creates a notifier. Missing options fall back to
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioNotifier{api: client.Api, from: cfg.FromNumber}, nil
}

// Send delivers body to the number to.
func (n *TwilioNotifier) Send(ctx context.Context, to, body string) error {
	number, err := NormalizeNumber(to)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(number)
	params.SetFrom(n.from)
	params.SetBody(body)

	msg, err := n.api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioNotifier.Send failed", "error", err)
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	slog.Info("TwilioNotifier.Send: SMS sent", "sid", sid)
	return nil
}

// NormalizeNumber strips formatting from a prospect-typed phone number. Ten
// digit numbers are assumed to be North American.
func NormalizeNumber(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10 && !strings.HasPrefix(strings.TrimSpace(raw), "+"):
		return "+1" + d, nil
	case len(d) >= 8 && len(d) <= 15:
		return "+" + d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
}

// LogNotifier only logs. It stands in when Twilio is not configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, to, body string) error {
	slog.Info("LogNotifier.Send: SMS delivery disabled, message not sent", "length", len(body))
	return nil
}

// MockNotifier records messages for tests.
type MockNotifier struct {
	mu   sync.Mutex
	Sent []SentMessage
	Err  error
}

// SentMessage is one message captured by MockNotifier.
type SentMessage struct {
	To   string
	Body string
}

func (m *MockNotifier) Send(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}
