// Package speaker turns a decision into Sally's next message. The decision
// fixes the phase and action; the speaker only chooses the words, and every
// generated reply passes through Police before it reaches the prospect.
package speaker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/SalesPipe/internal/catalog"
	"github.com/BTreeMap/SalesPipe/internal/genai"
	"github.com/BTreeMap/SalesPipe/internal/models"
)

// Greeting opens every session.
const Greeting = "Hi there! I'm Sally from 100x. Thanks for stopping by. What brings you here today, and what do you do?"

// PaymentPlaceholder is replaced with the configured payment link.
const PaymentPlaceholder = "[PAYMENT_LINK]"

const historyWindow = 8

// Request carries everything needed to phrase one reply.
type Request struct {
	Decision models.Decision
	// Analysis of the prospect message being answered.
	Analysis models.Analysis
	// Counters after the decision has been applied.
	Counters    models.SessionCounters
	Profile     models.ProspectProfile
	UserMessage string
	// History is the transcript before UserMessage, oldest first.
	History []models.Message
}

// Speaker produces the assistant's reply for a decided turn.
type Speaker interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// Opts configures an LLMSpeaker.
type Opts struct {
	PaymentLink string
	BookingURL  string
	FactSheet   string
}

// Option configures an LLMSpeaker.
type Option func(*Opts)

// WithPaymentLink sets the link substituted for PaymentPlaceholder.
func WithPaymentLink(link string) Option {
	return func(o *Opts) { o.PaymentLink = link }
}

// WithBookingURL sets the free workshop booking link.
func WithBookingURL(url string) Option {
	return func(o *Opts) { o.BookingURL = url }
}

// WithFactSheet grounds the speaker in a fixed set of product facts.
func WithFactSheet(text string) Option {
	return func(o *Opts) { o.FactSheet = strings.TrimSpace(text) }
}

// LLMSpeaker phrases replies with a language model.
type LLMSpeaker struct {
	gen     genai.Generator
	catalog *catalog.Catalog
	opts    Opts
}

// New creates an LLMSpeaker. A nil catalog selects catalog.Default().
func New(gen genai.Generator, c *catalog.Catalog, opts ...Option) *LLMSpeaker {
	if c == nil {
		c = catalog.Default()
	}
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	return &LLMSpeaker{gen: gen, catalog: c, opts: o}
}

// Respond generates, polices and link-fills the reply. On a generation
// failure it returns ErrorReply together with the error.
func (s *LLMSpeaker) Respond(ctx context.Context, req Request) (string, error) {
	closing := s.closingLink(req)
	prompt := BuildPrompt(s.catalog, req, closing, s.opts.FactSheet)

	raw, err := s.gen.Generate(ctx, Persona, prompt)
	if err != nil {
		slog.Error("LLMSpeaker.Respond: generation failed", "error", err, "phase", req.Decision.TargetPhase.String())
		return ErrorReply, fmt.Errorf("speaker generation failed: %w", err)
	}

	maxSentences := s.catalog.Spec(req.Decision.TargetPhase).MaxSentences
	text := Police(raw, PoliceOptions{
		Phase:           req.Decision.TargetPhase,
		Closing:         closing != "",
		LastUserMessage: req.UserMessage,
		MaxSentences:    maxSentences,
	})
	if closing != "" {
		text = s.fillLink(text, closing)
	}
	slog.Debug("LLMSpeaker.Respond: reply ready", "action", req.Decision.Action, "phase", req.Decision.TargetPhase.String(), "length", len(text))
	return text, nil
}

// closingLink returns the link the reply must carry, or "" when the turn is
// not a close. A close needs both email and phone on file.
func (s *LLMSpeaker) closingLink(req Request) string {
	if !isClosingPhase(req.Decision) || req.Profile.IsEmpty(models.FieldEmail) || req.Profile.IsEmpty(models.FieldPhone) {
		return ""
	}
	if s.opts.BookingURL != "" && choseFreeOption(req) {
		return s.opts.BookingURL
	}
	if s.opts.PaymentLink != "" {
		return PaymentPlaceholder
	}
	return ""
}

func (s *LLMSpeaker) fillLink(text, link string) string {
	if link == PaymentPlaceholder {
		if !strings.Contains(text, PaymentPlaceholder) {
			text += "\nHere's the link to secure your spot: " + PaymentPlaceholder
		}
		return strings.ReplaceAll(text, PaymentPlaceholder, s.opts.PaymentLink)
	}
	if !strings.Contains(text, link) {
		text += "\nHere's the link to book your free workshop: " + link
	}
	return text
}

func isClosingPhase(d models.Decision) bool {
	return d.TargetPhase == models.PhaseCommitment || d.TargetPhase == models.PhaseTerminated
}

// choseFreeOption looks for the prospect picking the free workshop in the recent transcript.
func choseFreeOption(req Request) bool {
	texts := []string{strings.ToLower(req.UserMessage)}
	for _, m := range recent(req.History, historyWindow) {
		texts = append(texts, strings.ToLower(m.Content))
	}
	for _, t := range texts {
		if !strings.Contains(t, "free") {
			continue
		}
		for _, cue := range []string{"workshop", "link", "sign up", "sound"} {
			if strings.Contains(t, cue) {
				return true
			}
		}
	}
	return false
}

func recent(history []models.Message, n int) []models.Message {
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}
