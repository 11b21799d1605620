package speaker

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

// Fallback replies used when a generated response cannot be salvaged.
const (
	FallbackReply      = "How has that been playing out for you day-to-day?"
	EarlyPitchFallback = "What's been the biggest challenge with that so far?"
	// ErrorReply is sent when the model could not be reached at all.
	ErrorReply = "Could you tell me a bit more about that?"
)

const (
	defaultMaxSentences = 4
	closingMaxSentences = 10
	minCleanWords       = 4
	echoWindow          = 6
)

var hypeWords = []string{
	"guaranteed", "revolutionary", "game-changing", "cutting-edge",
	"transform", "unlock", "skyrocket", "supercharge", "unleash",
	"incredible", "amazing", "unbelievable", "mind-blowing", "powerful",
	"leverage", "synergy", "paradigm", "disrupt", "innovate",
}

// Longest first so multi-word phrases win over their substrings.
var fillerPhrases = compilePhrases(
	"that's completely understandable",
	"i appreciate you sharing",
	"that makes a lot of sense",
	"that makes total sense",
	"that's a great question",
	"i completely understand",
	"happens to the best of us",
	"that's interesting",
	"great point",
	"i hear you",
	"no worries",
	"absolutely",
	"tell me more",
	"got it",
)

var editorialPhrases = compilePhrases(
	"that's a whole thing", "those are the worst", "that's the dream", "that's huge",
	"that's no joke", "that's a lot", "that sounds tough", "that sounds rough",
	"that's really something", "that's brutal", "that sounds brutal", "that's the worst",
	"that's so frustrating", "that's a crowded space", "that's real work", "that's a tough one",
	"that's no small thing", "that's tricky", "that's rough", "that's cool", "that's smart",
	"that's wild", "wow",
)

var pitchSignals = []string{"$10,000", "discovery workshop", "nik shah", "100x"}

var (
	reOrphanPeriod = regexp.MustCompile(`[,\s]*\.\s*`)
	reDoublePeriod = regexp.MustCompile(`\.\s*\.`)
	reDoubleComma  = regexp.MustCompile(`,\s*,`)
	reSpaces       = regexp.MustCompile(`\s+`)
	reSpaceBefore  = regexp.MustCompile(`\s+([.,!?])`)
	reSentenceEnd  = regexp.MustCompile(`[.!?]+`)
	reSentence     = regexp.MustCompile(`[^.!?]*[.!?]`)
)

func compilePhrases(phrases ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(phrases))
	for i, p := range phrases {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p) + `\b`)
	}
	return out
}

// PoliceOptions describes the turn a response is being checked for.
type PoliceOptions struct {
	Phase models.Phase
	// Closing relaxes the question and length rules for messages carrying links.
	Closing         bool
	LastUserMessage string
	// MaxSentences is the phase's sentence cap; zero selects the default.
	MaxSentences int
}

// Police enforces the hard content rules on a generated response. Violations
// that can be repaired in place are repaired; the rest yield a safe fallback.
func Police(text string, opts PoliceOptions) string {
	text = strings.NewReplacer(" — ", ", ", "—", ", ", " ; ", ". ", ";", ".").Replace(text)
	text = strings.TrimSpace(text)

	if !opts.Closing {
		text = singleQuestion(text)
	}

	lower := strings.ToLower(text)
	for _, w := range hypeWords {
		if strings.Contains(lower, w) {
			slog.Warn("speaker.Police: hype word detected", "word", w, "phase", opts.Phase.String())
			return FallbackReply
		}
	}

	text = stripPhrases(text, fillerPhrases, opts.Phase, "filler")
	if opts.Phase.IsEarly() {
		text = stripPhrases(text, editorialPhrases, opts.Phase, "editorial")
	}

	if opts.LastUserMessage != "" {
		text = stripEchoOpener(text, opts.LastUserMessage)
	}

	if opts.Phase.IsEarly() {
		lower = strings.ToLower(text)
		for _, s := range pitchSignals {
			if strings.Contains(lower, s) {
				slog.Warn("speaker.Police: pitch before consequence", "signal", s, "phase", opts.Phase.String())
				return EarlyPitchFallback
			}
		}
	}

	limit := opts.MaxSentences
	if limit <= 0 {
		limit = defaultMaxSentences
	}
	if opts.Closing {
		limit = closingMaxSentences
	}
	text = capSentences(text, limit)

	if cleanWordCount(text) < minCleanWords {
		slog.Warn("speaker.Police: response too short after cleaning", "phase", opts.Phase.String())
		return FallbackReply
	}
	return text
}

// singleQuestion keeps the response up to its first question and undoes
// ", and" / ", like" stacking inside that question.
func singleQuestion(text string) string {
	if strings.Count(text, "?") > 1 {
		text = strings.TrimSpace(text[:strings.Index(text, "?")+1])
	}
	q := strings.Index(text, "?")
	if q < 0 {
		return text
	}
	lower := strings.ToLower(text)
	for _, joiner := range []string{", and ", ", like "} {
		if pos := strings.Index(lower, joiner); pos >= 0 && pos < q {
			return text[:pos] + "?"
		}
	}
	return text
}

func stripPhrases(text string, phrases []*regexp.Regexp, phase models.Phase, kind string) string {
	for _, re := range phrases {
		if !re.MatchString(text) {
			continue
		}
		slog.Debug("speaker.Police: stripping phrase", "kind", kind, "phrase", re.String(), "phase", phase.String())
		text = tidy(re.ReplaceAllString(text, ""))
	}
	return text
}

func tidy(text string) string {
	text = reOrphanPeriod.ReplaceAllString(text, ". ")
	text = reDoublePeriod.ReplaceAllString(text, ".")
	text = reDoubleComma.ReplaceAllString(text, ",")
	text = reSpaces.ReplaceAllString(text, " ")
	text = reSpaceBefore.ReplaceAllString(text, "$1")
	return strings.TrimSpace(strings.Trim(text, " .,!"))
}

// stripEchoOpener drops a fragment that parrots three or more of the
// prospect's words back, keeping only the question that follows it.
func stripEchoOpener(text, lastUser string) string {
	userWords := strings.Fields(strings.ToLower(lastUser))
	opening := strings.Fields(strings.ToLower(text))
	if len(opening) > echoWindow {
		opening = opening[:echoWindow]
	}
	head := strings.Join(opening, " ")
	for i := 0; i+3 <= len(userWords); i++ {
		if !strings.Contains(head, strings.Join(userWords[i:i+3], " ")) {
			continue
		}
		q := strings.Index(text, "?")
		if q < 0 {
			return text
		}
		cut := max(strings.LastIndex(text[:q], "."), strings.LastIndex(text[:q], "\n"))
		if cut > 0 {
			slog.Debug("speaker.Police: echo opener stripped")
			return strings.TrimSpace(text[cut+1:])
		}
		return text
	}
	return text
}

func capSentences(text string, limit int) string {
	var count int
	for _, s := range reSentenceEnd.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			count++
		}
	}
	if count <= limit {
		return text
	}
	slog.Debug("speaker.Police: trimming long response", "sentences", count, "limit", limit)
	sentences := reSentence.FindAllString(text, limit)
	if len(sentences) == 0 {
		return text
	}
	return strings.TrimSpace(strings.Join(sentences, ""))
}

func cleanWordCount(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		if len(w) > 1 || strings.EqualFold(w, "i") || strings.EqualFold(w, "a") {
			n++
		}
	}
	return n
}
