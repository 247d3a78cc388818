package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/skincare-picker/internal/domain"
)

// User-facing chat strings.
const (
	ThinkingText        = "Thinking..."
	GeneratingText      = "Generating your personalized routine..."
	EmptyQuestionText   = "Please enter a question."
	EmptySelectionText  = "Please select at least one product to generate a routine."
	FallbackText        = "Sorry, something went wrong. Please try again."
	AskErrorText        = "Sorry, I couldn't reach the assistant. Please try again."
	RoutineErrorText    = "Error: Could not generate routine."
	routineIntroduction = "Here are the selected products:\n"
)

const askSystemPrompt = "You are a friendly skincare advisor. Answer questions about skincare products, " +
	"ingredients and routines clearly and briefly for a beginner. " +
	"If a question is not about skincare or beauty, politely say you can only help with skincare."

const routineSystemPrompt = "You are a skincare expert. Create a simple, step-by-step skincare routine " +
	"using only the provided products. Explain the order and purpose of each product in a friendly, beginner way."

// Controller runs the question and routine flows of one session.
type Controller struct {
	userID     string
	completer  Completer
	log        *Log
	timeout    time.Duration
	transcript TranscriptLogger
}

// ControllerConfig holds the collaborators of a Controller.
type ControllerConfig struct {
	UserID     string
	Completer  Completer
	Log        *Log
	Timeout    time.Duration
	Transcript TranscriptLogger
}

// NewController creates a controller. A nil Log gets a fresh one and a nil
// Transcript discards entries.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Log == nil {
		cfg.Log = NewLog()
	}
	if cfg.Transcript == nil {
		cfg.Transcript = noopTranscript{}
	}
	if cfg.Completer == nil {
		cfg.Completer = Disabled()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Controller{
		userID:     cfg.UserID,
		completer:  cfg.Completer,
		log:        cfg.Log,
		timeout:    cfg.Timeout,
		transcript: cfg.Transcript,
	}
}

// Log returns the session's bubble log.
func (c *Controller) Log() *Log {
	return c.log
}

// Ask answers a free-form question. It returns the bubble that settled the
// request: the guidance bubble for blank input, otherwise the resolved
// placeholder. A placeholder dropped by a newer routine request comes back
// still pending.
func (c *Controller) Ask(ctx context.Context, question string) domain.Bubble {
	question = strings.TrimSpace(question)
	if question == "" {
		return c.log.Append(domain.RoleAssistant, EmptyQuestionText)
	}

	c.log.Append(domain.RoleUser, question)
	pending := c.log.AppendPending(ThinkingText)
	c.record(TranscriptEntry{Kind: KindQuestion, Content: question})

	reply, err := c.complete(ctx, []Message{
		SystemMessage(askSystemPrompt),
		UserMessage(question),
	})
	text := replyText(reply, err, AskErrorText)
	if err != nil {
		slog.Warn("Assistant request failed", "user_id", c.userID, "flow", "ask", "error", err)
	}
	c.record(TranscriptEntry{Kind: KindAnswer, Content: text, Failed: err != nil})

	return c.settle(pending, domain.RoleAssistant, text)
}

// GenerateRoutine asks for a routine built from items. A non-empty request
// clears the log first, so replies to earlier requests are dropped.
func (c *Controller) GenerateRoutine(ctx context.Context, items []domain.Product) domain.Bubble {
	if len(items) == 0 {
		return c.log.Append(domain.RoleAssistant, EmptySelectionText)
	}

	payload, err := RoutinePayload(items)
	if err != nil {
		slog.Error("Failed to encode routine payload", "user_id", c.userID, "error", err)
		return c.log.Append(domain.RoleRoutine, RoutineErrorText)
	}

	c.log.Reset()
	pending := c.log.AppendPending(GeneratingText)
	c.record(TranscriptEntry{Kind: KindRoutineRequest, Content: payload})

	reply, err := c.complete(ctx, []Message{
		SystemMessage(routineSystemPrompt),
		UserMessage(payload),
	})
	text := replyText(reply, err, RoutineErrorText)
	if err != nil {
		slog.Warn("Assistant request failed", "user_id", c.userID, "flow", "routine", "error", err)
	}
	c.record(TranscriptEntry{Kind: KindRoutine, Content: text, Failed: err != nil})

	return c.settle(pending, domain.RoleRoutine, text)
}

// RoutinePayload renders the user message of a routine request. The image
// URL is not sent.
func RoutinePayload(items []domain.Product) (string, error) {
	routine := make([]domain.RoutineItem, len(items))
	for i, p := range items {
		routine[i] = p.RoutineItem()
	}
	data, err := json.MarshalIndent(routine, "", "  ")
	if err != nil {
		return "", err
	}
	return routineIntroduction + string(data), nil
}

func (c *Controller) complete(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.completer.Complete(ctx, messages)
}

// settle applies text to the pending bubble. When a newer request already
// dropped the bubble, the reply is discarded and the pending bubble is
// returned as it was, so callers can tell it never reached the log.
func (c *Controller) settle(pending domain.Bubble, role domain.Role, text string) domain.Bubble {
	dropped := pending
	dropped.Token = ""
	if !c.log.Resolve(pending.ID, pending.Token, role, text) {
		slog.Info("Dropping stale assistant reply", "user_id", c.userID, "bubble_id", pending.ID)
		return dropped
	}
	resolved := dropped
	resolved.Role, resolved.Text = role, text
	return resolved
}

func (c *Controller) record(e TranscriptEntry) {
	e.UserID = c.userID
	c.transcript.Record(e)
}

func replyText(reply string, err error, failure string) string {
	switch {
	case err == nil:
		return reply
	case errors.Is(err, ErrEmptyReply):
		return FallbackText
	default:
		return failure
	}
}
