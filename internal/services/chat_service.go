package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"voltdesk/internal/catalog"
	"voltdesk/internal/logging"
	"voltdesk/internal/models"
	"voltdesk/internal/session"
)

// ChatOutcome is the result of processing one inbound chat message.
type ChatOutcome struct {
	SessionID    string
	Response     string
	MessageCount int
	// Suppressed means the message was a double submission; no response
	// should be sent.
	Suppressed bool
}

// ChatService orchestrates one chat turn: session resolution, context
// rendering, the responder round-trip, manual delegation, and persistence.
type ChatService struct {
	sessions  *session.Cache
	manuals   *ManualService
	responder Responder
	metrics   *Metrics
}

// NewChatService creates the chat orchestrator.
func NewChatService(sessions *session.Cache, manuals *ManualService, responder Responder, metrics *Metrics) *ChatService {
	return &ChatService{
		sessions:  sessions,
		manuals:   manuals,
		responder: responder,
		metrics:   metrics,
	}
}

// Sessions exposes the session cache for handlers needing direct access.
func (s *ChatService) Sessions() *session.Cache {
	return s.sessions
}

// Process handles one user message end to end and returns the assistant's
// response. Budget truncations and manual not-found outcomes are rendered as
// normal response content, never surfaced as failures.
func (s *ChatService) Process(ctx context.Context, sessionID, userText string) (*ChatOutcome, error) {
	start := time.Now()
	s.metrics.RecordChatRequest()

	store, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		s.metrics.RecordChatError("session_resolve")
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	stored, err := store.AddMessage(ctx, models.SenderUser, userText)
	if err != nil {
		s.metrics.RecordChatError("persist")
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	if !stored {
		// Double submission: the first copy already produced a response.
		return &ChatOutcome{SessionID: store.SessionID(), Suppressed: true}, nil
	}

	reply, err := s.responder.Reply(ctx, userText, store.DetailedContext())
	if err != nil {
		s.metrics.RecordChatError("responder")
		return nil, fmt.Errorf("responder failed: %w", err)
	}

	responseText := reply.Text
	if reply.Delegation != nil {
		responseText = s.handleDelegation(ctx, store, reply.Delegation, userText)
	}

	if _, err := store.AddMessage(ctx, models.SenderAssistant, responseText); err != nil {
		s.metrics.RecordChatError("persist")
		return nil, fmt.Errorf("failed to store response: %w", err)
	}

	s.metrics.RecordChatLatency(time.Since(start).Seconds())
	logging.WithSession(store.SessionID()).Info("chat turn completed",
		"latency_ms", time.Since(start).Milliseconds(),
		"delegated", reply.Delegation != nil)
	return &ChatOutcome{
		SessionID:    store.SessionID(),
		Response:     responseText,
		MessageCount: len(store.History()),
	}, nil
}

// handleDelegation acts on the responder's instruction. Unknown actions fall
// back to a clarification request; the instruction itself is never validated
// beyond picking a handler.
func (s *ChatService) handleDelegation(ctx context.Context, store *session.Store, d *Delegation, userText string) string {
	switch d.Action {
	case ActionFindManual, ActionProductSearch:
		return s.answerFromManual(ctx, store, d.Query, userText)
	case ActionQuickstart:
		// Quick-start answers come from the same manual, framed differently.
		return s.answerFromManual(ctx, store, d.Query,
			"Give me the quick-start steps for this product. "+userText)
	default:
		log.Printf("🤖 [CHAT] Unknown delegation action %q, asking for clarification", d.Action)
		return "Could you tell me the product's model number so I can look it up?"
	}
}

// answerFromManual locates and extracts the product's manual, records the
// product mention, and asks the responder to answer from the manual text.
func (s *ChatService) answerFromManual(ctx context.Context, store *session.Store, query, userText string) string {
	result, err := s.manuals.GetManualContent(ctx, query)
	switch {
	case errors.Is(err, catalog.ErrInvalidQuery):
		return "Could you tell me the product's name or model number?"
	case errors.Is(err, catalog.ErrNotFound):
		return fmt.Sprintf("I couldn't find a manual matching %q. Could you check the model number on the product label?", query)
	case errors.Is(err, ErrManualTimeout):
		return "Reading that manual is taking longer than expected. Please try again in a moment."
	case err != nil:
		s.metrics.RecordChatError("manual")
		log.Printf("❌ [CHAT] Manual lookup failed for %q: %v", query, err)
		return "Something went wrong while reading the manual. Please try again."
	}

	if err := store.AddProductMention(ctx, result.Record.Name, map[string]string{
		"model": result.Record.ModelNumber,
	}); err != nil {
		log.Printf("⚠️ [CHAT] Failed to record product mention: %v", err)
	}

	reply, err := s.responder.Reply(ctx, userText, renderManualContext(result))
	if err != nil {
		s.metrics.RecordChatError("responder")
		log.Printf("❌ [CHAT] Responder failed on manual follow-up: %v", err)
		return "I found the manual but couldn't process it. Please try again."
	}
	return reply.Text
}

// renderManualContext builds the second-pass context from extracted manual
// text. Truncation is disclosed in the context so the responder can mention
// incompleteness when relevant.
func renderManualContext(result *ManualResult) string {
	context := fmt.Sprintf("Manual for %s (%s):\n%s",
		result.Record.Name, result.Record.ModelNumber, result.Content)
	if result.Truncated {
		context += "\n[Note: the manual text above was truncated to fit processing budgets.]"
	}
	return context
}
