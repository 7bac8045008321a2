package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Reply is the responder's answer to one user message: plain text, or a
// structured delegation instruction the responder wants the caller to act on.
// The instruction's semantics are never validated here; it is relayed as-is.
type Reply struct {
	Text       string
	Delegation *Delegation
}

// Delegation is a structured instruction emitted by the responder, e.g.
// "find this product's manual before answering".
type Delegation struct {
	Action string `json:"action"`
	Query  string `json:"query"`
}

// Delegation actions the responder may emit. Unknown actions are handled
// gracefully by the orchestrator, not rejected here.
const (
	ActionFindManual    = "find_manual"
	ActionProductSearch = "product_search"
	ActionQuickstart    = "quickstart"
)

// Responder produces an assistant reply from the user's text and a rendered
// session context string.
type Responder interface {
	Reply(ctx context.Context, userText, sessionContext string) (*Reply, error)
}

const systemPrompt = `You are a customer support assistant for a home appliance retailer.
Answer from the provided context when possible. If you need a product's manual
to answer, respond with exactly one JSON object on a single line:
{"action": "find_manual", "query": "<product name or model>"}
Otherwise answer the customer directly in their language.`

// OpenAIResponder talks to an OpenAI-compatible chat completions endpoint.
type OpenAIResponder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIResponder creates a responder for the configured endpoint.
func NewOpenAIResponder(baseURL, apiKey, model string, timeout time.Duration) *OpenAIResponder {
	return &OpenAIResponder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Reply sends the user text plus rendered context and parses the answer,
// surfacing an embedded delegation instruction when the model emits one.
func (r *OpenAIResponder) Reply(ctx context.Context, userText, sessionContext string) (*Reply, error) {
	reqBody, err := json.Marshal(chatCompletionRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "system", Content: "Session context:\n" + sessionContext},
			{Role: "user", Content: userText},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, truncateForLog(string(body)))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse completion response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("completion endpoint error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("completion response contained no choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	reply := &Reply{Text: content}
	if d := parseDelegation(content); d != nil {
		log.Printf("🤖 [ASSISTANT] Delegation: action=%s query=%q", d.Action, d.Query)
		reply.Delegation = d
	}
	return reply, nil
}

// parseDelegation extracts a single-line JSON instruction if that is the
// entire response. Anything else is ordinary text.
func parseDelegation(content string) *Delegation {
	if !strings.HasPrefix(content, "{") || !strings.HasSuffix(content, "}") {
		return nil
	}
	var d Delegation
	if err := json.Unmarshal([]byte(content), &d); err != nil || d.Action == "" {
		return nil
	}
	return &d
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
