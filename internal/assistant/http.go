package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const systemPrompt = `You are a helpful and professional AI personal finance assistant. Your role is to analyze the user's financial data to answer their questions and provide actionable insights.
RULES:
1. Your knowledge is STRICTLY limited to the JSON data provided below. Do not use external knowledge.
2. You MUST respect the user's privacy. If the user asks about a data category that is NOT present in the provided JSON, state that you do not have access to that information and suggest they grant permission.
3. Provide clear, concise, and user-friendly answers.
4. Maintain the context of the conversation.`

// ErrEmptyReply is returned when the completion endpoint answers without text.
var ErrEmptyReply = errors.New("assistant returned an empty reply")

// HTTPBrain asks an OpenAI-compatible chat completions endpoint.
type HTTPBrain struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func NewHTTPBrain(url, apiKey, model string, timeout time.Duration) *HTTPBrain {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPBrain{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
}

func (b *HTTPBrain) Answer(ctx context.Context, req Request) (string, error) {
	messages, err := buildMessages(req)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(chatRequest{Model: b.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	res, err := b.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("assistant http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return "", ErrEmptyReply
		}
		return text, nil
	}
	text := strings.TrimSpace(extractText(obj))
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func buildMessages(req Request) ([]chatMessage, error) {
	data, err := json.MarshalIndent(req.Accessible, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal accessible data: %w", err)
	}

	messages := make([]chatMessage, 0, len(req.History)+2)
	messages = append(messages, chatMessage{
		Role:    "system",
		Content: systemPrompt + "\n---\nDATA: USER'S ACCESSIBLE FINANCIAL DATA\n" + string(data),
	})
	for _, turn := range req.History {
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Query})
	return messages, nil
}

// extractText reads chat-completions choices first, then flat text fields.
func extractText(obj map[string]any) string {
	if choices, ok := obj["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if msg, ok := choice["message"].(map[string]any); ok {
				if s, ok := msg["content"].(string); ok {
					return s
				}
			}
			if s, ok := choice["text"].(string); ok {
				return s
			}
		}
	}
	for _, k := range []string{"text", "output", "message", "reply"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
