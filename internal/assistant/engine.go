// Package assistant produces replies to questions about a user's financial data. A disclosure
// gate always runs before any answer is produced, so a brain never sees a question about data
// the user has not shared.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/financeai/internal/conversation"
	"github.com/ent0n29/financeai/internal/finance"
	"github.com/ent0n29/financeai/internal/policy"
)

// Request is the input to a single assistant turn.
type Request struct {
	History    conversation.History
	Accessible finance.Record
	Query      string
}

// Response is the reply to a single turn.
type Response struct {
	Text string
	// Refused is set when the disclosure gate answered instead of the brain.
	Refused  bool
	Category string
}

// Brain answers a question that has already passed the disclosure gate.
type Brain interface {
	Answer(ctx context.Context, req Request) (string, error)
}

// BrainConfig controls brain construction.
type BrainConfig struct {
	Mode    string
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewBrain(cfg BrainConfig) (Brain, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "rules"
	}

	switch mode {
	case "rules":
		return NewRulesBrain(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("assistant HTTP url is required for http mode")
		}
		return NewHTTPBrain(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported assistant brain %q", cfg.Mode)
	}
}

// Engine runs the disclosure gate and, when nothing is refused, asks the brain.
type Engine struct {
	brain Brain
}

func NewEngine(brain Brain) *Engine {
	if brain == nil {
		brain = NewRulesBrain()
	}
	return &Engine{brain: brain}
}

func (e *Engine) Respond(ctx context.Context, req Request) (Response, error) {
	if d := gate(req); d.Refused {
		return Response{Text: d.Reply, Refused: true, Category: d.Category}, nil
	}
	text, err := e.brain.Answer(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text}, nil
}

// Reply is the complete rule-based answer for one turn: the disclosure gate followed by the
// canned answers. It has no side effects.
func Reply(history conversation.History, accessible finance.Record, query string) string {
	req := Request{History: history, Accessible: accessible, Query: query}
	if d := gate(req); d.Refused {
		return d.Reply
	}
	return cannedAnswer(query)
}

func gate(req Request) policy.DisclosureDecision {
	return policy.CheckDisclosure(req.Query, req.Accessible.Has)
}
