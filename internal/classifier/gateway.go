// Package classifier turns free text into structured intents using an LLM.
// Classify handles mailbox messages; Decide drives a chat turn.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

// maxInputRunes bounds the text sent for classification.
const maxInputRunes = 8000

// Config configures a Gateway.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Gateway calls the Anthropic Messages API. Every call is bounded by the
// configured timeout and is never retried.
type Gateway struct {
	client    anthropic.Client
	model     string
	timeout   time.Duration
	maxTokens int64
}

// New builds a Gateway.
func New(cfg Config) *Gateway {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Gateway{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		timeout:   timeout,
		maxTokens: maxTokens,
	}
}

// Classify returns the intent of text. Any failure is a *ClassificationError.
func (g *Gateway) Classify(ctx context.Context, text string) (domain.Intent, error) {
	ctx, span := otel.Tracer("classifier").Start(ctx, "Classify")
	defer span.End()

	reply, err := g.complete(ctx, classifySystemPrompt, clipRunes(text, maxInputRunes))
	if err != nil {
		span.RecordError(err)
		return domain.Intent{}, err
	}
	intent, err := ParseIntent(reply)
	if err != nil {
		span.RecordError(err)
		return domain.Intent{}, err
	}
	span.SetAttributes(attribute.String("intent.kind", string(intent.Kind)))
	return intent, nil
}

// ParseIntent validates a raw classifier reply.
func ParseIntent(reply string) (domain.Intent, error) {
	var raw struct {
		IntentType       string `json:"intent_type"`
		Category         string `json:"category"`
		Subcategory      string `json:"subcategory"`
		ShortDescription string `json:"short_description"`
		Priority         string `json:"priority"`
	}
	if err := decodeReply(reply, &raw); err != nil {
		return domain.Intent{}, err
	}
	kind := domain.IntentKind(strings.ToLower(strings.TrimSpace(raw.IntentType)))
	if !kind.Valid() {
		return domain.Intent{}, &ClassificationError{Reason: ReasonInvalid, Raw: preview(reply),
			Err: fmt.Errorf("unknown intent_type %q", raw.IntentType)}
	}
	return domain.Intent{
		Kind:             kind,
		Category:         strings.TrimSpace(raw.Category),
		Subcategory:      strings.TrimSpace(raw.Subcategory),
		ShortDescription: strings.TrimSpace(raw.ShortDescription),
		Priority:         normalizePriority(raw.Priority),
	}, nil
}

// Decide asks the model what to do with the latest chat message given the
// recent history. Any failure is a *ClassificationError.
func (g *Gateway) Decide(ctx context.Context, history []domain.Turn, message, requester string) (Decision, error) {
	ctx, span := otel.Tracer("classifier").Start(ctx, "Decide",
		trace.WithAttributes(attribute.Int("chat.history", len(history))))
	defer span.End()

	reply, err := g.complete(ctx, decideSystemPrompt, buildDecidePrompt(history, message, requester))
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}
	d, err := ParseDecision(reply)
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}
	span.SetAttributes(attribute.String("chat.decision", string(d.Type)))
	return d, nil
}

func buildDecidePrompt(history []domain.Turn, message, requester string) string {
	var b strings.Builder
	b.WriteString("Conversation history:\n")
	if len(history) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range history {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nCurrent user message: ")
	b.WriteString(message)
	b.WriteString("\n\nUser email: ")
	b.WriteString(requester)
	b.WriteString("\n\nRespond with ONLY the JSON object.")
	return b.String()
}

func (g *Gateway) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   g.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", g.timeout, err)
		}
		return "", &ClassificationError{Reason: ReasonTransport, Err: err}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func normalizePriority(p string) domain.Priority {
	switch v := domain.Priority(strings.ToLower(strings.TrimSpace(p))); v {
	case domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
		return v
	}
	return domain.PriorityMedium
}

func clipRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
