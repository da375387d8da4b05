// Package llm provides an intent recognition backend delegating classification to a
// chat-completion model.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/recognition"
	"github.com/aretw0/parley/pkg/session"
	"github.com/openai/openai-go"
)

// Completer sends one system and one user message to a model and returns its answer.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAICompleter implements Completer with the OpenAI Chat Completions API.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float64
}

// NewOpenAICompleter creates a completer. An empty model selects gpt-4o-mini.
func NewOpenAICompleter(client *openai.Client, model string) *OpenAICompleter {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAICompleter{client: client, model: model}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       c.model,
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Provider classifies input with a model, restricted to the registered intents.
// It shares the definitions table and in-context semantics of the regex provider.
type Provider struct {
	*recognition.Definitions

	completer Completer
	threshold float64
}

// Option configures a Provider.
type Option func(*options)

type options struct {
	config    recognition.Config
	logger    *slog.Logger
	threshold float64
}

// WithConfig sets the session configuration applied by CreateSession.
func WithConfig(cfg recognition.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithLogger configures the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithThreshold discards classifications below the given confidence.
func WithThreshold(t float64) Option {
	return func(o *options) {
		o.threshold = t
	}
}

// New creates a Provider backed by completer.
func New(completer Completer, opts ...Option) *Provider {
	o := options{config: recognition.DefaultConfig(), threshold: 0.5}
	for _, opt := range opts {
		opt(&o)
	}
	return &Provider{
		Definitions: recognition.NewDefinitions(o.config, o.logger),
		completer:   completer,
		threshold:   o.threshold,
	}
}

// TrainMLEngine validates that the provider can be used; the model needs no training.
func (p *Provider) TrainMLEngine(ctx context.Context) error {
	if p.IsShutdown() {
		return fmt.Errorf("%w: cannot train", domain.ErrProviderShutdown)
	}
	return ctx.Err()
}

// Shutdown marks the provider as unusable.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.MarkShutdown()
	return nil
}

type classification struct {
	Intent     string                    `json:"intent"`
	Confidence float64                   `json:"confidence"`
	Parameters map[string]map[string]any `json:"parameters"`
}

// GetIntent asks the model to classify text among the intents eligible in the session.
func (p *Provider) GetIntent(ctx context.Context, text string, sess *session.Session) (*domain.EventInstance, error) {
	if err := p.BeginTurn(text, sess); err != nil {
		return nil, err
	}

	var eligible []*domain.IntentDefinition
	for _, def := range p.Intents() {
		if recognition.Satisfied(def, sess) {
			eligible = append(eligible, def)
		}
	}
	if len(eligible) == 0 {
		return recognition.Fallback(text), nil
	}

	answer, err := p.completer.Complete(ctx, systemPrompt(eligible, sess), text)
	if err != nil {
		return nil, &domain.RecognitionError{Op: "get_intent", Err: err}
	}
	var cls classification
	if err := json.Unmarshal([]byte(extractJSON(answer)), &cls); err != nil {
		return nil, &domain.RecognitionError{Op: "get_intent", Err: fmt.Errorf("malformed classifier answer: %w", err)}
	}

	var chosen *domain.IntentDefinition
	for _, def := range eligible {
		if def.Name == cls.Intent {
			chosen = def
			break
		}
	}
	if chosen == nil || cls.Confidence < p.threshold {
		p.Logger().Debug("Classifier found no intent", "session_id", sess.ID(), "answer", cls.Intent, "confidence", cls.Confidence)
		return recognition.Fallback(text), nil
	}

	cand := recognition.Candidate{Intent: chosen, Values: filterValues(chosen, cls.Parameters), Confidence: cls.Confidence}
	ev := recognition.NewInstance(&cand, text, p.HasFollowUps(chosen.Name))
	if err := recognition.Commit(sess, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// filterValues keeps only the parameters the intent declares.
func filterValues(def *domain.IntentDefinition, raw map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, ctxDef := range def.OutContexts {
		for _, param := range ctxDef.Parameters {
			v, ok := raw[ctxDef.Name][param.Name]
			if !ok {
				continue
			}
			if out[ctxDef.Name] == nil {
				out[ctxDef.Name] = make(map[string]any)
			}
			out[ctxDef.Name][param.Name] = v
		}
	}
	return out
}

func systemPrompt(intents []*domain.IntentDefinition, sess *session.Session) string {
	var sb strings.Builder
	sb.WriteString("You classify user messages into exactly one intent.\n")
	sb.WriteString(`Answer with JSON only: {"intent": "<name or empty>", "confidence": <0..1>, "parameters": {"<context>": {"<parameter>": <value>}}}.`)
	sb.WriteString("\nIntents:\n")
	for _, def := range intents {
		fmt.Fprintf(&sb, "- %s", def.Name)
		if sess.IsEnabled(def.Name) {
			sb.WriteString(" (expected next)")
		}
		sb.WriteString("\n")
		for _, s := range def.TrainingSentences {
			fmt.Fprintf(&sb, "  example: %q\n", s)
		}
		for _, c := range def.OutContexts {
			for _, param := range c.Parameters {
				fmt.Fprintf(&sb, "  parameter %s.%s (%s), e.g. %q\n", c.Name, param.Name, param.Entity.Name(), param.TextFragment)
			}
		}
	}
	return sb.String()
}

// extractJSON trims code fences and prose around the first JSON object of s.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
