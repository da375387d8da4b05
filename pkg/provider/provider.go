// Package provider defines the contract of input providers: long-running components
// that receive user input from a channel (terminal, webhook, MCP) and feed it to the runtime.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/platforms/chat"
	"github.com/aretw0/parley/pkg/recognition"
	"github.com/aretw0/parley/pkg/session"
)

// Sink is the runtime surface providers talk to.
type Sink interface {
	// SendEventInstance queues a recognized event for the session.
	SendEventInstance(ctx context.Context, ev *domain.EventInstance, sess *session.Session) (<-chan runtime.Result, error)
	// SendText queues raw text; recognition runs in the session's turn.
	SendText(ctx context.Context, sessionID, text string) (<-chan runtime.Result, error)
	// Session returns the initialized session for the ID.
	Session(ctx context.Context, id string) (*session.Session, error)
	Recognizer() recognition.Provider
	Bot() *domain.Bot
}

// InputProvider is a source of user input. Run blocks until ctx is cancelled or
// Close is called.
type InputProvider interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
	Close() error
}

// Wait blocks until the queued turn completes or ctx ends.
func Wait(ctx context.Context, ch <-chan runtime.Result) (*runtime.Turn, error) {
	select {
	case res := <-ch:
		return res.Turn, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Chat sanitizes text, sends it for the session and returns the bot's replies.
// An unmatched input is not an error: the replies are those of the fallback state.
func Chat(ctx context.Context, sink Sink, sessionID, text string) ([]string, error) {
	text, err := SanitizeInput(text)
	if err != nil {
		return nil, err
	}
	ch, err := sink.SendText(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}
	turn, err := Wait(ctx, ch)
	if err != nil && !errors.Is(err, domain.ErrNoTransition) {
		return chat.Replies(turn), err
	}
	return chat.Replies(turn), nil
}

// SendEvent queues the named event of the bot for the session. Values are keyed by
// out-context, then parameter; contexts the event does not declare are rejected.
func SendEvent(ctx context.Context, sink Sink, sessionID, name string, values map[string]map[string]any) (<-chan runtime.Result, error) {
	def, ok := sink.Bot().Event(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown event '%s'", domain.ErrInvalidArgument, name)
	}
	ev := domain.NewEvent(def)
	for i := range def.OutContexts {
		c := &def.OutContexts[i]
		v := values[c.Name]
		if v == nil {
			v = map[string]any{}
		}
		ev.OutContextInstances = append(ev.OutContextInstances, domain.ContextInstance{Definition: c, Values: v})
	}
	for name := range values {
		if ev.OutContext(name) == nil {
			return nil, fmt.Errorf("%w: event '%s' has no context '%s'", domain.ErrInvalidArgument, def.Name, name)
		}
	}

	sess, err := sink.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sink.SendEventInstance(ctx, ev, sess)
}
