// Package chat provides the Reply action input providers use to answer users.
package chat

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
)

// Name is the platform name used in action calls.
const Name = "Chat"

// Reply is the name of the reply action.
const Reply = "Reply"

// Platform answers users. Replies are action results; providers read them from the turn.
type Platform struct{}

// New creates the platform.
func New() *Platform {
	return &Platform{}
}

// Name implements action.Platform.
func (p *Platform) Name() string { return Name }

// Shutdown implements action.Platform; there is nothing to release.
func (p *Platform) Shutdown(ctx context.Context) error { return nil }

// Actions implements registry.Platform.
func (p *Platform) Actions() map[string]registry.Handler {
	return map[string]registry.Handler{
		Reply:         reply,
		"RandomReply": randomReply,
	}
}

// reply joins its already-filled arguments into one message.
func reply(ctx context.Context, sess *session.Session, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("reply needs a message")
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " "), nil
}

// randomReply picks one of its arguments.
func randomReply(ctx context.Context, sess *session.Session, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("random reply needs at least one message")
	}
	return fmt.Sprint(args[rand.IntN(len(args))]), nil
}

// Replies returns the messages sent by the chat platform during a turn, in order.
func Replies(turn *runtime.Turn) []string {
	if turn == nil {
		return nil
	}
	var out []string
	for _, a := range turn.Actions {
		if a.Call.Platform != Name || a.Result == nil || a.Result.IsError() {
			continue
		}
		if s, ok := a.Result.Result.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
