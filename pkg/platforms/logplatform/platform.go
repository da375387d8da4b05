// Package logplatform provides actions writing bot messages to the structured log.
package logplatform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
)

// Name is the platform name used in action calls.
const Name = "Log"

// Platform logs messages at info, warning and error level.
type Platform struct {
	logger *slog.Logger
}

// New creates the platform. A nil logger discards everything.
func New(logger *slog.Logger) *Platform {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Platform{logger: logger.With("platform", Name)}
}

// Name implements action.Platform.
func (p *Platform) Name() string { return Name }

// Shutdown implements action.Platform; there is nothing to release.
func (p *Platform) Shutdown(ctx context.Context) error { return nil }

// Actions implements registry.Platform.
func (p *Platform) Actions() map[string]registry.Handler {
	return map[string]registry.Handler{
		"Info":    p.handler(slog.LevelInfo),
		"Warning": p.handler(slog.LevelWarn),
		"Error":   p.handler(slog.LevelError),
	}
}

func (p *Platform) handler(level slog.Level) registry.Handler {
	return func(ctx context.Context, sess *session.Session, args []any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("log action needs a message")
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		msg := strings.Join(parts, " ")
		p.logger.Log(ctx, level, msg, "session_id", sess.ID())
		return msg, nil
	}
}
