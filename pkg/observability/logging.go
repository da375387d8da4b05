package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/parley/pkg/domain"
)

// LogHooks returns lifecycle hooks writing one structured record per event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	turn := func(msg string) func(context.Context, *domain.TurnEvent) {
		return func(ctx context.Context, e *domain.TurnEvent) {
			logger.InfoContext(ctx, msg,
				"session_id", e.SessionID,
				"event", e.Event,
				"from", e.From,
				"to", e.To,
			)
		}
	}
	return domain.LifecycleHooks{
		OnSessionInit:      turn("session_init"),
		OnIntentRecognized: turn("intent_recognized"),
		OnTransition:       turn("transition"),
		OnNoMatch: func(ctx context.Context, e *domain.TurnEvent) {
			logger.WarnContext(ctx, "no_match", "session_id", e.SessionID, "event", e.Event, "state", e.From, "input", e.Input)
		},
		OnActionReturn: func(ctx context.Context, e *domain.ActionEvent) {
			level := slog.LevelInfo
			if e.IsError {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "action_return",
				"session_id", e.SessionID,
				"state", e.State,
				"platform", e.Platform,
				"action", e.Action,
				"duration", e.Duration,
				"is_error", e.IsError,
			)
		},
	}
}
