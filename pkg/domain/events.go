package domain

import (
	"context"
	"time"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventSessionInit      EventType = "session_init"
	EventIntentRecognized EventType = "intent_recognized"
	EventTransition       EventType = "transition"
	EventNoMatch          EventType = "no_match"
	EventActionInvoke     EventType = "action_invoke"
	EventActionReturn     EventType = "action_return"
)

// EventBase contains common fields for all lifecycle events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// TurnEvent describes a session moving (or failing to move) between states.
type TurnEvent struct {
	EventBase
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Event string `json:"event"`
	Input string `json:"input,omitempty"`
}

// ActionEvent describes one action invocation.
type ActionEvent struct {
	EventBase
	State    string        `json:"state"`
	Platform string        `json:"platform"`
	Action   string        `json:"action"`
	Args     []any         `json:"args,omitempty"`
	Output   any           `json:"output,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	IsError  bool          `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for runtime observability.
type LifecycleHooks struct {
	OnSessionInit      func(context.Context, *TurnEvent)
	OnIntentRecognized func(context.Context, *TurnEvent)
	OnTransition       func(context.Context, *TurnEvent)
	OnNoMatch          func(context.Context, *TurnEvent)
	OnActionInvoke     func(context.Context, *ActionEvent)
	OnActionReturn     func(context.Context, *ActionEvent)
}

// Merge returns hooks calling h first, then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnSessionInit:      chainTurn(h.OnSessionInit, other.OnSessionInit),
		OnIntentRecognized: chainTurn(h.OnIntentRecognized, other.OnIntentRecognized),
		OnTransition:       chainTurn(h.OnTransition, other.OnTransition),
		OnNoMatch:          chainTurn(h.OnNoMatch, other.OnNoMatch),
		OnActionInvoke:     chainAction(h.OnActionInvoke, other.OnActionInvoke),
		OnActionReturn:     chainAction(h.OnActionReturn, other.OnActionReturn),
	}
}

func chainTurn(a, b func(context.Context, *TurnEvent)) func(context.Context, *TurnEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *TurnEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainAction(a, b func(context.Context, *ActionEvent)) func(context.Context, *ActionEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *ActionEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
