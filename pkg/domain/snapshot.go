package domain

import "time"

// ContextSnapshot is the persisted form of one live context.
type ContextSnapshot struct {
	Lifespan int            `json:"lifespan"`
	Values   map[string]any `json:"values"`
}

// SessionSnapshot is the persisted form of a session between turns.
// Deferred context values are not persisted.
type SessionSnapshot struct {
	ID        string                     `json:"id"`
	StateName string                     `json:"state,omitempty"`
	Contexts  map[string]ContextSnapshot `json:"contexts,omitempty"`
	Variables map[string]any             `json:"variables,omitempty"`
	UpdatedAt time.Time                  `json:"updated_at"`
}
