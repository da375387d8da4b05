package session

import (
	"fmt"
	"maps"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/statemachine"
)

// Session is one end-user conversation: identity, current state, contexts and
// free-form variables. It is not safe for concurrent use; the Manager serializes turns.
type Session struct {
	id        string
	state     *domain.State
	contexts  *ContextStore
	variables map[string]any
}

// New creates a session owning the given context store (a fresh one when nil).
func New(id string, contexts *ContextStore) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: session id is empty", domain.ErrInvalidArgument)
	}
	if contexts == nil {
		contexts = NewContextStore()
	}
	return &Session{
		id:        id,
		contexts:  contexts,
		variables: make(map[string]any),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state, nil until the session is initialized.
func (s *Session) State() *domain.State {
	return s.state
}

// Contexts returns the session's context store.
func (s *Session) Contexts() *ContextStore {
	return s.contexts
}

// SetState moves the session to state and marks every event referenced by its
// outgoing guards as enabled for the next turns.
func (s *Session) SetState(state *domain.State) {
	s.state = state
	for _, name := range statemachine.EnabledEvents(state) {
		_ = s.contexts.SetContext(domain.EnableContextPrefix+name, domain.EnableContextLifespan)
	}
}

// IsEnabled reports whether the named event is reachable from the current state.
func (s *Session) IsEnabled(event string) bool {
	return s.contexts.HasContext(domain.EnableContextPrefix + event)
}

// Store sets a session variable.
func (s *Session) Store(key string, value any) {
	s.variables[key] = value
}

// StoreList appends value to the list stored under key. A non-list value is replaced.
func (s *Session) StoreList(key string, value any) {
	list, _ := s.variables[key].([]any)
	s.variables[key] = append(list, value)
}

// Get returns a session variable.
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.variables[key]
	return v, ok
}

// Variables returns a copy of the session variables.
func (s *Session) Variables() map[string]any {
	return maps.Clone(s.variables)
}

// Merge copies the variables of other into s. Nested maps are merged recursively and
// conflicting scalar values are overridden; their keys are returned.
func (s *Session) Merge(other *Session) []string {
	if other == nil {
		return nil
	}
	return mergeValues(s.variables, other.variables, "")
}

func mergeValues(dst, src map[string]any, prefix string) []string {
	var conflicts []string
	for k, v := range src {
		existing, ok := dst[k]
		if !ok {
			dst[k] = copyValue(v)
			continue
		}
		dm, dIsMap := existing.(map[string]any)
		sm, sIsMap := v.(map[string]any)
		if dIsMap && sIsMap {
			dm = maps.Clone(dm)
			conflicts = append(conflicts, mergeValues(dm, sm, prefix+k+".")...)
			dst[k] = dm
			continue
		}
		conflicts = append(conflicts, prefix+k)
		dst[k] = copyValue(v)
	}
	return conflicts
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = copyValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = copyValue(vv)
		}
		return out
	default:
		return v
	}
}

// Snapshot returns the persistable form of the session.
func (s *Session) Snapshot() *domain.SessionSnapshot {
	snap := &domain.SessionSnapshot{
		ID:        s.id,
		Contexts:  s.contexts.Snapshot(),
		Variables: copyValue(s.variables).(map[string]any),
		UpdatedAt: time.Now(),
	}
	if s.state != nil {
		snap.StateName = s.state.Name
	}
	return snap
}

// Restore rebuilds a session from a snapshot, resolving its state in graph.
// The state is assigned without re-priming: enabled contexts are part of the snapshot.
func Restore(snap *domain.SessionSnapshot, graph *domain.Graph, contexts *ContextStore) (*Session, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: snapshot is nil", domain.ErrInvalidArgument)
	}
	s, err := New(snap.ID, contexts)
	if err != nil {
		return nil, err
	}
	if snap.StateName != "" {
		if graph == nil {
			return nil, domain.NewConfigurationError(snap.StateName, "cannot restore session '%s' without a graph", snap.ID)
		}
		state, ok := graph.StateByName(snap.StateName)
		if !ok {
			return nil, domain.NewConfigurationError(snap.StateName, "session '%s' references an unknown state", snap.ID)
		}
		s.state = state
	}
	s.contexts.Restore(snap.Contexts)
	if snap.Variables != nil {
		s.variables = copyValue(snap.Variables).(map[string]any)
	}
	return s, nil
}
