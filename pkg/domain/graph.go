package domain

// Well-known state names.
const (
	InitStateName     = "Init"
	FallbackStateName = "Default_Fallback"
)

// StateID is the index of a State inside its Graph.
type StateID int

// NoState marks an unset state reference.
const NoState StateID = -1

// ActionCall is an action invocation declared on a state.
// String arguments are templates filled from the session contexts at run time.
type ActionCall struct {
	Platform string `json:"platform" yaml:"platform"`
	Action   string `json:"action" yaml:"action"`
	Args     []any  `json:"args,omitempty" yaml:"args,omitempty"`
}

// Transition is an edge of the execution graph. A nil Guard is a wildcard.
type Transition struct {
	Guard  Guard
	Target StateID
}

// IsWildcard reports whether the transition accepts any event.
func (t *Transition) IsWildcard() bool {
	return t.Guard == nil
}

// State is a node of the execution graph.
type State struct {
	ID          StateID
	Name        string
	Transitions []Transition
	Actions     []ActionCall
	// StopOnError skips the remaining actions once one of them fails.
	StopOnError bool
}

// Graph is the static execution graph of a bot. It is read-only once loaded.
type Graph struct {
	States   []State
	Init     StateID
	Fallback StateID

	byName map[string]StateID
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Init:     NoState,
		Fallback: NoState,
		byName:   make(map[string]StateID),
	}
}

// AddState appends a state and returns its ID. Adding an existing name returns the existing ID.
// The states named Init and Default_Fallback become the graph's designated states.
func (g *Graph) AddState(name string) StateID {
	if g.byName == nil {
		g.reindex()
	}
	if id, ok := g.byName[name]; ok {
		return id
	}
	id := StateID(len(g.States))
	g.States = append(g.States, State{ID: id, Name: name})
	g.byName[name] = id
	switch name {
	case InitStateName:
		g.Init = id
	case FallbackStateName:
		g.Fallback = id
	}
	return id
}

// AddTransition appends a transition to the state identified by from.
func (g *Graph) AddTransition(from StateID, guard Guard, to StateID) {
	s := &g.States[from]
	s.Transitions = append(s.Transitions, Transition{Guard: guard, Target: to})
}

// AddAction appends an action call to the state identified by id.
func (g *Graph) AddAction(id StateID, call ActionCall) {
	s := &g.States[id]
	s.Actions = append(s.Actions, call)
}

// State returns the state with the given ID, or nil when out of range.
func (g *Graph) State(id StateID) *State {
	if id < 0 || int(id) >= len(g.States) {
		return nil
	}
	return &g.States[id]
}

// StateByName returns the state with the given name.
func (g *Graph) StateByName(name string) (*State, bool) {
	if g.byName == nil {
		g.reindex()
	}
	id, ok := g.byName[name]
	if !ok {
		return nil, false
	}
	return &g.States[id], true
}

// InitState returns the designated Init state, or nil.
func (g *Graph) InitState() *State {
	return g.State(g.Init)
}

// FallbackState returns the designated fallback state, or nil.
func (g *Graph) FallbackState() *State {
	return g.State(g.Fallback)
}

func (g *Graph) reindex() {
	g.byName = make(map[string]StateID, len(g.States))
	for i := range g.States {
		g.byName[g.States[i].Name] = StateID(i)
	}
}

// Bot is a complete, immutable bot definition.
type Bot struct {
	Name     string
	Graph    *Graph
	Intents  []*IntentDefinition
	Events   []*EventDefinition
	Entities []*EntityDefinition
}

// EventNames returns the names of every intent and event the bot declares.
func (b *Bot) EventNames() map[string]bool {
	names := make(map[string]bool, len(b.Intents)+len(b.Events)+1)
	names[DefaultFallbackIntentName] = true
	for _, i := range b.Intents {
		names[i.Name] = true
	}
	for _, e := range b.Events {
		names[e.Name] = true
	}
	return names
}

// Event returns the event or intent definition with the given name.
func (b *Bot) Event(name string) (*EventDefinition, bool) {
	for _, i := range b.Intents {
		if i.Name == name {
			return &i.EventDefinition, true
		}
	}
	for _, e := range b.Events {
		if e.Name == name {
			return e, true
		}
	}
	if name == DefaultFallbackIntentName {
		return &DefaultFallbackIntent.EventDefinition, true
	}
	return nil, false
}
