package domain

// DefaultContextLifespan is used when a context definition does not declare one.
const DefaultContextLifespan = 5

// FollowContextSuffix names the context a parent intent emits for its follow-ups.
const FollowContextSuffix = "_follow"

// FollowContextLifespan is the lifespan of follow-up contexts.
const FollowContextLifespan = 2

// EnableContextPrefix prefixes the contexts marking an event as reachable from the current state.
const EnableContextPrefix = "Enable"

// EnableContextLifespan is the lifespan of enabled-event contexts.
const EnableContextLifespan = 2

// DefaultFallbackIntentName is the name of the sentinel returned when nothing matches.
const DefaultFallbackIntentName = "Default_Fallback_Intent"

// DefaultFallbackIntent is the well-known definition returned when no registered intent matches.
var DefaultFallbackIntent = &IntentDefinition{
	EventDefinition: EventDefinition{Name: DefaultFallbackIntentName},
}

// EventDefinition is a named event a bot reacts to.
type EventDefinition struct {
	Name        string              `json:"name" yaml:"name"`
	OutContexts []ContextDefinition `json:"out_contexts,omitempty" yaml:"out_contexts,omitempty"`
}

// IntentDefinition is an event recognized from user text.
type IntentDefinition struct {
	EventDefinition   `yaml:",inline"`
	TrainingSentences []string `json:"training_sentences,omitempty" yaml:"training_sentences,omitempty"`
	// InContexts must all be live in the session for the intent to be matchable.
	InContexts []string `json:"in_contexts,omitempty" yaml:"in_contexts,omitempty"`
	// FollowUpOf names the parent intent, if any.
	FollowUpOf string `json:"follow_up_of,omitempty" yaml:"follow_up_of,omitempty"`
}

// FollowContextName returns the context emitted by this intent for its follow-ups.
func (d *IntentDefinition) FollowContextName() string {
	return d.Name + FollowContextSuffix
}

// ContextDefinition declares a context produced when an event is matched.
type ContextDefinition struct {
	Name       string             `json:"name" yaml:"name"`
	Lifespan   int                `json:"lifespan,omitempty" yaml:"lifespan,omitempty"`
	Parameters []ContextParameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// EffectiveLifespan returns the declared lifespan, or the default one.
func (c *ContextDefinition) EffectiveLifespan() int {
	if c.Lifespan <= 0 {
		return DefaultContextLifespan
	}
	return c.Lifespan
}

// ContextParameter binds a fragment of the training sentences to an entity.
type ContextParameter struct {
	Name         string          `json:"name" yaml:"name"`
	TextFragment string          `json:"text_fragment" yaml:"text_fragment"`
	Entity       EntityReference `json:"entity" yaml:"entity"`
}

// ContextInstance is a context produced by a match, with its extracted parameter values.
// Values are strings, float64 numbers, or map[string]any for composite entities.
type ContextInstance struct {
	Definition *ContextDefinition `json:"definition"`
	Values     map[string]any     `json:"values"`
}

// Name returns the name of the instantiated context.
func (c *ContextInstance) Name() string {
	if c.Definition == nil {
		return ""
	}
	return c.Definition.Name
}

// Value returns the value of the named parameter.
func (c *ContextInstance) Value(name string) (any, bool) {
	v, ok := c.Values[name]
	return v, ok
}

// EventInstance is a recognized intent or a raw event, created once per recognition
// and never mutated afterwards.
type EventInstance struct {
	Definition          *EventDefinition  `json:"definition"`
	MatchedInput        string            `json:"matched_input,omitempty"`
	Confidence          float64           `json:"confidence"`
	OutContextInstances []ContextInstance `json:"out_contexts,omitempty"`
}

// Name returns the name of the matched definition.
func (e *EventInstance) Name() string {
	if e == nil || e.Definition == nil {
		return ""
	}
	return e.Definition.Name
}

// IsFallback reports whether the instance is the Default Fallback Intent.
func (e *EventInstance) IsFallback() bool {
	return e.Name() == DefaultFallbackIntentName
}

// OutContext returns the out-context instance with the given name, or nil.
func (e *EventInstance) OutContext(name string) *ContextInstance {
	for i := range e.OutContextInstances {
		if e.OutContextInstances[i].Name() == name {
			return &e.OutContextInstances[i]
		}
	}
	return nil
}

// NewEvent creates an instance of a non-textual event with no out-context values.
func NewEvent(def *EventDefinition) *EventInstance {
	return &EventInstance{Definition: def, Confidence: 1}
}

// Future is a context value computed asynchronously. Readers wait for it up to the
// session's variable timeout.
type Future <-chan any
