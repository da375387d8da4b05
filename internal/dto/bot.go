// Package dto holds the serialized shape of a bot definition, as found in YAML or
// JSON files. It uses "mapstructure" tags so it can be decoded from any generic map.
package dto

// Bot is the top-level document.
type Bot struct {
	Name     string   `json:"name" mapstructure:"name"`
	Entities []Entity `json:"entities" mapstructure:"entities"`
	Intents  []Intent `json:"intents" mapstructure:"intents"`
	Events   []Event  `json:"events" mapstructure:"events"`
	States   []State  `json:"states" mapstructure:"states"`
}

// Entity is a custom mapping or composite entity.
type Entity struct {
	Name      string           `json:"name" mapstructure:"name"`
	Kind      string           `json:"kind" mapstructure:"kind"`
	Entries   []MappingEntry   `json:"entries" mapstructure:"entries"`
	Composite []CompositeEntry `json:"composite" mapstructure:"composite"`
}

type MappingEntry struct {
	Value    string   `json:"value" mapstructure:"value"`
	Synonyms []string `json:"synonyms" mapstructure:"synonyms"`
}

// CompositeEntry lists fragments in order. Each fragment sets either Text or Entity.
type CompositeEntry struct {
	Fragments []Fragment `json:"fragments" mapstructure:"fragments"`
}

type Fragment struct {
	Text   string `json:"text" mapstructure:"text"`
	Entity string `json:"entity" mapstructure:"entity"`
	Alias  string `json:"alias" mapstructure:"alias"`
}

// Intent declares training sentences and the contexts a match produces.
type Intent struct {
	Name       string    `json:"name" mapstructure:"name"`
	Train      []string  `json:"train" mapstructure:"train"`
	Requires   []string  `json:"requires" mapstructure:"requires"`
	FollowUpOf string    `json:"follow_up_of" mapstructure:"follow_up_of"`
	Contexts   []Context `json:"contexts" mapstructure:"contexts"`
}

// Event is a non-intent event sent by providers.
type Event struct {
	Name     string    `json:"name" mapstructure:"name"`
	Contexts []Context `json:"contexts" mapstructure:"contexts"`
}

type Context struct {
	Name     string  `json:"name" mapstructure:"name"`
	Lifespan int     `json:"lifespan" mapstructure:"lifespan"`
	Params   []Param `json:"params" mapstructure:"params"`
}

// Param is an out-context parameter. Entity names a base entity (any, number,
// date...) or a declared custom entity; it defaults to any.
type Param struct {
	Name     string `json:"name" mapstructure:"name"`
	Fragment string `json:"fragment" mapstructure:"fragment"`
	Entity   string `json:"entity" mapstructure:"entity"`
}

// State is one node of the execution graph.
type State struct {
	Name        string       `json:"name" mapstructure:"name"`
	Actions     []Action     `json:"actions" mapstructure:"actions"`
	StopOnError bool         `json:"stop_on_error" mapstructure:"stop_on_error"`
	Transitions []Transition `json:"transitions" mapstructure:"transitions"`
}

// Action is either a chat reply or a "Platform.Action" call with arguments.
type Action struct {
	Reply string `json:"reply" mapstructure:"reply"`
	Do    string `json:"do" mapstructure:"do"`
	Args  []any  `json:"args" mapstructure:"args"`
}

// Transition without On nor Condition is the wildcard transition.
type Transition struct {
	On        string `json:"on" mapstructure:"on"`
	Condition string `json:"condition" mapstructure:"condition"`
	To        string `json:"to" mapstructure:"to"`
}
