package domain

// EntityKind discriminates entity definitions.
type EntityKind string

const (
	EntityBase      EntityKind = "base"
	EntityMapping   EntityKind = "mapping"
	EntityComposite EntityKind = "composite"
)

// Base entity names understood by every recognizer.
const (
	BaseAny     = "any"
	BaseNumber  = "number"
	BaseInteger = "integer"
	BaseEmail   = "email"
	BaseURL     = "url"
	BaseCity    = "city"
	BaseDate    = "date"
)

// EntityReference points either at a base entity or at a registered custom entity.
// Exactly one of the two fields is expected to be set.
type EntityReference struct {
	Base   string `json:"base,omitempty" yaml:"base,omitempty" mapstructure:"base"`
	Custom string `json:"custom,omitempty" yaml:"custom,omitempty" mapstructure:"custom"`
	// Definition optionally carries the custom entity itself so that recognizers
	// can register it on demand.
	Definition *EntityDefinition `json:"-" yaml:"-" mapstructure:"-"`
}

// Name returns the referenced entity name.
func (r EntityReference) Name() string {
	if r.Custom != "" {
		return r.Custom
	}
	return r.Base
}

// IsBase reports whether the reference targets a base entity.
func (r EntityReference) IsBase() bool {
	return r.Custom == ""
}

// BaseRef is a shorthand for a reference to a base entity.
func BaseRef(name string) EntityReference {
	return EntityReference{Base: name}
}

// CustomRef is a shorthand for a reference to a custom entity.
func CustomRef(name string) EntityReference {
	return EntityReference{Custom: name}
}

// EntityRef references a custom entity and carries its definition.
func EntityRef(def *EntityDefinition) EntityReference {
	return EntityReference{Custom: def.Name, Definition: def}
}

// EntityDefinition is a reusable custom entity.
type EntityDefinition struct {
	Name      string           `json:"name" yaml:"name"`
	Kind      EntityKind       `json:"kind" yaml:"kind"`
	Entries   []MappingEntry   `json:"entries,omitempty" yaml:"entries,omitempty"`
	Composite []CompositeEntry `json:"composite,omitempty" yaml:"composite,omitempty"`
}

// MappingEntry is one reference value and its synonyms.
type MappingEntry struct {
	Value    string   `json:"value" yaml:"value"`
	Synonyms []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
}

// CompositeEntry is one accepted shape of a composite entity, as an ordered list of fragments.
type CompositeEntry struct {
	Fragments []EntityFragment `json:"fragments" yaml:"fragments"`
}

// EntityFragment is either literal text or a reference to another entity.
// Alias names the key of the extracted value; it defaults to the entity name.
type EntityFragment struct {
	Text   string           `json:"text,omitempty" yaml:"text,omitempty"`
	Entity *EntityReference `json:"entity,omitempty" yaml:"entity,omitempty"`
	Alias  string           `json:"alias,omitempty" yaml:"alias,omitempty"`
}

// Key returns the name under which the fragment's value is extracted.
func (f EntityFragment) Key() string {
	if f.Alias != "" {
		return f.Alias
	}
	if f.Entity != nil {
		return f.Entity.Name()
	}
	return ""
}

// ReferencedEntities returns the custom entity references used by a composite definition.
func (d *EntityDefinition) ReferencedEntities() []EntityReference {
	var refs []EntityReference
	for _, entry := range d.Composite {
		for _, frag := range entry.Fragments {
			if frag.Entity != nil && !frag.Entity.IsBase() {
				refs = append(refs, *frag.Entity)
			}
		}
	}
	return refs
}
