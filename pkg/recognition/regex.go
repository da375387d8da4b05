package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
)

const maxEntityDepth = 8

var basePatterns = map[string]string{
	domain.BaseAny:     `\S+`,
	domain.BaseCity:    `\S+`,
	domain.BaseNumber:  `-?\d+(?:[.,]\d+)?`,
	domain.BaseInteger: `-?\d+`,
	domain.BaseEmail:   `[^\s@]+@[^\s@]+\.[^\s@]+`,
	domain.BaseURL:     `https?://\S+`,
	domain.BaseDate:    `\d{4}-\d{2}-\d{2}|today|tomorrow|yesterday`,
}

// decoder turns the submatches of an entity, starting at its outer group, into a value.
type decoder func(sub []string) any

type slot struct {
	context string
	param   string
	group   int
	decode  decoder
}

type sentencePattern struct {
	re    *regexp.Regexp
	slots []slot
}

type compiledIntent struct {
	def      *domain.IntentDefinition
	patterns []sentencePattern
}

// RegexProvider matches input against patterns compiled from training sentences.
// Out-context parameter fragments become capture groups typed by their entity.
type RegexProvider struct {
	*Definitions

	mu       sync.RWMutex
	compiled map[string]*compiledIntent
}

// RegexOption configures a RegexProvider.
type RegexOption func(*regexOptions)

type regexOptions struct {
	config Config
	logger *slog.Logger
}

// WithConfig sets the session configuration applied by CreateSession.
func WithConfig(cfg Config) RegexOption {
	return func(o *regexOptions) {
		o.config = cfg
	}
}

// WithLogger configures the provider logger.
func WithLogger(logger *slog.Logger) RegexOption {
	return func(o *regexOptions) {
		o.logger = logger
	}
}

// NewRegexProvider creates an empty provider.
func NewRegexProvider(opts ...RegexOption) *RegexProvider {
	o := regexOptions{config: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	return &RegexProvider{
		Definitions: NewDefinitions(o.config, o.logger),
		compiled:    make(map[string]*compiledIntent),
	}
}

// RegisterIntentDefinition registers and compiles the intent. If one of its entities
// is not registered yet, compilation is deferred to the next TrainMLEngine.
func (p *RegexProvider) RegisterIntentDefinition(def *domain.IntentDefinition) error {
	if err := p.Definitions.RegisterIntentDefinition(def); err != nil {
		return err
	}
	ci, err := p.compileIntent(def)
	if err != nil {
		p.Logger().Debug("Deferring intent compilation", "intent", def.Name, "err", err)
		return nil
	}
	p.mu.Lock()
	if _, exists := p.compiled[def.Name]; !exists {
		p.compiled[def.Name] = ci
	}
	p.mu.Unlock()
	return nil
}

// DeleteIntentDefinition unregisters the intent and drops its patterns.
func (p *RegexProvider) DeleteIntentDefinition(def *domain.IntentDefinition) error {
	if err := p.Definitions.DeleteIntentDefinition(def); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.compiled, def.Name)
	p.mu.Unlock()
	return nil
}

// TrainMLEngine recompiles every registered intent against the current entity table.
// Previously trained intents are kept when one of them fails to compile.
func (p *RegexProvider) TrainMLEngine(ctx context.Context) error {
	if p.IsShutdown() {
		return fmt.Errorf("%w: cannot train", domain.ErrProviderShutdown)
	}
	fresh := make(map[string]*compiledIntent)
	var errs []error
	for _, def := range p.Intents() {
		if err := ctx.Err(); err != nil {
			return err
		}
		ci, err := p.compileIntent(def)
		if err != nil {
			errs = append(errs, fmt.Errorf("intent '%s': %w", def.Name, err))
			continue
		}
		fresh[def.Name] = ci
	}

	p.mu.Lock()
	for name, ci := range fresh {
		p.compiled[name] = ci
	}
	p.mu.Unlock()
	return errors.Join(errs...)
}

// GetIntent matches text against the trained intents.
func (p *RegexProvider) GetIntent(ctx context.Context, text string, sess *session.Session) (*domain.EventInstance, error) {
	if err := p.BeginTurn(text, sess); err != nil {
		return nil, err
	}
	input := strings.TrimSpace(text)

	var cands []Candidate
	p.mu.RLock()
	for _, def := range p.Intents() {
		ci, ok := p.compiled[def.Name]
		if !ok {
			continue
		}
		if values, ok := ci.match(input); ok {
			cands = append(cands, Candidate{Intent: def, Values: values, Confidence: 1})
		}
	}
	p.mu.RUnlock()

	best := Select(cands, sess)
	if best == nil {
		p.Logger().Debug("No intent matched", "session_id", sess.ID(), "input", input)
		return Fallback(text), nil
	}
	ev := NewInstance(best, text, p.HasFollowUps(best.Intent.Name))
	if err := Commit(sess, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Shutdown releases the compiled patterns.
func (p *RegexProvider) Shutdown(ctx context.Context) error {
	if !p.MarkShutdown() {
		return nil
	}
	p.mu.Lock()
	p.compiled = make(map[string]*compiledIntent)
	p.mu.Unlock()
	return nil
}

func (ci *compiledIntent) match(input string) (map[string]map[string]any, bool) {
	for _, sp := range ci.patterns {
		m := sp.re.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		values := make(map[string]map[string]any)
		for _, s := range sp.slots {
			if values[s.context] == nil {
				values[s.context] = make(map[string]any)
			}
			values[s.context][s.param] = s.decode(m[s.group:])
		}
		return values, true
	}
	return nil, false
}

type placement struct {
	start, end int
	context    string
	param      *domain.ContextParameter
}

func (p *RegexProvider) compileIntent(def *domain.IntentDefinition) (*compiledIntent, error) {
	ci := &compiledIntent{def: def}
	for _, sentence := range def.TrainingSentences {
		sp, err := p.compileSentence(def, sentence)
		if err != nil {
			return nil, err
		}
		ci.patterns = append(ci.patterns, sp)
	}
	return ci, nil
}

func (p *RegexProvider) compileSentence(def *domain.IntentDefinition, sentence string) (sentencePattern, error) {
	var places []placement
	for i := range def.OutContexts {
		ctxDef := &def.OutContexts[i]
		for j := range ctxDef.Parameters {
			param := &ctxDef.Parameters[j]
			if param.TextFragment == "" {
				continue
			}
			if idx := strings.Index(sentence, param.TextFragment); idx >= 0 {
				places = append(places, placement{idx, idx + len(param.TextFragment), ctxDef.Name, param})
			}
		}
	}
	sort.Slice(places, func(a, b int) bool { return places[a].start < places[b].start })

	var sb strings.Builder
	sb.WriteString(`(?i)^`)
	group := 1
	cursor := 0
	var slots []slot
	for _, pl := range places {
		if pl.start < cursor {
			// Overlapping fragments: the first one wins.
			continue
		}
		sb.WriteString(regexp.QuoteMeta(sentence[cursor:pl.start]))
		pattern, groups, dec, err := p.entityPattern(pl.param.Entity, 0)
		if err != nil {
			return sentencePattern{}, fmt.Errorf("parameter '%s': %w", pl.param.Name, err)
		}
		sb.WriteString(pattern)
		slots = append(slots, slot{context: pl.context, param: pl.param.Name, group: group, decode: dec})
		group += groups
		cursor = pl.end
	}
	sb.WriteString(regexp.QuoteMeta(sentence[cursor:]))
	sb.WriteString(`$`)

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return sentencePattern{}, fmt.Errorf("compile '%s': %w", sentence, err)
	}
	return sentencePattern{re: re, slots: slots}, nil
}

// entityPattern returns the capture pattern of an entity, the number of groups it
// opens and the decoder of its value.
func (p *RegexProvider) entityPattern(ref domain.EntityReference, depth int) (string, int, decoder, error) {
	if depth > maxEntityDepth {
		return "", 0, nil, fmt.Errorf("entity '%s' nests deeper than %d levels", ref.Name(), maxEntityDepth)
	}
	if ref.IsBase() {
		return basePattern(ref.Base)
	}

	ent, ok := p.Entity(ref.Custom)
	if !ok {
		return "", 0, nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, ref.Custom)
	}
	switch ent.Kind {
	case domain.EntityMapping:
		return mappingPattern(ent)
	case domain.EntityComposite:
		return p.compositePattern(ent, depth)
	default:
		return "", 0, nil, fmt.Errorf("%w: %s has unsupported kind '%s'", domain.ErrUnknownEntity, ent.Name, ent.Kind)
	}
}

func basePattern(name string) (string, int, decoder, error) {
	if name == "" {
		name = domain.BaseAny
	}
	pattern, ok := basePatterns[name]
	if !ok {
		return "", 0, nil, fmt.Errorf("%w: base entity '%s'", domain.ErrUnknownEntity, name)
	}
	dec := func(sub []string) any { return sub[0] }
	if name == domain.BaseNumber || name == domain.BaseInteger {
		dec = func(sub []string) any {
			f, err := strconv.ParseFloat(strings.ReplaceAll(sub[0], ",", "."), 64)
			if err != nil {
				return sub[0]
			}
			return f
		}
	}
	return "(" + pattern + ")", 1, dec, nil
}

func mappingPattern(ent *domain.EntityDefinition) (string, int, decoder, error) {
	lookup := make(map[string]string)
	var alts []string
	for _, e := range ent.Entries {
		for _, v := range append([]string{e.Value}, e.Synonyms...) {
			key := strings.ToLower(v)
			if _, dup := lookup[key]; dup || v == "" {
				continue
			}
			lookup[key] = e.Value
			alts = append(alts, v)
		}
	}
	if len(alts) == 0 {
		return "", 0, nil, fmt.Errorf("mapping entity '%s' has no values", ent.Name)
	}
	// Longest first so that "New York" wins over "New".
	sort.SliceStable(alts, func(a, b int) bool { return len(alts[a]) > len(alts[b]) })
	quoted := make([]string, len(alts))
	for i, a := range alts {
		quoted[i] = regexp.QuoteMeta(a)
	}
	dec := func(sub []string) any {
		if v, ok := lookup[strings.ToLower(sub[0])]; ok {
			return v
		}
		return sub[0]
	}
	return "(" + strings.Join(quoted, "|") + ")", 1, dec, nil
}

type compositeField struct {
	key    string
	offset int
	decode decoder
}

func (p *RegexProvider) compositePattern(ent *domain.EntityDefinition, depth int) (string, int, decoder, error) {
	if len(ent.Composite) == 0 {
		return "", 0, nil, fmt.Errorf("composite entity '%s' has no entries", ent.Name)
	}
	groups := 1
	var alts []string
	var entries [][]compositeField
	for _, entry := range ent.Composite {
		var sb strings.Builder
		var fields []compositeField
		for _, frag := range entry.Fragments {
			if frag.Entity == nil {
				sb.WriteString(regexp.QuoteMeta(frag.Text))
				continue
			}
			pattern, n, dec, err := p.entityPattern(*frag.Entity, depth+1)
			if err != nil {
				return "", 0, nil, err
			}
			sb.WriteString(pattern)
			fields = append(fields, compositeField{key: frag.Key(), offset: groups, decode: dec})
			groups += n
		}
		alts = append(alts, sb.String())
		entries = append(entries, fields)
	}

	dec := func(sub []string) any {
		for _, fields := range entries {
			if len(fields) == 0 || sub[fields[0].offset] == "" {
				continue
			}
			out := make(map[string]any, len(fields))
			for _, f := range fields {
				out[f.key] = f.decode(sub[f.offset:])
			}
			return out
		}
		return sub[0]
	}
	return "(" + strings.Join(alts, "|") + ")", groups, dec, nil
}
