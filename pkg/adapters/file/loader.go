// Package file loads bot definitions from YAML or JSON files.
package file

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/dto"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultDebounce is how long Watch waits for a burst of file events to settle.
const DefaultDebounce = 100 * time.Millisecond

var baseEntities = map[string]bool{
	domain.BaseAny:     true,
	domain.BaseNumber:  true,
	domain.BaseInteger: true,
	domain.BaseEmail:   true,
	domain.BaseURL:     true,
	domain.BaseCity:    true,
	domain.BaseDate:    true,
}

// Loader implements ports.BotLoader and ports.Watchable for a definition file.
// JSON is accepted too, being a subset of YAML.
type Loader struct {
	Path     string
	Debounce time.Duration
	Logger   *slog.Logger
}

// NewLoader creates a loader for path.
func NewLoader(path string) *Loader {
	return &Loader{Path: path, Debounce: DefaultDebounce, Logger: logging.NewNop()}
}

// Load reads, decodes, compiles and validates the bot.
func (l *Loader) Load(ctx context.Context) (*domain.Bot, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bot definition: %w", err)
	}
	return Parse(data)
}

// Parse compiles a YAML document into a validated bot.
func Parse(data []byte) (*domain.Bot, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid yaml: %w", domain.ErrConfiguration, err)
	}

	var doc dto.Bot
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &doc,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	return Compile(&doc)
}

// Compile turns a decoded document into a validated bot.
func Compile(doc *dto.Bot) (*domain.Bot, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("%w: bot name is required", domain.ErrConfiguration)
	}
	b := dsl.New(doc.Name)
	var errs []error

	declared := make(map[string]bool, len(doc.Entities))
	for _, e := range doc.Entities {
		declared[e.Name] = true
	}
	ref := func(name string) (domain.EntityReference, error) {
		switch {
		case name == "":
			return domain.BaseRef(domain.BaseAny), nil
		case baseEntities[name]:
			return domain.BaseRef(name), nil
		case declared[name]:
			return domain.CustomRef(name), nil
		default:
			return domain.EntityReference{}, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, name)
		}
	}

	for _, e := range doc.Entities {
		def, err := compileEntity(e, ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.Entity(def)
	}

	for _, in := range doc.Intents {
		ib := b.Intent(in.Name).Train(in.Train...).Requires(in.Requires...)
		if in.FollowUpOf != "" {
			ib.FollowUpOf(in.FollowUpOf)
		}
		for _, c := range in.Contexts {
			ib.Context(c.Name, c.Lifespan)
			for _, p := range c.Params {
				r, err := ref(p.Entity)
				if err != nil {
					errs = append(errs, fmt.Errorf("intent '%s' parameter '%s': %w", in.Name, p.Name, err))
					continue
				}
				ib.Param(c.Name, p.Name, p.Fragment, r)
			}
		}
	}

	for _, ev := range doc.Events {
		var ctxs []domain.ContextDefinition
		for _, c := range ev.Contexts {
			cd := domain.ContextDefinition{Name: c.Name, Lifespan: c.Lifespan}
			for _, p := range c.Params {
				r, err := ref(p.Entity)
				if err != nil {
					errs = append(errs, fmt.Errorf("event '%s' parameter '%s': %w", ev.Name, p.Name, err))
					continue
				}
				cd.Parameters = append(cd.Parameters, domain.ContextParameter{Name: p.Name, TextFragment: p.Fragment, Entity: r})
			}
			ctxs = append(ctxs, cd)
		}
		b.Event(ev.Name, ctxs...)
	}

	for _, st := range doc.States {
		sb := b.State(st.Name)
		for _, a := range st.Actions {
			if err := compileAction(sb, a); err != nil {
				errs = append(errs, fmt.Errorf("state '%s': %w", st.Name, err))
			}
		}
		if st.StopOnError {
			sb.StopOnError()
		}
		for _, t := range st.Transitions {
			switch {
			case t.On != "" && t.Condition != "":
				sb.Branch(t.On, t.Condition, t.To)
			case t.On != "":
				sb.On(t.On, t.To)
			case t.Condition != "":
				sb.When(domain.Condition{Expr: t.Condition}, t.To)
			default:
				sb.Go(t.To)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	return b.Build()
}

func compileEntity(e dto.Entity, ref func(string) (domain.EntityReference, error)) (*domain.EntityDefinition, error) {
	def := &domain.EntityDefinition{Name: e.Name, Kind: domain.EntityKind(e.Kind)}
	switch def.Kind {
	case domain.EntityMapping:
		for _, m := range e.Entries {
			def.Entries = append(def.Entries, domain.MappingEntry{Value: m.Value, Synonyms: m.Synonyms})
		}
	case domain.EntityComposite:
		for _, c := range e.Composite {
			var entry domain.CompositeEntry
			for _, f := range c.Fragments {
				frag := domain.EntityFragment{Text: f.Text, Alias: f.Alias}
				if f.Entity != "" {
					r, err := ref(f.Entity)
					if err != nil {
						return nil, fmt.Errorf("entity '%s': %w", e.Name, err)
					}
					frag.Entity = &r
				}
				entry.Fragments = append(entry.Fragments, frag)
			}
			def.Composite = append(def.Composite, entry)
		}
	default:
		return nil, fmt.Errorf("entity '%s': unsupported kind '%s'", e.Name, e.Kind)
	}
	return def, nil
}

func compileAction(sb *dsl.StateBuilder, a dto.Action) error {
	switch {
	case a.Reply != "" && a.Do != "":
		return errors.New("action sets both reply and do")
	case a.Reply != "":
		sb.Reply(a.Reply)
	case a.Do != "":
		platform, action, ok := strings.Cut(a.Do, ".")
		if !ok || platform == "" || action == "" {
			return fmt.Errorf("action '%s' must be written Platform.Action", a.Do)
		}
		sb.Do(platform, action, a.Args...)
	default:
		return errors.New("empty action")
	}
	return nil
}

// Watch signals when the file is written or replaced. The parent directory is
// watched rather than the file, so saves done by renaming a temporary file over
// it are seen too. Events are debounced. The channel is closed when ctx ends.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	if _, err := os.Stat(l.Path); err != nil {
		return nil, fmt.Errorf("failed to stat bot definition: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	path := filepath.Clean(l.Path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	debounce := l.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := l.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	name := filepath.Base(path)

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer w.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Bot definition watcher error", "path", path, "err", err)
			case <-fire:
				fire = nil
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch, nil
}
