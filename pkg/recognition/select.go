package recognition

import (
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
)

// Candidate is an intent whose pattern (or classifier) accepted the input.
type Candidate struct {
	Intent *domain.IntentDefinition
	// Values holds extracted parameter values keyed by out-context, then parameter name.
	Values     map[string]map[string]any
	Confidence float64
}

// RequiredContexts returns the contexts that must be live for def to match:
// its declared in-contexts plus, for follow-up intents, the parent's follow context.
func RequiredContexts(def *domain.IntentDefinition) []string {
	req := def.InContexts
	if def.FollowUpOf != "" {
		follow := def.FollowUpOf + domain.FollowContextSuffix
		for _, name := range req {
			if name == follow {
				return req
			}
		}
		req = append(append([]string(nil), req...), follow)
	}
	return req
}

// Satisfied reports whether every required context of def is live in sess.
func Satisfied(def *domain.IntentDefinition, sess *session.Session) bool {
	for _, name := range RequiredContexts(def) {
		if !sess.Contexts().HasContext(name) {
			return false
		}
	}
	return true
}

// Select picks the winning candidate. Candidates with unsatisfied in-contexts are
// discarded. Among the rest, an intent with satisfied in-contexts beats one without,
// an intent enabled from the current state beats one that is not, and ties go to the
// first candidate. It returns nil when no candidate is eligible.
func Select(cands []Candidate, sess *session.Session) *Candidate {
	best, bestScore := -1, -1
	for i := range cands {
		def := cands[i].Intent
		if !Satisfied(def, sess) {
			continue
		}
		score := 0
		if len(RequiredContexts(def)) > 0 {
			score += 2
		}
		if sess.IsEnabled(def.Name) {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil
	}
	return &cands[best]
}

// NewInstance packages a candidate into an EventInstance. When withFollow is set,
// the instance also carries the follow context consumed by follow-up intents.
func NewInstance(c *Candidate, input string, withFollow bool) *domain.EventInstance {
	ev := &domain.EventInstance{
		Definition:   &c.Intent.EventDefinition,
		MatchedInput: input,
		Confidence:   c.Confidence,
	}
	for i := range c.Intent.OutContexts {
		def := &c.Intent.OutContexts[i]
		values := c.Values[def.Name]
		if values == nil {
			values = map[string]any{}
		}
		ev.OutContextInstances = append(ev.OutContextInstances, domain.ContextInstance{Definition: def, Values: values})
	}
	if withFollow {
		ev.OutContextInstances = append(ev.OutContextInstances, domain.ContextInstance{
			Definition: &domain.ContextDefinition{Name: c.Intent.FollowContextName(), Lifespan: domain.FollowContextLifespan},
			Values:     map[string]any{},
		})
	}
	return ev
}

// Fallback returns an instance of the Default Fallback Intent for input.
func Fallback(input string) *domain.EventInstance {
	return &domain.EventInstance{
		Definition:   &domain.DefaultFallbackIntent.EventDefinition,
		MatchedInput: input,
	}
}

// Commit writes the out-contexts of a recognized instance into the session.
// It must run after BeginTurn so the new contexts survive the current turn.
func Commit(sess *session.Session, ev *domain.EventInstance) error {
	for i := range ev.OutContextInstances {
		if err := sess.Contexts().SetContextInstance(&ev.OutContextInstances[i]); err != nil {
			return err
		}
	}
	return nil
}
