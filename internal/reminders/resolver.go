package reminders

import (
	"sort"
	"strings"

	"github.com/nugget/remora/internal/config"
)

// ResolvedDecision is the final, deduplicated output of resolution for
// one message. Ephemeral — recomputed per message.
type ResolvedDecision struct {
	// Templates holds one template name per distinct template type, in
	// the order the type groups were produced. Empty only when every
	// matched context's template reference was unresolvable.
	Templates []string
	// InjectionRate is the probability that the generated reminder is
	// injected: the maximum rate across the surviving contexts.
	InjectionRate float64
	// Context is a diagnostic label: the surviving context names joined
	// with "+". Opaque — not used for further logic.
	Context string
	// Temperature is the proposed sampling temperature, from the
	// highest-priority matched context that declares one, falling back
	// to the default context's. Nil when neither declares one.
	Temperature *float64
}

// ResolveContexts reduces a detection result to a single decision.
// Deterministic for a given input: matched contexts are ordered by
// priority descending with a stable sort, so equal priorities keep
// their detection order (configuration declaration order) — first
// declared wins on ties.
//
// Deduplication is by template type: each matched context's template
// reference is resolved to its type, and within a type only the first
// context in sorted order survives. Contexts whose template reference
// does not resolve are dropped entirely; that is not an error.
func ResolveContexts(matched []MatchedContext, cfg *config.Config) ResolvedDecision {
	if len(matched) == 0 {
		// Detection never returns an empty slice, but a direct caller
		// might. Fall back to the raw default context.
		def, _ := cfg.Contexts.Get(config.DefaultContextName)
		return ResolvedDecision{
			Templates:     []string{def.Template},
			InjectionRate: def.InjectionRate,
			Context:       config.DefaultContextName,
			Temperature:   def.Temperature,
		}
	}

	sorted := make([]MatchedContext, len(matched))
	copy(sorted, matched)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Def.Priority > sorted[j].Def.Priority
	})

	// Ordered type groups: insertion order is first-seen type in the
	// priority-sorted traversal, keeping resolution reproducible.
	type typeGroup struct {
		templateType string
		winner       MatchedContext
	}
	var groups []typeGroup
	seen := make(map[string]bool)
	for _, mc := range sorted {
		tmpl, ok := cfg.Templates[mc.Def.Template]
		if !ok {
			continue
		}
		if seen[tmpl.Type] {
			continue
		}
		seen[tmpl.Type] = true
		groups = append(groups, typeGroup{templateType: tmpl.Type, winner: mc})
	}

	var (
		templates []string
		names     []string
		rate      float64
	)
	for _, g := range groups {
		templates = append(templates, g.winner.Def.Template)
		names = append(names, g.winner.Name)
		if g.winner.Def.InjectionRate > rate {
			rate = g.winner.Def.InjectionRate
		}
	}

	return ResolvedDecision{
		Templates:     templates,
		InjectionRate: rate,
		Context:       strings.Join(names, "+"),
		Temperature:   resolveTemperature(sorted, cfg),
	}
}

// resolveTemperature picks the temperature from the highest-priority
// matched context that declares one, independently of template
// grouping. Falls back to the default context's temperature; nil when
// nothing declares one.
func resolveTemperature(sorted []MatchedContext, cfg *config.Config) *float64 {
	for _, mc := range sorted {
		if mc.Def.Temperature != nil {
			return mc.Def.Temperature
		}
	}
	if def, ok := cfg.Contexts.Get(config.DefaultContextName); ok {
		return def.Temperature
	}
	return nil
}
