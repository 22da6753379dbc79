// Package reminders implements the context detection and resolution
// engine. A message is scanned for keyword hits (detection), the
// matched contexts are reduced to a single deterministic decision
// (resolution), and the decision's templates are rendered into reminder
// text (generation). All three stages are pure functions over the
// loaded configuration; a stateless probability gate then decides
// whether the rendered text is actually injected.
package reminders

import (
	"strings"

	"github.com/nugget/remora/internal/config"
)

// MatchedContext is a context definition tagged with its originating
// name. Produced per detection pass; never persisted.
type MatchedContext struct {
	Name string
	Def  config.ContextDefinition
}

// DetectContexts scans message for keyword hits and returns the matched
// contexts in configuration declaration order. The result is never
// empty: an empty message, or one matching no keywords, yields exactly
// the "default" context.
//
// Matching is a case-folded substring test. A context is included at
// most once no matter how many of its keywords appear; contexts without
// keywords are never auto-matched, and "default" is never matched by
// scanning — it is only the fallback.
func DetectContexts(message string, cfg *config.Config) []MatchedContext {
	if message == "" {
		return []MatchedContext{defaultContext(cfg)}
	}

	lowered := strings.ToLower(message)

	var matched []MatchedContext
	for _, name := range cfg.Contexts.Names() {
		if name == config.DefaultContextName {
			continue
		}
		def, _ := cfg.Contexts.Get(name)
		for _, kw := range def.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				matched = append(matched, MatchedContext{Name: name, Def: def})
				break
			}
		}
	}

	if len(matched) == 0 {
		return []MatchedContext{defaultContext(cfg)}
	}
	return matched
}

// defaultContext returns the fallback match. The loader guarantees the
// default context exists; behavior is undefined if that precondition
// was violated.
func defaultContext(cfg *config.Config) MatchedContext {
	def, _ := cfg.Contexts.Get(config.DefaultContextName)
	return MatchedContext{Name: config.DefaultContextName, Def: def}
}
