package reminders

import (
	"strings"

	"github.com/nugget/remora/internal/config"
)

// contextPlaceholder is the literal token in template prompts replaced
// by the resolved context label. Only the first occurrence across the
// whole rendered output is substituted.
const contextPlaceholder = "{context}"

// GenerateReminder renders a resolved decision's template selection
// into final reminder text. Returns nil when the decision selected no
// templates, or when none of the selected names resolve — the caller
// treats nil as "no injection this turn", not as an error.
//
// Each selected template contributes one body (sequence prompts join
// with newlines); multiple bodies concatenate in selection order with a
// blank line between them. The {context} placeholder is then replaced
// exactly once, first occurrence only, across the combined text.
func GenerateReminder(resolved ResolvedDecision, cfg *config.Config) *string {
	if len(resolved.Templates) == 0 {
		return nil
	}

	var bodies []string
	for _, name := range resolved.Templates {
		tmpl, ok := cfg.Templates[name]
		if !ok {
			continue
		}
		bodies = append(bodies, tmpl.Prompt.Text())
	}
	if len(bodies) == 0 {
		return nil
	}

	text := strings.Join(bodies, "\n\n")
	text = strings.Replace(text, contextPlaceholder, resolved.Context, 1)
	return &text
}
