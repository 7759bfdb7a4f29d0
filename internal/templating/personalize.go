package templating

import (
	"fmt"
	"regexp"
	"strings"
)

// PersonalizeStatus is the tri-state outcome of an entity resolution pass.
type PersonalizeStatus string

const (
	PersonalizeSuccess PersonalizeStatus = "success"
	PersonalizePartial PersonalizeStatus = "partial_success"
	PersonalizeFailed  PersonalizeStatus = "failed"
)

// Record is one already-fetched entity row, keyed by column name.
type Record map[string]any

// PersonalizeResult reports the rendered text together with every
// placeholder that could not be resolved. Unresolved placeholders are left
// verbatim in the text rather than blanked.
type PersonalizeResult struct {
	Status     PersonalizeStatus `json:"status"`
	Text       string            `json:"text"`
	Unresolved []string          `json:"unresolved"`
}

// entityRef matches {{entity.field}} with an optional pipe chain, e.g.
// {{appt.start_time|date:MMMM Do|default:soon}}.
var entityRef = regexp.MustCompile(`\{\{(\w+)\.(\w+)((?:\|[^}|]+)*)\}\}`)

// Personalize resolves entity-scoped placeholders ({{contact.first_name}},
// {{case.case_number}}, {{appt.start_time}}) against the supplied records.
// Pipe modifiers: date:<format> (also time:, datetime:), default:<value>,
// and the text transforms upper, lower, title. With strict set, any
// unresolved placeholder fails the whole pass; otherwise the result is
// partial_success.
func Personalize(text string, records map[string]Record, strict bool) PersonalizeResult {
	var unresolved []string

	out := entityRef.ReplaceAllStringFunc(text, func(match string) string {
		groups := entityRef.FindStringSubmatch(match)
		entity, field, pipes := groups[1], groups[2], groups[3]

		rec, known := records[entity]
		if !known {
			// Not an entity this pass resolves; leave for other resolvers.
			return match
		}

		var format, def string
		var hasDefault bool
		var transforms []string
		for _, part := range strings.Split(pipes, "|") {
			switch {
			case part == "":
			case strings.HasPrefix(part, "date:"), strings.HasPrefix(part, "time:"), strings.HasPrefix(part, "datetime:"):
				format = part[strings.Index(part, ":")+1:]
			case strings.HasPrefix(part, "default:"):
				def = strings.TrimPrefix(part, "default:")
				hasDefault = true
			case part == "upper" || part == "lower" || part == "title":
				transforms = append(transforms, part)
			}
		}

		value, ok := rec[field]
		if !ok || value == nil {
			if hasDefault {
				return def
			}
			unresolved = append(unresolved, match)
			return match
		}

		rendered := fmt.Sprintf("%v", value)
		if format != "" {
			formatted, ok := FormatDate(value, format)
			if !ok {
				if hasDefault {
					return def
				}
				unresolved = append(unresolved, match)
				return match
			}
			rendered = formatted
		}

		for _, tr := range transforms {
			rendered = applyTransform(rendered, tr)
		}
		return rendered
	})

	status := PersonalizeSuccess
	if len(unresolved) > 0 {
		if strict {
			status = PersonalizeFailed
		} else {
			status = PersonalizePartial
		}
	}

	return PersonalizeResult{Status: status, Text: out, Unresolved: unresolved}
}

func applyTransform(s, name string) string {
	switch name {
	case "upper":
		return strings.ToUpper(s)
	case "lower":
		return strings.ToLower(s)
	case "title":
		words := strings.Fields(s)
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
		return strings.Join(words, " ")
	}
	return s
}
