package templating

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Env exposes the fixed environment helpers available to templates as
// env.now, env.executionId and env.stepNumber. Unknown env keys resolve
// to nothing.
type Env struct {
	ExecutionID int64
	StepNumber  int
	Now         time.Time // zero value means wall clock
}

// Scope is the layered variable space a template is resolved against.
// Variables has the highest priority and includes the execution's
// initiation data; This is the current step's live output.
type Scope struct {
	Variables map[string]any
	This      any
	Env       Env
}

// Resolve substitutes every {{...}} expression in template against the
// scope. Strings are scanned for placeholders, slices and maps are walked
// recursively, all other values pass through untouched. Unresolved keys
// substitute to the empty string.
func Resolve(template any, scope *Scope) any {
	switch v := template.(type) {
	case string:
		return resolveString(v, scope)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Resolve(item, scope)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Resolve(item, scope)
		}
		return out
	default:
		return template
	}
}

// resolveString substitutes placeholders inside one string. When the whole
// string is a single placeholder the resolved value keeps its type, so
// templates can pass structured data through; embedded placeholders are
// stringified in place.
func resolveString(s string, scope *Scope) any {
	// Whole-string placeholder: {{key}} with nothing around it.
	if strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") {
		inner := s[2 : len(s)-2]
		if !strings.Contains(inner, "{{") && !strings.Contains(inner, "}}") {
			val, ok := lookup(strings.TrimSpace(inner), scope)
			if !ok || val == nil {
				return ""
			}
			return val
		}
	}

	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], "{{")
		if idx == -1 {
			result.WriteString(s[i:])
			break
		}
		result.WriteString(s[i : i+idx])
		start := i + idx + 2

		end := strings.Index(s[start:], "}}")
		if end == -1 {
			// Unclosed marker: keep the rest verbatim.
			result.WriteString(s[i+idx:])
			break
		}
		end += start

		key := strings.TrimSpace(s[start:end])
		if val, ok := lookup(key, scope); ok && val != nil {
			result.WriteString(stringify(val))
		}
		i = end + 2
	}

	return result.String()
}

// lookup resolves one placeholder key against the scope layers in
// priority order: exact variable, dotted path into variables, the current
// step output (this), then env helpers.
func lookup(key string, scope *Scope) (any, bool) {
	if scope == nil {
		return nil, false
	}

	if v, ok := scope.Variables[key]; ok {
		return v, true
	}

	if strings.Contains(key, ".") && !strings.HasPrefix(key, "this.") && !strings.HasPrefix(key, "env.") {
		if v, ok := getNested(scope.Variables, key); ok {
			return v, true
		}
	}

	if key == "this" {
		return scope.This, scope.This != nil
	}
	if rest, ok := strings.CutPrefix(key, "this."); ok {
		return getNested(scope.This, rest)
	}

	if envKey, ok := strings.CutPrefix(key, "env."); ok {
		switch envKey {
		case "now":
			now := scope.Env.Now
			if now.IsZero() {
				now = time.Now().UTC()
			}
			return now.Format(time.RFC3339), true
		case "executionId":
			return scope.Env.ExecutionID, true
		case "stepNumber":
			return scope.Env.StepNumber, true
		default:
			return nil, false
		}
	}

	return nil, false
}

// getNested walks a dot-delimited path into nested maps and slices.
// Bracketed indices normalize to dot segments, so "items[0].name" and
// "items.0.name" are equivalent.
func getNested(root any, path string) (any, bool) {
	normalized := strings.NewReplacer("[", ".", "]", "").Replace(path)

	current := root
	for _, part := range strings.Split(normalized, ".") {
		if part == "" {
			continue
		}

		if idx, err := strconv.Atoi(part); err == nil {
			if arr, ok := current.([]any); ok {
				if idx < 0 || idx >= len(arr) {
					return nil, false
				}
				current = arr[idx]
				continue
			}
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// stringify renders a resolved value for embedding inside a larger string.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
