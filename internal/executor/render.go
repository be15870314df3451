package executor

import (
	"fmt"
	"regexp"
	"strings"
)

// notDefined is substituted for placeholders with no resolved value, so a
// script can test for the sentinel instead of tripping over empty strings.
const notDefined = "NOT_DEFINED"

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render substitutes {{ name }} placeholders with the effective parameter
// values.
func Render(script string, values map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(script, func(match string) string {
		id := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := values[id]
		if !ok || v == nil {
			return notDefined
		}
		return valueString(v)
	})
}

func valueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers arrive as float64; keep integers clean.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	}
	return fmt.Sprintf("%v", v)
}

// composeScript prepends a shared library body to a command script.
func composeScript(library, script string) string {
	if library == "" {
		return script
	}
	return strings.TrimRight(library, "\n") + "\n" + script
}

const outputLinePrefix = "OUTPUT "

// ParseOutputs extracts "OUTPUT <id>=<value>" declarations from command
// stdout. Later declarations of the same id win.
func ParseOutputs(stdout string) map[string]string {
	outputs := make(map[string]string)
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, outputLinePrefix) {
			continue
		}
		rest := strings.TrimPrefix(line, outputLinePrefix)
		id, value, ok := strings.Cut(rest, "=")
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		outputs[id] = strings.TrimSpace(value)
	}
	return outputs
}

// truncate caps command output at the configured maximum, marking the cut.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n[output truncated]"
}
