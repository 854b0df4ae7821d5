// internal/notify/template/render.go
package template

import (
	"fmt"
	"strings"
)

// Render substitutes {{key}} placeholders in tmpl with stringified values
// from vars. Keys absent from vars are left as literal {{key}} text; rendering
// is fail-open and never errors.
func Render(tmpl string, vars map[string]interface{}) string {
	if tmpl == "" || len(vars) == 0 {
		return tmpl
	}

	result := tmpl
	for k, v := range vars {
		placeholder := "{{" + k + "}}"
		if !strings.Contains(result, placeholder) {
			continue
		}
		result = strings.ReplaceAll(result, placeholder, stringify(v))
	}
	return result
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		// JSON numbers decode as float64; print integers without a decimal.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
