package galaxy

import (
	"encoding/json"
	"strings"
)

// NormalizeParameters turns the parameters of a provenance record into an
// input state that can be resubmitted:
//   - flattened keys (containing "|") are dropped, the nested form is kept;
//   - string values holding JSON are decoded;
//   - dataset references (objects carrying a uuid) become {"src":"hda","id":...}.
//
// The input map is not modified.
func NormalizeParameters(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if strings.Contains(k, "|") {
			continue
		}
		if s, ok := v.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				v = decoded
			}
		}
		out[k] = datasetRefs(v)
	}
	return out
}

func datasetRefs(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t["uuid"]; ok {
			return map[string]any{"src": "hda", "id": t["id"]}
		}
		m := make(map[string]any, len(t))
		for k, child := range t {
			m[k] = datasetRefs(child)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, child := range t {
			l[i] = datasetRefs(child)
		}
		return l
	}
	return v
}
