package schema

import (
	"github.com/me/galaxyprobe/internal/inputstate"
)

// Input model classes in a tool description.
const (
	ModelClassConditional    = "Conditional"
	ModelClassSection        = "Section"
	ModelClassRepeat         = "Repeat"
	ModelClassData           = "DataToolParameter"
	ModelClassDataCollection = "DataCollectionToolParameter"
)

// Candidate is a single parameter assignment proposed when seeding a partial
// state from a tool description.
type Candidate struct {
	Path  inputstate.Path
	Value any
}

// Candidates derives one assignment per non-data leaf parameter of a tool
// description, in document order. A conditional contributes its selector
// followed by the parameters of the selected case. Repeats are seeded with a
// single block.
//
// Values are taken from the parameter's current value, then its default, then
// its first declared option. Parameters with none of these are skipped.
func Candidates(tool map[string]any) []Candidate {
	inputs, _ := tool["inputs"].([]any)
	var out []Candidate
	collect(inputs, nil, &out)
	return out
}

func collect(inputs []any, prefix inputstate.Path, out *[]Candidate) {
	for _, raw := range inputs {
		in, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := in["name"].(string)
		if name == "" {
			continue
		}
		path := append(append(inputstate.Path{}, prefix...), name)

		mc, _ := in["model_class"].(string)
		switch mc {
		case ModelClassConditional:
			test, _ := in["test_param"].(map[string]any)
			testName, _ := test["name"].(string)
			if testName == "" {
				continue
			}
			selected, ok := initialValue(test)
			if !ok {
				continue
			}
			*out = append(*out, Candidate{Path: append(append(inputstate.Path{}, path...), testName), Value: selected})
			cases, _ := in["cases"].([]any)
			for _, rc := range cases {
				c, _ := rc.(map[string]any)
				if c == nil || c["value"] != selected {
					continue
				}
				nested, _ := c["inputs"].([]any)
				collect(nested, path, out)
				break
			}
		case ModelClassSection:
			nested, _ := in["inputs"].([]any)
			collect(nested, path, out)
		case ModelClassRepeat:
			nested, _ := in["inputs"].([]any)
			block := append(append(inputstate.Path{}, prefix...), name+"_0")
			collect(nested, block, out)
		case ModelClassData, ModelClassDataCollection:
			// Datasets cannot be guessed; the build fills them from history.
		default:
			if v, ok := initialValue(in); ok {
				*out = append(*out, Candidate{Path: path, Value: v})
			}
		}
	}
}

func initialValue(param map[string]any) (any, bool) {
	if v, ok := param["value"]; ok && v != nil {
		return v, true
	}
	if v, ok := param["default_value"]; ok && v != nil {
		return v, true
	}
	opts, _ := param["options"].([]any)
	for _, o := range Options(opts) {
		return o.Value, true
	}
	return nil, false
}
