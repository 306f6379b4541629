// Package schema extracts enumerable parameters from the service's tool
// schema documents (the "show tool" description with io details, or the
// state returned by a build call).
//
// Documents are decoded JSON of arbitrary shape. Nothing here returns an
// error for an unexpected shape: nodes that are neither objects nor arrays
// are skipped.
package schema

import (
	"maps"
	"reflect"
	"slices"

	"github.com/me/galaxyprobe/internal/combo"
)

// Select parameter markers used by the service.
const (
	ModelClassSelect = "SelectToolParameter"
	TypeSelect       = "select"
)

// Option is one declared choice of a select parameter.
type Option struct {
	Label    string
	Value    any
	Selected bool
}

// Occurrence is one select node whose name matched.
type Occurrence struct {
	// Options is the node's raw options field: a list of
	// [label, value, selected] triples.
	Options  []any
	Multiple bool
}

// Mine collects the options of every select parameter named name anywhere in
// doc and reports whether any of them accepts multiple values. A name that
// never occurs yields an empty result.
func Mine(doc any, name string) (options [][]any, multiple bool) {
	for _, occ := range Find(doc, name) {
		options = append(options, occ.Options)
		if occ.Multiple {
			multiple = true
		}
	}
	return options, multiple
}

// Find returns every select node in doc that carries name as one of its
// values. A node can match and still contain further matches below it.
// Object keys are walked in sorted order so the result is stable for a
// given document.
func Find(doc any, name string) []Occurrence {
	var out []Occurrence
	find(doc, name, &out)
	return out
}

func find(node any, name string, out *[]Occurrence) {
	switch t := node.(type) {
	case map[string]any:
		matched := false
		for _, k := range slices.Sorted(maps.Keys(t)) {
			v := t[k]
			switch v.(type) {
			case map[string]any, []any:
				find(v, name, out)
				continue
			}
			if !matched && v == any(name) && isSelect(t) {
				matched = true
			}
		}
		if matched {
			opts, _ := t["options"].([]any)
			multi, _ := t["multiple"].(bool)
			*out = append(*out, Occurrence{Options: opts, Multiple: multi})
		}
	case []any:
		for _, it := range t {
			find(it, name, out)
		}
	}
}

func isSelect(node map[string]any) bool {
	if mc, _ := node["model_class"].(string); mc == ModelClassSelect {
		return true
	}
	typ, _ := node["type"].(string)
	return typ == TypeSelect
}

// OptionValues flattens raw option triples and keeps every third element
// starting at offset 1 (the enumerable value), dropping duplicates while
// preserving order.
func OptionValues(raw ...[]any) []any {
	var flat []any
	for _, r := range raw {
		flat = flatten(flat, r)
	}
	var values []any
	for i := 1; i < len(flat); i += 3 {
		values = appendUnique(values, flat[i])
	}
	return values
}

// Options decodes raw triples into labelled options. Malformed entries are
// skipped.
func Options(raw []any) []Option {
	var out []Option
	for _, r := range raw {
		triple, ok := r.([]any)
		if !ok || len(triple) < 2 {
			continue
		}
		label, _ := triple[0].(string)
		opt := Option{Label: label, Value: triple[1]}
		if len(triple) > 2 {
			opt.Selected, _ = triple[2].(bool)
		}
		out = append(out, opt)
	}
	return out
}

// MineAll mines each name in order and returns the option mapping used by the
// combination generator plus the names declared multi-valued. Names with no
// options are left out.
func MineAll(doc any, names []string) (combo.Options, []string) {
	var opts combo.Options
	var multi []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		raw, multiple := Mine(doc, name)
		values := OptionValues(raw...)
		if len(values) == 0 {
			continue
		}
		opts = append(opts, combo.Param{Name: name, Values: values})
		if multiple {
			multi = append(multi, name)
		}
	}
	return opts, multi
}

func flatten(dst []any, src []any) []any {
	for _, it := range src {
		if nested, ok := it.([]any); ok {
			dst = flatten(dst, nested)
			continue
		}
		dst = append(dst, it)
	}
	return dst
}

func appendUnique(list []any, v any) []any {
	for _, have := range list {
		if reflect.DeepEqual(have, v) {
			return list
		}
	}
	return append(list, v)
}
