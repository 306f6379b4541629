package combo

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/dop251/goja"
)

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Filter prunes combinations with a JavaScript boolean expression. Each
// combination is visible as the object `c`; keys that are valid identifiers
// are also bound as top-level variables, e.g.
//
//	sequencing_type_selector == "paired" && c.log
type Filter struct {
	expr string
	prog *goja.Program
}

// NewFilter compiles expr. An empty expression yields a nil Filter, which
// keeps everything.
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}
	prog, err := goja.Compile("filter", "("+expr+")", true)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, prog: prog}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Keep reports whether c passes the filter.
func (f *Filter) Keep(c Combination) (bool, error) {
	if f == nil {
		return true, nil
	}
	vm := goja.New()
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !identRe.MatchString(k) {
			continue
		}
		if err := vm.Set(k, c[k]); err != nil {
			return false, fmt.Errorf("bind %s: %w", k, err)
		}
	}
	if err := vm.Set("c", map[string]any(c)); err != nil {
		return false, fmt.Errorf("bind combination: %w", err)
	}
	v, err := vm.RunProgram(f.prog)
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.expr, err)
	}
	return v.ToBoolean(), nil
}

// Apply returns the combinations that pass f, preserving order.
func (f *Filter) Apply(combos []Combination) ([]Combination, error) {
	if f == nil {
		return combos, nil
	}
	out := make([]Combination, 0, len(combos))
	for _, c := range combos {
		ok, err := f.Keep(c)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}
