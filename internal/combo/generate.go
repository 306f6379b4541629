// Package combo enumerates the parameter-space test matrix of a tool.
package combo

import "slices"

// Param is one enumerable parameter and its declared option values.
type Param struct {
	Name   string
	Values []any
}

// Options is an ordered option mapping. Combinations are produced in the
// lexicographic order of this slice.
type Options []Param

// Get returns the values declared for name.
func (o Options) Get(name string) ([]any, bool) {
	for _, p := range o {
		if p.Name == name {
			return p.Values, true
		}
	}
	return nil, false
}

// Names returns the parameter names in order.
func (o Options) Names() []string {
	out := make([]string, len(o))
	for i, p := range o {
		out[i] = p.Name
	}
	return out
}

// Combination assigns one concrete value to every expanded parameter.
// Excluded (multi-valued) parameters carry their full option slice.
type Combination map[string]any

// Size returns the number of combinations Generate would produce.
func Size(opts Options, exclude []string) int {
	n := 1
	for _, p := range opts {
		if slices.Contains(exclude, p.Name) {
			continue
		}
		n *= len(p.Values)
	}
	return n
}

// Generate returns the Cartesian product of the non-excluded parameters. Each
// excluded parameter appears in every combination mapped to its original
// option slice, never expanded. Empty options yield a single combination.
func Generate(opts Options, exclude []string) []Combination {
	fixed := make(map[string]any)
	var axes Options
	for _, p := range opts {
		if slices.Contains(exclude, p.Name) {
			fixed[p.Name] = p.Values
			continue
		}
		axes = append(axes, p)
	}

	out := make([]Combination, 0, Size(opts, exclude))
	idx := make([]int, len(axes))
	for {
		c := make(Combination, len(opts))
		for i, p := range axes {
			if len(p.Values) == 0 {
				return out
			}
			c[p.Name] = p.Values[idx[i]]
		}
		for k, v := range fixed {
			c[k] = v
		}
		out = append(out, c)

		// Advance the rightmost axis first, odometer style.
		i := len(axes) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}
