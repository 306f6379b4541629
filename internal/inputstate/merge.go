package inputstate

import (
	"slices"
	"strconv"
)

// SetByName replaces every Group entry whose key equals name, at any depth,
// with value. It returns the number of entries replaced. A replaced subtree is
// not searched further.
//
// Names are matched without regard to their position: a tool that reuses a
// parameter name in two conditionals gets both updated.
func SetByName(n Node, name string, value any) int {
	count := 0
	switch t := n.(type) {
	case *Group:
		for _, k := range t.keys {
			if k == name {
				t.children[k] = FromValue(value)
				count++
				continue
			}
			count += SetByName(t.children[k], name, value)
		}
	case *List:
		for _, it := range t.Items {
			count += SetByName(it, name, value)
		}
	}
	return count
}

// Merge returns a copy of base with each combination value written over every
// entry of the same name. Keys are applied in sorted order. Names that do not
// occur in base are reported in unmatched.
func Merge(base Node, combination map[string]any) (merged Node, unmatched []string) {
	merged = Clone(base)
	if merged == nil {
		merged = NewGroup()
	}
	keys := make([]string, 0, len(combination))
	for k := range combination {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if SetByName(merged, k, combination[k]) == 0 {
			unmatched = append(unmatched, k)
		}
	}
	return merged, unmatched
}

// MissingPaths reports the leaf paths of template that candidate no longer
// provides. A path counts as provided when candidate holds a value at it or
// at one of its prefixes (an overridden subtree); it is missing only when a
// Group on the way lacks the key.
func MissingPaths(template, candidate Node) []Path {
	var missing []Path
	Walk(template, func(p Path, _ *Leaf) {
		if !provides(candidate, p) {
			missing = append(missing, p)
		}
	})
	return missing
}

func provides(n Node, path Path) bool {
	cur := n
	for _, seg := range path {
		switch t := cur.(type) {
		case *Group:
			next, ok := t.children[seg]
			if !ok {
				return false
			}
			cur = next
		case *List:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(t.Items) {
				return true
			}
			cur = t.Items[i]
		default:
			return true
		}
	}
	return cur != nil
}

// Normalize returns a copy of n with the named entries replaced by fixed
// placeholders, so states that differ only in dataset ids compare equal.
func Normalize(n Node, placeholders map[string]any) Node {
	out := Clone(n)
	if out == nil {
		return nil
	}
	keys := make([]string, 0, len(placeholders))
	for k := range placeholders {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		SetByName(out, k, placeholders[k])
	}
	return out
}
