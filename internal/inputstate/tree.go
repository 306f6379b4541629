// Package inputstate models a tool's nested input state as a typed tree.
//
// A state mirrors the shape of the tool schema: conditionals and sections are
// Groups, repeats and multi-valued selections are Lists, and concrete choices
// (strings, numbers, booleans) are Leaves. A Path addresses a node by the
// sequence of keys (or list indexes) from the root and renders in the
// service's `a|b|c` form.
package inputstate

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind tags the concrete type behind a Node.
type Kind int

const (
	KindLeaf Kind = iota
	KindGroup
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindGroup:
		return "group"
	case KindList:
		return "list"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Node is one element of an input state tree.
type Node interface {
	Kind() Kind
	// Value converts the subtree back to JSON-shaped data
	// (map[string]any, []any, scalars).
	Value() any
	clone() Node
}

// Leaf holds a concrete scalar choice.
type Leaf struct {
	V any
}

func (l *Leaf) Kind() Kind  { return KindLeaf }
func (l *Leaf) Value() any  { return l.V }
func (l *Leaf) clone() Node { return &Leaf{V: l.V} }

// Group is an insertion-ordered mapping of named children.
type Group struct {
	keys     []string
	children map[string]Node
}

// NewGroup returns an empty Group.
func NewGroup() *Group {
	return &Group{children: make(map[string]Node)}
}

func (g *Group) Kind() Kind { return KindGroup }

func (g *Group) Value() any {
	m := make(map[string]any, len(g.keys))
	for _, k := range g.keys {
		m[k] = g.children[k].Value()
	}
	return m
}

func (g *Group) clone() Node {
	c := &Group{keys: slices.Clone(g.keys), children: make(map[string]Node, len(g.children))}
	for k, v := range g.children {
		c.children[k] = v.clone()
	}
	return c
}

// Keys returns the child names in insertion order.
func (g *Group) Keys() []string { return slices.Clone(g.keys) }

// Len returns the number of children.
func (g *Group) Len() int { return len(g.keys) }

// Child returns the named child.
func (g *Group) Child(name string) (Node, bool) {
	n, ok := g.children[name]
	return n, ok
}

// Put sets a child, appending the key if it is new.
func (g *Group) Put(name string, n Node) {
	if _, ok := g.children[name]; !ok {
		g.keys = append(g.keys, name)
	}
	g.children[name] = n
}

// List is an ordered sequence of nodes (repeats, multi-select values).
type List struct {
	Items []Node
}

func (l *List) Kind() Kind { return KindList }

func (l *List) Value() any {
	out := make([]any, len(l.Items))
	for i, it := range l.Items {
		out[i] = it.Value()
	}
	return out
}

func (l *List) clone() Node {
	c := &List{Items: make([]Node, len(l.Items))}
	for i, it := range l.Items {
		c.Items[i] = it.clone()
	}
	return c
}

// FromValue converts JSON-shaped data into a tree. Map keys are sorted so the
// resulting Group order is deterministic.
func FromValue(v any) Node {
	switch t := v.(type) {
	case Node:
		return t.clone()
	case map[string]any:
		g := NewGroup()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			g.Put(k, FromValue(t[k]))
		}
		return g
	case []any:
		l := &List{Items: make([]Node, len(t))}
		for i, it := range t {
			l.Items[i] = FromValue(it)
		}
		return l
	case []string:
		l := &List{Items: make([]Node, len(t))}
		for i, it := range t {
			l.Items[i] = &Leaf{V: it}
		}
		return l
	case []map[string]any:
		l := &List{Items: make([]Node, len(t))}
		for i, it := range t {
			l.Items[i] = FromValue(it)
		}
		return l
	default:
		return &Leaf{V: v}
	}
}

// FromMap converts a decoded JSON object into a Group.
func FromMap(m map[string]any) *Group {
	if m == nil {
		return NewGroup()
	}
	return FromValue(m).(*Group)
}

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	if n == nil {
		return nil
	}
	return n.clone()
}

// Path addresses a node from the root of a tree.
type Path []string

// String renders the path in the service's pipe-joined form.
func (p Path) String() string { return strings.Join(p, "|") }

// Last returns the final segment, or "" for the root path.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// ParsePath splits a pipe-joined path.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "|"))
}

// Get resolves path against n.
func Get(n Node, path Path) (Node, bool) {
	cur := n
	for _, seg := range path {
		switch t := cur.(type) {
		case *Group:
			next, ok := t.children[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case *List:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(t.Items) {
				return nil, false
			}
			cur = t.Items[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at path, creating intermediate Groups as needed. List
// segments must address an existing item.
func Set(root *Group, path Path, value any) error {
	if len(path) == 0 {
		return fmt.Errorf("set: empty path")
	}
	var cur Node = root
	for i, seg := range path {
		last := i == len(path)-1
		switch t := cur.(type) {
		case *Group:
			if last {
				t.Put(seg, FromValue(value))
				return nil
			}
			next, ok := t.children[seg]
			if !ok || next.Kind() == KindLeaf {
				next = NewGroup()
				t.Put(seg, next)
			}
			cur = next
		case *List:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(t.Items) {
				return fmt.Errorf("set %s: no list item %q", path, seg)
			}
			if last {
				t.Items[idx] = FromValue(value)
				return nil
			}
			cur = t.Items[idx]
		default:
			return fmt.Errorf("set %s: %s is a leaf", path, Path(path[:i]))
		}
	}
	return nil
}

// FromFlat builds a tree from pipe-joined keys (the service's flat input form).
func FromFlat(flat map[string]any) (*Group, error) {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	root := NewGroup()
	for _, k := range keys {
		if err := Set(root, ParsePath(k), flat[k]); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// Walk visits every leaf depth-first in Group insertion order.
func Walk(n Node, fn func(Path, *Leaf)) {
	walk(n, nil, fn)
}

func walk(n Node, prefix Path, fn func(Path, *Leaf)) {
	switch t := n.(type) {
	case *Leaf:
		fn(slices.Clone(prefix), t)
	case *Group:
		for _, k := range t.keys {
			walk(t.children[k], append(prefix, k), fn)
		}
	case *List:
		for i, it := range t.Items {
			walk(it, append(prefix, strconv.Itoa(i)), fn)
		}
	}
}

// LeafPaths lists the path of every leaf in n.
func LeafPaths(n Node) []Path {
	var out []Path
	Walk(n, func(p Path, _ *Leaf) { out = append(out, p) })
	return out
}
