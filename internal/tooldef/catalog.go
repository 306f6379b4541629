// Package tooldef resolves which parameters of a tool draw their options from
// server-side data tables, by reading the tool's XML wrapper.
package tooldef

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Catalog is the set of data tables known to be installed on the server.
// An empty catalog accepts every table.
type Catalog struct {
	names []string
}

// NewCatalog returns a catalog of the given table names.
func NewCatalog(names ...string) *Catalog {
	c := &Catalog{}
	for _, n := range names {
		if n != "" && !slices.Contains(c.names, n) {
			c.names = append(c.names, n)
		}
	}
	return c
}

// catalogEntry accepts both `- name: x` and `- x` list items.
type catalogEntry struct {
	Name string `yaml:"name"`
}

func (e *catalogEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Name = node.Value
		return nil
	}
	type plain catalogEntry
	return node.Decode((*plain)(e))
}

// ParseCatalog decodes a list of tables. YAML and JSON are both accepted,
// as are a bare list and a document with a top-level "tables" key.
func ParseCatalog(data []byte) (*Catalog, error) {
	var list []catalogEntry
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc struct {
			Tables []catalogEntry `yaml:"tables"`
		}
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("parse data table catalog: %w", err)
		}
		list = doc.Tables
	}
	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.Name)
	}
	return NewCatalog(names...), nil
}

// LoadCatalog reads a catalog file. An empty path yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data table catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Names returns the table names in file order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.names)
}

// Len returns the number of known tables.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// Accepts reports whether table is usable.
func (c *Catalog) Accepts(table string) bool {
	if c.Len() == 0 {
		return table != ""
	}
	return slices.Contains(c.names, table)
}
