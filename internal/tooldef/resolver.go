package tooldef

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/me/galaxyprobe/internal/logging"
)

// ErrNoDataTables means the tool has no data-table-backed parameter and is
// not a candidate for combinatorial testing.
var ErrNoDataTables = errors.New("tool has no data table parameters")

// Binding ties a tool parameter to the data table it draws options from.
type Binding struct {
	Param string
	Table string
}

// Definition is what the prober needs to know about a tool's wrapper.
type Definition struct {
	ToolID   string
	Bindings []Binding
}

// Params returns the bound parameter names, without duplicates, in document
// order.
func (d *Definition) Params() []string {
	var out []string
	seen := make(map[string]bool)
	for _, b := range d.Bindings {
		if !seen[b.Param] {
			seen[b.Param] = true
			out = append(out, b.Param)
		}
	}
	return out
}

// Resolver produces a tool's definition.
type Resolver interface {
	Resolve(ctx context.Context, toolID string) (*Definition, error)
}

// SourceFetcher returns a tool's XML wrapper.
type SourceFetcher interface {
	ToolSource(ctx context.Context, toolID string) (string, error)
}

// SourceResolver reads the raw tool source from the service and keeps the
// bindings whose table is in the catalog.
type SourceResolver struct {
	fetcher SourceFetcher
	catalog *Catalog
	logger  *slog.Logger
}

// NewSourceResolver creates a resolver. A nil catalog accepts every table.
func NewSourceResolver(fetcher SourceFetcher, catalog *Catalog, logger *slog.Logger) *SourceResolver {
	logger = logging.OrDiscard(logger)
	return &SourceResolver{
		fetcher: fetcher,
		catalog: catalog,
		logger:  logger.With("component", "tooldef"),
	}
}

// Resolve fetches and parses the tool source. It returns ErrNoDataTables
// when no parameter is bound to an accepted table.
func (r *SourceResolver) Resolve(ctx context.Context, toolID string) (*Definition, error) {
	src, err := r.fetcher.ToolSource(ctx, toolID)
	if err != nil {
		return nil, fmt.Errorf("fetch source for %s: %w", toolID, err)
	}
	bindings, err := ParseSource(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse source for %s: %w", toolID, err)
	}

	def := &Definition{ToolID: toolID}
	for _, b := range bindings {
		if !r.catalog.Accepts(b.Table) {
			r.logger.Debug("table not in catalog", "tool_id", toolID, "param", b.Param, "table", b.Table)
			continue
		}
		def.Bindings = append(def.Bindings, b)
	}
	if len(def.Bindings) == 0 {
		return nil, ErrNoDataTables
	}
	r.logger.Debug("resolved", "tool_id", toolID, "params", def.Params())
	return def, nil
}

// ParseSource returns every <param> whose direct <options> child names a
// from_data_table, in document order.
func ParseSource(r io.Reader) ([]Binding, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	// Open elements; param is set only for <param>.
	type frame struct {
		local string
		param string
	}
	var stack []frame
	var out []Binding
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			f := frame{local: t.Name.Local}
			if f.local == "param" {
				f.param = attr(t, "name")
			}
			if f.local == "options" && len(stack) > 0 {
				parent := stack[len(stack)-1]
				if table := attr(t, "from_data_table"); parent.local == "param" && parent.param != "" && table != "" {
					out = append(out, Binding{Param: parent.param, Table: table})
				}
			}
			stack = append(stack, f)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
