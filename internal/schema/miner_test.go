package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Trimmed show-tool description of a SortMeRNA-like tool.
const sortMeRNADoc = `{
  "id": "sortmerna",
  "name": "Filter with SortMeRNA",
  "inputs": [
    {
      "model_class": "Conditional",
      "name": "sequencing_type",
      "test_param": {
        "model_class": "SelectToolParameter",
        "name": "sequencing_type_selector",
        "type": "select",
        "value": "paired",
        "options": [["Single-end", "not_paired", false], ["Paired-end", "paired", true]]
      },
      "cases": [
        {"value": "not_paired", "inputs": [{"model_class": "DataToolParameter", "name": "input_reads"}]},
        {"value": "paired", "inputs": [
          {"model_class": "DataToolParameter", "name": "forward_reads"},
          {"model_class": "SelectToolParameter", "name": "paired_type", "type": "select",
           "options": [["--paired_in", "--paired_in", true], ["--paired_out", "--paired_out", false]]}
        ]}
      ]
    },
    {
      "model_class": "Conditional",
      "name": "databases_type",
      "test_param": {
        "model_class": "SelectToolParameter",
        "name": "databases_selector",
        "value": "cached",
        "options": [["Public", "cached", true], ["History", "history", false]]
      },
      "cases": [
        {"value": "cached", "inputs": [
          {"model_class": "SelectToolParameter", "name": "input_databases", "multiple": true,
           "options": [["16S bac", "A", false], ["16S arc", "B", false]]}
        ]}
      ]
    },
    {"model_class": "BooleanToolParameter", "name": "log", "value": true},
    {"model_class": "TextToolParameter", "name": "label", "label": "input_databases"}
  ]
}`

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &doc))
	return doc
}

func TestMine(t *testing.T) {
	doc := decode(t, sortMeRNADoc)

	tests := []struct {
		name      string
		param     string
		wantVals  []any
		wantMulti bool
	}{
		{"multi select", "input_databases", []any{"A", "B"}, true},
		{"conditional selector", "sequencing_type_selector", []any{"not_paired", "paired"}, false},
		{"nested single select", "paired_type", []any{"--paired_in", "--paired_out"}, false},
		{"absent", "nope", nil, false},
		{"non-select with matching value ignored", "label", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, multi := Mine(doc, tt.param)
			assert.Equal(t, tt.wantMulti, multi)
			assert.Equal(t, tt.wantVals, OptionValues(raw...))
		})
	}
}

// The same parameter declared in a conditional's test_param, in one of its
// cases, and again under an unrelated section.
const repeatedGenomeDoc = `{
  "inputs": [{
    "model_class": "Conditional",
    "name": "reference",
    "test_param": {"model_class": "SelectToolParameter", "name": "genome", "options": [["hg38", "hg38", true]]},
    "cases": [{"value": "cached", "inputs": [
      {"model_class": "SelectToolParameter", "name": "genome", "options": [["mm10", "mm10", false]]}
    ]}],
    "advanced": {"model_class": "SelectToolParameter", "name": "genome", "multiple": true, "options": [["dm6", "dm6", false]]}
  }]
}`

func TestMineOrderIsStable(t *testing.T) {
	doc := decode(t, repeatedGenomeDoc)

	want := []any{"dm6", "mm10", "hg38"}
	for i := 0; i < 50; i++ {
		raw, multi := Mine(doc, "genome")
		require.Len(t, raw, 3)
		assert.True(t, multi)
		assert.Equal(t, want, OptionValues(raw...), "mine %d", i)
	}
}

func TestMineMalformedDocuments(t *testing.T) {
	docs := []any{
		nil,
		"string",
		42.0,
		[]any{1.0, "x", nil},
		map[string]any{"name": "x", "model_class": "SelectToolParameter"},
		map[string]any{"name": "x", "model_class": "SelectToolParameter", "options": "bad"},
	}
	for _, d := range docs {
		assert.NotPanics(t, func() {
			raw, _ := Mine(d, "x")
			_ = OptionValues(raw...)
		})
	}
}

func TestOptionValuesStrideAndDedupe(t *testing.T) {
	raw := []any{
		[]any{"a", "v1", false},
		[]any{"b", "v2", true},
		[]any{"c", "v1", false},
	}
	assert.Equal(t, []any{"v1", "v2"}, OptionValues(raw))
	assert.Equal(t, []any{"v1", "v2"}, OptionValues(raw, raw))
	assert.Empty(t, OptionValues())
}

func TestOptions(t *testing.T) {
	opts := Options([]any{
		[]any{"Paired-end", "paired", true},
		"garbage",
		[]any{"Single", "single"},
	})
	require.Len(t, opts, 2)
	assert.Equal(t, Option{Label: "Paired-end", Value: "paired", Selected: true}, opts[0])
	assert.Equal(t, Option{Label: "Single", Value: "single"}, opts[1])
}

func TestMineAll(t *testing.T) {
	doc := decode(t, sortMeRNADoc)

	opts, multi := MineAll(doc, []string{"sequencing_type_selector", "input_databases", "missing", "input_databases"})
	require.Len(t, opts, 2)
	assert.Equal(t, "sequencing_type_selector", opts[0].Name)
	assert.Equal(t, "input_databases", opts[1].Name)
	assert.Equal(t, []any{"A", "B"}, opts[1].Values)
	assert.Equal(t, []string{"input_databases"}, multi)
}

func TestCandidates(t *testing.T) {
	doc := decode(t, sortMeRNADoc)

	var got []string
	values := map[string]any{}
	for _, c := range Candidates(doc) {
		got = append(got, c.Path.String())
		values[c.Path.String()] = c.Value
	}
	assert.Equal(t, []string{
		"sequencing_type|sequencing_type_selector",
		"sequencing_type|paired_type",
		"databases_type|databases_selector",
		"databases_type|input_databases",
		"log",
	}, got)
	assert.Equal(t, "paired", values["sequencing_type|sequencing_type_selector"])
	assert.Equal(t, "--paired_in", values["sequencing_type|paired_type"])
	assert.Equal(t, true, values["log"])
}

func TestCandidatesRepeatAndSection(t *testing.T) {
	doc := map[string]any{
		"inputs": []any{
			map[string]any{"model_class": "Section", "name": "adv", "inputs": []any{
				map[string]any{"model_class": "IntegerToolParameter", "name": "k", "default_value": "5"},
			}},
			map[string]any{"model_class": "Repeat", "name": "queries", "inputs": []any{
				map[string]any{"model_class": "TextToolParameter", "name": "q", "value": "x"},
			}},
			map[string]any{"model_class": "TextToolParameter", "name": "empty"},
		},
	}
	cands := Candidates(doc)
	require.Len(t, cands, 2)
	assert.Equal(t, "adv|k", cands[0].Path.String())
	assert.Equal(t, "queries_0|q", cands[1].Path.String())
	assert.Empty(t, Candidates(map[string]any{"inputs": "bad"}))
}
