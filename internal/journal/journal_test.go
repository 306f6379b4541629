package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j := New(t.TempDir(), nil)
	j.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return j
}

func TestRecordDeduplicatesByInput(t *testing.T) {
	j := newTestJournal(t)
	input := map[string]any{"sequencing_type": map[string]any{"sequencing_type_selector": "paired"}, "threads": 4}

	added, err := j.Record("Filter with SortMeRNA", input, "first")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = j.Record("Filter with SortMeRNA", input, "second")
	require.NoError(t, err)
	assert.False(t, added)

	entries, err := j.Entries("Filter with SortMeRNA")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].ErrorMessage)
	assert.Equal(t, "2024-03-09 14:05:07", entries[0].Timestamp)
}

func TestRecordDistinctInputs(t *testing.T) {
	j := newTestJournal(t)
	for _, sel := range []string{"paired", "single", "paired"} {
		_, err := j.Record("tool", map[string]any{"sel": sel}, "Job has error state")
		require.NoError(t, err)
	}
	entries, err := j.Entries("tool")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRecordFileLayout(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.Record("a/b", []any{"x"}, "boom")
	require.NoError(t, err)

	path := filepath.Join(j.Dir(), "a_b_incorrect_combination.json")
	assert.Equal(t, path, j.Path("a/b"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"timestamp": "2024-03-09 14:05:07", "error_message": "boom", "input": ["x"]}]`, string(data))
}

func TestEntriesMissingAndCorrupt(t *testing.T) {
	j := newTestJournal(t)
	entries, err := j.Entries("nothing")
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, os.WriteFile(j.Path("bad"), []byte(`{"not": "a list"}`), 0o644))
	added, err := j.Record("bad", map[string]any{"a": 1}, "x")
	require.NoError(t, err)
	assert.True(t, added)
	entries, err = j.Entries("bad")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecordUnmarshalableInput(t *testing.T) {
	j := newTestJournal(t)
	_, err := j.Record("tool", map[string]any{"ch": make(chan int)}, "x")
	assert.Error(t, err)
}
