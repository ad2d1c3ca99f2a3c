package jsondoc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesKeyOrder(t *testing.T) {
	doc := []byte(`{"zebra": 1, "apple": {"pie": true}, "mango": [1, 2.5, "x"]}`)

	node, err := Parse(doc)
	require.NoError(t, err)

	assert.Equal(t, []string{"zebra", "apple", "mango"}, node.Keys())

	zebra, ok := node.Get("zebra")
	require.True(t, ok)
	assert.Equal(t, int64(1), zebra)

	apple, ok := node.GetNode("apple")
	require.True(t, ok)
	pie, _ := apple.Get("pie")
	assert.Equal(t, true, pie)

	mango, ok := node.GetSlice("mango")
	require.True(t, ok)
	assert.Equal(t, []any{int64(1), 2.5, "x"}, mango)
}

func TestParseRejectsNonObject(t *testing.T) {
	_, err := Parse([]byte(`[1, 2]`))
	assert.ErrorContains(t, err, "not an object")
}

func TestMarshalRoundTrip(t *testing.T) {
	raw := `{"b":"two","a":{"nested":1},"c":[true,null]}`

	node, err := Parse([]byte(raw))
	require.NoError(t, err)

	out, err := json.Marshal(node)
	require.NoError(t, err)
	assert.Equal(t, raw, string(out))
}

func TestSetKeepsFirstPosition(t *testing.T) {
	node := New()
	node.Set("first", 1)
	node.Set("second", 2)
	node.Set("first", 10)

	assert.Equal(t, []string{"first", "second"}, node.Keys())
	v, _ := node.Get("first")
	assert.Equal(t, 10, v)
}

func TestDelete(t *testing.T) {
	node := New()
	node.Set("a", 1)
	node.Set("b", 2)

	node.Delete("a")
	node.Delete("missing")

	assert.Equal(t, []string{"b"}, node.Keys())
	assert.False(t, node.Has("a"))
}

func TestPathOperations(t *testing.T) {
	node := New()
	node.SetPath("core.name", "donor_1")
	node.SetPath("core.index", int64(4))

	name, ok := node.GetPath("core.name")
	require.True(t, ok)
	assert.Equal(t, "donor_1", name)

	_, ok = node.GetPath("core.name.deeper")
	assert.False(t, ok)
	_, ok = node.GetPath("missing.leaf")
	assert.False(t, ok)

	core, ok := node.GetNode("core")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "index"}, core.Keys())
}

func TestAppendPath(t *testing.T) {
	node := New()
	node.AppendPath("genus_species", "Homo sapiens")
	node.AppendPath("genus_species", "Mus musculus")

	list, ok := node.GetPath("genus_species")
	require.True(t, ok)
	assert.Equal(t, []any{"Homo sapiens", "Mus musculus"}, list)
}

func TestAppendPathWrapsScalar(t *testing.T) {
	node := New()
	node.SetPath("tags", "solo")
	node.AppendPath("tags", "second")

	list, ok := node.GetPath("tags")
	require.True(t, ok)
	assert.Equal(t, []any{"solo", "second"}, list)
}

func TestFlattenAndNest(t *testing.T) {
	node, err := Parse([]byte(`{"a": {"b": 1, "c": {"d": "x"}}, "top": true, "list": [1]}`))
	require.NoError(t, err)

	flat := node.Flatten()
	assert.Equal(t, map[string]any{
		"a.b":   int64(1),
		"a.c.d": "x",
		"top":   true,
		"list":  []any{int64(1)},
	}, flat)

	rebuilt := Nest(flat, []string{"a.b", "a.c.d", "top", "list"})
	assert.Equal(t, node.Interface(), rebuilt.Interface())
	assert.Equal(t, []string{"a", "top", "list"}, rebuilt.Keys())
}

func TestCloneIsDeep(t *testing.T) {
	node := New()
	node.SetPath("inner.value", "original")
	node.Set("list", []any{"one"})

	clone := node.Clone()
	clone.SetPath("inner.value", "changed")
	list, _ := clone.GetSlice("list")
	list[0] = "mutated"

	v, _ := node.GetPath("inner.value")
	assert.Equal(t, "original", v)
	orig, _ := node.GetSlice("list")
	assert.Equal(t, []any{"one"}, orig)
}

func TestUnmarshalJSON(t *testing.T) {
	var node Node
	require.NoError(t, json.Unmarshal([]byte(`{"x": 1}`), &node))

	v, ok := node.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
}
