package patch

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestApplyTable(t *testing.T) {
	cases := []struct {
		name string
		doc  any
		ops  []Operation
		want any
	}{
		{
			name: "add object member",
			doc:  map[string]any{"a": float64(1)},
			ops:  []Operation{{Op: OpAdd, Path: "/b", Value: float64(2)}},
			want: map[string]any{"a": float64(1), "b": float64(2)},
		},
		{
			name: "add overwrites existing member",
			doc:  map[string]any{"a": float64(1)},
			ops:  []Operation{{Op: OpAdd, Path: "/a", Value: "x"}},
			want: map[string]any{"a": "x"},
		},
		{
			name: "add array element shifts the rest",
			doc:  map[string]any{"list": []any{"a", "c"}},
			ops:  []Operation{{Op: OpAdd, Path: "/list/1", Value: "b"}},
			want: map[string]any{"list": []any{"a", "b", "c"}},
		},
		{
			name: "append with dash",
			doc:  map[string]any{"list": []any{"a"}},
			ops:  []Operation{{Op: OpAdd, Path: "/list/-", Value: "b"}},
			want: map[string]any{"list": []any{"a", "b"}},
		},
		{
			name: "add at length appends",
			doc:  map[string]any{"list": []any{"a"}},
			ops:  []Operation{{Op: OpAdd, Path: "/list/1", Value: "b"}},
			want: map[string]any{"list": []any{"a", "b"}},
		},
		{
			name: "remove object member",
			doc:  map[string]any{"a": float64(1), "b": float64(2)},
			ops:  []Operation{{Op: OpRemove, Path: "/b"}},
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "remove array element",
			doc:  map[string]any{"list": []any{"a", "b", "c"}},
			ops:  []Operation{{Op: OpRemove, Path: "/list/1"}},
			want: map[string]any{"list": []any{"a", "c"}},
		},
		{
			name: "replace scalar",
			doc:  map[string]any{"a": float64(1)},
			ops:  []Operation{{Op: OpReplace, Path: "/a", Value: float64(9)}},
			want: map[string]any{"a": float64(9)},
		},
		{
			name: "replace whole document",
			doc:  map[string]any{"a": float64(1)},
			ops:  []Operation{{Op: OpReplace, Path: "", Value: []any{"x"}}},
			want: []any{"x"},
		},
		{
			name: "move onto itself is a no-op",
			doc:  map[string]any{"a": map[string]any{"b": "x"}},
			ops:  []Operation{{Op: OpMove, From: "/a/b", Path: "/a/b"}},
			want: map[string]any{"a": map[string]any{"b": "x"}},
		},
		{
			name: "move member",
			doc:  map[string]any{"a": map[string]any{"b": "v"}, "c": map[string]any{}},
			ops:  []Operation{{Op: OpMove, From: "/a/b", Path: "/c/b"}},
			want: map[string]any{"a": map[string]any{}, "c": map[string]any{"b": "v"}},
		},
		{
			name: "copy member",
			doc:  map[string]any{"a": "v"},
			ops:  []Operation{{Op: OpCopy, From: "/a", Path: "/b"}},
			want: map[string]any{"a": "v", "b": "v"},
		},
		{
			name: "test then replace",
			doc:  map[string]any{"version": float64(1)},
			ops: []Operation{
				{Op: OpTest, Path: "/version", Value: float64(1)},
				{Op: OpReplace, Path: "/version", Value: float64(2)},
			},
			want: map[string]any{"version": float64(2)},
		},
		{
			name: "escaped pointer tokens",
			doc:  map[string]any{"a/b": map[string]any{"m~n": "v"}},
			ops:  []Operation{{Op: OpReplace, Path: "/a~1b/m~0n", Value: "w"}},
			want: map[string]any{"a/b": map[string]any{"m~n": "w"}},
		},
		{
			name: "nested array of operations",
			doc: map[string]any{"operations": []any{
				map[string]any{"id": "op1", "status": "running"},
			}},
			ops: []Operation{
				{Op: OpAdd, Path: "/operations/-", Value: map[string]any{"id": "op2", "status": "pending"}},
				{Op: OpReplace, Path: "/operations/0/status", Value: "done"},
			},
			want: map[string]any{"operations": []any{
				map[string]any{"id": "op1", "status": "done"},
				map[string]any{"id": "op2", "status": "pending"},
			}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(tc.doc, tc.ops)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestApplyErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  any
		ops  []Operation
	}{
		{
			name: "replace missing member",
			doc:  map[string]any{"a": float64(1)},
			ops:  []Operation{{Op: OpReplace, Path: "/b", Value: float64(2)}},
		},
		{
			name: "remove missing member",
			doc:  map[string]any{},
			ops:  []Operation{{Op: OpRemove, Path: "/a"}},
		},
		{
			name: "remove whole document",
			doc:  map[string]any{"a": float64(1)},
			ops:  []Operation{{Op: OpRemove, Path: ""}},
		},
		{
			name: "add beyond array bounds",
			doc:  map[string]any{"list": []any{"a"}},
			ops:  []Operation{{Op: OpAdd, Path: "/list/5", Value: "b"}},
		},
		{
			name: "leading zero index",
			doc:  map[string]any{"list": []any{"a", "b"}},
			ops:  []Operation{{Op: OpRemove, Path: "/list/01"}},
		},
		{
			name: "dash not valid for remove",
			doc:  map[string]any{"list": []any{"a"}},
			ops:  []Operation{{Op: OpRemove, Path: "/list/-"}},
		},
		{
			name: "pointer without leading slash",
			doc:  map[string]any{"a": float64(1)},
			ops:  []Operation{{Op: OpReplace, Path: "a", Value: float64(2)}},
		},
		{
			name: "move onto itself requires the location to exist",
			doc:  map[string]any{"a": float64(1)},
			ops:  []Operation{{Op: OpMove, From: "/b", Path: "/b"}},
		},
		{
			name: "move into itself",
			doc:  map[string]any{"a": map[string]any{"b": "v"}},
			ops:  []Operation{{Op: OpMove, From: "/a", Path: "/a/b"}},
		},
		{
			name: "descend into scalar",
			doc:  map[string]any{"a": "scalar"},
			ops:  []Operation{{Op: OpAdd, Path: "/a/b", Value: "v"}},
		},
		{
			name: "unknown op",
			doc:  map[string]any{},
			ops:  []Operation{{Op: "merge", Path: "/a", Value: "v"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(tc.doc, tc.ops)
			require.Error(t, err)
		})
	}
}

func TestApplyTestFailure(t *testing.T) {
	doc := map[string]any{"version": float64(1)}
	_, err := Apply(doc, []Operation{{Op: OpTest, Path: "/version", Value: float64(2)}})
	require.ErrorIs(t, err, ErrTestFailed)
}

func TestApplyIsAtomic(t *testing.T) {
	doc := map[string]any{"a": float64(1)}
	ops := []Operation{
		{Op: OpAdd, Path: "/b", Value: float64(2)},
		{Op: OpReplace, Path: "/missing", Value: float64(3)},
	}
	got, err := Apply(doc, ops)
	require.Error(t, err)
	// The failed apply hands the input back untouched: no trace of /b.
	require.Equal(t, map[string]any{"a": float64(1)}, got)
}

func TestApplyNeverMutatesInput(t *testing.T) {
	doc := map[string]any{"list": []any{"a", "b"}, "obj": map[string]any{"k": "v"}}
	_, err := Apply(doc, []Operation{
		{Op: OpAdd, Path: "/list/-", Value: "c"},
		{Op: OpReplace, Path: "/obj/k", Value: "w"},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"list": []any{"a", "b"}, "obj": map[string]any{"k": "v"}}, doc)
}

func TestApplyEmptyOps(t *testing.T) {
	doc := map[string]any{"a": float64(1)}
	got, err := Apply(doc, nil)
	require.NoError(t, err)
	require.Equal(t, doc, got)
}

func TestApplyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("add then remove restores the document", prop.ForAll(
		func(key, val string) bool {
			doc := map[string]any{"existing": "x"}
			out, err := Apply(doc, []Operation{
				{Op: OpAdd, Path: "/k_" + key, Value: val},
				{Op: OpRemove, Path: "/k_" + key},
			})
			if err != nil {
				return false
			}
			m, ok := out.(map[string]any)
			return ok && len(m) == 1 && m["existing"] == "x"
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.Property("test against the stored value always passes", prop.ForAll(
		func(key, val string) bool {
			doc := map[string]any{key: val}
			_, err := Apply(doc, []Operation{{Op: OpTest, Path: "/" + key, Value: val}})
			return err == nil
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.Property("copy leaves the source in place", prop.ForAll(
		func(val string) bool {
			doc := map[string]any{"src": val}
			out, err := Apply(doc, []Operation{{Op: OpCopy, From: "/src", Path: "/dst"}})
			if err != nil {
				return false
			}
			m := out.(map[string]any)
			return m["src"] == val && m["dst"] == val
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
