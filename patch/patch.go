// Package patch implements the RFC 6902 JSON Patch subset used on the wire:
// add, remove, replace, move, copy and test operations addressed by JSON
// Pointer paths.
//
// Apply is a pure function over JSON-shaped documents (the value trees produced
// by encoding/json: map[string]any, []any, string, float64, bool, nil). It is
// atomic: either every operation applies and a new document is returned, or the
// first failing operation aborts the whole apply and the input document is
// returned untouched. The input document is never mutated.
package patch

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Operation kinds supported by Apply.
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
	OpMove    = "move"
	OpCopy    = "copy"
	OpTest    = "test"
)

type (
	// Operation is a single RFC 6902 operation. Value is used by add, replace
	// and test; From is used by move and copy.
	Operation struct {
		Op    string `json:"op"`
		Path  string `json:"path"`
		From  string `json:"from,omitempty"`
		Value any    `json:"value,omitempty"`
	}
)

// ErrTestFailed reports a failed test operation.
var ErrTestFailed = errors.New("test operation failed")

// Apply applies ops to doc in order and returns the resulting document. An
// empty operation list returns doc unchanged. Any failing operation makes the
// whole apply fail: the returned error wraps the index of the offending
// operation and doc is returned as-is.
func Apply(doc any, ops []Operation) (any, error) {
	if len(ops) == 0 {
		return doc, nil
	}
	out := clone(doc)
	for i, op := range ops {
		var err error
		out, err = applyOne(out, op)
		if err != nil {
			return doc, fmt.Errorf("op %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return out, nil
}

func applyOne(doc any, op Operation) (any, error) {
	switch op.Op {
	case OpAdd:
		return add(doc, op.Path, clone(op.Value))
	case OpRemove:
		doc, _, err := remove(doc, op.Path)
		return doc, err
	case OpReplace:
		return replace(doc, op.Path, clone(op.Value))
	case OpMove:
		if op.Path == op.From {
			// Moving a location onto itself is a no-op, but it must exist.
			if _, err := get(doc, op.From); err != nil {
				return nil, err
			}
			return doc, nil
		}
		if prefixed(op.Path, op.From) {
			return nil, fmt.Errorf("cannot move %q into itself at %q", op.From, op.Path)
		}
		doc, moved, err := remove(doc, op.From)
		if err != nil {
			return nil, err
		}
		return add(doc, op.Path, moved)
	case OpCopy:
		val, err := get(doc, op.From)
		if err != nil {
			return nil, err
		}
		return add(doc, op.Path, clone(val))
	case OpTest:
		val, err := get(doc, op.Path)
		if err != nil {
			return nil, err
		}
		if !reflect.DeepEqual(val, op.Value) {
			return nil, ErrTestFailed
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unknown op %q", op.Op)
	}
}

// parsePointer splits an RFC 6901 JSON Pointer into unescaped reference tokens.
func parsePointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("invalid pointer %q: must start with /", path)
	}
	raw := strings.Split(path[1:], "/")
	tokens := make([]string, len(raw))
	for i, t := range raw {
		t = strings.ReplaceAll(t, "~1", "/")
		t = strings.ReplaceAll(t, "~0", "~")
		tokens[i] = t
	}
	return tokens, nil
}

// prefixed reports whether path is nested strictly under from.
func prefixed(path, from string) bool {
	return strings.HasPrefix(path, from+"/")
}

// get resolves a pointer against doc.
func get(doc any, path string) (any, error) {
	tokens, err := parsePointer(path)
	if err != nil {
		return nil, err
	}
	cur := doc
	for _, tok := range tokens {
		switch node := cur.(type) {
		case map[string]any:
			val, ok := node[tok]
			if !ok {
				return nil, fmt.Errorf("path %q: member %q not found", path, tok)
			}
			cur = val
		case []any:
			idx, err := arrayIndex(tok, len(node), false)
			if err != nil {
				return nil, fmt.Errorf("path %q: %w", path, err)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("path %q: cannot descend into %T", path, cur)
		}
	}
	return cur, nil
}

// add inserts val at path, returning the updated document. An empty path
// replaces the whole document.
func add(doc any, path string, val any) (any, error) {
	tokens, err := parsePointer(path)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return val, nil
	}
	parent, err := get(doc, join(tokens[:len(tokens)-1]))
	if err != nil {
		return nil, err
	}
	last := tokens[len(tokens)-1]
	switch node := parent.(type) {
	case map[string]any:
		node[last] = val
		return doc, nil
	case []any:
		idx, err := arrayIndex(last, len(node), true)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		node = append(node, nil)
		copy(node[idx+1:], node[idx:])
		node[idx] = val
		return setParent(doc, tokens[:len(tokens)-1], node)
	default:
		return nil, fmt.Errorf("path %q: cannot add to %T", path, parent)
	}
}

// remove deletes the value at path, returning the updated document and the
// removed value.
func remove(doc any, path string) (any, any, error) {
	tokens, err := parsePointer(path)
	if err != nil {
		return nil, nil, err
	}
	if len(tokens) == 0 {
		return nil, nil, errors.New("cannot remove the whole document")
	}
	parent, err := get(doc, join(tokens[:len(tokens)-1]))
	if err != nil {
		return nil, nil, err
	}
	last := tokens[len(tokens)-1]
	switch node := parent.(type) {
	case map[string]any:
		val, ok := node[last]
		if !ok {
			return nil, nil, fmt.Errorf("path %q: member %q not found", path, last)
		}
		delete(node, last)
		return doc, val, nil
	case []any:
		idx, err := arrayIndex(last, len(node), false)
		if err != nil {
			return nil, nil, fmt.Errorf("path %q: %w", path, err)
		}
		val := node[idx]
		node = append(node[:idx], node[idx+1:]...)
		doc, err = setParent(doc, tokens[:len(tokens)-1], node)
		return doc, val, err
	default:
		return nil, nil, fmt.Errorf("path %q: cannot remove from %T", path, parent)
	}
}

// replace swaps the value at path, which must already exist.
func replace(doc any, path string, val any) (any, error) {
	tokens, err := parsePointer(path)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return val, nil
	}
	if _, err := get(doc, path); err != nil {
		return nil, err
	}
	parent, err := get(doc, join(tokens[:len(tokens)-1]))
	if err != nil {
		return nil, err
	}
	last := tokens[len(tokens)-1]
	switch node := parent.(type) {
	case map[string]any:
		node[last] = val
		return doc, nil
	case []any:
		idx, err := arrayIndex(last, len(node), false)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		node[idx] = val
		return doc, nil
	default:
		return nil, fmt.Errorf("path %q: cannot replace in %T", path, parent)
	}
}

// setParent writes a (possibly reallocated) container back at the location
// named by tokens. Needed for slices, whose headers change on insert/delete.
func setParent(doc any, tokens []string, val any) (any, error) {
	if len(tokens) == 0 {
		return val, nil
	}
	parent, err := get(doc, join(tokens[:len(tokens)-1]))
	if err != nil {
		return nil, err
	}
	last := tokens[len(tokens)-1]
	switch node := parent.(type) {
	case map[string]any:
		node[last] = val
		return doc, nil
	case []any:
		idx, err := arrayIndex(last, len(node), false)
		if err != nil {
			return nil, err
		}
		node[idx] = val
		return doc, nil
	default:
		return nil, fmt.Errorf("cannot write into %T", parent)
	}
}

// arrayIndex parses an array reference token. When appendOK is true the token
// "-" and the index equal to length address the append position.
func arrayIndex(tok string, length int, appendOK bool) (int, error) {
	if tok == "-" {
		if !appendOK {
			return 0, errors.New(`index "-" only valid for add`)
		}
		return length, nil
	}
	if len(tok) > 1 && tok[0] == '0' {
		return 0, fmt.Errorf("invalid array index %q", tok)
	}
	idx, err := strconv.Atoi(tok)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid array index %q", tok)
	}
	limit := length
	if !appendOK {
		limit = length - 1
	}
	if idx > limit {
		return 0, fmt.Errorf("array index %d out of bounds (len %d)", idx, length)
	}
	return idx, nil
}

func join(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range tokens {
		t = strings.ReplaceAll(t, "~", "~0")
		t = strings.ReplaceAll(t, "/", "~1")
		b.WriteByte('/')
		b.WriteString(t)
	}
	return b.String()
}

// clone deep-copies a JSON value tree.
func clone(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = clone(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = clone(val)
		}
		return out
	default:
		return v
	}
}
