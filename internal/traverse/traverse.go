// Package traverse walks a record's field tree and rewrites string leaves.
package traverse

import (
	"github.com/celerix-dev/celerix-aci/pkg/schema"
)

// Direction selects which leaves a traversal rewrites.
type Direction int

const (
	// Transform rewrites references into portable references.
	Transform Direction = iota
	// Untransform rewrites portable references back into references.
	Untransform
)

func (d Direction) String() string {
	if d == Untransform {
		return "untransform"
	}
	return "transform"
}

// Matcher decides whether a string leaf is rewritten in direction d.
type Matcher func(d Direction, value string) bool

// RewriteFunc returns the replacement for a matched leaf. field is the key
// the leaf (or the array holding it) is stored under.
type RewriteFunc func(field, value string) (string, error)

// arrayKind is decided once per array, from its first element.
type arrayKind int

const (
	otherArray arrayKind = iota
	stringArray
	mapArray
)

func kindOf(arr []any) arrayKind {
	if len(arr) == 0 {
		return otherArray
	}
	switch arr[0].(type) {
	case string:
		return stringArray
	case map[string]any:
		return mapArray
	default:
		return otherArray
	}
}

type walker struct {
	dir     Direction
	match   Matcher
	rewrite RewriteFunc
}

// Tree returns a rewritten copy of tree. The input is never modified.
//
// In every map the "id" key is copied through untouched. Arrays are handled
// according to their first element: a leading string makes every string
// element a candidate, a leading map recurses into every map element, and
// anything else is copied as is. A mixed array such as [1, "http://..."]
// is therefore not rewritten.
func Tree(tree map[string]any, d Direction, m Matcher, fn RewriteFunc) (map[string]any, error) {
	w := walker{dir: d, match: m, rewrite: fn}
	return w.object(tree)
}

// Visit calls fn for every leaf Tree would rewrite in direction d.
func Visit(tree map[string]any, d Direction, m Matcher, fn func(field, value string)) {
	_, _ = Tree(tree, d, m, func(field, value string) (string, error) {
		fn(field, value)
		return value, nil
	})
}

func (w walker) object(in map[string]any) (map[string]any, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == schema.FieldID {
			out[k] = schema.CopyValue(v)
			continue
		}
		nv, err := w.value(k, v)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func (w walker) value(field string, v any) (any, error) {
	switch t := v.(type) {
	case string:
		return w.leaf(field, t)
	case map[string]any:
		return w.object(t)
	case []any:
		return w.array(field, t)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			ns, err := w.leaf(field, s)
			if err != nil {
				return nil, err
			}
			out[i] = ns
		}
		return out, nil
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			nm, err := w.object(e)
			if err != nil {
				return nil, err
			}
			out[i] = nm
		}
		return out, nil
	default:
		return schema.CopyValue(v), nil
	}
}

func (w walker) array(field string, arr []any) (any, error) {
	kind := kindOf(arr)
	out := make([]any, len(arr))
	for i, e := range arr {
		switch kind {
		case stringArray:
			if s, ok := e.(string); ok {
				ns, err := w.leaf(field, s)
				if err != nil {
					return nil, err
				}
				out[i] = ns
				continue
			}
		case mapArray:
			if m, ok := e.(map[string]any); ok {
				nm, err := w.object(m)
				if err != nil {
					return nil, err
				}
				out[i] = nm
				continue
			}
		}
		out[i] = schema.CopyValue(e)
	}
	return out, nil
}

func (w walker) leaf(field, s string) (string, error) {
	if w.match == nil || !w.match(w.dir, s) {
		return s, nil
	}
	return w.rewrite(field, s)
}
