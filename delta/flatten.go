package delta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Separator joins nested key segments into a flat path.
const Separator = "."

// Snapshot is a flat view of a record: dotted path to leaf value.
type Snapshot map[string]any

// KeyCollisionError reports a key that makes a path ambiguous.
type KeyCollisionError struct {
	Key  string // offending key segment
	Path string // path at which the collision was detected
}

func (e *KeyCollisionError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("delta: path %q collides with an existing leaf", e.Path)
	}
	return fmt.Sprintf("delta: key %q at %q contains separator %q", e.Key, e.Path, Separator)
}

// Normalize converts v into its JSON value form: nil, bool, string,
// json.Number, []any and map[string]any.
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, json.Number:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("delta: failed to normalize %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("delta: failed to normalize %T: %w", v, err)
	}
	return out, nil
}

type frame struct {
	root   bool
	prefix string
	obj    map[string]any
}

// Flatten walks a nested record and returns its flat snapshot.
// Empty objects are kept as leaves so they survive Deflatten.
func Flatten(record any) (Snapshot, error) {
	n, err := Normalize(record)
	if err != nil {
		return nil, err
	}
	root, ok := n.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("delta: cannot flatten %T, want an object", record)
	}

	out := Snapshot{}
	stack := []frame{{root: true, obj: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for k, v := range f.obj {
			if strings.Contains(k, Separator) {
				return nil, &KeyCollisionError{Key: k, Path: f.prefix}
			}
			path := k
			if !f.root {
				// An empty key still contributes a segment: {"": {"b": 1}} is ".b".
				path = f.prefix + Separator + k
			}
			if m, ok := v.(map[string]any); ok && len(m) > 0 {
				stack = append(stack, frame{prefix: path, obj: m})
				continue
			}
			out[path] = v
		}
	}
	return out, nil
}

// Deflatten rebuilds the nested record described by s. A path that runs
// through an existing non-object leaf yields a *KeyCollisionError.
func Deflatten(s map[string]any) (map[string]any, error) {
	// Sorted so a prefix is always placed before the paths below it.
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := map[string]any{}
	owned := map[string]bool{}
	for _, p := range paths {
		segs := strings.Split(p, Separator)
		node := out
		for i, seg := range segs[:len(segs)-1] {
			prefix := strings.Join(segs[:i+1], Separator)
			next, exists := node[seg]
			if exists && !owned[prefix] {
				if m, ok := next.(map[string]any); !ok || len(m) > 0 {
					return nil, &KeyCollisionError{Path: prefix}
				}
				exists = false
			}
			if !exists {
				next = map[string]any{}
				node[seg] = next
				owned[prefix] = true
			}
			node = next.(map[string]any)
		}
		node[segs[len(segs)-1]] = s[p]
	}
	return out, nil
}
