package delta

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
)

// Diff computes the structural delta between two snapshots. The entry's ID
// is before[primaryKey] rendered as a string, or empty when before lacks it.
// UpdatedOn and Timestamp are left for the caller to fill.
func Diff(before, after Snapshot, primaryKey string) Entry {
	e := Entry{
		Created: map[string]any{},
		Updated: map[string]Change{},
		Deleted: map[string]any{},
	}
	e.ID, _ = IDOf(before, primaryKey)

	for p, nv := range after {
		ov, ok := before[p]
		if !ok {
			e.Created[p] = nv
			continue
		}
		if !Equal(ov, nv) {
			e.Updated[p] = Change{From: ov, To: nv}
		}
	}
	for p, ov := range before {
		if _, ok := after[p]; !ok {
			e.Deleted[p] = ov
		}
	}
	return e
}

// Equal reports whether two leaf values are the same. Numbers compare by
// value, so json.Number("1") equals json.Number("1.0") and float64(1).
// Arrays and objects compare element-wise under the same rule.
func Equal(a, b any) bool {
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x.Cmp(y) == 0
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// number returns v as an exact rational when it is numeric.
func number(v any) (*big.Rat, bool) {
	var s string
	switch n := v.(type) {
	case json.Number:
		s = n.String()
	case float64:
		s = strconv.FormatFloat(n, 'g', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(n), 'g', -1, 32)
	case int:
		s = strconv.Itoa(n)
	case int64:
		s = strconv.FormatInt(n, 10)
	default:
		return nil, false
	}
	r, ok := new(big.Rat).SetString(s)
	return r, ok
}

// Apply returns a copy of s with e's changes applied.
func Apply(s Snapshot, e Entry) Snapshot {
	out := make(Snapshot, len(s)+len(e.Created))
	for p, v := range s {
		out[p] = v
	}
	for p, v := range e.Created {
		out[p] = v
	}
	for p, c := range e.Updated {
		out[p] = c.To
	}
	for p := range e.Deleted {
		delete(out, p)
	}
	return out
}

// IDOf returns the primary key value of s as a string.
func IDOf(s Snapshot, primaryKey string) (string, bool) {
	if primaryKey == "" {
		return "", false
	}
	v, ok := s[primaryKey]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, true
	case json.Number:
		return id.String(), true
	case bool:
		return strconv.FormatBool(id), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	default:
		return fmt.Sprint(id), true
	}
}
