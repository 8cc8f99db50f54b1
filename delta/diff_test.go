package delta_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mickamy/deltatrail/delta"
)

func mustFlatten(t *testing.T, r map[string]any) delta.Snapshot {
	t.Helper()
	s, err := delta.Flatten(r)
	if err != nil {
		t.Fatalf("Flatten(%v) error = %v", r, err)
	}
	return s
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name   string
		before map[string]any
		after  map[string]any
		want   delta.Entry
	}{
		{
			name:   "updated value",
			before: map[string]any{"id": 1, "name": "a"},
			after:  map[string]any{"id": 1, "name": "b"},
			want: delta.Entry{
				ID:      "1",
				Created: map[string]any{},
				Updated: map[string]delta.Change{"name": {From: "a", To: "b"}},
				Deleted: map[string]any{},
			},
		},
		{
			name:   "deleted path",
			before: map[string]any{"id": 2, "a": 1},
			after:  map[string]any{"id": 2},
			want: delta.Entry{
				ID:      "2",
				Created: map[string]any{},
				Updated: map[string]delta.Change{},
				Deleted: map[string]any{"a": json.Number("1")},
			},
		},
		{
			name:   "created path",
			before: map[string]any{"id": 3},
			after:  map[string]any{"id": 3, "b": 5},
			want: delta.Entry{
				ID:      "3",
				Created: map[string]any{"b": json.Number("5")},
				Updated: map[string]delta.Change{},
				Deleted: map[string]any{},
			},
		},
		{
			name:   "nested and list",
			before: map[string]any{"id": "u1", "address": map[string]any{"city": "Tokyo"}, "tags": []any{"a"}},
			after:  map[string]any{"id": "u1", "address": map[string]any{"city": "Tokyo", "zip": "100"}, "tags": []any{"a", "b"}},
			want: delta.Entry{
				ID:      "u1",
				Created: map[string]any{"address.zip": "100"},
				Updated: map[string]delta.Change{"tags": {From: []any{"a"}, To: []any{"a", "b"}}},
				Deleted: map[string]any{},
			},
		},
		{
			name:   "missing primary key",
			before: map[string]any{"name": "a"},
			after:  map[string]any{"id": 9, "name": "a"},
			want: delta.Entry{
				Created: map[string]any{"id": json.Number("9")},
				Updated: map[string]delta.Change{},
				Deleted: map[string]any{},
			},
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := delta.Diff(mustFlatten(t, tc.before), mustFlatten(t, tc.after), "id")
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("Diff mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiff_Partition(t *testing.T) {
	t.Parallel()

	before := mustFlatten(t, map[string]any{"id": 1, "a": 1, "b": 2, "c": map[string]any{"d": 3, "e": 4}})
	after := mustFlatten(t, map[string]any{"id": 1, "a": 1, "b": 3, "c": map[string]any{"e": 4, "f": 5}, "g": 6})

	e := delta.Diff(before, after, "id")

	union := map[string]bool{}
	for p := range before {
		union[p] = true
	}
	for p := range after {
		union[p] = true
	}

	seen := map[string]int{}
	for p := range e.Created {
		seen[p]++
	}
	for p := range e.Updated {
		seen[p]++
	}
	for p := range e.Deleted {
		seen[p]++
	}
	for p := range union {
		bv, inBefore := before[p]
		av, inAfter := after[p]
		if inBefore && inAfter && cmp.Equal(bv, av) {
			seen[p]++
		}
	}

	for p := range union {
		if seen[p] != 1 {
			t.Fatalf("path %q counted %d times, want exactly once", p, seen[p])
		}
	}
	if len(seen) != len(union) {
		t.Fatalf("partition covers %d paths, want %d", len(seen), len(union))
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	start := delta.Snapshot{"id": "7", "x": json.Number("1"), "y": "gone"}
	e := delta.Entry{
		Created: map[string]any{"z": true},
		Updated: map[string]delta.Change{"x": {From: json.Number("1"), To: json.Number("2")}},
		Deleted: map[string]any{"y": "gone"},
	}

	got := delta.Apply(start, e)
	want := delta.Snapshot{"id": "7", "x": json.Number("2"), "z": true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Apply mismatch (-want +got):\n%s", diff)
	}
	if _, ok := start["z"]; ok {
		t.Fatal("Apply mutated its input")
	}
}

func TestApply_InvertsDiff(t *testing.T) {
	t.Parallel()

	before := mustFlatten(t, map[string]any{"id": 1, "a": map[string]any{"b": 1, "c": 2}, "d": "x"})
	after := mustFlatten(t, map[string]any{"id": 1, "a": map[string]any{"b": 9}, "e": []any{1}})

	got := delta.Apply(before, delta.Diff(before, after, "id"))
	if diff := cmp.Diff(after, got); diff != "" {
		t.Fatalf("Apply(Diff) mismatch (-want +got):\n%s", diff)
	}
}

func TestIDOf(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name   string
		in     delta.Snapshot
		want   string
		wantOK bool
	}{
		{name: "string", in: delta.Snapshot{"id": "abc"}, want: "abc", wantOK: true},
		{name: "number", in: delta.Snapshot{"id": json.Number("42")}, want: "42", wantOK: true},
		{name: "bool", in: delta.Snapshot{"id": true}, want: "true", wantOK: true},
		{name: "missing", in: delta.Snapshot{"name": "a"}},
		{name: "null", in: delta.Snapshot{"id": nil}},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := delta.IDOf(tc.in, "id")
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("IDOf(%v) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestEntry_Nested(t *testing.T) {
	t.Parallel()

	e := delta.Entry{
		Created: map[string]any{"address.zip": "100"},
		Updated: map[string]delta.Change{"address.city": {From: "Tokyo", To: "Osaka"}},
		Deleted: map[string]any{},
	}
	got, err := e.Nested()
	if err != nil {
		t.Fatalf("Nested error = %v", err)
	}
	want := delta.Nested{
		Created: map[string]any{"address": map[string]any{"zip": "100"}},
		Updated: map[string]any{"address": map[string]any{"city": delta.Change{From: "Tokyo", To: "Osaka"}}},
		Deleted: map[string]any{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Nested mismatch (-want +got):\n%s", diff)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "same text", a: json.Number("1"), b: json.Number("1"), want: true},
		{name: "trailing zero", a: json.Number("1"), b: json.Number("1.0"), want: true},
		{name: "exponent", a: json.Number("100"), b: json.Number("1e2"), want: true},
		{name: "number and float", a: json.Number("2.5"), b: 2.5, want: true},
		{name: "different numbers", a: json.Number("1"), b: json.Number("1.5"), want: false},
		{name: "number and string", a: json.Number("1"), b: "1", want: false},
		{name: "arrays", a: []any{json.Number("1"), "x"}, b: []any{json.Number("1.00"), "x"}, want: true},
		{name: "arrays of different length", a: []any{json.Number("1")}, b: []any{}, want: false},
		{name: "objects", a: map[string]any{"n": json.Number("3")}, b: map[string]any{"n": json.Number("3.0")}, want: true},
		{name: "strings", a: "a", b: "a", want: true},
		{name: "nil", a: nil, b: nil, want: true},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := delta.Equal(tc.a, tc.b); got != tc.want {
				t.Fatalf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestDiff_NumericEquality(t *testing.T) {
	t.Parallel()

	before := delta.Snapshot{"id": json.Number("1"), "price": json.Number("1")}
	after := delta.Snapshot{"id": json.Number("1"), "price": json.Number("1.0")}

	if e := delta.Diff(before, after, "id"); !e.Empty() {
		t.Fatalf("Diff(1, 1.0) = %+v, want no changes", e)
	}
}
