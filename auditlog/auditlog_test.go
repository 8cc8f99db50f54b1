package auditlog_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mickamy/deltatrail/auditlog"
	"github.com/mickamy/deltatrail/delta"
)

func sampleEntries() []delta.Entry {
	return []delta.Entry{
		{
			UpdatedOn:   "Mon Jan  1 00:01:40 2024",
			Timestamp:   100,
			ID:          "1",
			Created:     map[string]any{},
			Updated:     map[string]delta.Change{"name": {From: "a", To: "b"}},
			Deleted:     map[string]any{},
			OldSnapshot: delta.Snapshot{"id": json.Number("1"), "name": "a"},
		},
		{
			UpdatedOn:   "Mon Jan  1 00:03:20 2024",
			Timestamp:   200.25,
			ID:          "",
			Created:     map[string]any{"tags": []any{"x", json.Number("2")}, "meta": map[string]any{}},
			Updated:     map[string]delta.Change{},
			Deleted:     map[string]any{"address.city": nil},
			OldSnapshot: delta.Snapshot{"address.city": nil},
		},
	}
}

var equateEmpty = cmpopts.EquateEmpty()

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	want := sampleEntries()
	log, err := auditlog.Append(nil, want...)
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	got, err := auditlog.Decode(log, true)
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	if diff := cmp.Diff(want, got, equateEmpty); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_WithoutSnapshot(t *testing.T) {
	t.Parallel()

	log, err := auditlog.Append(nil, sampleEntries()...)
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	got, err := auditlog.Decode(log, false)
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	for i, e := range got {
		if e.OldSnapshot != nil {
			t.Fatalf("entry %d: OldSnapshot = %v, want nil", i, e.OldSnapshot)
		}
	}
}

func TestAppend_PreservesHistory(t *testing.T) {
	t.Parallel()

	entries := sampleEntries()
	first, err := auditlog.Append(nil, entries[0])
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	snapshot := append([]byte(nil), first...)

	second, err := auditlog.Append(first, entries[1])
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	if !bytes.Equal(first, snapshot) {
		t.Fatal("Append modified its input")
	}
	if !bytes.HasPrefix(second, first) {
		t.Fatal("appended log does not start with the previous log")
	}

	got, err := auditlog.Decode(second, true)
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Decode returned %d entries, want 2", len(got))
	}
	if diff := cmp.Diff(entries[0], got[0], equateEmpty); diff != "" {
		t.Fatalf("first entry changed (-want +got):\n%s", diff)
	}
}

func TestRecordFieldOrder(t *testing.T) {
	t.Parallel()

	log, err := auditlog.Append(nil, sampleEntries()[0])
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	line := string(log)
	order := []string{
		auditlog.FieldUpdatedOn,
		auditlog.FieldTimestamp,
		auditlog.FieldID,
		auditlog.FieldUpdated,
		auditlog.FieldDeleted,
		auditlog.FieldCreated,
		auditlog.FieldSnapshot,
	}
	last := -1
	for _, f := range order {
		i := strings.Index(line, `"`+f+`":`)
		if i <= last {
			t.Fatalf("field %q out of order in %s", f, line)
		}
		last = i
	}
	if !strings.Contains(line, `"timestamp":"100"`) {
		t.Fatalf("timestamp not stored as decimal string: %s", line)
	}
}

func TestTornTail(t *testing.T) {
	t.Parallel()

	entries := sampleEntries()
	log, err := auditlog.Append(nil, entries[0])
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	full, err := auditlog.Append(log, entries[1])
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	torn := full[:len(log)+10]

	got, err := auditlog.Decode(torn, true)
	if err != nil {
		t.Fatalf("Decode(torn) error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Decode(torn) returned %d entries, want 1", len(got))
	}

	clean, dropped := auditlog.TrimTorn(torn)
	if dropped != 10 || !bytes.Equal(clean, log) {
		t.Fatalf("TrimTorn dropped %d bytes, want 10", dropped)
	}

	repaired, err := auditlog.Append(torn, entries[1])
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	got, err = auditlog.Decode(repaired, true)
	if err != nil {
		t.Fatalf("Decode(repaired) error = %v", err)
	}
	if diff := cmp.Diff(entries, got, equateEmpty); diff != "" {
		t.Fatalf("repaired log mismatch (-want +got):\n%s", diff)
	}
}

func TestTrimTorn_CompleteWithoutNewline(t *testing.T) {
	t.Parallel()

	log, err := auditlog.Append(nil, sampleEntries()[0])
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	noNewline := bytes.TrimRight(log, "\n")

	clean, dropped := auditlog.TrimTorn(noNewline)
	if dropped != 0 || !bytes.Equal(clean, noNewline) {
		t.Fatalf("TrimTorn dropped %d bytes of a complete record", dropped)
	}
	out, err := auditlog.Append(noNewline, sampleEntries()[1])
	if err != nil {
		t.Fatalf("Append error = %v", err)
	}
	got, err := auditlog.Decode(out, false)
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Decode returned %d entries, want 2", len(got))
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	valid := `{"updated_on":"x","timestamp":"1","id":"1","updated":"{}","deleted":"{}","created":"{}","snapshot":"{}"}`

	tcs := []struct {
		name      string
		log       string
		wantLine  int
		wantField string
	}{
		{name: "malformed record", log: valid + "\n{not json}\n", wantLine: 2},
		{name: "unknown record field", log: `{"updated_on":"x","extra":"1"}` + "\n", wantLine: 1},
		{name: "bad timestamp", log: strings.Replace(valid, `"timestamp":"1"`, `"timestamp":"soon"`, 1) + "\n", wantLine: 1, wantField: auditlog.FieldTimestamp},
		{name: "executable text", log: strings.Replace(valid, `"updated":"{}"`, `"updated":"__import__('os')"`, 1) + "\n", wantLine: 1, wantField: auditlog.FieldUpdated},
		{name: "trailing data", log: strings.Replace(valid, `"deleted":"{}"`, `"deleted":"{} {}"`, 1) + "\n", wantLine: 1, wantField: auditlog.FieldDeleted},
		{name: "empty created", log: strings.Replace(valid, `"created":"{}"`, `"created":""`, 1) + "\n", wantLine: 1, wantField: auditlog.FieldCreated},
		{name: "unknown change field", log: strings.Replace(valid, `"updated":"{}"`, `"updated":"{\"a\":{\"was\":1}}"`, 1) + "\n", wantLine: 1, wantField: auditlog.FieldUpdated},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := auditlog.Decode([]byte(tc.log), true)
			var de *auditlog.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("Decode error = %v, want *DecodeError", err)
			}
			if de.Line != tc.wantLine || de.Field != tc.wantField {
				t.Fatalf("DecodeError = {Line:%d Field:%q}, want {Line:%d Field:%q}", de.Line, de.Field, tc.wantLine, tc.wantField)
			}
		})
	}
}

func TestDecode_SkipsBlankLinesAndIgnoresSnapshotWhenNotRequested(t *testing.T) {
	t.Parallel()

	log := "\n" + `{"updated_on":"x","timestamp":"1.5","id":"9","updated":"{}","deleted":"{}","created":"{\"a\":1}","snapshot":"garbage"}` + "\n\n"
	got, err := auditlog.Decode([]byte(log), false)
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	want := []delta.Entry{{
		UpdatedOn: "x",
		Timestamp: 1.5,
		ID:        "9",
		Created:   map[string]any{"a": json.Number("1")},
		Updated:   map[string]delta.Change{},
		Deleted:   map[string]any{},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Decode mismatch (-want +got):\n%s", diff)
	}

	if _, err := auditlog.Decode([]byte(log), true); err == nil {
		t.Fatal("Decode with snapshot error = nil, want error for garbage snapshot")
	}
}
