package auditlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/mickamy/deltatrail/delta"
)

// Extension is the file extension used for audit log blobs.
const Extension = ".jsonl"

// Field names of a log record, in their fixed order.
const (
	FieldUpdatedOn = "updated_on"
	FieldTimestamp = "timestamp"
	FieldID        = "id"
	FieldUpdated   = "updated"
	FieldDeleted   = "deleted"
	FieldCreated   = "created"
	FieldSnapshot  = "snapshot"
)

// record is the on-disk shape of one log line. Field order is fixed by the
// struct; every field is a string.
type record struct {
	UpdatedOn string `json:"updated_on"`
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
	Updated   string `json:"updated"`
	Deleted   string `json:"deleted"`
	Created   string `json:"created"`
	Snapshot  string `json:"snapshot"`
}

// DecodeError reports a record or field that could not be parsed.
type DecodeError struct {
	Line  int    // 1-based line number in the log
	Field string // empty when the record itself is malformed
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("auditlog: line %d: malformed record: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("auditlog: line %d: field %q: %v", e.Line, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TrimTorn returns log cut after its last complete record, and the number of
// bytes dropped. A final line without a newline still counts as complete
// when it parses as a record.
func TrimTorn(log []byte) ([]byte, int) {
	if len(log) == 0 || log[len(log)-1] == '\n' {
		return log, 0
	}
	cut := bytes.LastIndexByte(log, '\n') + 1
	tail := bytes.TrimSpace(log[cut:])
	if len(tail) == 0 {
		return log[:cut], len(log) - cut
	}
	var r record
	if err := strictUnmarshal(tail, &r); err == nil {
		return log, 0
	}
	return log[:cut], len(log) - cut
}

// Append encodes entries and returns a new log with them after every
// complete record of log. log itself is never modified.
func Append(log []byte, entries ...delta.Entry) ([]byte, error) {
	base, _ := TrimTorn(log)

	var buf bytes.Buffer
	buf.Grow(len(base) + 256*len(entries))
	buf.Write(base)
	if n := len(base); n > 0 && base[n-1] != '\n' {
		buf.WriteByte('\n')
	}
	for i, e := range entries {
		line, err := encode(e)
		if err != nil {
			return nil, fmt.Errorf("auditlog: entry %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func encode(e delta.Entry) ([]byte, error) {
	updated, err := text(e.Updated)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", FieldUpdated, err)
	}
	deleted, err := text(e.Deleted)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", FieldDeleted, err)
	}
	created, err := text(e.Created)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", FieldCreated, err)
	}
	snapshot, err := text(e.OldSnapshot)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", FieldSnapshot, err)
	}
	return json.Marshal(record{
		UpdatedOn: e.UpdatedOn,
		Timestamp: strconv.FormatFloat(e.Timestamp, 'f', -1, 64),
		ID:        e.ID,
		Updated:   updated,
		Deleted:   deleted,
		Created:   created,
		Snapshot:  snapshot,
	})
}

// text renders a mapping as canonical JSON. encoding/json sorts map keys.
func text[V any](m map[string]V) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses every complete record of log in file order. The old
// snapshot is only decoded when withSnapshot is set.
func Decode(log []byte, withSnapshot bool) ([]delta.Entry, error) {
	var entries []delta.Entry
	line := 0
	for len(log) > 0 {
		line++
		var raw []byte
		complete := true
		if i := bytes.IndexByte(log, '\n'); i >= 0 {
			raw, log = log[:i], log[i+1:]
		} else {
			raw, log = log, nil
			complete = false
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}

		var r record
		if err := strictUnmarshal(raw, &r); err != nil {
			if !complete {
				// torn final write
				break
			}
			return nil, &DecodeError{Line: line, Err: err}
		}
		e, err := decodeRecord(r, withSnapshot)
		if err != nil {
			err.Line = line
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeRecord(r record, withSnapshot bool) (delta.Entry, *DecodeError) {
	e := delta.Entry{UpdatedOn: r.UpdatedOn, ID: r.ID}

	ts, err := strconv.ParseFloat(r.Timestamp, 64)
	if err != nil {
		return delta.Entry{}, &DecodeError{Field: FieldTimestamp, Err: err}
	}
	e.Timestamp = ts

	if err := parseText(r.Updated, &e.Updated); err != nil {
		return delta.Entry{}, &DecodeError{Field: FieldUpdated, Err: err}
	}
	if err := parseText(r.Deleted, &e.Deleted); err != nil {
		return delta.Entry{}, &DecodeError{Field: FieldDeleted, Err: err}
	}
	if err := parseText(r.Created, &e.Created); err != nil {
		return delta.Entry{}, &DecodeError{Field: FieldCreated, Err: err}
	}
	if withSnapshot {
		var snap map[string]any
		if err := parseText(r.Snapshot, &snap); err != nil {
			return delta.Entry{}, &DecodeError{Field: FieldSnapshot, Err: err}
		}
		e.OldSnapshot = snap
	}
	return e, nil
}

var errNotObject = errors.New("not a JSON object")

// parseText decodes one structural field. Only a single JSON object is
// accepted; numbers stay json.Number so values compare equal to the
// normalized snapshots they were taken from.
func parseText(s string, v any) error {
	b := bytes.TrimSpace([]byte(s))
	if len(b) == 0 || b[0] != '{' {
		return errNotObject
	}
	return strictUnmarshal(b, v)
}

func strictUnmarshal(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after value")
	}
	return nil
}
