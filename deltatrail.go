package deltatrail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mickamy/deltatrail/auditlog"
	"github.com/mickamy/deltatrail/blob"
	"github.com/mickamy/deltatrail/delta"
	"github.com/mickamy/deltatrail/internal/ident"
	"github.com/mickamy/deltatrail/lock"
)

// RedactFunc defines a function used to sanitize or mask values before diffing.
type RedactFunc func(path string, v any) any

// RedactMap maps flattened paths to specific redaction functions.
type RedactMap map[string]RedactFunc

// Config defines the main configuration options for a Tracker.
type Config struct {
	Name       string         // log name, e.g. "orders"
	Model      any            // derives Name when Name is empty, see NameOf
	Dir        string         // storage key prefix
	PrimaryKey string         // default: "id", then "<singular name>_id"
	Redact     RedactMap      // optional path-keyed redaction
	Locker     lock.Locker    // serializes writes; nil leaves it to the caller
	Logger     *zap.Logger    // default: no-op
	Clock      func() time.Time
	Location   *time.Location // day boundaries for OfDate/Today/Since; default time.Local
}

// Tracker appends deltas of one kind of record to a single log and queries it.
//
// Every write downloads the whole log, appends, and uploads it again. Two
// writers racing that sequence lose one of the appends unless a Locker
// (or an equivalent external lock) serializes them.
type Tracker struct {
	cfg          Config
	store        blob.Store
	key          string
	pkCandidates []string
}

// Open resolves the log's storage key and creates the log when it does not
// exist yet.
func Open(ctx context.Context, store blob.Store, cfg Config) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("deltatrail: nil store")
	}
	if cfg.Name == "" && cfg.Model != nil {
		name, err := NameOf(cfg.Model)
		if err != nil {
			return nil, err
		}
		cfg.Name = name
	}
	key := ident.LogKey(cfg.Dir, cfg.Name, auditlog.Extension)
	if key == "" {
		return nil, fmt.Errorf("deltatrail: invalid log name %q", cfg.Name)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Redact == nil {
		cfg.Redact = RedactMap{}
	}

	t := &Tracker{cfg: cfg, store: store, key: key}
	if cfg.PrimaryKey != "" {
		t.pkCandidates = []string{cfg.PrimaryKey}
	} else {
		t.pkCandidates = ident.PrimaryKeyCandidates(cfg.Name)
	}
	t.cfg.Logger = cfg.Logger.With(zap.String("log", key))

	if err := t.ensure(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Key returns the storage key of the log.
func (t *Tracker) Key() string { return t.key }

func (t *Tracker) ensure(ctx context.Context) error {
	_, err := t.store.Get(ctx, t.key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, blob.ErrNotFound) {
		return &Error{Op: OpBlob, Err: &blob.UnavailableError{Op: "get", Key: t.key, Err: err}}
	}
	if err := t.store.Put(ctx, t.key, []byte{}); err != nil {
		return &Error{Op: OpBlob, Err: &blob.UnavailableError{Op: "put", Key: t.key, Err: err}}
	}
	t.cfg.Logger.Info("created empty audit log")
	return nil
}

// Track records the change from oldRecord to newRecord and returns the
// appended entry. Nothing is recorded when ctx carries WithSkip.
func (t *Tracker) Track(ctx context.Context, oldRecord, newRecord any) (delta.Entry, error) {
	if extractSkip(ctx) {
		return delta.Entry{}, nil
	}
	e, err := t.entry(ctx, oldRecord, newRecord)
	if err != nil {
		return delta.Entry{}, err
	}
	if err := t.commit(ctx, []delta.Entry{e}); err != nil {
		return delta.Entry{}, err
	}
	return e, nil
}

// entry builds the delta between two records, stamped with the current time.
func (t *Tracker) entry(ctx context.Context, oldRecord, newRecord any) (delta.Entry, error) {
	before, err := delta.Flatten(oldRecord)
	if err != nil {
		return delta.Entry{}, &Error{Op: OpFlatten, Err: err}
	}
	after, err := delta.Flatten(newRecord)
	if err != nil {
		return delta.Entry{}, &Error{Op: OpFlatten, Err: err}
	}
	before = t.applyRedact(before)
	after = t.applyRedact(after)

	pk := t.primaryKey(before)
	e := delta.Diff(before, after, pk)
	if e.ID == "" {
		t.cfg.Logger.Debug("record has no primary key, entry will not match id lookups",
			append(extractMeta(ctx).fields(), zap.Strings("tried", t.pkCandidates))...)
	}
	if e.Empty() {
		t.cfg.Logger.Debug("record unchanged, recording empty entry", zap.String("id", e.ID))
	}
	now := t.cfg.Clock()
	e.UpdatedOn = now.In(t.cfg.Location).Format(time.ANSIC)
	e.Timestamp = epoch(now)
	e.OldSnapshot = before
	return e, nil
}

// primaryKey picks the first candidate key present in s.
func (t *Tracker) primaryKey(s delta.Snapshot) string {
	for _, k := range t.pkCandidates {
		if _, ok := s[k]; ok {
			return k
		}
	}
	return t.pkCandidates[0]
}

// applyRedact returns a redacted copy of s using cfg.Redact.
func (t *Tracker) applyRedact(s delta.Snapshot) delta.Snapshot {
	if s == nil || len(t.cfg.Redact) == 0 {
		return s
	}
	out := make(delta.Snapshot, len(s))
	for p, v := range s {
		if fn, ok := t.cfg.Redact[p]; ok && fn != nil {
			out[p] = fn(p, v)
		} else {
			out[p] = v
		}
	}
	return out
}

// commit appends entries with a single download-append-upload, holding the
// configured lock for the whole sequence.
func (t *Tracker) commit(ctx context.Context, entries []delta.Entry) (err error) {
	if t.cfg.Locker != nil {
		unlock, lerr := t.cfg.Locker.Lock(ctx, t.key)
		if lerr != nil {
			return &Error{Op: OpLock, Err: lerr}
		}
		defer func() {
			if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
				t.cfg.Logger.Warn("failed to release write lock", zap.Error(uerr))
				if err == nil {
					err = &Error{Op: OpLock, Err: uerr}
				}
			}
		}()
	}

	current, err := t.load(ctx)
	if err != nil {
		return err
	}
	clean, dropped := auditlog.TrimTorn(current)
	if dropped > 0 {
		t.cfg.Logger.Warn("dropping torn trailing record", zap.Int("bytes", dropped))
	}
	out, err := auditlog.Append(clean, entries...)
	if err != nil {
		return &Error{Op: OpEncode, Err: err}
	}
	if err := t.store.Put(ctx, t.key, out); err != nil {
		return &Error{Op: OpBlob, Err: &blob.UnavailableError{Op: "put", Key: t.key, Err: err}}
	}

	fields := append(extractMeta(ctx).fields(), zap.Int("entries", len(entries)), zap.Int("bytes", len(out)))
	t.cfg.Logger.Debug("appended audit entries", fields...)
	return nil
}

func (t *Tracker) load(ctx context.Context) ([]byte, error) {
	b, err := t.store.Get(ctx, t.key)
	if err != nil {
		return nil, &Error{Op: OpBlob, Err: &blob.UnavailableError{Op: "get", Key: t.key, Err: err}}
	}
	return b, nil
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
