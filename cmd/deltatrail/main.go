package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mickamy/deltatrail"
	"github.com/mickamy/deltatrail/internal/config"
	"github.com/mickamy/deltatrail/internal/logger"
)

const usage = `usage: deltatrail [flags] <command> [args]

commands:
  track OLD.json NEW.json   record the change between two JSON records
  all                       print every entry
  between START END         entries recorded in [START, END]
  date DAY                  entries recorded on DAY (YYYY-MM-DD)
  today                     entries recorded today
  since DAY                 entries from DAY through today
  id ID                     entries of one record
  op KIND                   entries with created, updated or deleted changes

START and END accept RFC 3339, YYYY-MM-DD or Unix seconds.

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("deltatrail", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	envFile := fs.String("env", ".env", "Dotenv file loaded when present")
	endpoints := fs.Bool("endpoints", false, "Collapse each record's entries into its net change")
	snapshot := fs.Bool("snapshot", false, "Include the pre-change snapshot (track, all)")
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	if *envFile != "" {
		if _, err := os.Stat(*envFile); err == nil {
			if err := godotenv.Load(*envFile); err != nil {
				_, _ = fmt.Fprintf(stderr, "failed to load %s: %v\n", *envFile, err)
				return 1
			}
		}
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	// Initialize logger
	log, err := logger.New(&cfg.Log, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	loc, err := time.LoadLocation(cfg.Trail.Location)
	if err != nil {
		log.Error("Invalid location", zap.String("location", cfg.Trail.Location), zap.Error(err))
		return 1
	}

	b, err := newBackend(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize backend", zap.Error(err))
		return 1
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("Failed to close backend", zap.Error(err))
		}
	}()

	tr, err := deltatrail.Open(ctx, b.store, deltatrail.Config{
		Name:       cfg.Trail.Name,
		Dir:        cfg.Trail.Dir,
		PrimaryKey: cfg.Trail.PrimaryKey,
		Locker:     b.locker,
		Logger:     log,
		Location:   loc,
	})
	if err != nil {
		log.Error("Failed to open audit log", zap.Error(err))
		return 1
	}

	c := command{
		tracker:  tr,
		loc:      loc,
		snapshot: *snapshot,
	}
	if *endpoints {
		c.opts = append(c.opts, deltatrail.WithEndpoints())
	}

	out, err := c.exec(ctx, fs.Arg(0), fs.Args()[1:])
	if err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			fs.Usage()
			return 2
		}
		log.Error("Command failed", zap.String("command", fs.Arg(0)), zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Error("Failed to write output", zap.Error(err))
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

type command struct {
	tracker  *deltatrail.Tracker
	loc      *time.Location
	snapshot bool
	opts     []deltatrail.QueryOption
}

func (c command) exec(ctx context.Context, name string, args []string) (any, error) {
	want := func(n int) error {
		if len(args) != n {
			return usageError(fmt.Sprintf("%s: expected %d argument(s), got %d", name, n, len(args)))
		}
		return nil
	}

	switch name {
	case "track":
		if err := want(2); err != nil {
			return nil, err
		}
		before, err := readRecord(args[0])
		if err != nil {
			return nil, err
		}
		after, err := readRecord(args[1])
		if err != nil {
			return nil, err
		}
		e, err := c.tracker.Track(ctx, before, after)
		if err != nil {
			return nil, err
		}
		if !c.snapshot {
			e.OldSnapshot = nil
		}
		return e, nil

	case "all":
		if err := want(0); err != nil {
			return nil, err
		}
		if len(c.opts) > 0 {
			return c.tracker.Query(ctx, c.opts...)
		}
		return c.tracker.All(ctx, c.snapshot)

	case "between":
		if err := want(2); err != nil {
			return nil, err
		}
		start, err := parseInstant(args[0], c.loc)
		if err != nil {
			return nil, err
		}
		end, err := parseInstant(args[1], c.loc)
		if err != nil {
			return nil, err
		}
		return c.tracker.Between(ctx, start, end, c.opts...)

	case "date", "since":
		if err := want(1); err != nil {
			return nil, err
		}
		day, err := time.ParseInLocation(time.DateOnly, args[0], c.loc)
		if err != nil {
			return nil, usageError(fmt.Sprintf("%s: invalid day %q, want YYYY-MM-DD", name, args[0]))
		}
		if name == "date" {
			return c.tracker.OfDate(ctx, day, c.opts...)
		}
		return c.tracker.Since(ctx, day, c.opts...)

	case "today":
		if err := want(0); err != nil {
			return nil, err
		}
		return c.tracker.Today(ctx, c.opts...)

	case "id":
		if err := want(1); err != nil {
			return nil, err
		}
		return c.tracker.ByID(ctx, args[0], c.opts...)

	case "op":
		if err := want(1); err != nil {
			return nil, err
		}
		op, err := deltatrail.ParseOperation(args[0])
		if err != nil {
			return nil, usageError(err.Error())
		}
		return c.tracker.ByOperation(ctx, op, c.opts...)
	}
	return nil, usageError(fmt.Sprintf("unknown command %q", name))
}

func readRecord(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var rec map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("parse record %s: %w", path, err)
	}
	if rec == nil {
		rec = map[string]any{}
	}
	return rec, nil
}

func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(0, int64(secs*1e9)), nil
	}
	return time.Time{}, usageError(fmt.Sprintf("invalid time %q", s))
}
