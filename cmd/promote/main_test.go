package main

import (
	"flag"
	"io"
	"strings"
	"testing"
	"time"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("promote", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseOptionsOverridesPolicy(t *testing.T) {
	o, err := parseOptions(newFlagSet(), []string{
		"--db", "x.db", "--current", "40", "--window", "6h", "--min-samples", "12", "--tolerance", "1.25", "--json",
	})
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if o.dbPath != "x.db" || o.current != 40 || !o.jsonOut {
		t.Fatalf("unexpected options: %+v", o)
	}
	if o.policy.Window != 6*time.Hour || o.policy.MinSamples != 12 || o.policy.ElapsedTolerance != 1.25 {
		t.Fatalf("policy overrides not applied: %+v", o.policy)
	}
	if o.policy.PromoteStep != 20 {
		t.Fatalf("untouched thresholds should keep defaults: %+v", o.policy)
	}
}

func TestParseOptionsRequiresDB(t *testing.T) {
	if _, err := parseOptions(newFlagSet(), nil); err == nil {
		t.Fatal("expected error without --db")
	}
}

func TestMinSamplesHelpNamesCandidate(t *testing.T) {
	fs := newFlagSet()
	parseOptions(fs, []string{"--db", "x.db"})
	usage := fs.Lookup("min-samples").Usage
	if !strings.Contains(usage, "candidate") || strings.Contains(usage, "per variant") {
		t.Fatalf("min-samples help = %q", usage)
	}
}
