package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danielpatrickdp/tradeflow/go-controller/internal/logging"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/rollout"
	"github.com/danielpatrickdp/tradeflow/go-controller/internal/store"
)

// #region main

type options struct {
	dbPath  string
	current int
	audit   bool
	history int
	jsonOut bool
	policy  rollout.PromotionConfig
}

// parseOptions reads the command line into options. The promotion policy
// starts from the defaults and takes the threshold overrides.
func parseOptions(fs *flag.FlagSet, args []string) (options, error) {
	o := options{policy: rollout.DefaultPromotionConfig()}
	fs.StringVar(&o.dbPath, "db", "", "path to tradeflow.db")
	fs.IntVar(&o.current, "current", 0, "current rollout percentage (0-100)")
	fs.DurationVar(&o.policy.Window, "window", o.policy.Window, "sample window ending now")
	fs.IntVar(&o.policy.MinSamples, "min-samples", o.policy.MinSamples, "candidate samples required")
	fs.Float64Var(&o.policy.ElapsedTolerance, "tolerance", o.policy.ElapsedTolerance, "max candidate/baseline elapsed ratio")
	fs.BoolVar(&o.audit, "audit", false, "append the recommendation to the decision log")
	fs.IntVar(&o.history, "history", 0, "also show N most recent decision log entries")
	fs.BoolVar(&o.jsonOut, "json", false, "output as JSON instead of table")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.dbPath == "" {
		return o, errors.New("--db is required")
	}
	return o, nil
}

func main() {
	o, err := parseOptions(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		fmt.Fprintln(os.Stderr, "usage: promote --db path/to/tradeflow.db [--current N] [--window 24h] [--min-samples N] [--tolerance F] [--audit] [--history N] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(o.dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	outcomes, err := rollout.NewOutcomeStore(st.DB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open outcomes: %v\n", err)
		os.Exit(1)
	}

	var opts []rollout.EngineOption
	if o.audit {
		opts = append(opts, rollout.WithEngineObserver(logging.NewAuditor(st.DB())))
	}
	engine := rollout.NewPromotionEngine(o.policy, outcomes, rollout.FixedPercentage(o.current), opts...)

	rec, err := engine.Evaluate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var entries []logging.DecisionEntry
	if o.history > 0 {
		entries, err = logging.RecentDecisions(st.DB(), o.history)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	if o.jsonOut {
		printJSON(map[string]any{"recommendation": rec, "history": historyRows(entries)})
		return
	}
	printRecommendation(rec)
	if len(entries) > 0 {
		printHistory(entries)
	}
}

// #endregion main

// #region table

func printRecommendation(rec rollout.Recommendation) {
	fmt.Printf("Window: %s .. %s\n\n", rec.WindowStart.Format(time.RFC3339), rec.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("%-10s %-10s %8s %10s %10s %12s %12s\n", "VARIANT", "ARCH", "SAMPLES", "COMPLETED", "SUCCESS%", "AVG_ELAPSED", "AVG_CONF")
	fmt.Println(strings.Repeat("-", 78))
	for _, s := range []rollout.VariantStats{rec.Baseline, rec.Candidate} {
		fmt.Printf("%-10s %-10s %8d %10d %10.1f %11.1fs %12.2f\n",
			s.Variant, s.Variant.Architecture(), s.Count, s.Completed, s.SuccessRate, s.AvgElapsedSeconds, s.AvgConfidence)
	}
	fmt.Println()
	fmt.Printf("Action:     %s\n", rec.Action)
	fmt.Printf("Percentage: %d%% -> %d%%\n", rec.CurrentPercentage, rec.SuggestedPercentage)
	if len(rec.Reasons) > 0 {
		fmt.Println("Reasons:")
		for _, r := range rec.Reasons {
			fmt.Printf("  - %s\n", r)
		}
	}
}

func printHistory(entries []logging.DecisionEntry) {
	fmt.Println()
	fmt.Printf("%-20s %-20s %-26s %-18s %s\n", "CREATED", "KIND", "SUBJECT", "ACTION", "REASON")
	fmt.Println(strings.Repeat("-", 100))
	for _, e := range entries {
		fmt.Printf("%-20s %-20s %-26s %-18s %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, truncate(e.Subject, 26), e.Action, e.Reason)
	}
}

// #endregion table

// #region helpers

type historyRow struct {
	CreatedAt string `json:"created_at"`
	Kind      string `json:"kind"`
	Subject   string `json:"subject"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
}

func historyRows(entries []logging.DecisionEntry) []historyRow {
	rows := make([]historyRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, historyRow{
			CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
			Kind:      string(e.Kind),
			Subject:   e.Subject,
			Action:    e.Action,
			Reason:    e.Reason,
		})
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}

// #endregion helpers
