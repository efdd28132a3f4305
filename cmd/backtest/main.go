package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"options-spread-lab/internal/app"
	"options-spread-lab/internal/backtest"
	"options-spread-lab/internal/config"
	"options-spread-lab/internal/logging"
	"options-spread-lab/internal/metrics"
	"options-spread-lab/internal/reporting"
	"options-spread-lab/internal/verification"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file with OSL_* settings")
	from := flag.String("from", "", "First entry date YYYY-MM-DD (default: first available)")
	to := flag.String("to", "", "Last entry date YYYY-MM-DD (default: last available)")
	outputDir := flag.String("output-dir", "", "Report directory (overrides OSL_OUTPUT_DIR)")
	verify := flag.Bool("verify", false, "Replay every stored trade and report divergences")
	outputJSON := flag.Bool("json", false, "Print the run summary as JSON")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *outputDir != "" {
		cfg.App.OutputDir = *outputDir
	}

	logger, err := logging.New(cfg.App.LogLevel, cfg.App.LogFormat, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	loc := cfg.Strategy.Location()
	fromDate, err := parseDate(*from, loc)
	if err != nil {
		logger.Fatalf("--from: %v", err)
	}
	toDate, err := parseDate(*to, loc)
	if err != nil {
		logger.Fatalf("--to: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Warn("shutting down")
		cancel()
	}()

	opts := app.Options{FixtureFrom: fromDate}
	if !toDate.IsZero() {
		// Leave room for the session after the last entry date.
		opts.FixtureTo = toDate.AddDate(0, 0, 7)
	}
	env, err := app.Open(ctx, cfg, logger, opts)
	if err != nil {
		logger.Fatalf("open: %v", err)
	}
	defer env.Close()

	runner, err := backtest.NewRunner(env.Manager, env.Provider, env.Store, logger)
	if err != nil {
		logger.Fatalf("runner: %v", err)
	}

	result, err := runner.Run(ctx, backtest.RunRequest{From: fromDate, To: toDate})
	if err != nil {
		logger.Fatalf("backtest failed: %v", err)
	}

	report := reporting.NewGenerator(env.Store, cfg.Strategy).Build(result.RunID, result.Trades)
	files, err := reporting.WriteFiles(cfg.App.OutputDir, report)
	if err != nil {
		logger.Fatalf("write reports: %v", err)
	}
	for _, f := range files {
		logger.WithField("file", f).Info("report written")
	}

	verified := true
	if *verify {
		verified = runVerification(ctx, env, result.RunID, logger)
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(result.Summary, "", "  ")
		fmt.Println(string(output))
	} else {
		printSummary(result.Summary)
	}

	if !verified {
		env.Close()
		os.Exit(1)
	}
}

func runVerification(ctx context.Context, env *app.Env, runID string, logger logrus.FieldLogger) bool {
	verifier := verification.NewReplayVerifier(env.Store, env.Manager)
	report, err := verifier.VerifyRun(ctx, runID)
	if err != nil {
		logger.Errorf("verification failed: %v", err)
		return false
	}

	for _, r := range report.Results {
		if r.Match {
			continue
		}
		for _, d := range r.Divergences {
			logger.WithFields(logrus.Fields{
				"trade_id": r.TradeID,
				"field":    d.Field,
				"stored":   d.Expected,
				"replayed": d.Actual,
			}).Warn("replay divergence")
		}
	}
	logger.WithFields(logrus.Fields{
		"trades":    report.TotalTrades,
		"matched":   report.MatchedTrades,
		"divergent": report.DivergentTrades,
	}).Info("verification done")
	return report.DivergentTrades == 0
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", v, loc)
}

// printSummary prints the headline numbers of a run.
func printSummary(s *metrics.Summary) {
	fmt.Println("=== Backtest Summary ===")
	fmt.Printf("Run ID:           %s\n", s.RunID)
	fmt.Printf("Trading days:     %d\n", s.TradingDays)
	fmt.Printf("Closed trades:    %d\n", s.ClosedTrades)
	fmt.Printf("Failed trades:    %d\n", s.FailedTrades)
	fmt.Printf("Win rate:         %.2f%%\n", s.WinRate*100)
	fmt.Printf("Total PnL:        %.2f\n", s.TotalPnL)
	fmt.Printf("Average PnL:      %.2f\n", s.AvgPnL)
	fmt.Printf("Best / worst:     %.2f / %.2f\n", s.BestPnL, s.WorstPnL)
	fmt.Printf("Max drawdown:     %.2f\n", s.MaxDrawdown)
	fmt.Printf("Max losing run:   %d\n", s.MaxConsecutiveLosses)
}
