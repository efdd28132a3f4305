// Package main checks tick data coverage for every trading date and prints
// a Markdown report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"options-spread-lab/internal/app"
	"options-spread-lab/internal/config"
	"options-spread-lab/internal/domain"
	"options-spread-lab/internal/logging"
	"options-spread-lab/internal/quality"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file with OSL_* settings")
	dates := flag.String("dates", "", "Comma-separated dates YYYY-MM-DD (default: all trading dates)")
	minTicks := flag.Int("min-spot-ticks", quality.DefaultMinSpotTicks, "Spot ticks below which a date is flagged")
	strike := flag.Float64("strike", 0, "Also inspect this strike (requires -expiry and -type)")
	optionType := flag.String("type", "", "Option type for -strike: PE or CE")
	expiry := flag.String("expiry", "", "Expiry YYYY-MM-DD for -strike")
	output := flag.String("o", "", "Write the report to this file instead of stdout")
	strict := flag.Bool("strict", false, "Exit 1 when any date is flagged")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.App.LogLevel, cfg.App.LogFormat, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	loc := cfg.Strategy.Location()
	selected, err := parseDates(*dates, loc)
	if err != nil {
		logger.Fatalf("--dates: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := app.Open(ctx, cfg, logger, app.Options{SkipTradeStore: true})
	if err != nil {
		logger.Fatalf("open: %v", err)
	}
	defer env.Close()

	checker := quality.NewChecker(env.Provider, cfg.Strategy).WithMinSpotTicks(*minTicks)
	report, err := checker.Check(ctx, selected)
	if err != nil {
		logger.Fatalf("check: %v", err)
	}

	var sb strings.Builder
	sb.WriteString(quality.RenderMarkdown(report))

	if *strike > 0 {
		exp, err := time.ParseInLocation("2006-01-02", *expiry, loc)
		if err != nil {
			logger.Fatalf("--expiry: %v", err)
		}
		c := domain.Contract{
			Underlying: cfg.Strategy.Underlying,
			Strike:     *strike,
			OptionType: domain.OptionType(strings.ToUpper(*optionType)),
			Expiry:     exp,
		}
		if !c.OptionType.IsValid() {
			logger.Fatalf("--type must be PE or CE, got %q", *optionType)
		}
		sb.WriteString("\n## Contract Coverage\n\n")
		sb.WriteString("| Contract | Date | Ticks | To Exit Window | First | Last |\n")
		sb.WriteString("|----------|------|-------|----------------|-------|------|\n")
		for _, d := range report.Dates {
			cr, err := checker.CheckContract(ctx, c, d.Date)
			if err != nil {
				logger.Fatalf("check contract: %v", err)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %s | %s |\n",
				cr.Contract, cr.Date.Format("2006-01-02"), cr.TotalTicks, cr.WindowTicks,
				clock(cr.FirstTick), clock(cr.LastTick)))
		}
	}

	if *output == "" {
		fmt.Print(sb.String())
	} else if err := os.WriteFile(*output, []byte(sb.String()), 0o644); err != nil {
		logger.Fatalf("write %s: %v", *output, err)
	}

	logger.WithField("dates", len(report.Dates)).WithField("flagged", report.Flagged).Info("quality check done")
	if *strict && report.Flagged > 0 {
		env.Close()
		os.Exit(1)
	}
}

func parseDates(v string, loc *time.Location) ([]time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	var out []time.Time
	for _, part := range strings.Split(v, ",") {
		d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(part), loc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func clock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("15:04:05")
}
