// Command risk-report trains a transition-hazard bank from a state-history
// file, scores every live entity, optionally backtests, and prints a
// plain-text risk report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"ratingrisk/internal/config"
	"ratingrisk/internal/hazard"
	"ratingrisk/internal/histfile"
	"ratingrisk/internal/infrastructure"
	"ratingrisk/internal/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "risk-report: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		historyPath = flag.String("history", "", "state-history file (.csv or .xlsx); overrides config")
		sheet       = flag.String("sheet", "", "worksheet name for .xlsx input")
		horizon     = flag.Int("horizon", 0, "scoring horizon in days; overrides config")
		runBacktest = flag.Bool("backtest", false, "run a rolling-origin backtest and include it in the report")
		output      = flag.String("out", "", "write the report to this file instead of stdout")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if *historyPath != "" {
		cfg.Data.HistoryFile = *historyPath
	}
	if *sheet != "" {
		cfg.Data.Sheet = *sheet
	}
	if *horizon > 0 {
		cfg.Model.HorizonDays = *horizon
	}

	// The report goes to stdout, so logs stay out of the way
	cfg.Logging.Output = "file"
	logger := infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	ctx := context.Background()

	records, err := loadHistory(cfg)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	riskService := services.NewRiskService(cfg.FitConfig(), logger)
	info, err := riskService.Train(ctx, records)
	if err != nil {
		return fmt.Errorf("training model bank: %w", err)
	}

	states := latestStates(records)
	assessments, err := riskService.ScorePortfolio(ctx, states, cfg.Model.HorizonDays)
	if err != nil {
		return fmt.Errorf("scoring portfolio: %w", err)
	}

	report := &services.RiskReport{
		GeneratedAt: time.Now(),
		HorizonDays: cfg.Model.HorizonDays,
		Bank:        info,
		Assessments: assessments,
	}

	if *runBacktest {
		backtestService := services.NewBacktestService(logger)
		folds, err := backtestService.FoldsForCorpus(records, cfg.Backtest.TrainDays, cfg.Backtest.ValidationDays, cfg.Backtest.TestDays, cfg.Backtest.StepDays)
		if err != nil {
			return fmt.Errorf("generating backtest folds: %w", err)
		}
		result, err := backtestService.Run(ctx, records, cfg.BacktestConfigFor(folds))
		if err != nil {
			return fmt.Errorf("running backtest: %w", err)
		}
		report.Backtest = result
	}

	text := report.RenderText()
	if *output != "" {
		return os.WriteFile(*output, []byte(text), 0644)
	}
	fmt.Print(text)
	return nil
}

// loadHistory reads the configured state-history file by extension
func loadHistory(cfg *config.Config) ([]hazard.StateHistoryRecord, error) {
	path := cfg.Data.HistoryFile
	if path == "" {
		return nil, fmt.Errorf("no history file given; use -history or the config")
	}
	if strings.HasSuffix(path, ".xlsx") {
		return histfile.LoadXLSX(path, cfg.Data.Sheet)
	}
	return histfile.LoadCSV(path)
}

// latestStates extracts each entity's most recent non-absorbed state for
// portfolio scoring. Entities already in default or withdrawn have nothing
// left to score.
func latestStates(records []hazard.StateHistoryRecord) []hazard.EntityState {
	latest := make(map[string]hazard.StateHistoryRecord)
	for _, r := range records {
		if cur, ok := latest[r.EntityID]; !ok || r.Date.After(cur.Date) {
			latest[r.EntityID] = r
		}
	}

	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	states := make([]hazard.EntityState, 0, len(ids))
	for _, id := range ids {
		r := latest[id]
		if r.Grade.IsAbsorbing() {
			continue
		}
		states = append(states, hazard.EntityState{
			EntityID:   id,
			Grade:      r.Grade,
			Covariates: r.Covariates,
		})
	}
	return states
}
