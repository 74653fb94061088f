package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratingrisk/internal/backtest"
	"ratingrisk/internal/hazard"
)

// backtestCorpus spans two years so rolling folds fit inside it
func backtestCorpus() []hazard.StateHistoryRecord {
	var records []hazard.StateHistoryRecord
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("BT%02d", i)
		records = append(records,
			record(id, 0, hazard.GradeBBB, 0.5+0.02*float64(i), 2.0),
			record(id, 60+60*i, hazard.GradeBB, 0.5+0.02*float64(i), 2.0),
		)
	}
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("CN%02d", i)
		records = append(records,
			record(id, 0, hazard.GradeA, 0.3, 3.0),
			record(id, 730, hazard.GradeA, 0.3, 3.0),
		)
	}
	return records
}

func TestFoldsForCorpus(t *testing.T) {
	svc := NewBacktestService(testLogger())

	folds, err := svc.FoldsForCorpus(backtestCorpus(), 365, 90, 90, 90)
	require.NoError(t, err)
	require.NotEmpty(t, folds)

	// First origin is one training length past the earliest record; the
	// validation window sits between training data and the test window
	assert.Equal(t, day(0), folds[0].Train.Start)
	assert.Equal(t, day(365), folds[0].Train.End)
	assert.Equal(t, day(365), folds[0].Validation.Start)
	assert.Equal(t, day(455), folds[0].Validation.End)
	assert.Equal(t, day(455), folds[0].Test.Start)
	assert.Equal(t, day(545), folds[0].Test.End)

	// Every test window stays inside the corpus span (last date + 1 day)
	for _, f := range folds {
		assert.False(t, f.Test.End.After(day(731)), "fold %d overruns corpus", f.Index)
	}
}

func TestFoldsForCorpus_Errors(t *testing.T) {
	svc := NewBacktestService(testLogger())

	_, err := svc.FoldsForCorpus(nil, 365, 90, 90, 90)
	assert.Error(t, err)

	// Corpus shorter than one train+validation+test span
	short := []hazard.StateHistoryRecord{
		record("S1", 0, hazard.GradeBBB, 0.5, 2.0),
		record("S1", 100, hazard.GradeBB, 0.5, 2.0),
	}
	_, err = svc.FoldsForCorpus(short, 365, 90, 90, 90)
	assert.Error(t, err)
}

func TestBacktestService_Run(t *testing.T) {
	svc := NewBacktestService(testLogger())
	corpus := backtestCorpus()

	folds, err := svc.FoldsForCorpus(corpus, 365, 90, 90, 180)
	require.NoError(t, err)

	cfg := backtest.DefaultConfig(folds)
	cfg.Fit.MinEvents = 3

	result, err := svc.Run(context.Background(), corpus, cfg)
	require.NoError(t, err)
	require.Len(t, result.Folds, len(folds))
	assert.Equal(t, cfg.HorizonDays, result.HorizonDays)

	// The first fold trains on the early downgrades and scores the rest
	first := result.Folds[0]
	require.False(t, first.Skipped)
	assert.Greater(t, first.TrainEpisodes, 0)
}

func TestBacktestService_Run_InvalidConfig(t *testing.T) {
	svc := NewBacktestService(testLogger())

	_, err := svc.Run(context.Background(), backtestCorpus(), backtest.Config{})
	assert.Error(t, err)
}
