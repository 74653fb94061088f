package hazard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func record(id string, n int, g Grade, covs map[string]float64) StateHistoryRecord {
	return StateHistoryRecord{EntityID: id, Date: day(n), Grade: g, Covariates: covs}
}

func TestBuildEpisodes_SameStateExtendsOpenEpisode(t *testing.T) {
	// Three observations, the middle one re-confirming the entry state:
	// exactly one episode, closed at the third date.
	records := []StateHistoryRecord{
		record("E1", 0, GradeBBB, map[string]float64{"leverage": 0.4}),
		record("E1", 30, GradeBBB, map[string]float64{"leverage": 0.5}),
		record("E1", 60, GradeBB, nil),
	}

	result, err := BuildEpisodes(context.Background(), records, nil)
	require.NoError(t, err)
	require.Len(t, result.Episodes, 1)

	ep := result.Episodes[0]
	assert.Equal(t, "E1", ep.EntityID)
	assert.Equal(t, day(0), ep.EntryDate)
	assert.Equal(t, day(60), ep.ExitDate)
	assert.Equal(t, GradeBBB, ep.EntryGrade)
	assert.Equal(t, ExitDowngrade, ep.Exit)
	// Covariates fixed at entry; the day-30 snapshot must not leak in
	assert.Equal(t, 0.4, ep.Covariates["leverage"])
	assert.Empty(t, result.Insufficient)
}

func TestBuildEpisodes_CensoredAtLastObservation(t *testing.T) {
	records := []StateHistoryRecord{
		record("E1", 0, GradeA, nil),
		record("E1", 90, GradeA, nil),
	}

	result, err := BuildEpisodes(context.Background(), records, nil)
	require.NoError(t, err)
	require.Len(t, result.Episodes, 1)
	assert.Equal(t, ExitCensored, result.Episodes[0].Exit)
	assert.Equal(t, day(90), result.Episodes[0].ExitDate)
}

func TestBuildEpisodes_AbsorbingStateEndsSequence(t *testing.T) {
	// Records after default carry no further transitions
	records := []StateHistoryRecord{
		record("E1", 0, GradeB, nil),
		record("E1", 45, GradeDefault, nil),
		record("E1", 90, GradeDefault, nil),
	}

	result, err := BuildEpisodes(context.Background(), records, nil)
	require.NoError(t, err)
	require.Len(t, result.Episodes, 1)
	assert.Equal(t, ExitDefault, result.Episodes[0].Exit)
}

func TestBuildEpisodes_SingleRecordEntityReported(t *testing.T) {
	records := []StateHistoryRecord{
		record("LONE", 0, GradeAA, nil),
		record("E2", 0, GradeBBB, nil),
		record("E2", 30, GradeBB, nil),
	}

	result, err := BuildEpisodes(context.Background(), records, nil)
	require.NoError(t, err)
	assert.Len(t, result.Episodes, 1)
	assert.Equal(t, []string{"LONE"}, result.Insufficient)
	assert.Equal(t, 2, result.Entities)
}

func TestBuildEpisodes_MalformedHistory(t *testing.T) {
	tests := []struct {
		name    string
		records []StateHistoryRecord
		reason  string
	}{
		{
			name: "duplicate dates",
			records: []StateHistoryRecord{
				record("E1", 0, GradeBBB, nil),
				record("E1", 0, GradeBB, nil),
			},
			reason: "duplicate observation date",
		},
		{
			name: "out of order dates",
			records: []StateHistoryRecord{
				record("E1", 30, GradeBBB, nil),
				record("E1", 0, GradeBB, nil),
			},
			reason: "observation dates out of order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildEpisodes(context.Background(), tt.records, nil)
			require.Error(t, err)

			var malformed *MalformedHistoryError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, "E1", malformed.EntityID)
			assert.Contains(t, malformed.Error(), tt.reason)
		})
	}
}

func TestBuildEpisodes_EpisodesContiguousPerEntity(t *testing.T) {
	records := []StateHistoryRecord{
		record("E1", 0, GradeBBB, nil),
		record("E1", 100, GradeBB, nil),
		record("E1", 250, GradeB, nil),
		record("E1", 400, GradeBB, nil),
		record("E1", 500, GradeDefault, nil),
	}

	result, err := BuildEpisodes(context.Background(), records, nil)
	require.NoError(t, err)
	require.Len(t, result.Episodes, 4)

	for i := 1; i < len(result.Episodes); i++ {
		assert.Equal(t, result.Episodes[i-1].ExitDate, result.Episodes[i].EntryDate,
			"episode %d must open where episode %d closed", i, i-1)
	}
	assert.Equal(t, ExitDowngrade, result.Episodes[0].Exit)
	assert.Equal(t, ExitDowngrade, result.Episodes[1].Exit)
	assert.Equal(t, ExitUpgrade, result.Episodes[2].Exit)
	assert.Equal(t, ExitDefault, result.Episodes[3].Exit)
	for _, ep := range result.Episodes {
		assert.True(t, ep.IsValid())
	}
}

func TestBuildEpisodes_DeterministicAcrossInterleaving(t *testing.T) {
	a := []StateHistoryRecord{
		record("A", 0, GradeBBB, nil),
		record("A", 30, GradeBB, nil),
	}
	b := []StateHistoryRecord{
		record("B", 0, GradeA, nil),
		record("B", 30, GradeAA, nil),
	}

	r1, err := BuildEpisodes(context.Background(), append(append([]StateHistoryRecord{}, a...), b...), nil)
	require.NoError(t, err)
	r2, err := BuildEpisodes(context.Background(), append(append([]StateHistoryRecord{}, b...), a...), nil)
	require.NoError(t, err)
	assert.Equal(t, r1.Episodes, r2.Episodes)
}

func TestExitEventFor(t *testing.T) {
	tests := []struct {
		name string
		from Grade
		to   Grade
		want ExitEvent
	}{
		{"upgrade", GradeBB, GradeBBB, ExitUpgrade},
		{"downgrade", GradeA, GradeBBB, ExitDowngrade},
		{"default from investment grade", GradeAAA, GradeDefault, ExitDefault},
		{"withdrawal classified by destination", GradeCCC, GradeWithdrawn, ExitWithdrawn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitEventFor(tt.from, tt.to))
		})
	}
}

func TestParseGrade(t *testing.T) {
	g, err := ParseGrade("BBB")
	require.NoError(t, err)
	assert.Equal(t, GradeBBB, g)
	assert.Equal(t, 3, g.Rank())
	assert.False(t, g.IsAbsorbing())

	d, err := ParseGrade("D")
	require.NoError(t, err)
	assert.True(t, d.IsAbsorbing())

	_, err = ParseGrade("ZZZ")
	assert.Error(t, err)
}
