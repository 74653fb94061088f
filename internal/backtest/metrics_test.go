package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcordance(t *testing.T) {
	tests := []struct {
		name string
		obs  []observation
		want MetricValue
	}{
		{
			name: "perfect ranking",
			obs: []observation{
				{score: 0.9, event: true, timeDays: 10},
				{score: 0.5, event: true, timeDays: 40},
				{score: 0.1, event: false, timeDays: 90},
			},
			want: Defined(1.0),
		},
		{
			name: "inverted ranking",
			obs: []observation{
				{score: 0.1, event: true, timeDays: 10},
				{score: 0.9, event: false, timeDays: 90},
			},
			want: Defined(0.0),
		},
		{
			name: "tied scores count half",
			obs: []observation{
				{score: 0.5, event: true, timeDays: 10},
				{score: 0.5, event: false, timeDays: 90},
			},
			want: Defined(0.5),
		},
		{
			name: "no events means no comparable pairs",
			obs: []observation{
				{score: 0.5, event: false, timeDays: 90},
				{score: 0.2, event: false, timeDays: 90},
			},
			want: Undefined(),
		},
		{
			name: "empty",
			obs:  nil,
			want: Undefined(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := concordance(tt.obs)
			assert.Equal(t, tt.want.Defined, got.Defined)
			if tt.want.Defined {
				assert.InDelta(t, tt.want.Value, got.Value, 1e-12)
			}
		})
	}
}

func TestBrier(t *testing.T) {
	obs := []observation{
		{score: 1.0, event: true},
		{score: 0.0, event: false},
	}
	got := brier(obs)
	require.True(t, got.Defined)
	assert.Equal(t, 0.0, got.Value)

	obs = []observation{
		{score: 0.5, event: true},
		{score: 0.5, event: false},
	}
	got = brier(obs)
	require.True(t, got.Defined)
	assert.InDelta(t, 0.25, got.Value, 1e-12)

	assert.False(t, brier(nil).Defined)
}

func TestRocAUC(t *testing.T) {
	obs := []observation{
		{score: 0.9, event: true},
		{score: 0.8, event: true},
		{score: 0.3, event: false},
		{score: 0.1, event: false},
	}
	got := rocAUC(obs)
	require.True(t, got.Defined)
	assert.Equal(t, 1.0, got.Value)

	// Single class: undefined, never zero
	onlyNegatives := []observation{
		{score: 0.4, event: false},
		{score: 0.2, event: false},
	}
	assert.False(t, rocAUC(onlyNegatives).Defined)

	onlyPositives := []observation{
		{score: 0.4, event: true},
	}
	assert.False(t, rocAUC(onlyPositives).Defined)
}
