package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateEmptyInput(t *testing.T) {
	agg := NewAggregator(5)

	_, err := agg.Aggregate(nil)
	require.ErrorIs(t, err, ErrNoEvents)

	_, err = agg.Aggregate([]Event{})
	require.ErrorIs(t, err, ErrNoEvents)
}

func TestAggregateSingleCell(t *testing.T) {
	frozen := time.Date(2024, 4, 26, 16, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(frozen))
	defer SetClock(nil)

	agg := NewAggregator(5)

	events := []Event{
		{
			ID:           "https://news.example.com/a",
			Headline:     "Clinic opens",
			CellID:       "8428309ffffffff",
			Category:     CategoryProgress,
			PWeight:      2.0,
			Tone:         5.0,
			Polarity:     4.0,
			Lat:          39.7617,
			Lng:          -98.5034,
			LocationName: "United States",
		},
		{
			ID:       "https://news.example.com/b",
			Headline: "Factory strike",
			CellID:   "8428309ffffffff",
			Category: CategoryNoise,
			NWeight:  1.0,
			Tone:     -3.0,
			Polarity: 6.0,
			Lat:      39.9,
			Lng:      -98.1,
		},
	}

	result, err := agg.Aggregate(events)
	require.NoError(t, err)
	require.Len(t, result.Cells, 1)

	cell := result.Cells[0]
	// avg_p=1.0, avg_n=0.5: theme_balance=0.3125, normalized_tone=0.1,
	// vibe=0.6*0.3125+0.4*0.1=0.2275 rounds half-up to 0.228.
	assert.Equal(t, 0.228, cell.Vibe)
	assert.Equal(t, "8428309ffffffff", cell.CellID)
	assert.Equal(t, 2, cell.TotalEvents)
	assert.Equal(t, 1, cell.ProgressCount)
	assert.Equal(t, 1, cell.NoiseCount)
	assert.Equal(t, 0, cell.NeutralCount)
	assert.Equal(t, 2.0, cell.PIntensity)
	assert.Equal(t, 1.0, cell.NIntensity)
	assert.Equal(t, 1.0, cell.AvgTone)
	assert.Equal(t, 5.0, cell.AvgPolarity)
	assert.Equal(t, "Clinic opens", cell.TopProgressHeadline)
	assert.Equal(t, "Factory strike", cell.TopNoiseHeadline)
	assert.Equal(t, "Clinic opens", cell.HeadlineSample)
	assert.Equal(t, "United States", cell.LocationSample)
	assert.Equal(t, frozen, cell.LastUpdated)

	// Centroid comes from the first event seen in the cell.
	assert.Equal(t, 39.7617, cell.CentroidLat)
	assert.Equal(t, -98.5034, cell.CentroidLng)

	assert.Equal(t, 2, result.Pulse.ProgressSignal)
	assert.Equal(t, 1, result.Pulse.NoiseSignal)
	assert.Equal(t, 1.0, result.Pulse.HumanityRatio)
}

func TestAggregateCellOrdering(t *testing.T) {
	agg := NewAggregator(5)

	var events []Event
	sizes := map[string]int{"cell-a": 10, "cell-b": 50, "cell-c": 30}
	for _, id := range []string{"cell-a", "cell-b", "cell-c"} {
		for i := 0; i < sizes[id]; i++ {
			events = append(events, Event{ID: fmt.Sprintf("%s-%d", id, i), CellID: id})
		}
	}

	result, err := agg.Aggregate(events)
	require.NoError(t, err)
	require.Len(t, result.Cells, 3)

	assert.Equal(t, []int{50, 30, 10}, []int{
		result.Cells[0].TotalEvents,
		result.Cells[1].TotalEvents,
		result.Cells[2].TotalEvents,
	})
	assert.Equal(t, "cell-b", result.Cells[0].CellID)
}

func TestAggregateCellOrderingStableTies(t *testing.T) {
	agg := NewAggregator(5)

	// Equal counts keep first-seen grouping order.
	events := []Event{
		{ID: "1", CellID: "cell-x"},
		{ID: "2", CellID: "cell-y"},
		{ID: "3", CellID: "cell-x"},
		{ID: "4", CellID: "cell-y"},
	}

	result, err := agg.Aggregate(events)
	require.NoError(t, err)
	require.Len(t, result.Cells, 2)
	assert.Equal(t, "cell-x", result.Cells[0].CellID)
	assert.Equal(t, "cell-y", result.Cells[1].CellID)
}

func TestAggregateTopInsights(t *testing.T) {
	agg := NewAggregator(5)

	weights := []float64{1, 5, 3, 9, 2, 7}
	events := make([]Event, len(weights))
	for i, w := range weights {
		events[i] = Event{
			ID:       fmt.Sprintf("https://news.example.com/%d", i),
			Headline: fmt.Sprintf("story %g", w),
			CellID:   fmt.Sprintf("cell-%d", i%2),
			PWeight:  w,
		}
	}

	result, err := agg.Aggregate(events)
	require.NoError(t, err)
	require.Len(t, result.Insights, 5)

	headlines := make([]string, len(result.Insights))
	for i, ins := range result.Insights {
		headlines[i] = ins.Headline
	}
	assert.Equal(t, []string{"story 9", "story 7", "story 5", "story 3", "story 2"}, headlines)
	assert.Equal(t, "https://news.example.com/3", result.Insights[0].URL)
}

func TestAggregateTopInsightsStableTies(t *testing.T) {
	agg := NewAggregator(2)

	events := []Event{
		{ID: "first", Headline: "first", CellID: "c", PWeight: 3},
		{ID: "second", Headline: "second", CellID: "c", PWeight: 3},
		{ID: "third", Headline: "third", CellID: "c", PWeight: 3},
	}

	result, err := agg.Aggregate(events)
	require.NoError(t, err)
	require.Len(t, result.Insights, 2)
	assert.Equal(t, "first", result.Insights[0].Headline)
	assert.Equal(t, "second", result.Insights[1].Headline)
}

func TestAggregateInsightCountExceedsEvents(t *testing.T) {
	agg := NewAggregator(5)

	result, err := agg.Aggregate([]Event{{ID: "only", CellID: "c", PWeight: 1}})
	require.NoError(t, err)
	assert.Len(t, result.Insights, 1)
}

func TestAggregateHumanityRatioZeroNoise(t *testing.T) {
	agg := NewAggregator(5)

	// With zero noise the +1 smoothing makes the ratio equal the progress total.
	events := []Event{
		{ID: "a", CellID: "c", PWeight: 4, Category: CategoryProgress},
		{ID: "b", CellID: "c", PWeight: 3, Category: CategoryProgress},
	}

	result, err := agg.Aggregate(events)
	require.NoError(t, err)
	assert.Equal(t, 7, result.Pulse.ProgressSignal)
	assert.Equal(t, 0, result.Pulse.NoiseSignal)
	assert.Equal(t, 7.0, result.Pulse.HumanityRatio)
}

func TestAggregateAllNeutralZeroTone(t *testing.T) {
	agg := NewAggregator(5)

	events := []Event{
		{ID: "a", CellID: "c", Category: CategoryNeutral},
		{ID: "b", CellID: "c", Category: CategoryNeutral},
	}

	result, err := agg.Aggregate(events)
	require.NoError(t, err)
	require.Len(t, result.Cells, 1)

	cell := result.Cells[0]
	assert.Equal(t, 0.0, cell.Vibe)
	assert.Equal(t, 2, cell.NeutralCount)
	assert.Equal(t, "N/A", cell.HeadlineSample)
	assert.Equal(t, "Unknown", cell.LocationSample)
}

func TestAggregateTopHeadlineTiesKeepFirst(t *testing.T) {
	agg := NewAggregator(5)

	events := []Event{
		{ID: "a", Headline: "first progress", CellID: "c", PWeight: 2, Category: CategoryProgress},
		{ID: "b", Headline: "second progress", CellID: "c", PWeight: 2, Category: CategoryProgress},
	}

	result, err := agg.Aggregate(events)
	require.NoError(t, err)
	assert.Equal(t, "first progress", result.Cells[0].TopProgressHeadline)
}

func TestAggregateExtremeToneIsClamped(t *testing.T) {
	agg := NewAggregator(5)

	result, err := agg.Aggregate([]Event{
		{ID: "a", CellID: "c", Tone: 40.0, Category: CategoryNeutral},
	})
	require.NoError(t, err)

	// normalized_tone clamps to 1.0, so vibe = 0.4 regardless of how
	// extreme the tone is.
	assert.Equal(t, 0.4, result.Cells[0].Vibe)
}

func TestAggregateIdempotent(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 16, 0, 0, 0, time.UTC)))
	defer SetClock(nil)

	agg := NewAggregator(3)
	events := []Event{
		{ID: "a", Headline: "one", CellID: "cell-1", PWeight: 2, Tone: 3, Category: CategoryProgress},
		{ID: "b", Headline: "two", CellID: "cell-2", NWeight: 1, Tone: -2, Category: CategoryNoise},
		{ID: "c", Headline: "three", CellID: "cell-1", Category: CategoryNeutral},
	}

	first, err := agg.Aggregate(events)
	require.NoError(t, err)
	second, err := agg.Aggregate(events)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(first, second))
}

func TestVibeScore(t *testing.T) {
	tests := []struct {
		name     string
		avgP     float64
		avgN     float64
		avgTone  float64
		expected float64
	}{
		{"worked example", 1.0, 0.5, 1.0, 0.228},
		{"all zero", 0, 0, 0, 0},
		{"pure progress", 2.0, 0, 5.0, 0.771},
		{"pure noise", 0, 2.0, -5.0, -0.771},
		{"tone clamped high", 0, 0, 25.0, 0.4},
		{"tone clamped low", 0, 0, -25.0, -0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, VibeScore(tt.avgP, tt.avgN, tt.avgTone))
		})
	}
}
