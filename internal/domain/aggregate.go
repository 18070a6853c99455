package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrNoEvents signals that parsing yielded nothing to aggregate. The run
// halts cleanly as a no-op rather than a failure.
var ErrNoEvents = errors.New("no events to aggregate")

// Vibe formula constants. The 0.1 smoothing term damps theme balance toward
// zero for low-weight cells instead of dividing by zero; it is deliberately
// not the same constant as the +1 in the global humanity ratio.
const (
	themeBalanceSmoothing = 0.1
	themeBalanceWeight    = 0.6
	toneWeight            = 0.4
)

// Aggregator reduces a classified event set into spatial cells, a global
// pulse, and top insights.
type Aggregator struct {
	insightCount int
}

// NewAggregator creates an Aggregator selecting the top insightCount events.
func NewAggregator(insightCount int) *Aggregator {
	return &Aggregator{insightCount: insightCount}
}

// Aggregate groups events by spatial cell id and reduces each group into
// per-cell statistics, alongside the whole-batch pulse and insight selection.
// Events are never deduplicated by document URL; duplicates aggregate
// independently. Returns ErrNoEvents for an empty input. Any other error is
// an internal invariant violation and must propagate to the caller.
func (a *Aggregator) Aggregate(events []Event) (AggregateResult, error) {
	if len(events) == 0 {
		return AggregateResult{}, ErrNoEvents
	}

	groups := make(map[string]*cellAccumulator)
	order := make([]string, 0)
	for _, e := range events {
		acc, ok := groups[e.CellID]
		if !ok {
			acc = &cellAccumulator{cellID: e.CellID}
			groups[e.CellID] = acc
			order = append(order, e.CellID)
		}
		acc.add(e)
	}

	now := clock.Now().UTC()
	cells := make([]SpatialCell, 0, len(order))
	for _, id := range order {
		cell, err := groups[id].finalize(now)
		if err != nil {
			return AggregateResult{}, err
		}
		cells = append(cells, cell)
	}

	// Hot cells first; equal counts keep first-seen grouping order.
	sort.SliceStable(cells, func(i, j int) bool {
		return cells[i].TotalEvents > cells[j].TotalEvents
	})

	return AggregateResult{
		Pulse:    globalPulse(events),
		Insights: topInsights(events, a.insightCount),
		Cells:    cells,
	}, nil
}

// VibeScore computes the composite sentiment score for a cell from its
// per-event averages, rounded to 3 decimal places. Not strictly bounded to
// [-1, 1] for unbounded weights, but stays close in practice.
func VibeScore(avgP, avgN, avgTone float64) float64 {
	themeBalance := (avgP - avgN) / (avgP + avgN + themeBalanceSmoothing)
	normalizedTone := clamp(avgTone/10.0, -1.0, 1.0)
	return roundTo(themeBalanceWeight*themeBalance+toneWeight*normalizedTone, 3)
}

// cellAccumulator is the per-cell reduction state. The tuple is associative
// and commutative except for the first-seen fields, which depend only on
// encounter order, so partial per-shard accumulators merge safely in shard
// order if the reduction is ever parallelized.
type cellAccumulator struct {
	cellID         string
	count          int
	sumTone        float64
	sumP           float64
	sumN           float64
	sumPolarity    float64
	progressCount  int
	noiseCount     int
	neutralCount   int
	bestProgress   Event // max p_weight, first encountered wins ties
	bestNoise      Event // max n_weight, first encountered wins ties
	first          Event // centroid source
	sampleHeadline string
}

func (a *cellAccumulator) add(e Event) {
	a.count++
	a.sumTone += e.Tone
	a.sumP += e.PWeight
	a.sumN += e.NWeight
	a.sumPolarity += e.Polarity

	switch e.Category {
	case CategoryProgress:
		a.progressCount++
	case CategoryNoise:
		a.noiseCount++
	default:
		a.neutralCount++
	}

	if a.count == 1 {
		a.first = e
		a.bestProgress = e
		a.bestNoise = e
	} else {
		if e.PWeight > a.bestProgress.PWeight {
			a.bestProgress = e
		}
		if e.NWeight > a.bestNoise.NWeight {
			a.bestNoise = e
		}
	}

	if a.sampleHeadline == "" && e.Headline != "" {
		a.sampleHeadline = e.Headline
	}
}

func (a *cellAccumulator) finalize(now time.Time) (SpatialCell, error) {
	if a.count == 0 {
		return SpatialCell{}, fmt.Errorf("aggregate: empty group for cell %s", a.cellID)
	}

	n := float64(a.count)
	avgTone := a.sumTone / n
	avgP := a.sumP / n
	avgN := a.sumN / n
	avgPolarity := a.sumPolarity / n

	headlineSample := a.sampleHeadline
	if headlineSample == "" {
		headlineSample = "N/A"
	}
	locationSample := a.first.LocationName
	if locationSample == "" {
		locationSample = "Unknown"
	}

	return SpatialCell{
		CellID:              a.cellID,
		CentroidLat:         roundTo(a.first.Lat, 4),
		CentroidLng:         roundTo(a.first.Lng, 4),
		Vibe:                VibeScore(avgP, avgN, avgTone),
		TopProgressHeadline: a.bestProgress.Headline,
		TopNoiseHeadline:    a.bestNoise.Headline,
		PIntensity:          roundTo(a.sumP, 2),
		NIntensity:          roundTo(a.sumN, 2),
		AvgTone:             roundTo(avgTone, 2),
		AvgPolarity:         roundTo(avgPolarity, 2),
		NoiseCount:          a.noiseCount,
		ProgressCount:       a.progressCount,
		NeutralCount:        a.neutralCount,
		TotalEvents:         a.count,
		HeadlineSample:      headlineSample,
		LocationSample:      locationSample,
		LastUpdated:         now,
	}, nil
}

// globalPulse sums weights across the whole batch, not per cell. The +1
// smoothing keeps the ratio close to a true division for large noise totals.
func globalPulse(events []Event) GlobalPulse {
	var totalP, totalN float64
	for _, e := range events {
		totalP += e.PWeight
		totalN += e.NWeight
	}
	return GlobalPulse{
		ProgressSignal: int(math.Round(totalP)),
		NoiseSignal:    int(math.Round(totalN)),
		HumanityRatio:  roundTo(totalP/(totalN+1), 2),
	}
}

// topInsights selects the k events with the highest progress weight across
// the entire batch, ties broken by original order. Deliberately decoupled
// from spatial grouping so a dominant global story surfaces even when its
// cell is otherwise quiet.
func topInsights(events []Event, k int) []GlobalInsight {
	idx := make([]int, len(events))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return events[idx[i]].PWeight > events[idx[j]].PWeight
	})

	if k > len(idx) {
		k = len(idx)
	}
	insights := make([]GlobalInsight, 0, k)
	for _, i := range idx[:k] {
		insights = append(insights, GlobalInsight{
			Headline: events[i].Headline,
			URL:      events[i].ID,
		})
	}
	return insights
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
