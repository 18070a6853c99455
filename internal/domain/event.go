package domain

import "time"

// Category classifies an event by the balance of its theme weights.
type Category string

const (
	CategoryProgress Category = "progress"
	CategoryNoise    Category = "noise"
	CategoryNeutral  Category = "neutral"
)

// SourceGDELT identifies events parsed from GDELT GKG records.
const SourceGDELT = "gdelt"

// Event is one accepted news record, normalized from a raw GKG line.
// Events without a document URL or a resolvable location never exist;
// the parser rejects them before an Event is constructed.
type Event struct {
	ID           string    `json:"id"` // source document URL
	Headline     string    `json:"headline"`
	SourceType   string    `json:"source_type"`
	Category     Category  `json:"category"`
	Tone         float64   `json:"tone"`     // GDELT average tone, roughly -10..10
	Polarity     float64   `json:"polarity"` // emotional loudness
	PWeight      float64   `json:"p_weight"`
	NWeight      float64   `json:"n_weight"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	CellID       string    `json:"h3_index"`
	LocationName string    `json:"location_name,omitempty"`
	Timestamp    time.Time `json:"timestamp"`

	// Themes and Organizations are carried for classification and debugging
	// but are not part of the serialized event contract.
	Themes        []string `json:"-"`
	Organizations []string `json:"-"`
}

// SpatialCell is the aggregated vibe for a single H3 hexagon.
//
// CentroidLat/CentroidLng are the coordinates of the first event seen in the
// cell, not a geometric centroid of the group. The approximation is part of
// the published contract; callers must not assume geometric correctness.
type SpatialCell struct {
	CellID              string    `json:"h3_index"`
	CentroidLat         float64   `json:"centroid_lat"`
	CentroidLng         float64   `json:"centroid_lng"`
	Vibe                float64   `json:"vibe"`
	TopProgressHeadline string    `json:"top_progress_headline"`
	TopNoiseHeadline    string    `json:"top_noise_headline"`
	PIntensity          float64   `json:"p_intensity"` // sum of p_weight, not the average
	NIntensity          float64   `json:"n_intensity"` // sum of n_weight, not the average
	AvgTone             float64   `json:"avg_tone"`
	AvgPolarity         float64   `json:"avg_polarity"`
	NoiseCount          int       `json:"noise_count"`
	ProgressCount       int       `json:"progress_count"`
	NeutralCount        int       `json:"neutral_count"`
	TotalEvents         int       `json:"total_events"`
	HeadlineSample      string    `json:"headline_sample"`
	LocationSample      string    `json:"location_sample"`
	LastUpdated         time.Time `json:"last_updated"`
}

// GlobalPulse summarizes signal across the entire batch: raw weight totals
// over all events (not cells) and their smoothed ratio.
type GlobalPulse struct {
	ProgressSignal int     `json:"progress_signal"`
	NoiseSignal    int     `json:"noise_signal"`
	HumanityRatio  float64 `json:"humanity_ratio"`
}

// GlobalInsight is a top-ranked story surfaced independent of spatial grouping.
type GlobalInsight struct {
	Headline string `json:"headline"`
	URL      string `json:"url"`
}

// AggregateResult is the complete output of one aggregation run. Cells are
// ordered by total event count descending; insights by descending p_weight.
type AggregateResult struct {
	Pulse    GlobalPulse     `json:"pulse"`
	Insights []GlobalInsight `json:"insights"`
	Cells    []SpatialCell   `json:"cells"`
}
