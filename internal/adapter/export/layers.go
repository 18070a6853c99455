// Package export builds the published data layers from an AggregateResult
// and writes them to local files for CDN delivery.
//
// Cells are split into two layers with different refresh characteristics:
// the grid geometry layer changes only when the cell set changes and is
// cached aggressively, while the score layer is regenerated every run. A
// combined document carrying the full result is kept for consumers that want
// one fetch. All layers are gzip-compressed flat JSON.
package export

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"math"
	"time"

	h3 "github.com/uber/h3-go/v4"

	"github.com/signalatlas/vibe-etl/internal/domain"
)

// Layer is one publishable artifact: a named, uncompressed JSON document.
type Layer struct {
	Name string
	Data []byte
}

// geoFeature is a GeoJSON feature holding one cell polygon.
type geoFeature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Geometry   geoGeometry    `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geoGeometry struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

type gridLayer struct {
	Type     string       `json:"type"`
	Metadata gridMetadata `json:"metadata"`
	Features []geoFeature `json:"features"`
}

type gridMetadata struct {
	Resolution  int    `json:"resolution"`
	TotalCells  int    `json:"total_cells"`
	Coverage    string `json:"coverage"`
	GeneratedAt string `json:"generated_at"`
}

// cellScore is the per-cell entry of the score layer: everything the map
// frontend needs keyed by cell id, without the geometry.
type cellScore struct {
	Vibe                float64 `json:"vibe"`
	PIntensity          float64 `json:"p_int"`
	NIntensity          float64 `json:"n_int"`
	Tone                float64 `json:"tone"`
	Polarity            float64 `json:"polarity"`
	Count               int     `json:"count"`
	NoiseCount          int     `json:"noise_count"`
	ProgressCount       int     `json:"progress_count"`
	NeutralCount        int     `json:"neutral_count"`
	TopProgressHeadline string  `json:"top_progress_headline"`
	TopNoiseHeadline    string  `json:"top_noise_headline"`
	HeadlineSample      string  `json:"headline_sample"`
	LocationSample      string  `json:"location_sample"`
	CentroidLat         float64 `json:"centroid_lat"`
	CentroidLng         float64 `json:"centroid_lng"`
	LastUpdated         string  `json:"last_updated"`
}

type scoresLayer struct {
	GeneratedAt string                 `json:"generated_at"`
	Metadata    resultMetadata         `json:"metadata"`
	Pulse       domain.GlobalPulse     `json:"pulse"`
	Insights    []domain.GlobalInsight `json:"insights"`
	Scores      map[string]cellScore   `json:"scores"`
}

type combinedLayer struct {
	GeneratedAt string                 `json:"generated_at"`
	Metadata    resultMetadata         `json:"metadata"`
	Pulse       domain.GlobalPulse     `json:"pulse"`
	Insights    []domain.GlobalInsight `json:"insights"`
	Cells       []domain.SpatialCell   `json:"cells"`
}

type resultMetadata struct {
	TotalCells    int     `json:"total_cells"`
	TotalEvents   int     `json:"total_events"`
	GlobalAvgVibe float64 `json:"global_avg_vibe"`
}

// BuildLayers renders the grid geometry, score, and combined layers for a
// result at the given resolution.
func BuildLayers(result domain.AggregateResult, resolution int, generatedAt time.Time) ([]Layer, error) {
	stamp := generatedAt.UTC().Format(time.RFC3339)
	meta := buildMetadata(result)

	grid, err := buildGridLayer(result.Cells, resolution, stamp)
	if err != nil {
		return nil, err
	}

	scores, err := json.Marshal(scoresLayer{
		GeneratedAt: stamp,
		Metadata:    meta,
		Pulse:       result.Pulse,
		Insights:    result.Insights,
		Scores:      buildScores(result.Cells),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal score layer: %w", err)
	}

	combined, err := json.Marshal(combinedLayer{
		GeneratedAt: stamp,
		Metadata:    meta,
		Pulse:       result.Pulse,
		Insights:    result.Insights,
		Cells:       result.Cells,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal combined layer: %w", err)
	}

	return []Layer{
		{Name: fmt.Sprintf("h3_grid_res%d.json", resolution), Data: grid},
		{Name: "vibe_scores.json", Data: scores},
		{Name: "vibe_cells.json", Data: combined},
	}, nil
}

// buildGridLayer renders cell polygons as a FeatureCollection with empty
// properties. Coordinates follow GeoJSON order ([lng, lat]) with a closed ring.
func buildGridLayer(cells []domain.SpatialCell, resolution int, stamp string) ([]byte, error) {
	features := make([]geoFeature, 0, len(cells))
	for _, cell := range cells {
		ring, err := cellRing(cell.CellID)
		if err != nil {
			return nil, fmt.Errorf("cell %s boundary: %w", cell.CellID, err)
		}
		features = append(features, geoFeature{
			Type:       "Feature",
			ID:         cell.CellID,
			Geometry:   geoGeometry{Type: "Polygon", Coordinates: [][][2]float64{ring}},
			Properties: map[string]any{},
		})
	}

	return json.Marshal(gridLayer{
		Type: "FeatureCollection",
		Metadata: gridMetadata{
			Resolution:  resolution,
			TotalCells:  len(cells),
			Coverage:    "global",
			GeneratedAt: stamp,
		},
		Features: features,
	})
}

func cellRing(cellID string) ([][2]float64, error) {
	cell := h3.Cell(h3.IndexFromString(cellID))
	boundary, err := cell.Boundary()
	if err != nil {
		return nil, err
	}

	ring := make([][2]float64, 0, len(boundary)+1)
	for _, vertex := range boundary {
		ring = append(ring, [2]float64{vertex.Lng, vertex.Lat})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0]) // close the polygon
	}
	return ring, nil
}

func buildScores(cells []domain.SpatialCell) map[string]cellScore {
	scores := make(map[string]cellScore, len(cells))
	for _, c := range cells {
		scores[c.CellID] = cellScore{
			Vibe:                c.Vibe,
			PIntensity:          c.PIntensity,
			NIntensity:          c.NIntensity,
			Tone:                c.AvgTone,
			Polarity:            c.AvgPolarity,
			Count:               c.TotalEvents,
			NoiseCount:          c.NoiseCount,
			ProgressCount:       c.ProgressCount,
			NeutralCount:        c.NeutralCount,
			TopProgressHeadline: c.TopProgressHeadline,
			TopNoiseHeadline:    c.TopNoiseHeadline,
			HeadlineSample:      c.HeadlineSample,
			LocationSample:      c.LocationSample,
			CentroidLat:         c.CentroidLat,
			CentroidLng:         c.CentroidLng,
			LastUpdated:         c.LastUpdated.UTC().Format(time.RFC3339),
		}
	}
	return scores
}

func buildMetadata(result domain.AggregateResult) resultMetadata {
	var totalEvents int
	var vibeSum float64
	for _, c := range result.Cells {
		totalEvents += c.TotalEvents
		vibeSum += c.Vibe
	}
	meta := resultMetadata{
		TotalCells:  len(result.Cells),
		TotalEvents: totalEvents,
	}
	if len(result.Cells) > 0 {
		avg := vibeSum / float64(len(result.Cells))
		meta.GlobalAvgVibe = math.Round(avg*1000) / 1000
	}
	return meta
}

// Compress gzips a layer's data for publication.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
