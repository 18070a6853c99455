package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	h3 "github.com/uber/h3-go/v4"
)

// GKG 2.1 positional field indexes. Records are tab-delimited with 27 fields.
const (
	gkgFieldCount      = 27
	fieldDocumentID    = 4
	fieldThemes        = 7
	fieldLocations     = 9
	fieldOrganizations = 12
	fieldTone          = 14
	fieldExtras        = 26
)

const (
	pageTitleOpen  = "<PAGE_TITLE>"
	pageTitleClose = "</PAGE_TITLE>"
)

// RejectReason codes why a raw record produced no Event. Rejections are
// routine operational signal, not errors in the exceptional sense.
type RejectReason string

const (
	RejectTooFewFields       RejectReason = "too_few_fields"
	RejectMissingURL         RejectReason = "missing_url"
	RejectMissingLocation    RejectReason = "missing_location"
	RejectInvalidCoordinates RejectReason = "invalid_coordinates"
	RejectIndexFailure       RejectReason = "index_failure"
	RejectParseError         RejectReason = "parse_error"
)

// RejectReasons lists every reason code, for metric pre-registration and
// summary reporting.
func RejectReasons() []RejectReason {
	return []RejectReason{
		RejectTooFewFields,
		RejectMissingURL,
		RejectMissingLocation,
		RejectInvalidCoordinates,
		RejectIndexFailure,
		RejectParseError,
	}
}

// SkipError marks a record as skipped with a reason code. The caller counts
// it and moves on; a SkipError never aborts the batch.
type SkipError struct {
	Reason RejectReason
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("record skipped (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("record skipped (%s)", e.Reason)
}

func (e *SkipError) Unwrap() error { return e.Err }

func skipRecord(reason RejectReason, err error) *SkipError {
	return &SkipError{Reason: reason, Err: err}
}

// Parser decodes raw GKG lines into Events at a fixed H3 resolution.
type Parser struct {
	resolution int
}

// NewParser creates a Parser indexing events at the given H3 resolution.
func NewParser(resolution int) *Parser {
	return &Parser{resolution: resolution}
}

// ParseRecord decodes one tab-delimited GKG line into an Event, or returns a
// *SkipError naming why the record is unusable. The returned Event carries
// themes and organizations but no category or weights; classification happens
// in a separate pass.
func (p *Parser) ParseRecord(line string) (Event, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < gkgFieldCount {
		return Event{}, skipRecord(RejectTooFewFields, fmt.Errorf("%d of %d fields", len(fields), gkgFieldCount))
	}

	docURL := strings.TrimSpace(fields[fieldDocumentID])
	if docURL == "" {
		return Event{}, skipRecord(RejectMissingURL, nil)
	}

	lat, lng, locationName, err := parsePrimaryLocation(fields[fieldLocations])
	if err != nil {
		return Event{}, err
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), p.resolution)
	if err != nil {
		return Event{}, skipRecord(RejectIndexFailure, err)
	}

	tone, polarity := parseTone(fields[fieldTone])

	return Event{
		ID:            docURL,
		Headline:      extractHeadline(fields[fieldExtras]),
		SourceType:    SourceGDELT,
		Tone:          tone,
		Polarity:      polarity,
		Lat:           lat,
		Lng:           lng,
		CellID:        cell.String(),
		LocationName:  locationName,
		Timestamp:     clock.Now().UTC(),
		Themes:        parseThemes(fields[fieldThemes]),
		Organizations: parseOrganizations(fields[fieldOrganizations]),
	}, nil
}

// parseThemes splits a V2Themes field ("THEME;THEME;") into a sorted,
// deduplicated slice. Blank tokens are discarded.
func parseThemes(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	for _, token := range strings.Split(raw, ";") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		seen[token] = struct{}{}
	}
	return sortedKeys(seen)
}

// parseOrganizations splits a V2Organizations field ("org,CHAROFFSET;") into
// a sorted set of names, discarding the character offsets.
func parseOrganizations(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	for _, item := range strings.Split(raw, ";") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		name := strings.TrimSpace(strings.SplitN(item, ",", 2)[0])
		if name == "" {
			continue
		}
		seen[name] = struct{}{}
	}
	return sortedKeys(seen)
}

// parseTone extracts AvgTone and Polarity (positions 0 and 3) from a V2Tone
// tuple. A blank or malformed field yields (0, 0); missing tone is not a
// reason to reject the record.
func parseTone(raw string) (tone, polarity float64) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0
	}
	parts := strings.Split(raw, ",")
	if len(parts) < 4 {
		return 0, 0
	}
	t, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	p, err2 := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return t, p
}

// parsePrimaryLocation takes the first entry of a V2Locations field
// ("TYPE#NAME#COUNTRY#ADM1#LAT#LON#FEATUREID;") and returns its coordinates
// and name. Records with no usable entry, unparseable coordinates, or
// coordinates outside valid ranges are rejected with the matching reason.
func parsePrimaryLocation(raw string) (lat, lng float64, name string, err error) {
	if strings.TrimSpace(raw) == "" {
		return 0, 0, "", skipRecord(RejectMissingLocation, nil)
	}

	first := strings.SplitN(raw, ";", 2)[0]
	if strings.TrimSpace(first) == "" {
		return 0, 0, "", skipRecord(RejectMissingLocation, nil)
	}

	parts := strings.Split(first, "#")
	if len(parts) < 6 {
		return 0, 0, "", skipRecord(RejectMissingLocation, fmt.Errorf("%d of 6 location positions", len(parts)))
	}

	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[4]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[5]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, "", skipRecord(RejectParseError, fmt.Errorf("unparseable coordinates %q/%q", parts[4], parts[5]))
	}

	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, "", skipRecord(RejectInvalidCoordinates, fmt.Errorf("lat=%g lng=%g", lat, lng))
	}

	return lat, lng, strings.TrimSpace(parts[1]), nil
}

// extractHeadline scans an ExtrasXML fragment for the first PAGE_TITLE
// open/close pair. The fragment is not well-formed markup, so this is a
// deliberate substring scan with no escaping. A missing title yields "".
func extractHeadline(raw string) string {
	start := strings.Index(raw, pageTitleOpen)
	if start < 0 {
		return ""
	}
	start += len(pageTitleOpen)
	end := strings.Index(raw[start:], pageTitleClose)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(raw[start : start+end])
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
