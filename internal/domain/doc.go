// Package domain models GDELT Global Knowledge Graph (GKG) news records and
// their aggregation into spatial vibe scores.
//
// # Data Source
//
// Records originate from the GDELT Project GKG 2.1 feed, published every 15
// minutes as zipped tab-delimited files listed in a master file index. Each
// line is one document with 27 positional fields; the ones this pipeline
// consumes are:
//
//	[4]  DocumentIdentifier — canonical URL; a record without one is skipped
//	[7]  V2Themes           — "THEME;THEME;THEME;" topical tags
//	[9]  V2Locations        — "TYPE#NAME#COUNTRY#ADM1#LAT#LON#FEATUREID;" entries;
//	                          only the first entry is used as the primary location
//	[12] V2Organizations    — "org,CHAROFFSET;" pairs; offsets are discarded
//	[14] V2Tone             — "AvgTone,PosScore,NegScore,Polarity,…" tuple;
//	                          positions 0 and 3 are extracted, defaulting to 0
//	[26] ExtrasXML          — markup fragment that may carry a PAGE_TITLE pair
//
// The ExtrasXML fragment is not well-formed markup, so the headline scan is a
// narrow substring search for the first PAGE_TITLE open/close pair rather
// than a real parser.
//
// # Spatial Indexing
//
// Accepted events are assigned an H3 cell at a fixed resolution from their
// primary location. All events sharing a cell id are co-located for
// aggregation purposes.
//
// # Scoring
//
// Each cell's vibe blends what is being discussed with how it is discussed:
//
//	theme_balance   = (avg_p - avg_n) / (avg_p + avg_n + 0.1)
//	normalized_tone = clamp(avg_tone / 10, -1, 1)
//	vibe            = 0.6*theme_balance + 0.4*normalized_tone
//
// The 0.1 term damps low-weight cells toward zero instead of dividing by
// zero. The global humanity ratio uses a different smoothing term (+1); the
// two constants are intentionally not unified because changing either one
// changes published numbers.
package domain
