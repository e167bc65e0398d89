// Package pipeline defines core types shared across subsystems.
package pipeline

import (
	"time"
)

// MovieRecord is the canonical unit produced by one scrape run.
// Link is the natural key; every other descriptive field is nullable.
type MovieRecord struct {
	Link           string   `json:"link"`
	DubbedTitle    *string  `json:"dubbed_title,omitempty"`
	OriginalTitle  *string  `json:"original_title,omitempty"`
	Rating         *float64 `json:"rating,omitempty"`
	Year           *int     `json:"year,omitempty"`
	Genres         *string  `json:"genres,omitempty"`
	FileSize       *string  `json:"file_size,omitempty"`
	RuntimeMinutes *int     `json:"runtime_minutes,omitempty"`
	VideoQuality   *float64 `json:"video_quality,omitempty"`
	QualityLabel   *string  `json:"quality_label,omitempty"`
	DubbedAudio    *bool    `json:"dubbed_audio,omitempty"`
	Synopsis       *string  `json:"synopsis,omitempty"`
}

// Candidate field names produced by the extractor. The warehouse column list
// uses the same names.
const (
	FieldDubbedTitle    = "dubbed_title"
	FieldOriginalTitle  = "original_title"
	FieldRating         = "rating"
	FieldYear           = "year"
	FieldGenres         = "genres"
	FieldFileSize       = "file_size"
	FieldRuntimeMinutes = "runtime_minutes"
	FieldVideoQuality   = "video_quality"
	FieldQualityLabel   = "quality_label"
	FieldDubbedAudio    = "dubbed_audio"
	FieldSynopsis       = "synopsis"
)

// FieldCount is the number of descriptive fields plus the link, used for the
// completeness ratio.
const FieldCount = 12

// Candidate is the untyped output of field extraction for one detail page.
// Absent fields are simply missing from Fields.
type Candidate struct {
	Link   string
	Fields map[string]string
}

// Has reports whether the named field was extracted.
func (c Candidate) Has(name string) bool {
	_, ok := c.Fields[name]
	return ok
}

// Get returns the raw extracted value for name, or "" if absent.
func (c Candidate) Get(name string) string {
	return c.Fields[name]
}

// Stage identifies a step of the run state machine.
type Stage string

// Run stages in execution order.
const (
	StageDiscovering Stage = "discovering"
	StageFetching    Stage = "fetching"
	StageExtracting  Stage = "extracting"
	StageValidating  Stage = "validating"
	StageStaging     Stage = "staging"
	StageMerging     Stage = "merging"
	StageReporting   Stage = "reporting"
)

// RunSummary is the structured result of one run. It is the contract consumed
// by schedulers and notifiers.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Discovered int           `json:"discovered"`
	Fetched    int           `json:"fetched"`
	Extracted  int           `json:"extracted"`
	Accepted   int           `json:"accepted"`
	Rejected   int           `json:"rejected"`
	Inserted   int64         `json:"inserted"`
	CacheHits  int           `json:"cache_hits"`
}
