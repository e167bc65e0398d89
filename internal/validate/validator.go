// Package validate is the quality gate between extraction and loading.
package validate

import (
	"fmt"

	"github.com/filmesbr/torrent-movies-etl/internal/parse"
	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
)

// Movies may not predate the first motion picture.
const minYear = 1888

// Validator turns candidates into load-ready records. Missing optional
// fields never reject a candidate; only invalid present values do.
type Validator struct {
	// MinCompleteness optionally rejects records whose filled-field ratio
	// falls below it. Zero disables the gate; the ratio is always computed
	// for observability.
	MinCompleteness float64
}

// Record validates candidate and builds a MovieRecord from it. The returned
// ratio is filled fields over total fields. A non-nil Rejection means the
// record must not enter the load batch.
func (v Validator) Record(c pipeline.Candidate) (pipeline.MovieRecord, float64, *pipeline.Rejection) {
	if c.Link == "" {
		return pipeline.MovieRecord{}, 0, &pipeline.Rejection{Reason: "missing link"}
	}

	rec := pipeline.MovieRecord{Link: c.Link}

	if raw := c.Get(pipeline.FieldRating); raw != "" {
		if f, ok := parse.CoerceFloat(raw); ok {
			if f < 0 || f > 10 {
				return pipeline.MovieRecord{}, 0, v.reject(c, fmt.Sprintf("rating %v out of range [0, 10]", f))
			}
			rec.Rating = &f
		}
	}
	if raw := c.Get(pipeline.FieldYear); raw != "" {
		if n, ok := parse.CoerceInt(raw); ok {
			if n < minYear {
				return pipeline.MovieRecord{}, 0, v.reject(c, fmt.Sprintf("year %d earlier than %d", n, minYear))
			}
			rec.Year = &n
		}
	}
	if raw := c.Get(pipeline.FieldRuntimeMinutes); raw != "" {
		if n, ok := parse.CoerceInt(raw); ok {
			if n < 1 {
				return pipeline.MovieRecord{}, 0, v.reject(c, fmt.Sprintf("runtime %d minutes is non-positive", n))
			}
			rec.RuntimeMinutes = &n
		}
	}
	if raw := c.Get(pipeline.FieldVideoQuality); raw != "" {
		if f, ok := parse.CoerceFloat(raw); ok {
			if f < 0 || f > 10 {
				return pipeline.MovieRecord{}, 0, v.reject(c, fmt.Sprintf("video quality %v out of range [0, 10]", f))
			}
			rec.VideoQuality = &f
		}
	}

	rec.DubbedTitle = optString(c, pipeline.FieldDubbedTitle)
	rec.OriginalTitle = optString(c, pipeline.FieldOriginalTitle)
	rec.Genres = optString(c, pipeline.FieldGenres)
	rec.FileSize = optString(c, pipeline.FieldFileSize)
	rec.QualityLabel = optString(c, pipeline.FieldQualityLabel)
	rec.Synopsis = optString(c, pipeline.FieldSynopsis)
	if raw := c.Get(pipeline.FieldDubbedAudio); raw != "" {
		if b, ok := parse.CoerceBool(raw); ok {
			rec.DubbedAudio = &b
		}
	}

	ratio := completeness(rec)
	if v.MinCompleteness > 0 && ratio < v.MinCompleteness {
		return pipeline.MovieRecord{}, ratio, v.reject(c, fmt.Sprintf("completeness %.2f below %.2f", ratio, v.MinCompleteness))
	}
	return rec, ratio, nil
}

func (v Validator) reject(c pipeline.Candidate, reason string) *pipeline.Rejection {
	return &pipeline.Rejection{Link: c.Link, Reason: reason}
}

func optString(c pipeline.Candidate, field string) *string {
	if raw := c.Get(field); raw != "" {
		return &raw
	}
	return nil
}

func completeness(rec pipeline.MovieRecord) float64 {
	filled := 1 // link is always present here
	for _, present := range []bool{
		rec.DubbedTitle != nil,
		rec.OriginalTitle != nil,
		rec.Rating != nil,
		rec.Year != nil,
		rec.Genres != nil,
		rec.FileSize != nil,
		rec.RuntimeMinutes != nil,
		rec.VideoQuality != nil,
		rec.QualityLabel != nil,
		rec.DubbedAudio != nil,
		rec.Synopsis != nil,
	} {
		if present {
			filled++
		}
	}
	return float64(filled) / float64(pipeline.FieldCount)
}
