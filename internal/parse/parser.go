// Package parse turns raw listing and detail documents into candidate
// records. Extraction is a pure function of the input bytes: no network, no
// cache, no global state.
package parse

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
)

// The site joins a label and its value across a line break inside the info
// block; collapse that so one regex per field suffices.
var reLabelBreak = regexp.MustCompile(`:\s*\n`)

// ExtractCandidate applies the ordered rule list to one detail document.
// Fields whose rules all come up empty are recorded as absent, never as an
// error; only an unreadable document fails.
func ExtractCandidate(doc []byte, url string) (pipeline.Candidate, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return pipeline.Candidate{}, fmt.Errorf("parse document %s: %w", url, err)
	}

	info := gq.Find("#informacoes > p").First().Text()
	page := Page{
		Doc:      gq,
		InfoText: reLabelBreak.ReplaceAllString(info, ": "),
	}

	candidate := pipeline.Candidate{
		Link:   url,
		Fields: make(map[string]string),
	}
	for _, rule := range Rules() {
		if candidate.Has(rule.Field) {
			continue
		}
		if value := rule.Extract(page); value != "" {
			candidate.Fields[rule.Field] = value
		}
	}
	return candidate, nil
}

// ListingLinks pulls the unique detail-page links out of a listing document,
// preserving first-seen order. A layout change yields an empty slice, not an
// error.
func ListingLinks(doc []byte) ([]string, error) {
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	selection := gq.Find("#capas_pequenas > div > a")
	if selection.Length() == 0 {
		// Secondary layout used by the article-style listing pages.
		selection = gq.Find("article > header > h2 > a")
	}

	seen := make(map[string]struct{})
	var links []string
	selection.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})
	return links, nil
}

// CoerceFloat parses a decimal accepting both "." and "," separators.
// Malformed input yields (0, false), never an error.
func CoerceFloat(raw string) (float64, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// CoerceInt parses an integer. Malformed input yields (0, false).
func CoerceInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CoerceBool parses the extractor's "true"/"false" representation.
func CoerceBool(raw string) (bool, bool) {
	switch strings.TrimSpace(raw) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
