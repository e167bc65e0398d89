package parse

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/filmesbr/torrent-movies-etl/internal/pipeline"
)

// Page is the parsed detail document handed to extraction rules: the goquery
// document plus the normalized info-block text most fields live in.
type Page struct {
	Doc      *goquery.Document
	InfoText string
}

// Rule is one strategy for pulling a single field out of a page. Rules for
// the same field are tried in slice order; the first non-empty result wins.
type Rule struct {
	Field   string
	Extract func(p Page) string
}

var (
	reDubbedTitle   = regexp.MustCompile(`Baixar (.+?) Torrent`)
	reOriginalTitle = regexp.MustCompile(`Título Original:\s*([^\n]+)`)
	reRatingSlash   = regexp.MustCompile(`Imdb:\s*([0-9][0-9.,]*)\s*/`)
	reRatingBare    = regexp.MustCompile(`Imdb:\s*([0-9][0-9.,]*)`)
	reYear          = regexp.MustCompile(`Lançamento:\s*(\d{4})`)
	reGenresBounded = regexp.MustCompile(`Gêneros:\s*(.+?)\s*Idioma:`)
	reGenresLine    = regexp.MustCompile(`Gêneros:\s*([^\n]+)`)
	reFileSize      = regexp.MustCompile(`Tamanho:\s*([^\n]+?)\s*GB`)
	reRuntime       = regexp.MustCompile(`Duração:\s*(\d+)\s*Minutos`)
	reVideoPiped    = regexp.MustCompile(`Vídeo:\s*([0-9][0-9.,]*)\s*\|`)
	reVideoBare     = regexp.MustCompile(`Vídeo:\s*([0-9][0-9.,]*)`)
	reQualityLabel  = regexp.MustCompile(`Qualidade:\s*([0-9a-zA-Z |]+)`)
)

// Rules returns the ordered extraction rule list. Order within a field is the
// priority order; order across fields is irrelevant.
func Rules() []Rule {
	return []Rule{
		{pipeline.FieldDubbedTitle, regexRule(reDubbedTitle)},
		{pipeline.FieldDubbedTitle, func(p Page) string {
			return strings.TrimSpace(p.Doc.Find("h1").First().Text())
		}},
		{pipeline.FieldOriginalTitle, regexRule(reOriginalTitle)},
		{pipeline.FieldRating, regexRule(reRatingSlash)},
		{pipeline.FieldRating, regexRule(reRatingBare)},
		{pipeline.FieldYear, regexRule(reYear)},
		{pipeline.FieldGenres, genreRule(reGenresBounded)},
		{pipeline.FieldGenres, genreRule(reGenresLine)},
		{pipeline.FieldFileSize, regexRule(reFileSize)},
		{pipeline.FieldRuntimeMinutes, regexRule(reRuntime)},
		{pipeline.FieldVideoQuality, regexRule(reVideoPiped)},
		{pipeline.FieldVideoQuality, regexRule(reVideoBare)},
		{pipeline.FieldQualityLabel, regexRule(reQualityLabel)},
		{pipeline.FieldDubbedAudio, dubbedAudioRule},
		{pipeline.FieldSynopsis, synopsisRule},
	}
}

func regexRule(re *regexp.Regexp) func(Page) string {
	return func(p Page) string {
		m := re.FindStringSubmatch(p.InfoText)
		if m == nil {
			return ""
		}
		return strings.TrimSpace(m[1])
	}
}

// genreRule normalizes the source's slash-separated genre list to a single
// comma-joined sequence.
func genreRule(re *regexp.Regexp) func(Page) string {
	return func(p Page) string {
		m := re.FindStringSubmatch(p.InfoText)
		if m == nil {
			return ""
		}
		return NormalizeGenres(m[1])
	}
}

// NormalizeGenres rewrites "/"-separated genres to ", " and trims each name.
// Empty input normalizes to "".
func NormalizeGenres(raw string) string {
	parts := strings.Split(raw, "/")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func dubbedAudioRule(p Page) string {
	if p.InfoText == "" {
		return ""
	}
	if strings.Contains(p.InfoText, "Português") {
		return "true"
	}
	return "false"
}

func synopsisRule(p Page) string {
	text := p.Doc.Find("#sinopse > p").First().Text()
	if text == "" {
		return ""
	}
	// The site prefixes the synopsis with "Descrição:"; keep only the prose.
	if idx := strings.Index(text, "Descrição"); idx >= 0 {
		text = text[idx+len("Descrição"):]
	}
	if idx := strings.Index(text, ":"); idx >= 0 {
		text = text[idx+1:]
	}
	return strings.TrimSpace(text)
}
