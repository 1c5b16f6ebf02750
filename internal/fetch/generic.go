package fetch

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscout/internal/model"
)

// GenericWebStrategy scrapes arbitrary pages: comment sections, guest books,
// competitor contact pages. It yields one artifact per page holding the
// page's main readable text.
type GenericWebStrategy struct{}

func (g *GenericWebStrategy) Name() string { return "generic_web" }

// BuildRequests seeds the source with its configured URL.
func (g *GenericWebStrategy) BuildRequests(source model.SourceConfig) []string {
	return []string{source.URL}
}

// DetectBlock has no extra markers beyond the generic detector.
func (g *GenericWebStrategy) DetectBlock(_ *Page) (bool, BlockType) {
	return false, BlockNone
}

// ParseArtifacts extracts the page's main text via readability, falling back
// to the raw body text when extraction finds nothing.
func (g *GenericWebStrategy) ParseArtifacts(page *Page, source model.SourceConfig) (ParseResult, error) {
	pageURL, err := url.Parse(page.URL)
	if err != nil {
		return ParseResult{}, eris.Wrap(err, "generic: parse page url")
	}

	text := ""
	article, err := readability.FromReader(bytes.NewReader(page.Body), pageURL)
	if err == nil {
		text = strings.TrimSpace(article.TextContent)
	}

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if text == "" {
		if docErr != nil {
			return ParseResult{}, eris.Wrap(docErr, "generic: parse html")
		}
		text = strings.TrimSpace(doc.Find("body").Text())
	}
	if text == "" {
		return ParseResult{}, nil
	}

	// wa.me links carry contactable numbers that readability strips.
	if doc != nil {
		var waLinks []string
		doc.Find(`a[href*="wa.me"], a[href*="api.whatsapp.com"]`).Each(func(_ int, sel *goquery.Selection) {
			if href, ok := sel.Attr("href"); ok {
				waLinks = append(waLinks, href)
			}
		})
		if len(waLinks) > 0 {
			text += "\n" + strings.Join(waLinks, "\n")
		}
	}

	artifact := model.RawArtifact{
		ID:         uuid.NewString(),
		SourceID:   source.ID,
		URL:        page.URL,
		RawText:    text,
		CapturedAt: page.FetchedAt,
	}

	return ParseResult{Artifacts: []model.RawArtifact{artifact}}, nil
}
