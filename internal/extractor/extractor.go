package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	scrapeerrors "github.com/okarpenko/autoria-scraper/internal/errors"
	"github.com/okarpenko/autoria-scraper/internal/logger"
	"github.com/okarpenko/autoria-scraper/internal/types"
)

// Extractor turns rendered AutoRia HTML into candidates and car records.
type Extractor struct {
	baseURL string
	log     *logger.Logger
}

// New creates an extractor resolving relative links against baseURL.
func New(baseURL string, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.ForComponent("extractor"),
	}
}

// Ordered listing-card selectors. The site has shipped several card markups
// over time; the first selector that yields links wins.
var candidateSelectors = []string{
	"section.ticket-item",
	"div.ticket-item",
	"div.content-ticket",
	"div.content-bar",
	".app-catalog a[href*='auto_']",
	"a[href*='auto_']",
}

var (
	detailURLRe    = regexp.MustCompile(`(?:href|link|url)=["']?([^"'\s>]*auto_[^"'\s>]*\.html)`)
	naturalKeyRe   = regexp.MustCompile(`auto_(?:.*_)?(\d+)\.html`)
	adLinkSuffixRe = regexp.MustCompile(`auto_[^/"']*\.html`)
)

// ExtractCandidates finds detail-page links on a listing page. Candidates are
// returned in document order, deduplicated by URL. An empty result is not an
// error; only a document goquery cannot parse at all is.
func (e *Extractor) ExtractCandidates(html, pageURL string, page int) ([]types.ListingCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, scrapeerrors.NewMalformedDocument(pageURL, err)
	}

	seen := make(map[string]struct{})
	var out []types.ListingCandidate
	add := func(raw string) {
		u := e.resolveURL(raw, pageURL)
		if u == "" || !adLinkSuffixRe.MatchString(u) {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, types.ListingCandidate{URL: u, DiscoveredAtPage: page})
	}

	for _, sel := range candidateSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if link := cardLink(s); link != "" {
				add(link)
			}
		})
		if len(out) > 0 {
			e.log.Debug().
				Str("selector", sel).
				Int("count", len(out)).
				Msg("candidates found")
			break
		}
	}

	// Regex sweep over the raw markup catches cards none of the selectors
	// matched (script-embedded links, new card variants).
	if len(out) == 0 {
		for _, m := range detailURLRe.FindAllStringSubmatch(html, -1) {
			add(m[1])
		}
		if len(out) > 0 {
			e.log.Debug().Int("count", len(out)).Msg("candidates recovered via regex fallback")
		}
	}

	return out, nil
}

// cardLink recovers the detail URL from a listing card element.
func cardLink(s *goquery.Selection) string {
	if goquery.NodeName(s) == "a" {
		if href, ok := s.Attr("href"); ok && strings.Contains(href, "auto_") {
			return href
		}
	}
	if href, ok := s.Find("a[href*='auto_']").First().Attr("href"); ok {
		return href
	}
	if v, ok := s.Attr("data-link-to-view"); ok && v != "" {
		return v
	}
	if href, ok := s.Find("a.address").First().Attr("href"); ok {
		return href
	}
	if href, ok := s.Find(".ticket-photo a").First().Attr("href"); ok {
		return href
	}
	return ""
}

// Ordered pagination selectors, most specific first.
var nextPageSelectors = []string{
	"a.js-next",
	"a.page-link.js-next",
	".pagination .next a",
	".pager .next a",
	"link[rel='next']",
}

// NextPageURL returns the absolute URL of the next listing page, or "" when
// the current page is the last one.
func (e *Extractor) NextPageURL(html, currentURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	for _, sel := range nextPageSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if s.HasClass("disabled") {
			continue
		}
		href, ok := s.Attr("href")
		if !ok || href == "" || href == "#" {
			continue
		}
		if u := e.resolveURL(href, currentURL); u != "" && u != currentURL {
			return u
		}
	}
	return ""
}

// NaturalKey extracts the ad identifier from a detail URL: the digit group in
// auto_..._<digits>.html (or a plain auto_<digits>.html tail). Empty when the
// URL carries no identifier.
func NaturalKey(rawURL string) string {
	m := naturalKeyRe.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// resolveURL makes raw absolute: against the page URL when parseable,
// otherwise against the configured site base.
func (e *Extractor) resolveURL(raw, pageURL string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if base, err := url.Parse(pageURL); err == nil && base.IsAbs() {
		if ref, err := url.Parse(raw); err == nil {
			return base.ResolveReference(ref).String()
		}
	}
	if strings.HasPrefix(raw, "/") {
		return e.baseURL + raw
	}
	return e.baseURL + "/" + raw
}
