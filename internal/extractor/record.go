package extractor

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	scrapeerrors "github.com/okarpenko/autoria-scraper/internal/errors"
	"github.com/okarpenko/autoria-scraper/internal/types"
)

var (
	vinRe        = regexp.MustCompile(`[A-HJ-NPR-Z0-9]{17}`)
	photoCountRe = regexp.MustCompile(`(\d+)`)
	odometerRe   = regexp.MustCompile(`(\d[\d\s]*)\s*(тис|тыс)?\.?\s*км`)
)

// ExtractRecord builds a CarRecord from a rendered detail page. Title and a
// parseable natural key are required; every other field degrades to nil when
// the page does not expose it.
func (e *Extractor) ExtractRecord(html, sourceURL string) (*types.CarRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, scrapeerrors.NewMalformedDocument(sourceURL, err)
	}

	key := NaturalKey(sourceURL)
	if key == "" {
		return nil, scrapeerrors.NewMissingField(sourceURL, "natural_key")
	}

	title := extractTitle(doc)
	if title == "" {
		return nil, scrapeerrors.NewMissingField(sourceURL, "title")
	}

	now := time.Now().UTC()
	rec := &types.CarRecord{
		NaturalKey:    key,
		URL:           sourceURL,
		Title:         title,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}

	if price, ok := extractPriceUSD(doc); ok {
		if price < 0 {
			e.log.Warn().Str("url", sourceURL).Float64("price", price).Msg("negative price dropped")
		} else {
			rec.PriceUSD = &price
		}
	}
	if km, ok := extractOdometerKm(doc, html); ok && km >= 0 {
		rec.OdometerKm = &km
	}
	if v := extractSellerName(doc); v != "" {
		rec.SellerName = &v
	}
	if v := extractPhone(doc); v != "" {
		rec.PhoneNumber = &v
	}
	if v := e.extractPrimaryImage(doc); v != "" {
		rec.PrimaryImageURL = &v
	}
	rec.ImagesCount = extractImagesCount(doc)
	if v := extractPlate(doc); v != "" {
		rec.PlateNumber = &v
	}
	if v := extractVIN(doc); v != "" {
		rec.VIN = &v
	}
	if v := extractLocation(doc); v != "" {
		rec.Location = &v
	}

	return rec, nil
}

func extractTitle(doc *goquery.Document) string {
	for _, sel := range []string{"h1.head", "h1.auto-head", ".auto-content .head", ".ticket-title"} {
		if t := cleanText(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return cleanText(t)
	}
	return ""
}

// extractPriceUSD reads the USD price, digits only. Listings quote UAH and EUR
// alongside; only the USD figure is taken.
func extractPriceUSD(doc *goquery.Document) (float64, bool) {
	selectors := []string{
		`div.price_value strong`,
		`span[data-currency="USD"]`,
		`[data-currency="USD"]`,
		`.price_value`,
	}
	for _, sel := range selectors {
		text := doc.Find(sel).First().Text()
		if !strings.Contains(text, "$") && !strings.Contains(strings.ToLower(text), "usd") &&
			!strings.Contains(sel, "USD") {
			continue
		}
		if v, ok := parseLocaleNumber(text); ok {
			return v, true
		}
	}
	// Some variants put the bare number in the USD-tagged node without a sign.
	for _, sel := range selectors {
		if v, ok := parseLocaleNumber(doc.Find(sel).First().Text()); ok {
			return v, true
		}
	}
	return 0, false
}

// extractOdometerKm handles the site's thousands convention: "95 тис. км"
// means 95000, a plain "95 000 км" is literal.
func extractOdometerKm(doc *goquery.Document, rawHTML string) (int, bool) {
	candidates := []string{
		doc.Find("div.base-information span.size18").First().Text(),
		doc.Find("div.base-information").First().Text(),
		doc.Find(".bold.dhide").First().Text(),
	}
	for _, text := range candidates {
		if km, ok := parseOdometerText(text); ok {
			return km, true
		}
	}
	// Last resort: scan the whole markup for the first odometer-looking token.
	if m := odometerRe.FindStringSubmatch(rawHTML); m != nil {
		return parseOdometerMatch(m)
	}
	return 0, false
}

func parseOdometerText(text string) (int, bool) {
	m := odometerRe.FindStringSubmatch(cleanText(text))
	if m == nil {
		return 0, false
	}
	return parseOdometerMatch(m)
}

func parseOdometerMatch(m []string) (int, bool) {
	n, ok := parseLocaleInt(m[1])
	if !ok {
		return 0, false
	}
	if m[2] != "" {
		n *= 1000
	}
	return n, true
}

func extractSellerName(doc *goquery.Document) string {
	for _, sel := range []string{
		"h4.seller_info_name a",
		".seller_info_name a",
		".seller_info_name",
		"div.seller_info_area h4",
	} {
		if t := cleanText(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func extractPhone(doc *goquery.Document) string {
	if v, ok := doc.Find("[data-phone-number]").First().Attr("data-phone-number"); ok {
		if p := normalizePhone(v); p != "" {
			return p
		}
	}
	if v, ok := doc.Find(".phones_item [data-value]").First().Attr("data-value"); ok {
		if p := normalizePhone(v); p != "" {
			return p
		}
	}
	if t := doc.Find(".phones_item .phone").First().Text(); t != "" {
		return normalizePhone(t)
	}
	return ""
}

func (e *Extractor) extractPrimaryImage(doc *goquery.Document) string {
	selectors := []string{
		"div.photo-620x465 img",
		".carousel img",
		".gallery-order img",
		"picture img",
	}
	for _, sel := range selectors {
		img := doc.Find(sel).First()
		if src, ok := img.Attr("src"); ok && src != "" {
			return e.resolveURL(src, "")
		}
		if srcset, ok := img.Attr("srcset"); ok && srcset != "" {
			first := strings.Fields(strings.Split(srcset, ",")[0])
			if len(first) > 0 {
				return e.resolveURL(first[0], "")
			}
		}
	}
	if v, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && v != "" {
		return v
	}
	return ""
}

// extractImagesCount prefers the "всі N фотографій" link text, then falls
// back to counting thumbnails, then to data attributes.
func extractImagesCount(doc *goquery.Document) int {
	if t := doc.Find("a.show-all, .show-all").First().Text(); t != "" {
		if m := photoCountRe.FindStringSubmatch(t); m != nil {
			if n, ok := parseLocaleInt(m[1]); ok {
				return n
			}
		}
	}
	if n := doc.Find("a.photo-74x56").Length(); n > 0 {
		return n
	}
	if v, ok := doc.Find("[data-photo-count]").First().Attr("data-photo-count"); ok {
		if n, ok := parseLocaleInt(v); ok {
			return n
		}
	}
	if t := doc.Find("span.count-photo .mhide, span.count-photo").First().Text(); t != "" {
		if m := photoCountRe.FindStringSubmatch(t); m != nil {
			if n, ok := parseLocaleInt(m[1]); ok {
				return n
			}
		}
	}
	return 0
}

// extractPlate reads the license plate, dropping the hint tooltip the site
// nests inside the same node.
func extractPlate(doc *goquery.Document) string {
	s := doc.Find(".state-num").First()
	if s.Length() == 0 {
		return ""
	}
	clone := s.Clone()
	clone.Find(".popup, script, style").Remove()
	return normalizePlate(clone.Text())
}

func extractVIN(doc *goquery.Document) string {
	for _, sel := range []string{".label-vin", "span.label-vin", "span.vin-code"} {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		clone := s.Clone()
		clone.Find("svg, .popup, script, style").Remove()
		text := strings.ToUpper(cleanText(clone.Text()))
		if m := vinRe.FindString(text); m != "" {
			return m
		}
		// Masked VINs (xxxx placeholders) are still worth keeping.
		if text != "" {
			return text
		}
	}
	return ""
}

func extractLocation(doc *goquery.Document) string {
	crumbs := doc.Find(`#breadcrumbs span[itemprop="itemListElement"]`)
	if crumbs.Length() == 0 {
		crumbs = doc.Find(`.breadcrumbs span[itemprop="itemListElement"]`)
	}
	if crumbs.Length() > 0 {
		if t := cleanText(crumbs.Last().Text()); t != "" {
			return t
		}
	}
	if t := cleanText(doc.Find("span.city, .checked-list__item .item").First().Text()); t != "" {
		return t
	}
	return ""
}
