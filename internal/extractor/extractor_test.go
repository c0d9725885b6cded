package extractor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okarpenko/autoria-scraper/internal/logger"
)

const baseURL = "https://auto.ria.com"

func newTestExtractor() *Extractor {
	return New(baseURL, logger.Nop())
}

func listingHTML(n int) string {
	var b strings.Builder
	b.WriteString("<html><body><div id='searchResults'>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b,
			`<section class="ticket-item"><div class="ticket-photo"><a href="/uk/auto_test_car_%d.html"><img src="/img/%d.jpg"></a></div></section>`,
			1000+i, i)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func TestExtractCandidatesOrderedAndUnique(t *testing.T) {
	e := newTestExtractor()

	got, err := e.ExtractCandidates(listingHTML(20), baseURL+"/uk/car/used/", 1)
	require.NoError(t, err)
	require.Len(t, got, 20)

	for i, c := range got {
		assert.Equal(t, fmt.Sprintf("%s/uk/auto_test_car_%d.html", baseURL, 1000+i), c.URL)
		assert.Equal(t, 1, c.DiscoveredAtPage)
	}
}

func TestExtractCandidatesDeduplicatesWithinPage(t *testing.T) {
	e := newTestExtractor()

	html := `<html><body>
		<section class="ticket-item"><a href="/uk/auto_a_1.html">one</a></section>
		<section class="ticket-item"><a href="/uk/auto_a_1.html">again</a></section>
		<section class="ticket-item"><a href="/uk/auto_b_2.html">two</a></section>
	</body></html>`

	got, err := e.ExtractCandidates(html, baseURL+"/uk/car/used/", 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, baseURL+"/uk/auto_a_1.html", got[0].URL)
	assert.Equal(t, baseURL+"/uk/auto_b_2.html", got[1].URL)
}

func TestExtractCandidatesRegexFallback(t *testing.T) {
	e := newTestExtractor()

	// No recognizable card markup; only a data attribute carrying the link.
	html := `<html><body><div data-url="https://auto.ria.com/uk/auto_hidden_42.html">card</div></body></html>`

	got, err := e.ExtractCandidates(html, baseURL+"/uk/car/used/", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://auto.ria.com/uk/auto_hidden_42.html", got[0].URL)
	assert.Equal(t, 3, got[0].DiscoveredAtPage)
}

func TestExtractCandidatesEmptyPageIsNotAnError(t *testing.T) {
	e := newTestExtractor()

	got, err := e.ExtractCandidates("<html><body><p>nothing here</p></body></html>", baseURL, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNextPageURL(t *testing.T) {
	e := newTestExtractor()
	current := baseURL + "/uk/car/used/"

	html := `<html><body><a class="js-next" href="?page=2">next</a></body></html>`
	assert.Equal(t, current+"?page=2", e.NextPageURL(html, current))

	disabled := `<html><body><a class="js-next disabled" href="?page=2">next</a></body></html>`
	assert.Equal(t, "", e.NextPageURL(disabled, current))

	assert.Equal(t, "", e.NextPageURL("<html><body></body></html>", current))
}

func TestNextPageURLNeverReturnsCurrent(t *testing.T) {
	e := newTestExtractor()
	current := baseURL + "/uk/car/used/?page=2"

	html := `<html><body><a class="js-next" href="` + current + `">next</a></body></html>`
	assert.Equal(t, "", e.NextPageURL(html, current))
}

func TestNaturalKey(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://auto.ria.com/uk/auto_bmw_x5_12345678.html", "12345678"},
		{"https://auto.ria.com/auto_9999.html", "9999"},
		{"/uk/auto_volkswagen_golf_7_555001.html", "555001"},
		{"https://auto.ria.com/uk/car/used/", ""},
		{"https://auto.ria.com/uk/news/some_article.html", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NaturalKey(tt.url), "url %s", tt.url)
	}
}
