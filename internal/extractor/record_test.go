package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scrapeerrors "github.com/okarpenko/autoria-scraper/internal/errors"
)

const detailFixture = `<html><head>
<meta property="og:image" content="https://cdn.riastatic.com/photos/auto/og.jpg">
</head><body>
<h1 class="head">Example Car 2022</h1>
<div class="price_value"><strong>15 999 $</strong></div>
<div class="base-information"><span class="size18">50</span> тис. км</div>
<h4 class="seller_info_name"><a href="#">Іван Петренко</a></h4>
<div class="phones_item"><span data-phone-number="(067) 123 45 67"></span></div>
<div class="photo-620x465"><img src="https://cdn.riastatic.com/photos/auto/main.jpg"></div>
<a class="show-all">всі 27 фотографій</a>
<span class="state-num">AA 1234 BB<span class="popup">державний номер</span></span>
<span class="label-vin">WVWZZZ1KZAW123456<svg viewBox="0 0 10 10"></svg></span>
<div id="breadcrumbs">
  <span itemprop="itemListElement">Головна</span>
  <span itemprop="itemListElement">Київ</span>
</div>
</body></html>`

func TestExtractRecordFullDetailPage(t *testing.T) {
	e := newTestExtractor()

	rec, err := e.ExtractRecord(detailFixture, baseURL+"/uk/auto_example_car_12345.html")
	require.NoError(t, err)

	assert.Equal(t, "12345", rec.NaturalKey)
	assert.Equal(t, "Example Car 2022", rec.Title)

	require.NotNil(t, rec.PriceUSD)
	assert.Equal(t, 15999.0, *rec.PriceUSD)

	require.NotNil(t, rec.OdometerKm)
	assert.Equal(t, 50000, *rec.OdometerKm)

	require.NotNil(t, rec.SellerName)
	assert.Equal(t, "Іван Петренко", *rec.SellerName)

	require.NotNil(t, rec.PhoneNumber)
	assert.Equal(t, "+380671234567", *rec.PhoneNumber)

	require.NotNil(t, rec.PrimaryImageURL)
	assert.Equal(t, "https://cdn.riastatic.com/photos/auto/main.jpg", *rec.PrimaryImageURL)

	assert.Equal(t, 27, rec.ImagesCount)

	require.NotNil(t, rec.PlateNumber)
	assert.Equal(t, "AA 1234 BB", *rec.PlateNumber)

	require.NotNil(t, rec.VIN)
	assert.Equal(t, "WVWZZZ1KZAW123456", *rec.VIN)

	require.NotNil(t, rec.Location)
	assert.Equal(t, "Київ", *rec.Location)

	assert.False(t, rec.FirstSeenAt.IsZero())
	assert.False(t, rec.LastUpdatedAt.IsZero())
}

func TestExtractRecordSparseDetailPage(t *testing.T) {
	e := newTestExtractor()

	html := `<html><body><h1 class="auto-head">Bare Listing 2010</h1></body></html>`
	rec, err := e.ExtractRecord(html, baseURL+"/uk/auto_bare_777.html")
	require.NoError(t, err)

	assert.Equal(t, "777", rec.NaturalKey)
	assert.Equal(t, "Bare Listing 2010", rec.Title)
	assert.Nil(t, rec.PriceUSD)
	assert.Nil(t, rec.OdometerKm)
	assert.Nil(t, rec.SellerName)
	assert.Nil(t, rec.PhoneNumber)
	assert.Nil(t, rec.PlateNumber)
	assert.Nil(t, rec.VIN)
	assert.Nil(t, rec.Location)
	assert.Equal(t, 0, rec.ImagesCount)
}

func TestExtractRecordMissingTitle(t *testing.T) {
	e := newTestExtractor()

	_, err := e.ExtractRecord("<html><body><p>no heading</p></body></html>",
		baseURL+"/uk/auto_untitled_1.html")
	require.Error(t, err)
	assert.True(t, scrapeerrors.IsType(err, scrapeerrors.ErrorTypeParse))
}

func TestExtractRecordUnparsableNaturalKey(t *testing.T) {
	e := newTestExtractor()

	_, err := e.ExtractRecord(detailFixture, baseURL+"/uk/news/not_an_ad.html")
	require.Error(t, err)
	assert.True(t, scrapeerrors.IsType(err, scrapeerrors.ErrorTypeParse))
}

func TestExtractRecordLiteralOdometer(t *testing.T) {
	e := newTestExtractor()

	html := `<html><body>
		<h1 class="head">Low Mileage 2023</h1>
		<div class="base-information">9 500 км</div>
	</body></html>`
	rec, err := e.ExtractRecord(html, baseURL+"/uk/auto_low_88.html")
	require.NoError(t, err)
	require.NotNil(t, rec.OdometerKm)
	assert.Equal(t, 9500, *rec.OdometerKm)
}

func TestExtractRecordOgTitleFallback(t *testing.T) {
	e := newTestExtractor()

	html := `<html><head><meta property="og:title" content="Meta Car 2019"></head><body></body></html>`
	rec, err := e.ExtractRecord(html, baseURL+"/uk/auto_meta_5.html")
	require.NoError(t, err)
	assert.Equal(t, "Meta Car 2019", rec.Title)
}
