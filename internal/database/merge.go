package database

import (
	"fmt"
	"strings"

	"github.com/okarpenko/autoria-scraper/internal/types"
)

// mergeRecords folds incoming into existing and reports which fields changed.
// The merge never loses data: a nil incoming field keeps the stored value.
func mergeRecords(existing, incoming *types.CarRecord) (*types.CarRecord, []string) {
	merged := *existing
	var changed []string

	if incoming.URL != "" && incoming.URL != merged.URL {
		merged.URL = incoming.URL
		changed = append(changed, "url")
	}
	if incoming.Title != "" && incoming.Title != merged.Title {
		merged.Title = incoming.Title
		changed = append(changed, "title")
	}
	if incoming.PriceUSD != nil && !eqFloat(merged.PriceUSD, incoming.PriceUSD) {
		merged.PriceUSD = incoming.PriceUSD
		changed = append(changed, "price_usd")
	}
	if incoming.OdometerKm != nil && !eqInt(merged.OdometerKm, incoming.OdometerKm) {
		merged.OdometerKm = incoming.OdometerKm
		changed = append(changed, "odometer_km")
	}
	if incoming.SellerName != nil && !eqStr(merged.SellerName, incoming.SellerName) {
		merged.SellerName = incoming.SellerName
		changed = append(changed, "seller_name")
	}
	if incoming.PhoneNumber != nil && !eqStr(merged.PhoneNumber, incoming.PhoneNumber) {
		merged.PhoneNumber = incoming.PhoneNumber
		changed = append(changed, "phone_number")
	}
	if incoming.PrimaryImageURL != nil && !eqStr(merged.PrimaryImageURL, incoming.PrimaryImageURL) {
		merged.PrimaryImageURL = incoming.PrimaryImageURL
		changed = append(changed, "primary_image_url")
	}
	if incoming.ImagesCount > 0 && incoming.ImagesCount != merged.ImagesCount {
		merged.ImagesCount = incoming.ImagesCount
		changed = append(changed, "images_count")
	}
	if incoming.PlateNumber != nil && !eqStr(merged.PlateNumber, incoming.PlateNumber) {
		merged.PlateNumber = incoming.PlateNumber
		changed = append(changed, "plate_number")
	}
	if incoming.VIN != nil && !eqStr(merged.VIN, incoming.VIN) {
		merged.VIN = incoming.VIN
		changed = append(changed, "vin")
	}
	if incoming.Location != nil && !eqStr(merged.Location, incoming.Location) {
		merged.Location = incoming.Location
		changed = append(changed, "location")
	}

	return &merged, changed
}

func eqFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// renderRecord produces a stable text form of a record for diffing.
func renderRecord(r *types.CarRecord) string {
	var b strings.Builder
	write := func(k, v string) { fmt.Fprintf(&b, "%s: %s\n", k, v) }

	write("url", r.URL)
	write("title", r.Title)
	write("price_usd", fmtFloat(r.PriceUSD))
	write("odometer_km", fmtInt(r.OdometerKm))
	write("seller_name", fmtStr(r.SellerName))
	write("phone_number", fmtStr(r.PhoneNumber))
	write("primary_image_url", fmtStr(r.PrimaryImageURL))
	write("images_count", fmt.Sprintf("%d", r.ImagesCount))
	write("plate_number", fmtStr(r.PlateNumber))
	write("vin", fmtStr(r.VIN))
	write("location", fmtStr(r.Location))
	return b.String()
}

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}

func fmtInt(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func fmtStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
