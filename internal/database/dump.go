package database

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Dump exports the cars table to a timestamped CSV file under dir and
// returns the written path. Used by the daily dump trigger.
func (db *DB) Dump(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create dump directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("cars_dump_%s.csv", time.Now().UTC().Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create dump file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"natural_key", "url", "title", "price_usd", "odometer_km",
		"seller_name", "phone_number", "primary_image_url", "images_count",
		"plate_number", "vin", "location", "first_seen_at", "last_updated_at"}
	if err := w.Write(header); err != nil {
		return "", err
	}

	rows, err := db.conn.Query(`SELECT natural_key, url, title, price_usd, odometer_km,
		seller_name, phone_number, primary_image_url, images_count,
		plate_number, vin, location, first_seen_at, last_updated_at
		FROM cars ORDER BY first_seen_at ASC`)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		rec, err := scanCar(rows)
		if err != nil {
			return "", err
		}
		line := []string{
			rec.NaturalKey,
			rec.URL,
			rec.Title,
			fmtFloat(rec.PriceUSD),
			fmtInt(rec.OdometerKm),
			fmtStr(rec.SellerName),
			fmtStr(rec.PhoneNumber),
			fmtStr(rec.PrimaryImageURL),
			strconv.Itoa(rec.ImagesCount),
			fmtStr(rec.PlateNumber),
			fmtStr(rec.VIN),
			fmtStr(rec.Location),
			rec.FirstSeenAt.UTC().Format(time.RFC3339),
			rec.LastUpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(line); err != nil {
			return "", err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	db.logger.Infof("Dumped %d cars to %s", count, path)
	return path, nil
}
