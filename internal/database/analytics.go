package database

import (
	"database/sql"
)

// CarsSummary captures high-level inventory metrics.
type CarsSummary struct {
	TotalCars       int     `json:"total_cars"`
	PricedCars      int     `json:"priced_cars"`
	AvgPriceUSD     float64 `json:"avg_price_usd"`
	MinPriceUSD     float64 `json:"min_price_usd"`
	MaxPriceUSD     float64 `json:"max_price_usd"`
	CarsWithVIN     int     `json:"cars_with_vin"`
	CarsWithPhone   int     `json:"cars_with_phone"`
	DistinctSellers int     `json:"distinct_sellers"`
}

// FirstSeenPoint represents cars first discovered per day.
type FirstSeenPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// SellerStats contains per-seller listing counts.
type SellerStats struct {
	Seller string `json:"seller"`
	Count  int    `json:"count"`
}

// GetCarsSummary returns high-level metrics computed from the cars table.
func (db *DB) GetCarsSummary() (*CarsSummary, error) {
	query := `
		SELECT
			COUNT(*),
			SUM(CASE WHEN price_usd IS NOT NULL THEN 1 ELSE 0 END),
			COALESCE(AVG(price_usd), 0),
			COALESCE(MIN(price_usd), 0),
			COALESCE(MAX(price_usd), 0),
			SUM(CASE WHEN vin IS NOT NULL AND vin != '' THEN 1 ELSE 0 END),
			SUM(CASE WHEN phone_number IS NOT NULL AND phone_number != '' THEN 1 ELSE 0 END),
			COUNT(DISTINCT seller_name)
		FROM cars;
	`

	var s CarsSummary
	var priced, withVIN, withPhone sql.NullInt64
	if err := db.conn.QueryRow(query).Scan(
		&s.TotalCars,
		&priced,
		&s.AvgPriceUSD,
		&s.MinPriceUSD,
		&s.MaxPriceUSD,
		&withVIN,
		&withPhone,
		&s.DistinctSellers,
	); err != nil {
		return nil, err
	}
	s.PricedCars = int(priced.Int64)
	s.CarsWithVIN = int(withVIN.Int64)
	s.CarsWithPhone = int(withPhone.Int64)
	return &s, nil
}

// GetFirstSeenSeries returns cars first discovered per day for the last N days.
func (db *DB) GetFirstSeenSeries(days int) ([]FirstSeenPoint, error) {
	query := `
		SELECT DATE(first_seen_at) AS date, COUNT(*) AS count
		FROM cars
		WHERE DATE(first_seen_at) >= DATE('now', '-' || ? || ' days')
		GROUP BY DATE(first_seen_at)
		ORDER BY date ASC;
	`

	rows, err := db.conn.Query(query, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FirstSeenPoint
	for rows.Next() {
		var p FirstSeenPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// GetTopSellers returns sellers with the most listings.
func (db *DB) GetTopSellers(limit int) ([]SellerStats, error) {
	query := `
		SELECT seller_name, COUNT(*) AS count
		FROM cars
		WHERE seller_name IS NOT NULL AND seller_name != ''
		GROUP BY seller_name
		ORDER BY count DESC
		LIMIT ?;
	`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SellerStats
	for rows.Next() {
		var s SellerStats
		if err := rows.Scan(&s.Seller, &s.Count); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}
