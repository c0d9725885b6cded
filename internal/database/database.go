package database

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"
	"github.com/sergi/go-diff/diffmatchpatch"

	scrapeerrors "github.com/okarpenko/autoria-scraper/internal/errors"
	"github.com/okarpenko/autoria-scraper/internal/types"
)

// Logger interface for database logging
type Logger interface {
	Infof(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// UpsertResult describes the outcome of an Upsert call.
type UpsertResult string

const (
	Inserted  UpsertResult = "inserted"
	Updated   UpsertResult = "updated"
	Unchanged UpsertResult = "unchanged"
)

const lockStripes = 64

// DB wraps the SQLite database connection
type DB struct {
	conn    *sql.DB
	logger  Logger
	builder sq.StatementBuilderType

	// Per-key write serialization. Upserts for the same natural key take the
	// same stripe; distinct keys proceed concurrently.
	locks [lockStripes]sync.Mutex
}

// Initialize creates a new database connection and runs migrations
func Initialize(dbPath string, log Logger) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	// Enable WAL mode for better concurrent write performance
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db := &DB{
		conn:    conn,
		logger:  log,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db.logger.Infof("Database initialized successfully at %s", dbPath)
	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		natural_key TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		price_usd REAL,
		odometer_km INTEGER,
		seller_name TEXT,
		phone_number TEXT,
		primary_image_url TEXT,
		images_count INTEGER NOT NULL DEFAULT 0,
		plate_number TEXT,
		vin TEXT,
		location TEXT,
		first_seen_at TIMESTAMP NOT NULL,
		last_updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cars_natural_key ON cars(natural_key);
	CREATE INDEX IF NOT EXISTS idx_cars_last_updated ON cars(last_updated_at DESC);

	CREATE TABLE IF NOT EXISTS change_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		natural_key TEXT NOT NULL,
		changed_at TIMESTAMP NOT NULL,
		changed_fields TEXT NOT NULL,
		diff TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_change_log_key ON change_log(natural_key, changed_at DESC);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &db.locks[h.Sum32()%lockStripes]
}

// storeError types a write failure, classifying sqlite constraint and
// contention errors in the message.
func storeError(key, op string, err error) error {
	var se sqlite3.Error
	if stderrors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrConstraint:
			op += ": constraint violation"
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			op += ": database unavailable"
		}
	}
	return scrapeerrors.NewStore(key, op, err)
}

// Upsert inserts the record or merges it into the stored row with the same
// natural key. Merging never erases: an incoming nil field keeps the stored
// value, an incoming non-nil field replaces it. Returns whether the row was
// inserted, updated, or identical after the merge.
func (db *DB) Upsert(record *types.CarRecord) (UpsertResult, error) {
	if record == nil || record.NaturalKey == "" {
		return "", scrapeerrors.NewValidation("upsert", "record without natural key")
	}

	mu := db.lockFor(record.NaturalKey)
	mu.Lock()
	defer mu.Unlock()

	existing, err := db.GetByNaturalKey(record.NaturalKey)
	if err != nil && err != sql.ErrNoRows {
		return "", storeError(record.NaturalKey, "upsert lookup failed", err)
	}

	now := time.Now().UTC()
	if existing == nil {
		if err := db.insert(record, now); err != nil {
			return "", err
		}
		db.logger.Debugf("Inserted car %s", record.NaturalKey)
		return Inserted, nil
	}

	merged, changed := mergeRecords(existing, record)
	if len(changed) == 0 {
		return Unchanged, nil
	}

	merged.LastUpdatedAt = now
	if err := db.update(merged); err != nil {
		return "", err
	}
	if err := db.writeChangeLog(existing, merged, changed, now); err != nil {
		// The row update already landed; a lost audit line is not worth
		// failing the upsert over.
		db.logger.Warnf("Failed to write change log for %s: %v", merged.NaturalKey, err)
	}
	db.logger.Debugf("Updated car %s, fields: %s", merged.NaturalKey, strings.Join(changed, ","))
	return Updated, nil
}

func (db *DB) insert(record *types.CarRecord, now time.Time) error {
	firstSeen := record.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = now
	}
	query, args, err := db.builder.
		Insert("cars").
		Columns("natural_key", "url", "title", "price_usd", "odometer_km",
			"seller_name", "phone_number", "primary_image_url", "images_count",
			"plate_number", "vin", "location", "first_seen_at", "last_updated_at").
		Values(record.NaturalKey, record.URL, record.Title, record.PriceUSD,
			record.OdometerKm, record.SellerName, record.PhoneNumber,
			record.PrimaryImageURL, record.ImagesCount, record.PlateNumber,
			record.VIN, record.Location, firstSeen, now).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert for %s: %w", record.NaturalKey, err)
	}
	if _, err := db.conn.Exec(query, args...); err != nil {
		return storeError(record.NaturalKey, "insert failed", err)
	}
	return nil
}

func (db *DB) update(record *types.CarRecord) error {
	query, args, err := db.builder.
		Update("cars").
		Set("url", record.URL).
		Set("title", record.Title).
		Set("price_usd", record.PriceUSD).
		Set("odometer_km", record.OdometerKm).
		Set("seller_name", record.SellerName).
		Set("phone_number", record.PhoneNumber).
		Set("primary_image_url", record.PrimaryImageURL).
		Set("images_count", record.ImagesCount).
		Set("plate_number", record.PlateNumber).
		Set("vin", record.VIN).
		Set("location", record.Location).
		Set("last_updated_at", record.LastUpdatedAt).
		Where(sq.Eq{"natural_key": record.NaturalKey}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update for %s: %w", record.NaturalKey, err)
	}
	if _, err := db.conn.Exec(query, args...); err != nil {
		return storeError(record.NaturalKey, "update failed", err)
	}
	return nil
}

func (db *DB) writeChangeLog(before, after *types.CarRecord, fields []string, at time.Time) error {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(renderRecord(before), renderRecord(after))
	diff := dmp.PatchToText(patches)

	query, args, err := db.builder.
		Insert("change_log").
		Columns("natural_key", "changed_at", "changed_fields", "diff").
		Values(after.NaturalKey, at, strings.Join(fields, ","), diff).
		ToSql()
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(query, args...)
	return err
}

// GetByNaturalKey returns the stored record, or nil with sql.ErrNoRows.
func (db *DB) GetByNaturalKey(key string) (*types.CarRecord, error) {
	query, args, err := db.selectCars().
		Where(sq.Eq{"natural_key": key}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := scanCar(db.conn.QueryRow(query, args...))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecentCars returns cars ordered by last update, newest first, plus the
// total row count for pagination.
func (db *DB) RecentCars(limit, offset int) ([]types.CarRecord, int, error) {
	total, err := db.CountCars()
	if err != nil {
		return nil, 0, err
	}

	query, args, err := db.selectCars().
		OrderBy("last_updated_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []types.CarRecord
	for rows.Next() {
		rec, err := scanCar(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *rec)
	}
	return out, total, rows.Err()
}

// CountCars returns the number of stored cars.
func (db *DB) CountCars() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM cars").Scan(&n)
	return n, err
}

// ChangeLogEntries returns the audit trail for one car, newest first.
func (db *DB) ChangeLogEntries(key string, limit int) ([]ChangeLogEntry, error) {
	query, args, err := db.builder.
		Select("natural_key", "changed_at", "changed_fields", "diff").
		From("change_log").
		Where(sq.Eq{"natural_key": key}).
		OrderBy("changed_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChangeLogEntry
	for rows.Next() {
		var e ChangeLogEntry
		var diff sql.NullString
		var fields string
		if err := rows.Scan(&e.NaturalKey, &e.ChangedAt, &fields, &diff); err != nil {
			return nil, err
		}
		if fields != "" {
			e.ChangedFields = strings.Split(fields, ",")
		}
		e.Diff = diff.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// ChangeLogEntry is one audit line written when an upsert updated a row.
type ChangeLogEntry struct {
	NaturalKey    string    `json:"natural_key"`
	ChangedAt     time.Time `json:"changed_at"`
	ChangedFields []string  `json:"changed_fields"`
	Diff          string    `json:"diff,omitempty"`
}

func (db *DB) selectCars() sq.SelectBuilder {
	return db.builder.
		Select("natural_key", "url", "title", "price_usd", "odometer_km",
			"seller_name", "phone_number", "primary_image_url", "images_count",
			"plate_number", "vin", "location", "first_seen_at", "last_updated_at").
		From("cars")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCar(row rowScanner) (*types.CarRecord, error) {
	var rec types.CarRecord
	var price sql.NullFloat64
	var odometer sql.NullInt64
	var seller, phone, image, plate, vin, location sql.NullString

	if err := row.Scan(&rec.NaturalKey, &rec.URL, &rec.Title, &price, &odometer,
		&seller, &phone, &image, &rec.ImagesCount, &plate, &vin, &location,
		&rec.FirstSeenAt, &rec.LastUpdatedAt); err != nil {
		return nil, err
	}

	if price.Valid {
		rec.PriceUSD = &price.Float64
	}
	if odometer.Valid {
		km := int(odometer.Int64)
		rec.OdometerKm = &km
	}
	rec.SellerName = nullStr(seller)
	rec.PhoneNumber = nullStr(phone)
	rec.PrimaryImageURL = nullStr(image)
	rec.PlateNumber = nullStr(plate)
	rec.VIN = nullStr(vin)
	rec.Location = nullStr(location)
	return &rec, nil
}

func nullStr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
