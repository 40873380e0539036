package flights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Flight is one row of the flights table as it appears in seed files.
type Flight struct {
	Airline            string `json:"airline" db:"airline" parquet:"airline"`
	Time               string `json:"time" db:"time" parquet:"time"`
	Date               string `json:"date" db:"date" parquet:"date"`
	Duration           string `json:"duration" db:"duration" parquet:"duration"`
	FlightType         string `json:"flightType" db:"flightType" parquet:"flightType"`
	PriceINR           int64  `json:"price_inr" db:"price_inr" parquet:"price_inr"`
	Origin             string `json:"origin" db:"origin" parquet:"origin"`
	Destination        string `json:"destination" db:"destination" parquet:"destination"`
	OriginCountry      string `json:"originCountry" db:"originCountry" parquet:"originCountry"`
	DestinationCountry string `json:"destinationCountry" db:"destinationCountry" parquet:"destinationCountry"`
}

const insertFlightSQL = `INSERT INTO flights (
	airline, time, date, duration, flightType, price_inr,
	origin, destination, originCountry, destinationCountry
) VALUES (
	:airline, :time, :date, :duration, :flightType, :price_inr,
	:origin, :destination, :originCountry, :destinationCountry
)`

func createTableStatements(driver string) []string {
	columns := `
	airline TEXT,
	time TEXT,
	date TEXT,
	duration TEXT,
	flightType TEXT,
	price_inr INTEGER,
	origin TEXT,
	destination TEXT,
	originCountry TEXT,
	destinationCountry TEXT
)`
	switch driver {
	case DriverPgx:
		return []string{`CREATE TABLE IF NOT EXISTS flights (
	id BIGSERIAL PRIMARY KEY,` + columns}
	case DriverDuckDB:
		return []string{
			`CREATE SEQUENCE IF NOT EXISTS flights_id_seq START 1`,
			`CREATE TABLE IF NOT EXISTS flights (
	id BIGINT PRIMARY KEY DEFAULT nextval('flights_id_seq'),` + columns,
		}
	default:
		return []string{`CREATE TABLE IF NOT EXISTS flights (
	id INTEGER PRIMARY KEY AUTOINCREMENT,` + columns}
	}
}

// EnsureTable creates the flights table when it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	for _, stmt := range createTableStatements(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create flights table: %w", err)
		}
	}
	return nil
}

func (s *Store) CountFlights(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM flights`); err != nil {
		return 0, fmt.Errorf("count flights: %w", err)
	}
	return count, nil
}

// Seed creates the table if needed and inserts flights only when the table
// is empty. It returns the number of rows inserted.
func (s *Store) Seed(ctx context.Context, flights []Flight) (int, error) {
	if err := s.EnsureTable(ctx); err != nil {
		return 0, err
	}
	count, err := s.CountFlights(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 || len(flights) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range flights {
		if _, err := tx.NamedExecContext(ctx, insertFlightSQL, flights[i]); err != nil {
			return 0, fmt.Errorf("insert flight %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed tx: %w", err)
	}
	return len(flights), nil
}

// LoadSeed seeds the store from a .json or .parquet file.
func (s *Store) LoadSeed(ctx context.Context, path string) (int, error) {
	flights, err := ReadSeedFile(path)
	if err != nil {
		return 0, err
	}
	return s.Seed(ctx, flights)
}

func ReadSeedFile(path string) ([]Flight, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return readJSONSeed(path)
	case ".parquet":
		return readParquetSeed(path)
	default:
		return nil, fmt.Errorf("unsupported seed file %q: want .json or .parquet", path)
	}
}

func readJSONSeed(path string) ([]Flight, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var flights []Flight
	if err := json.Unmarshal(raw, &flights); err != nil {
		return nil, fmt.Errorf("decode seed file %q: %w", path, err)
	}
	return flights, nil
}

func readParquetSeed(path string) ([]Flight, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := parquet.NewGenericReader[Flight](file)
	defer func() { _ = reader.Close() }()

	flights := make([]Flight, 0, reader.NumRows())
	batch := make([]Flight, 256)
	for {
		n, err := reader.Read(batch)
		flights = append(flights, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet seed %q: %w", path, err)
		}
		if n == 0 {
			break
		}
	}
	return flights, nil
}
