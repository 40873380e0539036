package flights

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/parquet-go/parquet-go"
)

var sampleFlights = []Flight{
	{Airline: "VietJet Air", Time: "23:55", Date: "2025-03-01", Duration: "5h 10m", FlightType: "Nonstop", PriceINR: 21000, Origin: "Mumbai", Destination: "Hanoi", OriginCountry: "India", DestinationCountry: "Vietnam"},
	{Airline: "IndiGo", Time: "06:15", Date: "2025-03-01", Duration: "7h 40m", FlightType: "1 stop", PriceINR: 18500, Origin: "Mumbai", Destination: "Hanoi", OriginCountry: "India", DestinationCountry: "Vietnam"},
}

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(context.Background(), DBConfig{Driver: DriverSQLite, DSN: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewStore(db, 3)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	store := newSQLiteStore(t)
	inserted, err := store.Seed(context.Background(), sampleFlights)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if inserted != len(sampleFlights) {
		t.Fatalf("Seed() inserted %d", inserted)
	}
	return store
}

func TestRunFormatsRowsAsTupleList(t *testing.T) {
	store := seededStore(t)

	got, err := store.Run(context.Background(), "SELECT airline, price_inr FROM flights ORDER BY price_inr;")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "[('IndiGo', 18500), ('VietJet Air', 21000)]"
	if got != want {
		t.Fatalf("Run() = %q, want %q", got, want)
	}
}

func TestRunEmptyResult(t *testing.T) {
	store := seededStore(t)

	got, err := store.Run(context.Background(), "SELECT id FROM flights WHERE destination = 'Da Nang'")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "[]" {
		t.Fatalf("Run() = %q, want []", got)
	}
}

func TestRunRejectsWritesAndBadSQL(t *testing.T) {
	store := seededStore(t)

	for _, query := range []string{
		"",
		"DELETE FROM flights",
		"SELECT 1; DROP TABLE flights",
		"SELECT 'a;b'; DELETE FROM flights",
		"SELECT 1 /* ; */; DROP TABLE flights",
		"SELECT nope FROM flights",
	} {
		if _, err := store.Run(context.Background(), query); !errors.Is(err, ErrExecution) {
			t.Fatalf("Run(%q) error = %v, want ErrExecution", query, err)
		}
	}
	if count, err := store.CountFlights(context.Background()); err != nil || count != 2 {
		t.Fatalf("CountFlights() = %d, %v", count, err)
	}
}

func TestRunAllowsSemicolonsInsideLiterals(t *testing.T) {
	store := seededStore(t)

	cases := []struct {
		query string
		want  string
	}{
		{query: "SELECT airline FROM flights WHERE airline = 'a;b'", want: "[]"},
		{query: "SELECT airline FROM flights WHERE airline <> 'it''s;' AND price_inr < 19000;", want: "[('IndiGo',)]"},
		{query: "SELECT \"airline\" FROM flights WHERE duration = '7h 40m' -- cheapest; nonstop\n", want: "[('IndiGo',)]"},
		{query: "SELECT ';' AS sep FROM flights WHERE price_inr > 20000", want: "[(';',)]"},
	}
	for _, tc := range cases {
		got, err := store.Run(context.Background(), tc.query)
		if err != nil {
			t.Fatalf("Run(%q) error = %v", tc.query, err)
		}
		if got != tc.want {
			t.Fatalf("Run(%q) = %q, want %q", tc.query, got, tc.want)
		}
	}
}

func TestSchemaDescribesTableWithSampleRows(t *testing.T) {
	store := seededStore(t)

	schema, err := store.Schema(context.Background())
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	for _, want := range []string{
		"CREATE TABLE",
		"flightType TEXT",
		"3 rows from flights table:",
		"id\tairline\ttime\tdate",
		"VietJet Air\t23:55",
	} {
		if !strings.Contains(schema, want) {
			t.Fatalf("Schema() missing %q:\n%s", want, schema)
		}
	}
	if !strings.HasSuffix(schema, "*/") {
		t.Fatalf("Schema() should close the sample block:\n%s", schema)
	}
}

func TestSeedSkipsNonEmptyTable(t *testing.T) {
	store := seededStore(t)

	inserted, err := store.Seed(context.Background(), sampleFlights)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if inserted != 0 {
		t.Fatalf("Seed() inserted %d into a populated table", inserted)
	}
}

func TestLoadSeedFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight_data.json")
	payload := `[{"airline":"Air India","time":"10:00","date":"2025-04-02","duration":"6h","flightType":"Direct","price_inr":25999,"origin":"New Delhi","destination":"Da Nang","originCountry":"India","destinationCountry":"Vietnam"}]`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	store := newSQLiteStore(t)

	inserted, err := store.LoadSeed(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if inserted != 1 {
		t.Fatalf("LoadSeed() inserted %d", inserted)
	}
	got, err := store.Run(context.Background(), "SELECT airline, flightType, price_inr FROM flights")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "[('Air India', 'Direct', 25999)]" {
		t.Fatalf("Run() = %q", got)
	}
}

func TestShippedSeedFileLoads(t *testing.T) {
	store := newSQLiteStore(t)
	inserted, err := store.LoadSeed(context.Background(), filepath.Join("..", "..", "data", "flight_data.json"))
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if inserted == 0 {
		t.Fatal("expected shipped seed rows")
	}
	got, err := store.Run(context.Background(), "SELECT DISTINCT originCountry, destinationCountry FROM flights")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "[('India', 'Vietnam')]" {
		t.Fatalf("Run() = %q", got)
	}
}

func TestLoadSeedFromParquet(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := parquet.NewGenericWriter[Flight](buf)
	if _, err := writer.Write(sampleFlights); err != nil {
		t.Fatalf("parquet write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("parquet close: %v", err)
	}
	path := filepath.Join(t.TempDir(), "flights.parquet")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write parquet: %v", err)
	}

	flights, err := ReadSeedFile(path)
	if err != nil {
		t.Fatalf("ReadSeedFile() error = %v", err)
	}
	if len(flights) != 2 || flights[1].Airline != "IndiGo" || flights[1].PriceINR != 18500 {
		t.Fatalf("ReadSeedFile() = %+v", flights)
	}

	store := newSQLiteStore(t)
	if inserted, err := store.LoadSeed(context.Background(), path); err != nil || inserted != 2 {
		t.Fatalf("LoadSeed() = %d, %v", inserted, err)
	}
}

func TestReadSeedFileRejectsUnknownExtension(t *testing.T) {
	if _, err := ReadSeedFile("flights.csv"); err == nil {
		t.Fatal("expected error for csv seed")
	}
}

func TestOpenValidatesConfig(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := Open(context.Background(), DBConfig{Driver: DriverPgx}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestSchemaUsesInformationSchemaForPostgres(t *testing.T) {
	db, mock := newSQLMock(t)
	store, err := NewStore(sqlx.NewDb(db, DriverPgx), 2)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	mock.ExpectQuery(`SELECT table_name, column_name, data_type FROM information_schema\.columns WHERE table_schema = \$1`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type"}).
			AddRow("flights", "id", "bigint").
			AddRow("flights", "airline", "text").
			AddRow("routes", "origin", "text"))
	mock.ExpectQuery(`SELECT \* FROM "flights" LIMIT 2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "airline"}).AddRow(int64(1), "IndiGo"))
	mock.ExpectQuery(`SELECT \* FROM "routes" LIMIT 2`).
		WillReturnRows(sqlmock.NewRows([]string{"origin"}))

	schema, err := store.Schema(context.Background())
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	want := "CREATE TABLE flights (\n\tid BIGINT,\n\tairline TEXT\n)\n\n/*\n2 rows from flights table:\nid\tairline\n1\tIndiGo\n*/" +
		"\n\nCREATE TABLE routes (\n\torigin TEXT\n)\n\n/*\n2 rows from routes table:\norigin\n*/"
	if schema != want {
		t.Fatalf("Schema() = %q\nwant %q", schema, want)
	}
	assertSQLMock(t, mock)
}

func TestRunWrapsDriverErrors(t *testing.T) {
	db, mock := newSQLMock(t)
	store, err := NewStore(sqlx.NewDb(db, DriverPgx), 0)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	driverErr := errors.New("relation \"flight\" does not exist")
	mock.ExpectQuery(`SELECT \* FROM flight`).WillReturnError(driverErr)

	_, err = store.Run(context.Background(), "SELECT * FROM flight")
	if !errors.Is(err, ErrExecution) || !errors.Is(err, driverErr) {
		t.Fatalf("Run() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
