package postgres

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/store"
	"sessionbook/backend/migrations"
)

func TestExtractGooseUp(t *testing.T) {
	sql := "-- +goose Up\nCREATE TABLE a (id int);\n-- +goose Down\nDROP TABLE a;\n"
	up, err := extractGooseUp(sql)
	if err != nil {
		t.Fatalf("extractGooseUp: %v", err)
	}
	if up != "CREATE TABLE a (id int);" {
		t.Fatalf("up = %q", up)
	}

	if _, err := extractGooseUp("CREATE TABLE a (id int);"); err == nil {
		t.Fatalf("expected missing marker error")
	}
}

func TestSplitSQLStatements(t *testing.T) {
	got := splitSQLStatements("CREATE TABLE a (id int);\n\n  ;CREATE INDEX i ON a (id);")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
}

func TestNormalizeExtensionStatement(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "CREATE EXTENSION IF NOT EXISTS btree_gist", want: "CREATE EXTENSION IF NOT EXISTS btree_gist SCHEMA public", wantOK: true},
		{in: "CREATE EXTENSION IF NOT EXISTS btree_gist SCHEMA ext", wantOK: false},
		{in: "CREATE EXTENSION pgcrypto", wantOK: false},
		{in: "CREATE TABLE x (id int)", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := normalizeExtensionStatement(tt.in)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Fatalf("normalizeExtensionStatement(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestMigrationNames_Sorted(t *testing.T) {
	fsys := fstest.MapFS{
		"00002_b.sql": {Data: []byte("-- +goose Up\nSELECT 1;")},
		"00001_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;")},
		"README.md":   {Data: []byte("docs")},
	}
	names, err := migrationNames(fsys)
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) != 2 || names[0] != "00001_a.sql" || names[1] != "00002_b.sql" {
		t.Fatalf("names = %v", names)
	}
}

func TestEmbeddedMigrationsParse(t *testing.T) {
	names, err := migrationNames(migrations.FS)
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("no embedded migrations")
	}
	var sawConstraint bool
	for _, n := range names {
		b, err := migrations.FS.ReadFile(n)
		if err != nil {
			t.Fatalf("read %s: %v", n, err)
		}
		up, err := extractGooseUp(string(b))
		if err != nil {
			t.Fatalf("%s: %v", n, err)
		}
		if strings.Contains(up, noOverlapConstraint) {
			sawConstraint = true
		}
	}
	if !sawConstraint {
		t.Fatalf("migrations do not define %s", noOverlapConstraint)
	}
}

func TestMapWriteError(t *testing.T) {
	overlap := &pgconn.PgError{Code: "23P01", ConstraintName: noOverlapConstraint}
	if err := mapWriteError(overlap); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	other := &pgconn.PgError{Code: "23514", ConstraintName: "appointments_duration_valid"}
	if err := mapWriteError(other); errors.Is(err, store.ErrConflict) {
		t.Fatalf("check violation mapped to conflict")
	}
}

func TestParticipantRowRoundTrip(t *testing.T) {
	loc := domain.FixedOffset(300)
	p := domain.Provider{
		ID:          "p1",
		DisplayName: "Dr. Example",
		Location:    loc,
		RateMinor:   4500,
		Availability: domain.WeeklyAvailability{
			domain.Monday: {IsAvailable: true, Windows: []domain.TimeWindow{{Start: 540, End: 720}}},
		},
	}

	row := participantFromDomain(p)
	if row.UTCOffsetMinutes == nil || *row.UTCOffsetMinutes != 300 {
		t.Fatalf("offset = %v", row.UTCOffsetMinutes)
	}

	back, ok := row.toDomain(time.UTC).(domain.Provider)
	if !ok {
		t.Fatalf("expected provider")
	}
	if back.RateMinor != 4500 || back.DisplayName != "Dr. Example" {
		t.Fatalf("unexpected provider: %+v", back)
	}
	if _, off := time.Date(2026, 1, 5, 0, 0, 0, 0, back.Location).Zone(); off != 300*60 {
		t.Fatalf("location offset = %d", off)
	}

	c := participantFromDomain(domain.Consumer{ID: "c1"})
	if c.UTCOffsetMinutes != nil {
		t.Fatalf("consumer without location should store no offset")
	}
	if _, ok := c.toDomain(time.UTC).(domain.Consumer); !ok {
		t.Fatalf("expected consumer")
	}
}
