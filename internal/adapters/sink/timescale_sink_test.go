package sink

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ghalamif/opcbridge/internal/domain"
)

func TestTimescaleSinkWriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "sensor_data")
	ts := time.Now()

	points := []*domain.Point{
		{Measurement: "sensor_data", Sensor: "X", Value: 23.5, Time: ts},
		{Measurement: "sensor_data", Sensor: "Y", Value: 1, Time: ts},
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO sensor_data (ts, measurement, sensor, value) VALUES ($1,$2,$3,$4),($5,$6,$7,$8)")
	mock.ExpectExec(expectedQuery).
		WithArgs(ts, "sensor_data", "X", 23.5, ts, "sensor_data", "Y", 1.0).
		WillReturnResult(sqlmock.NewResult(2, 2))

	if err := sink.WriteBatch(context.Background(), points); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkWriteBatchNoPoints(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewTimescaleSink(db, "sensor_data")
	if err := sink.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleSinkName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	sink := NewTimescaleSink(db, "sensor_data")
	if sink.Name() != "timescaledb" {
		t.Fatalf("expected sink name timescaledb, got %s", sink.Name())
	}
}
