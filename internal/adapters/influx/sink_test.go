package influx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/opcbridge/internal/domain"
)

func TestSinkWritesLineProtocol(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
		query string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/write" {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			lines = append(lines, strings.TrimSpace(string(body)))
			query = r.URL.RawQuery
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := influxdb2.NewClient(srv.URL, "token")
	sink := NewSink(client, "PP_Test", "sensor_data")
	defer sink.Close()

	ts := time.Unix(1700000000, 0)
	err := sink.WriteBatch(context.Background(), []*domain.Point{
		{Measurement: "sensor_data", Sensor: "X", Value: 23.5, Time: ts},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 1)
	assert.Equal(t, "sensor_data,sensor=X value=23.5 1700000000000000000", lines[0])
	assert.Contains(t, query, "bucket=sensor_data")
	assert.Contains(t, query, "org=PP_Test")
	assert.Equal(t, "influxdb", sink.Name())
}

func TestSinkSurfacesWriteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := influxdb2.NewClientWithOptions(srv.URL, "token", influxdb2.DefaultOptions().SetMaxRetries(0))
	sink := NewSink(client, "org", "bucket")
	defer sink.Close()

	err := sink.WriteBatch(context.Background(), []*domain.Point{
		{Measurement: "sensor_data", Sensor: "X", Value: 1, Time: time.Now()},
	})
	assert.Error(t, err)
}

func TestSinkEmptyBatchIsNoop(t *testing.T) {
	client := influxdb2.NewClient("http://127.0.0.1:1", "token")
	sink := NewSink(client, "org", "bucket")
	defer sink.Close()
	assert.NoError(t, sink.WriteBatch(context.Background(), nil))
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{URL: "http://localhost:8086", Org: "PP_Test", Bucket: "sensor_data"}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sensor_data", cfg.Measurement)

	assert.Error(t, (&Config{URL: "http://x"}).Validate())
}
