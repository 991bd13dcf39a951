package thirtymhz

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
)

func TestCreateSensorTypePayloadArraysStayAligned(t *testing.T) {
	var got sensorTypePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sensor-type/organization/org-default", r.URL.Path)
		require.Equal(t, "key-default", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("X-Request-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]any{})
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(srv.URL, defaultTenant, "Europe/Amsterdam", log)

	st := domain.SensorType{
		ID:   "210",
		Name: "Kasgrond",
		Schema: map[string]domain.SchemaField{
			"PH":   {Label: "Acidity", Type: domain.TypeDouble, Metric: "acidity"},
			"EC":   {Label: "Conductivity", Type: domain.TypeDouble, Metric: "ec"},
			"file": {Label: "File", Type: domain.TypeString, Metric: "parsum"},
		},
	}
	require.NoError(t, c.CreateSensorType(context.Background(), st))

	assert.Equal(t, "210", got.RadioID)
	assert.True(t, got.External)
	assert.Equal(t, []string{"EC", "PH", "file"}, got.JSONKeys)
	assert.Equal(t, []string{"Conductivity", "Acidity", "File"}, got.JSONLabels)
	assert.Equal(t, []string{"double", "double", "string"}, got.DataTypes)
	assert.Equal(t, []string{"ec", "acidity", "parsum"}, got.Metrics)
}

func TestIngestFailedEventsIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]int{"failedEvents": 2})
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(srv.URL, defaultTenant, "Europe/Amsterdam", log)

	err := c.Ingest(context.Background(), []IngestRow{{CheckID: "c-1", Status: "ok"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 failed events")
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient(srv.URL, defaultTenant, "Europe/Amsterdam", log)

	_, err := c.FindSensorType(context.Background(), "210")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}
