package thirtymhz

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PEAXdata/EFA-datapipeline/internal/adapters/stats"
	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

var (
	defaultTenant = domain.Tenant{APIKey: "key-default", Organization: "org-default"}
	tenantA       = domain.Tenant{APIKey: "key-a", Organization: "org-a"}
)

// fakePlatform is an in-memory 30MHz: sensor types and import checks per
// organization, plus recorded ingests, uploads, and shares.
type fakePlatform struct {
	mu sync.Mutex

	sensorTypes  map[string][]SensorTypeResource
	importChecks map[string][]ImportCheckResource
	shares       []string
	ingests      [][]IngestRow
	uploads      int

	ingestFailedEvents int
	statsRows          map[string][]statsRow
	statsBroken        bool

	creates map[string]int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		sensorTypes:  map[string][]SensorTypeResource{},
		importChecks: map[string][]ImportCheckResource{},
		statsRows:    map[string][]statsRow{},
		creates:      map[string]int{},
	}
}

func (f *fakePlatform) addSensorType(org, radioID string) {
	f.sensorTypes[org] = append(f.sensorTypes[org], SensorTypeResource{
		TypeID: "t-" + radioID, RadioID: radioID,
	})
}

func (f *fakePlatform) addImportCheck(org, sourceID string) {
	f.importChecks[org] = append(f.importChecks[org], ImportCheckResource{
		CheckID: "c-" + sourceID, SourceID: sourceID,
	})
}

func (f *fakePlatform) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case parts[0] == "sensor-type" && r.Method == http.MethodGet:
			writeJSON(w, f.sensorTypes[parts[2]])
		case parts[0] == "sensor-type" && r.Method == http.MethodPost:
			var payload struct {
				RadioID string `json:"radioId"`
			}
			decodeJSON(r, &payload)
			f.creates["sensor-type"]++
			f.addSensorType(parts[2], payload.RadioID)
			writeJSON(w, map[string]any{})
		case parts[0] == "share-sensor-type":
			f.shares = append(f.shares, parts[2]+"->"+parts[4])
			writeJSON(w, map[string]any{})
		case parts[0] == "import-check" && r.Method == http.MethodGet:
			writeJSON(w, f.importChecks[parts[2]])
		case parts[0] == "import-check" && r.Method == http.MethodPost:
			var payload struct {
				SourceID   string `json:"sourceId"`
				SensorType string `json:"sensorType"`
			}
			decodeJSON(r, &payload)
			if payload.SensorType == "" {
				http.Error(w, "sensorType required", http.StatusBadRequest)
				return
			}
			f.creates["import-check"]++
			f.addImportCheck(parts[2], payload.SourceID)
			writeJSON(w, map[string]any{})
		case parts[0] == "ingest":
			var rows []IngestRow
			decodeJSON(r, &rows)
			f.ingests = append(f.ingests, rows)
			writeJSON(w, map[string]int{"failedEvents": f.ingestFailedEvents})
		case parts[0] == "data-upload":
			f.uploads++
			writeJSON(w, map[string]string{"id": "upload-1"})
		case parts[0] == "stats":
			if f.statsBroken {
				http.Error(w, "stats unavailable", http.StatusNotFound)
				return
			}
			writeJSON(w, f.statsRows[parts[2]])
		default:
			http.Error(w, "unexpected call "+r.Method+" "+r.URL.Path, http.StatusNotFound)
		}
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) {
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, v)
}

func newTestPublisher(t *testing.T, f *fakePlatform) *Publisher {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPublisher(srv.URL, defaultTenant, "Europe/Amsterdam", stats.Nop{}, log)
}

func testBatch(tenant domain.Tenant) ports.Batch {
	ts := time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)
	return ports.Batch{
		SensorTypes: []domain.SensorType{{
			ID: "210", Name: "Kasgrond", Tenant: tenant,
			Schema: map[string]domain.SchemaField{
				"PH":   {Label: "Acidity", Type: domain.TypeDouble, Metric: "acidity"},
				"file": {Label: "File", Type: domain.TypeString, Metric: "parsum"},
			},
		}},
		ImportChecks: []domain.ImportCheck{{
			ID: "OBJ-A - 210", Name: "Kasgrond Check", SensorTypeID: "210", Tenant: tenant,
		}},
		Records: []domain.IngestRecord{
			{
				CheckID: "OBJ-A - 210", OrderID: "1001", Tenant: tenant,
				Data:      map[string]any{"PH": 6.0, "order_id": "1001"},
				Timestamp: ts,
			},
			{
				CheckID: "OBJ-A - 210", OrderID: "1002", Tenant: tenant,
				Data:      map[string]any{"PH": 6.2, "order_id": "1002"},
				Timestamp: ts,
			},
		},
	}
}

func TestPublishCreatesMissingEntitiesInOrder(t *testing.T) {
	f := newFakePlatform()
	p := newTestPublisher(t, f)

	confirmed, err := p.Publish(context.Background(), testBatch(defaultTenant))
	require.NoError(t, err)

	assert.Equal(t, 1, f.creates["sensor-type"])
	assert.Equal(t, 1, f.creates["import-check"])
	require.Len(t, f.ingests, 1)
	assert.Len(t, f.ingests[0], 2)
	assert.Equal(t, "c-OBJ-A - 210", f.ingests[0][0].CheckID)
	assert.Equal(t, "ok", f.ingests[0][0].Status)
	assert.ElementsMatch(t, []string{"1001", "1002"}, confirmed)
	assert.Empty(t, f.shares, "no share for the default tenant")
}

func TestPublishIsIdempotentWhenEntitiesExist(t *testing.T) {
	f := newFakePlatform()
	f.addSensorType(defaultTenant.Organization, "210")
	f.addImportCheck(defaultTenant.Organization, "OBJ-A - 210")
	p := newTestPublisher(t, f)

	confirmed, err := p.Publish(context.Background(), testBatch(defaultTenant))
	require.NoError(t, err)

	assert.Zero(t, f.creates["sensor-type"])
	assert.Zero(t, f.creates["import-check"])
	assert.ElementsMatch(t, []string{"1001", "1002"}, confirmed)
}

func TestPublishSharesSensorTypeAcrossTenants(t *testing.T) {
	f := newFakePlatform()
	p := newTestPublisher(t, f)

	confirmed, err := p.Publish(context.Background(), testBatch(tenantA))
	require.NoError(t, err)

	// Created once under the default tenant, then shared to the row tenant.
	require.Len(t, f.sensorTypes[defaultTenant.Organization], 1)
	assert.Empty(t, f.sensorTypes[tenantA.Organization])
	assert.Equal(t, []string{"t-210->org-a"}, f.shares)

	// The import check lives under the row tenant.
	require.Len(t, f.importChecks[tenantA.Organization], 1)
	assert.ElementsMatch(t, []string{"1001", "1002"}, confirmed)
}

func TestPublishBatchFailureIsNotConfirmed(t *testing.T) {
	f := newFakePlatform()
	f.ingestFailedEvents = 1
	p := newTestPublisher(t, f)

	confirmed, err := p.Publish(context.Background(), testBatch(defaultTenant))
	require.NoError(t, err, "batch-scoped failures never abort the run")
	assert.Empty(t, confirmed)
	require.Len(t, f.ingests, 1, "the batch was submitted exactly once")
}

func TestPublishFiltersRecordsAlreadyRemote(t *testing.T) {
	f := newFakePlatform()
	f.addSensorType(defaultTenant.Organization, "210")
	f.addImportCheck(defaultTenant.Organization, "OBJ-A - 210")
	f.statsRows["c-OBJ-A - 210"] = []statsRow{{Data: map[string]any{"order_id": "1001"}}}
	p := newTestPublisher(t, f)

	confirmed, err := p.Publish(context.Background(), testBatch(defaultTenant))
	require.NoError(t, err)

	assert.Equal(t, []string{"1002"}, confirmed)
	require.Len(t, f.ingests, 1)
	assert.Len(t, f.ingests[0], 1)
}

func TestPublishStatsCrossCheckIsAdvisory(t *testing.T) {
	f := newFakePlatform()
	f.addSensorType(defaultTenant.Organization, "210")
	f.addImportCheck(defaultTenant.Organization, "OBJ-A - 210")
	f.statsBroken = true
	p := newTestPublisher(t, f)

	confirmed, err := p.Publish(context.Background(), testBatch(defaultTenant))
	require.NoError(t, err, "cross-check failure must not abort ingestion")
	assert.ElementsMatch(t, []string{"1001", "1002"}, confirmed)
}

func TestPublishUploadsAttachmentBeforeIngest(t *testing.T) {
	f := newFakePlatform()
	p := newTestPublisher(t, f)

	batch := testBatch(defaultTenant)
	batch.Records = batch.Records[:1]
	batch.Records[0].Attachment = []byte("%PDF-1.4")

	confirmed, err := p.Publish(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 1, f.uploads)
	require.Len(t, f.ingests, 1)
	assert.Equal(t, "upload-1", f.ingests[0][0].Data[domain.AttachmentField],
		"raw bytes are replaced by the upload handle")
	assert.Equal(t, []string{"1001"}, confirmed)
}

func TestPublishSkipsUnresolvableImportCheck(t *testing.T) {
	f := newFakePlatform()
	p := newTestPublisher(t, f)

	batch := testBatch(defaultTenant)
	// A sensor type that never materializes: its create calls fail.
	batch.SensorTypes = nil
	batch.ImportChecks[0].SensorTypeID = "999"

	confirmed, err := p.Publish(context.Background(), batch)
	require.NoError(t, err, "entity-scoped failures are absorbed")
	assert.Empty(t, confirmed)
	assert.Empty(t, f.ingests, "nothing ingested against a missing check")
}

func TestClientTenantCacheIsBounded(t *testing.T) {
	f := newFakePlatform()
	p := newTestPublisher(t, f)

	c1 := p.client(tenantA)
	c2 := p.client(tenantA)
	assert.Same(t, c1, c2, "one client per (api_key, organization)")
	assert.Equal(t, tenantA, c1.Tenant())

	def := p.client(domain.Tenant{})
	assert.Equal(t, defaultTenant, def.Tenant(), "zero tenant resolves to the default")
}
