// Package thirtymhz talks to the 30MHz telemetry platform: schema and
// channel management, reading ingestion, and binary uploads.
package thirtymhz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("30mhz api: status %d: %s", e.Status, e.Body)
}

// SensorTypeResource is a remote sensor type as returned by the list
// endpoint. RadioID carries our natural key; TypeID is the remote-assigned
// id other entities reference.
type SensorTypeResource struct {
	TypeID  string `json:"typeId"`
	RadioID string `json:"radioId"`
	Name    string `json:"name"`
}

// ImportCheckResource is a remote import check. SourceID carries our natural
// key; CheckID is the remote-assigned ingestion target.
type ImportCheckResource struct {
	CheckID    string `json:"checkId"`
	SourceID   string `json:"sourceId"`
	Name       string `json:"name"`
	SensorType string `json:"sensorType"`
}

// IngestRow is one reading in an ingest batch.
type IngestRow struct {
	CheckID   string         `json:"checkId"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
	Status    string         `json:"status"`
}

type sensorTypePayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	External    bool     `json:"external"`
	RadioID     string   `json:"radioId"`
	JSONKeys    []string `json:"jsonKeys"`
	JSONLabels  []string `json:"jsonLabels"`
	DataTypes   []string `json:"dataTypes"`
	Metrics     []string `json:"metrics"`
}

type importCheckPayload struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	SensorType            string `json:"sensorType"`
	Enabled               bool   `json:"enabled"`
	SourceID              string `json:"sourceId"`
	Timezone              string `json:"timezone"`
	NotificationRelevance int    `json:"notificationRelevance"`
}

type ingestResponse struct {
	FailedEvents int `json:"failedEvents"`
}

type uploadResponse struct {
	ID string `json:"id"`
}

type statsRow struct {
	Data map[string]any `json:"data"`
}

// Client is a 30MHz API client bound to one tenant.
type Client struct {
	http     *retryablehttp.Client
	baseURL  string
	tenant   domain.Tenant
	timezone string
	log      *slog.Logger
}

func NewClient(baseURL string, tenant domain.Tenant, timezone string, log *slog.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &Client{
		http:     rc,
		baseURL:  baseURL,
		tenant:   tenant,
		timezone: timezone,
		log:      log,
	}
}

// Tenant returns the credentials this client acts under.
func (c *Client) Tenant() domain.Tenant { return c.tenant }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		payload = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", c.tenant.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Wrapf(err, "decode %s %s response", method, path)
		}
	}
	return nil
}

func (c *Client) orgPath(resource string) string {
	return fmt.Sprintf("/%s/organization/%s", resource, c.tenant.Organization)
}

// FindSensorType resolves a sensor type by its radio id natural key, or nil
// when the tenant has no such type.
func (c *Client) FindSensorType(ctx context.Context, radioID string) (*SensorTypeResource, error) {
	var list []SensorTypeResource
	if err := c.do(ctx, http.MethodGet, c.orgPath("sensor-type"), nil, &list); err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].RadioID == radioID {
			return &list[i], nil
		}
	}
	return nil, nil
}

// CreateSensorType registers a new external sensor type under this tenant's
// organization.
func (c *Client) CreateSensorType(ctx context.Context, st domain.SensorType) error {
	codes := st.FieldCodes()
	payload := sensorTypePayload{
		Name:        st.Name,
		Description: st.Name,
		External:    true,
		RadioID:     st.ID,
		JSONKeys:    codes,
		JSONLabels:  make([]string, 0, len(codes)),
		DataTypes:   make([]string, 0, len(codes)),
		Metrics:     make([]string, 0, len(codes)),
	}
	for _, code := range codes {
		field := st.Schema[code]
		payload.JSONLabels = append(payload.JSONLabels, field.Label)
		payload.DataTypes = append(payload.DataTypes, field.Type)
		payload.Metrics = append(payload.Metrics, field.Metric)
	}
	return c.do(ctx, http.MethodPost, c.orgPath("sensor-type"), payload, nil)
}

// ShareSensorType grants the given organization access to a sensor type
// owned by this client's tenant.
func (c *Client) ShareSensorType(ctx context.Context, typeID, organization string) error {
	path := fmt.Sprintf("/share-sensor-type/sensor-type/%s/organization/%s", typeID, organization)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// FindImportCheck resolves an import check by its source id natural key, or
// nil when absent.
func (c *Client) FindImportCheck(ctx context.Context, sourceID string) (*ImportCheckResource, error) {
	var list []ImportCheckResource
	if err := c.do(ctx, http.MethodGet, c.orgPath("import-check"), nil, &list); err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].SourceID == sourceID {
			return &list[i], nil
		}
	}
	return nil, nil
}

// CreateImportCheck registers an import check bound to the resolved remote
// sensor type id.
func (c *Client) CreateImportCheck(ctx context.Context, check domain.ImportCheck, sensorTypeID string) error {
	payload := importCheckPayload{
		Name:                  check.Name,
		Description:           check.Name,
		SensorType:            sensorTypeID,
		Enabled:               true,
		SourceID:              check.ID,
		Timezone:              c.timezone,
		NotificationRelevance: 300,
	}
	return c.do(ctx, http.MethodPost, c.orgPath("import-check"), payload, nil)
}

// Ingest submits one batch of readings. A non-zero failed-event count in the
// response fails the whole batch.
func (c *Client) Ingest(ctx context.Context, rows []IngestRow) error {
	var resp ingestResponse
	if err := c.do(ctx, http.MethodPost, "/ingest", rows, &resp); err != nil {
		return err
	}
	if resp.FailedEvents > 0 {
		return errors.Errorf("ingest batch reported %d failed events", resp.FailedEvents)
	}
	return nil
}

// UploadData pushes one binary attachment and returns the opaque handle id
// the readings reference instead of the raw bytes.
func (c *Client) UploadData(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", errors.Wrap(err, "multipart form")
	}
	if _, err := fw.Write(data); err != nil {
		return "", errors.Wrap(err, "multipart write")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "multipart close")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/data-upload", buf.Bytes())
	if err != nil {
		return "", errors.Wrap(err, "build upload request")
	}
	req.Header.Set("Authorization", c.tenant.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "upload")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read upload response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{Status: resp.StatusCode, Body: string(raw)}
	}
	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errors.Wrap(err, "decode upload response")
	}
	return out.ID, nil
}

// RecentOrderIDs pulls the check's recent ingest history and extracts the
// order ids it has already seen. Used as an advisory idempotence guard
// against ledger loss.
func (c *Client) RecentOrderIDs(ctx context.Context, checkID string) (map[string]struct{}, error) {
	var rows []statsRow
	if err := c.do(ctx, http.MethodGet, "/stats/check/"+checkID, nil, &rows); err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, row := range rows {
		if id, ok := row.Data["order_id"].(string); ok && id != "" {
			seen[id] = struct{}{}
		}
	}
	return seen, nil
}
