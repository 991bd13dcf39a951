// Package transform converts raw lab rows into the canonical three-entity
// model: sensor types, import checks, and ingest records.
package transform

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

// Options carries the fixed mapping tables the transformer works from.
type Options struct {
	// Packages maps an analysis package code to its display name. Rows with
	// an unlisted code are out of scope.
	Packages map[string]string

	// Metrics maps a result code or unit description to a metric label; the
	// "default" entry catches everything else.
	Metrics map[string]string

	// Tenants routes rows by relation id; unmatched rows use DefaultTenant.
	Tenants       map[string]domain.Tenant
	DefaultTenant domain.Tenant

	SchemaVersion string

	// Window is the recency cutoff: rows whose sample date is older than
	// now-Window are silently dropped and never enter the ledger.
	Window   time.Duration
	Location *time.Location

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

type Transformer struct {
	attachments ports.AttachmentStore
	stats       ports.StatsClient
	log         *slog.Logger
	opts        Options
}

func New(attachments ports.AttachmentStore, stats ports.StatsClient, log *slog.Logger, opts Options) *Transformer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Transformer{attachments: attachments, stats: stats, log: log, opts: opts}
}

type entityKey struct {
	tenant domain.Tenant
	id     string
}

// Transform filters rows to the in-scope, not-yet-synced subset and derives
// the deduplicated entity batch plus the set of order ids it considered.
// Touched ids are a superset of what will be confirmed: a record dropped for
// a missing attachment is still touched, so it is retried next run.
func (t *Transformer) Transform(ctx context.Context, rows []domain.RawRow, alreadyDone map[string]struct{}) (ports.Batch, []string, error) {
	cutoff := t.opts.Now().Add(-t.opts.Window)

	var (
		batch        ports.Batch
		touched      []string
		sensorTypes  = map[entityKey]domain.SensorType{}
		sensorOrder  []entityKey
		importChecks = map[entityKey]struct{}{}
	)

	t.stats.Count("transform.rows_read", int64(len(rows)))

	for _, row := range rows {
		if len(row.ResultPoints) == 0 {
			continue
		}
		if _, done := alreadyDone[row.OrderID]; done {
			t.stats.Count("transform.rows_already_done", 1)
			continue
		}
		packageName, known := t.opts.Packages[row.PackageCode]
		if !known {
			t.stats.Count("transform.rows_unknown_package", 1)
			continue
		}
		if !row.SampleDate.After(cutoff) {
			t.stats.Count("transform.rows_out_of_window", 1)
			continue
		}

		tenant := t.resolveTenant(row)
		touched = append(touched, row.OrderID)

		st := t.deriveSensorType(row, packageName, tenant)
		key := entityKey{tenant: tenant, id: st.ID}
		if existing, ok := sensorTypes[key]; ok {
			sensorTypes[key] = existing.Widen(st)
		} else {
			sensorTypes[key] = st
			sensorOrder = append(sensorOrder, key)
		}

		check := domain.ImportCheck{
			ID:           domain.ImportCheckID(row.ObjectCode, st.ID),
			Name:         packageName + " Check",
			SensorTypeID: st.ID,
			Tenant:       tenant,
		}
		if _, ok := importChecks[entityKey{tenant: tenant, id: check.ID}]; !ok {
			importChecks[entityKey{tenant: tenant, id: check.ID}] = struct{}{}
			batch.ImportChecks = append(batch.ImportChecks, check)
		}

		record, err := t.deriveIngest(ctx, row, check.ID, tenant)
		if err != nil {
			t.stats.Count("transform.records_dropped", 1)
			t.log.Warn("dropping ingest record",
				slog.String("order_id", row.OrderID),
				slog.String("reason", err.Error()))
			continue
		}
		batch.Records = append(batch.Records, record)
	}

	for _, key := range sensorOrder {
		batch.SensorTypes = append(batch.SensorTypes, sensorTypes[key])
	}

	t.stats.Count("transform.rows_touched", int64(len(touched)))
	return batch, touched, nil
}

func (t *Transformer) resolveTenant(row domain.RawRow) domain.Tenant {
	if tenant, ok := t.opts.Tenants[row.RelationID]; ok {
		return tenant
	}
	return t.opts.DefaultTenant
}

func (t *Transformer) deriveSensorType(row domain.RawRow, packageName string, tenant domain.Tenant) domain.SensorType {
	schema := map[string]domain.SchemaField{
		domain.AttachmentField: {
			Label:  "File",
			Type:   domain.TypeString,
			Metric: t.opts.Metrics["default"],
		},
	}
	for _, point := range row.ResultPoints {
		schema[point.Code] = domain.SchemaField{
			Label:  point.Description,
			Type:   inferType(point.Value),
			Metric: t.inferMetric(point.Code, point.Unit),
		}
	}
	return domain.SensorType{
		ID:     domain.SensorTypeID(row.PackageCode, t.opts.SchemaVersion),
		Name:   packageName,
		Tenant: tenant,
		Schema: schema,
	}
}

func (t *Transformer) deriveIngest(ctx context.Context, row domain.RawRow, checkID string, tenant domain.Tenant) (domain.IngestRecord, error) {
	ts := row.SampleDate.In(t.opts.Location).Truncate(time.Second)

	data := make(map[string]any, len(row.ResultPoints)+3)
	for _, point := range row.ResultPoints {
		if v, err := strconv.ParseFloat(point.Value, 64); err == nil {
			data[point.Code] = v
		} else {
			data[point.Code] = point.Value
		}
	}
	data["datetime"] = ts.Format(time.RFC3339)
	data["sample_code"] = row.SampleCode
	data["order_id"] = row.OrderID

	record := domain.IngestRecord{
		CheckID:   checkID,
		OrderID:   row.OrderID,
		Tenant:    tenant,
		Data:      data,
		Timestamp: ts,
	}

	if t.attachments == nil {
		return record, nil
	}
	doc, err := t.attachments.Fetch(ctx, row)
	if err != nil {
		if errors.Is(err, ports.ErrAttachmentNotFound) {
			return domain.IngestRecord{}, errors.Wrap(err, "document service")
		}
		return domain.IngestRecord{}, errors.Wrap(err, "fetch attachment")
	}
	record.Attachment = doc
	return record, nil
}

func (t *Transformer) inferMetric(code, unit string) string {
	if metric, ok := t.opts.Metrics[code]; ok {
		return metric
	}
	if metric, ok := t.opts.Metrics[unit]; ok {
		return metric
	}
	return t.opts.Metrics["default"]
}

// inferType maps numeric-looking values to double and everything else to
// string.
func inferType(value string) string {
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return domain.TypeDouble
	}
	return domain.TypeString
}
