package thirtymhz

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

// Publisher writes a transformed batch to 30MHz in dependency order: sensor
// types, then import checks, then readings. Every entity-scoped failure is
// logged and counted but never aborts the run; a failed entity's dependents
// fail to resolve and are skipped the same way, to be retried next run.
//
// Existence-check-then-create is not atomic against concurrent writers; a
// single live pipeline instance is assumed.
type Publisher struct {
	baseURL       string
	defaultTenant domain.Tenant
	timezone      string
	stats         ports.StatsClient
	log           *slog.Logger

	// clients caches one API client per (api_key, organization) pair; tenant
	// cardinality is small, no eviction.
	clients map[domain.Tenant]*Client
}

func NewPublisher(baseURL string, defaultTenant domain.Tenant, timezone string, stats ports.StatsClient, log *slog.Logger) *Publisher {
	return &Publisher{
		baseURL:       baseURL,
		defaultTenant: defaultTenant,
		timezone:      timezone,
		stats:         stats,
		log:           log,
		clients:       map[domain.Tenant]*Client{},
	}
}

func (p *Publisher) Name() string { return "thirtymhz" }

func (p *Publisher) client(tenant domain.Tenant) *Client {
	if tenant.IsZero() {
		tenant = p.defaultTenant
	}
	if c, ok := p.clients[tenant]; ok {
		return c
	}
	c := NewClient(p.baseURL, tenant, p.timezone, p.log)
	p.clients[tenant] = c
	return c
}

// Publish ensures every entity in the batch exists remotely and ingests the
// readings, returning the order ids of records the platform confirmed.
func (p *Publisher) Publish(ctx context.Context, batch ports.Batch) ([]string, error) {
	for _, st := range batch.SensorTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.ensureSensorType(ctx, st); err != nil {
			p.stats.Count("publish.sensor_type_failed", 1)
			p.log.Error("sensor type not ensured",
				slog.String("id", st.ID),
				slog.String("org", st.Tenant.Organization),
				slog.String("error", err.Error()))
		}
	}

	for _, check := range batch.ImportChecks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.ensureImportCheck(ctx, check); err != nil {
			p.stats.Count("publish.import_check_failed", 1)
			p.log.Error("import check not ensured",
				slog.String("id", check.ID),
				slog.String("error", err.Error()))
		}
	}

	return p.ingest(ctx, batch.Records)
}

// ensureSensorType resolves a sensor type under the row's tenant, then the
// default tenant, creating it under the default tenant when absent. Whenever
// the row's tenant is not the owner, a share grant is attempted; the remote
// treats a duplicate share as a no-op.
func (p *Publisher) ensureSensorType(ctx context.Context, st domain.SensorType) error {
	tenant := st.Tenant
	if tenant.IsZero() {
		tenant = p.defaultTenant
	}

	if tenant != p.defaultTenant {
		found, err := p.client(tenant).FindSensorType(ctx, st.ID)
		if err != nil {
			return errors.Wrap(err, "lookup under row tenant")
		}
		if found != nil {
			return nil
		}
	}

	owner := p.client(p.defaultTenant)
	found, err := owner.FindSensorType(ctx, st.ID)
	if err != nil {
		return errors.Wrap(err, "lookup under default tenant")
	}
	if found == nil {
		if err := owner.CreateSensorType(ctx, st); err != nil {
			return errors.Wrap(err, "create")
		}
		p.stats.Count("publish.sensor_type_created", 1)
		found, err = owner.FindSensorType(ctx, st.ID)
		if err != nil {
			return errors.Wrap(err, "resolve after create")
		}
		if found == nil {
			return errors.Errorf("sensor type %s missing after create", st.ID)
		}
	}

	if tenant != p.defaultTenant {
		if err := owner.ShareSensorType(ctx, found.TypeID, tenant.Organization); err != nil {
			return errors.Wrapf(err, "share to organization %s", tenant.Organization)
		}
		p.stats.Count("publish.sensor_type_shared", 1)
	}
	return nil
}

// ensureImportCheck creates the check under the row's tenant, bound to the
// sensor type owned by the default tenant. An unresolvable sensor type skips
// the check.
func (p *Publisher) ensureImportCheck(ctx context.Context, check domain.ImportCheck) error {
	c := p.client(check.Tenant)
	found, err := c.FindImportCheck(ctx, check.ID)
	if err != nil {
		return errors.Wrap(err, "lookup")
	}
	if found != nil {
		return nil
	}

	st, err := p.client(p.defaultTenant).FindSensorType(ctx, check.SensorTypeID)
	if err != nil {
		return errors.Wrap(err, "resolve sensor type")
	}
	if st == nil {
		return errors.Errorf("sensor type %s not resolvable", check.SensorTypeID)
	}

	if err := c.CreateImportCheck(ctx, check, st.TypeID); err != nil {
		return errors.Wrap(err, "create")
	}
	p.stats.Count("publish.import_check_created", 1)
	return nil
}

type recordGroup struct {
	tenant  domain.Tenant
	checkID string
}

// ingest groups records per import check and submits each group as one
// batch. Only fully accepted batches contribute to the confirmed set.
func (p *Publisher) ingest(ctx context.Context, records []domain.IngestRecord) ([]string, error) {
	groups := map[recordGroup][]domain.IngestRecord{}
	var order []recordGroup
	for _, rec := range records {
		key := recordGroup{tenant: rec.Tenant, checkID: rec.CheckID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	var confirmed []string
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return confirmed, err
		}
		ids, err := p.ingestGroup(ctx, key, groups[key])
		if err != nil {
			p.stats.Count("publish.ingest_batch_failed", 1)
			p.log.Error("ingest batch not confirmed",
				slog.String("check", key.checkID),
				slog.String("error", err.Error()))
			continue
		}
		confirmed = append(confirmed, ids...)
	}
	return confirmed, nil
}

func (p *Publisher) ingestGroup(ctx context.Context, key recordGroup, records []domain.IngestRecord) ([]string, error) {
	c := p.client(key.tenant)

	check, err := c.FindImportCheck(ctx, key.checkID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve import check")
	}
	if check == nil {
		return nil, errors.Errorf("import check %s not resolvable", key.checkID)
	}

	// Advisory cross-check against the platform's own recent history. Its
	// failure only disables the extra filtering, never the ingest.
	existing, err := c.RecentOrderIDs(ctx, check.CheckID)
	if err != nil {
		p.log.Warn("existing-sample cross-check unavailable",
			slog.String("check", check.CheckID),
			slog.String("error", err.Error()))
		existing = nil
	}

	var (
		rows     []IngestRow
		orderIDs []string
	)
	for _, rec := range records {
		if _, dup := existing[rec.OrderID]; dup {
			p.stats.Count("publish.records_already_remote", 1)
			continue
		}
		if rec.Attachment != nil {
			handle, err := c.UploadData(ctx, rec.OrderID+".pdf", rec.Attachment)
			if err != nil {
				p.stats.Count("publish.upload_failed", 1)
				p.log.Error("attachment upload failed",
					slog.String("order_id", rec.OrderID),
					slog.String("error", err.Error()))
				continue
			}
			rec.Data[domain.AttachmentField] = handle
		}
		rows = append(rows, IngestRow{
			CheckID:   check.CheckID,
			Data:      rec.Data,
			Timestamp: rec.Timestamp.Format(time.RFC3339),
			Status:    "ok",
		})
		orderIDs = append(orderIDs, rec.OrderID)
	}

	if len(rows) == 0 {
		return nil, nil
	}
	if err := c.Ingest(ctx, rows); err != nil {
		return nil, err
	}
	p.stats.Count("publish.records_ingested", int64(len(rows)))
	return orderIDs, nil
}

var _ ports.TelemetrySink = (*Publisher)(nil)
