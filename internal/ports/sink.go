package ports

import (
	"context"

	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
)

// Batch is the canonical output of one transform pass: the entities the sink
// must ensure exist, dependency-ordered, plus the readings to ingest.
type Batch struct {
	SensorTypes  []domain.SensorType
	ImportChecks []domain.ImportCheck
	Records      []domain.IngestRecord
}

// TelemetrySink publishes a batch to the remote telemetry service and
// returns the order ids of records the service confirmed accepted. Entity
// and batch scoped failures are absorbed (logged and counted); only
// run-fatal conditions surface as an error.
type TelemetrySink interface {
	Publish(ctx context.Context, batch Batch) (confirmed []string, err error)
	Name() string
}
