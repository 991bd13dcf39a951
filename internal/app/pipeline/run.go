// Package pipeline wires a row source, the transformer, a telemetry sink
// and the ledger together for one synchronization run.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/PEAXdata/EFA-datapipeline/internal/app/transform"
	"github.com/PEAXdata/EFA-datapipeline/internal/ledger"
	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

type Runner struct {
	source      ports.RowSource
	transformer *transform.Transformer
	sink        ports.TelemetrySink
	ledgerPath  string
	stats       ports.StatsClient
	log         *slog.Logger
}

func NewRunner(source ports.RowSource, tr *transform.Transformer, sink ports.TelemetrySink, ledgerPath string, stats ports.StatsClient, log *slog.Logger) *Runner {
	return &Runner{
		source:      source,
		transformer: tr,
		sink:        sink,
		ledgerPath:  ledgerPath,
		stats:       stats,
		log:         log,
	}
}

// Run executes one sync pass. Only the order ids the sink confirmed enter
// the ledger; ids that were touched but not confirmed are retried on the
// next run.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()

	alreadyDone, err := ledger.Load(r.ledgerPath)
	if err != nil {
		return err
	}

	rows, err := r.source.ReadAll(ctx)
	if err != nil {
		return errors.Wrapf(err, "read rows from %s", r.source.Name())
	}
	r.log.Info("rows read",
		slog.String("source", r.source.Name()),
		slog.Int("rows", len(rows)),
		slog.Int("ledger", len(alreadyDone)))

	batch, touched, err := r.transformer.Transform(ctx, rows, alreadyDone)
	if err != nil {
		return errors.Wrap(err, "transform")
	}
	r.log.Info("batch derived",
		slog.Int("sensor_types", len(batch.SensorTypes)),
		slog.Int("import_checks", len(batch.ImportChecks)),
		slog.Int("records", len(batch.Records)),
		slog.Int("touched", len(touched)))

	confirmed, err := r.sink.Publish(ctx, batch)
	if err != nil {
		return errors.Wrapf(err, "publish to %s", r.sink.Name())
	}

	if err := ledger.Append(r.ledgerPath, confirmed); err != nil {
		return err
	}

	r.stats.Count("run.confirmed", int64(len(confirmed)))
	r.stats.Count("run.unconfirmed", int64(len(touched)-len(confirmed)))
	r.stats.Timing("run.duration", time.Since(start))
	r.log.Info("run complete",
		slog.Int("confirmed", len(confirmed)),
		slog.Int("unconfirmed", len(touched)-len(confirmed)),
		slog.Duration("took", time.Since(start)))
	return nil
}
