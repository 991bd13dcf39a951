// Package efasync is the embedding surface of the lab-to-telemetry sync:
// load a config, optionally override adapters, run one pass.
package efasync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/PEAXdata/EFA-datapipeline/internal/adapters/docstore"
	"github.com/PEAXdata/EFA-datapipeline/internal/adapters/jsonfile"
	"github.com/PEAXdata/EFA-datapipeline/internal/adapters/sqldb"
	"github.com/PEAXdata/EFA-datapipeline/internal/adapters/stats"
	"github.com/PEAXdata/EFA-datapipeline/internal/adapters/thirtymhz"
	"github.com/PEAXdata/EFA-datapipeline/internal/app/pipeline"
	"github.com/PEAXdata/EFA-datapipeline/internal/app/transform"
	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

// Pipeline is a configured but not yet running sync.
type Pipeline struct {
	cfg *Config
	log *slog.Logger

	source      ports.RowSource
	sink        ports.TelemetrySink
	statsClient ports.StatsClient
	attachments ports.AttachmentStore

	closers []func() error
}

// Option overrides one collaborator before the pipeline is built, mostly
// for embedding and tests.
type Option func(*Pipeline)

func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

func WithSource(s ports.RowSource) Option {
	return func(p *Pipeline) { p.source = s }
}

func WithSink(s ports.TelemetrySink) Option {
	return func(p *Pipeline) { p.sink = s }
}

func WithStats(s ports.StatsClient) Option {
	return func(p *Pipeline) { p.statsClient = s }
}

func WithAttachments(a ports.AttachmentStore) Option {
	return func(p *Pipeline) { p.attachments = a }
}

// Conf loads YAML from disk and prepares a Pipeline.
func Conf(path string, opts ...Option) (*Pipeline, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig prepares a Pipeline from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	p := &Pipeline{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.log == nil {
		p.log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return p, nil
}

// Run builds the remaining adapters from config and executes one sync pass.
func (p *Pipeline) Run(ctx context.Context) error {
	loc, err := time.LoadLocation(p.cfg.Timezone)
	if err != nil {
		return err
	}

	if p.statsClient == nil {
		sc, err := p.buildStats()
		if err != nil {
			return err
		}
		p.statsClient = sc
	}
	if p.source == nil {
		src, err := p.buildSource(loc)
		if err != nil {
			return err
		}
		p.source = src
	}
	if p.attachments == nil && p.cfg.Documents.Endpoint != "" {
		p.attachments = docstore.New(p.cfg.Documents.Endpoint, p.cfg.Documents.Timeout())
	}
	if p.sink == nil {
		p.sink = thirtymhz.NewPublisher(
			p.cfg.ThirtyMHz.BaseURL,
			p.cfg.DefaultTenant(),
			p.cfg.Timezone,
			p.statsClient,
			p.log,
		)
	}
	defer p.close()

	tr := transform.New(p.attachments, p.statsClient, p.log, transform.Options{
		Packages:      p.cfg.Packages,
		Metrics:       p.cfg.Metrics,
		Tenants:       p.cfg.TenantByRelation(),
		DefaultTenant: p.cfg.DefaultTenant(),
		SchemaVersion: p.cfg.SchemaVersion,
		Window:        time.Duration(p.cfg.WindowDays) * 24 * time.Hour,
		Location:      loc,
	})

	runner := pipeline.NewRunner(p.source, tr, p.sink, p.cfg.Ledger.Path, p.statsClient, p.log)
	return runner.Run(ctx)
}

func (p *Pipeline) buildStats() (ports.StatsClient, error) {
	switch p.cfg.Stats.Backend {
	case "statsd":
		sc, err := stats.NewStatsd(p.cfg.Stats.Addr, p.cfg.Stats.Prefix)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, sc.Close)
		return sc, nil
	case "prometheus":
		return stats.NewProm(p.cfg.Stats.Prefix), nil
	default:
		return stats.Nop{}, nil
	}
}

func (p *Pipeline) buildSource(loc *time.Location) (ports.RowSource, error) {
	if p.cfg.Source.Driver == "json" {
		return jsonfile.New(p.cfg.Source.File, loc, p.log), nil
	}
	src, err := sqldb.New(
		p.cfg.Source.Driver,
		p.cfg.Source.DSN,
		p.cfg.Source.Table,
		p.cfg.Source.Query,
		loc,
		p.log,
	)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, src.Close)
	return src, nil
}

func (p *Pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			p.log.Warn("close", slog.String("error", err.Error()))
		}
	}
	p.closers = nil
}
