// Package jsonfile reads raw analysis rows from a JSON snapshot, the export
// format used for replays and fixtures.
package jsonfile

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/PEAXdata/EFA-datapipeline/internal/adapters/rowcodec"
	"github.com/PEAXdata/EFA-datapipeline/internal/domain"
	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

type Source struct {
	path string
	loc  *time.Location
	log  *slog.Logger
}

func New(path string, loc *time.Location, log *slog.Logger) *Source {
	return &Source{path: path, loc: loc, log: log}
}

func (s *Source) Name() string { return "jsonfile" }

func (s *Source) ReadAll(ctx context.Context) ([]domain.RawRow, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "read snapshot %s", s.path)
	}

	var wire []rowcodec.WireRow
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %s", s.path)
	}

	out := make([]domain.RawRow, 0, len(wire))
	for _, w := range wire {
		row, err := w.ToDomain(s.loc)
		if err != nil {
			s.log.Warn("skipping unreadable snapshot row",
				slog.String("order_id", string(w.OrderSampleDataID)),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

var _ ports.RowSource = (*Source)(nil)
