package stats

import (
	"time"

	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

// Nop discards every metric.
type Nop struct{}

func (Nop) Count(string, int64)          {}
func (Nop) Timing(string, time.Duration) {}
func (Nop) Close() error                 { return nil }

var _ ports.StatsClient = Nop{}
