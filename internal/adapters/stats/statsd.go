// Package stats provides StatsClient adapters: DataDog statsd (the
// production default), Prometheus, and a no-op for tests.
package stats

import (
	"log"
	"time"

	"github.com/DataDog/datadog-go/statsd"

	"github.com/PEAXdata/EFA-datapipeline/internal/ports"
)

const bufferLen = 1024

type StatsdClient struct {
	client *statsd.Client
	prefix string
}

// NewStatsd connects a buffered statsd client; host is "addr:port".
func NewStatsd(host, prefix string) (*StatsdClient, error) {
	c, err := statsd.NewBuffered(host, bufferLen)
	if err != nil {
		return nil, err
	}
	return &StatsdClient{client: c, prefix: prefix + "."}, nil
}

func (s *StatsdClient) Count(name string, value int64) {
	if err := s.client.Count(s.prefix+name, value, nil, 1); err != nil {
		log.Printf("statsd count %s: %v", name, err)
	}
}

func (s *StatsdClient) Timing(name string, d time.Duration) {
	if err := s.client.Timing(s.prefix+name, d, nil, 1); err != nil {
		log.Printf("statsd timing %s: %v", name, err)
	}
}

func (s *StatsdClient) Close() error { return s.client.Close() }

var _ ports.StatsClient = (*StatsdClient)(nil)
