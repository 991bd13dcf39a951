package ports

import "time"

// StatsClient is the pipeline's counter/timer sink. Constructed once at
// process start and passed explicitly to every stage.
type StatsClient interface {
	Count(name string, value int64)
	Timing(name string, d time.Duration)
	Close() error
}
