package index

import (
	"time"

	"go.uber.org/zap"
)

// Observer receives operation timings and item counts. internal/metrics provides a Prometheus
// implementation; the default discards everything.
type Observer interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
	SetItems(folder string, n int)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, error, time.Duration) {}
func (nopObserver) SetItems(string, int)                          {}

// Option configures a LocalIndex.
type Option func(*LocalIndex)

// WithIndexName sets the file name of the index document (default index.json).
func WithIndexName(name string) Option {
	return func(li *LocalIndex) {
		if name != "" {
			li.indexName = name
		}
	}
}

// WithLogger sets a logger for debug output (commits, inserts, queries).
func WithLogger(l *zap.Logger) Option {
	return func(li *LocalIndex) {
		if l != nil {
			li.logger = l
		}
	}
}

// WithObserver sets the receiver of operation metrics.
func WithObserver(o Observer) Option {
	return func(li *LocalIndex) {
		if o != nil {
			li.observer = o
		}
	}
}
