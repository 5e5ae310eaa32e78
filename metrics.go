package filerelay

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports transfer telemetry to Prometheus. A nil *Metrics records
// nothing.
type Metrics struct {
	transfers *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewMetrics registers the transfer collectors on reg
// (prometheus.DefaultRegisterer if nil).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filerelay",
		Name:      "transfers_total",
		Help:      "Transfers handled, by outcome.",
	}, []string{"outcome"})

	bytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filerelay",
		Name:      "transfer_bytes_total",
		Help:      "Bytes moved by transfers, by phase.",
	}, []string{"phase"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "filerelay",
		Name:      "transfer_duration_seconds",
		Help:      "End to end duration of successful transfers.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	var err error
	if transfers, err = register(reg, transfers); err != nil {
		return nil, err
	}
	if bytes, err = register(reg, bytes); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}

	return &Metrics{transfers: transfers, bytes: bytes, duration: duration}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register transfer metric: %w", err)
	}
	return c, nil
}

// Outcome returns the label recorded for a finished transfer.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRequestRejected):
		return "rejected"
	case errors.Is(err, ErrDownloadFailed):
		return "download_failed"
	case errors.Is(err, ErrLinkGenerationFailed):
		return "link_failed"
	default:
		return "upload_failed"
	}
}

func (m *Metrics) RecordTransfer(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(Outcome(err)).Inc()
	if err == nil {
		m.duration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) RecordBytes(phase Phase, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(string(phase)).Add(float64(n))
}
