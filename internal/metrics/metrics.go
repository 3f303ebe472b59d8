package metrics

import (
	"time"

	"github.com/Layr-Labs/agentpay/internal/config"
	"github.com/Layr-Labs/agentpay/internal/metrics/dogstatsd"
	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/agentpay/internal/metrics/prometheus"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MetricsSink fans every sample out to all configured clients. A nil sink is valid and drops everything.
type MetricsSink struct {
	clients []metricsTypes.IMetricsClient
	config  *MetricsSinkConfig
}

type MetricsSinkConfig struct {
	DefaultLabels []metricsTypes.MetricsLabel
}

// Flusher is implemented by clients that buffer samples.
type Flusher interface {
	Flush() error
}

func NewMetricsSink(cfg *MetricsSinkConfig, clients []metricsTypes.IMetricsClient) (*MetricsSink, error) {
	if cfg == nil {
		cfg = &MetricsSinkConfig{}
	}
	for _, label := range cfg.DefaultLabels {
		if label.Name == "" {
			return nil, errors.New("default metrics labels must be named")
		}
	}
	return &MetricsSink{
		clients: clients,
		config:  cfg,
	}, nil
}

// NewNoopMetricsSink returns a sink with no clients; every call is a no-op.
func NewNoopMetricsSink() *MetricsSink {
	sink, _ := NewMetricsSink(&MetricsSinkConfig{}, nil)
	return sink
}

func mergeLabels(labels []metricsTypes.MetricsLabel, defaultLabels []metricsTypes.MetricsLabel) []metricsTypes.MetricsLabel {
	if len(defaultLabels) == 0 {
		return labels
	}
	merged := make([]metricsTypes.MetricsLabel, 0, len(defaultLabels)+len(labels))
	merged = append(merged, defaultLabels...)
	return append(merged, labels...)
}

// each calls fn for every client and returns the first error, without skipping the remaining clients.
func (ms *MetricsSink) each(fn func(client metricsTypes.IMetricsClient) error) error {
	var first error
	for _, client := range ms.clients {
		if err := fn(client); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (ms *MetricsSink) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	if ms == nil {
		return nil
	}
	merged := mergeLabels(labels, ms.config.DefaultLabels)
	return ms.each(func(client metricsTypes.IMetricsClient) error {
		return client.Incr(name, merged, value)
	})
}

func (ms *MetricsSink) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	if ms == nil {
		return nil
	}
	merged := mergeLabels(labels, ms.config.DefaultLabels)
	return ms.each(func(client metricsTypes.IMetricsClient) error {
		return client.Gauge(name, value, merged)
	})
}

func (ms *MetricsSink) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) error {
	if ms == nil {
		return nil
	}
	merged := mergeLabels(labels, ms.config.DefaultLabels)
	return ms.each(func(client metricsTypes.IMetricsClient) error {
		return client.Timing(name, value, merged)
	})
}

// Flush pushes out anything buffered by clients that batch, such as dogstatsd.
func (ms *MetricsSink) Flush() error {
	if ms == nil {
		return nil
	}
	return ms.each(func(client metricsTypes.IMetricsClient) error {
		if f, ok := client.(Flusher); ok {
			return f.Flush()
		}
		return nil
	})
}

func InitMetricsSinksFromConfig(cfg *config.Config, l *zap.Logger) ([]metricsTypes.IMetricsClient, error) {
	clients := []metricsTypes.IMetricsClient{}

	if cfg.DataDogConfig.StatsdConfig.Enabled {
		dd, err := dogstatsd.NewDogStatsdMetricsClient(&dogstatsd.DogStatsdConfig{
			Url:        cfg.DataDogConfig.StatsdConfig.Url,
			SampleRate: cfg.DataDogConfig.StatsdConfig.SampleRate,
			Tags:       []string{"chain:" + string(cfg.Chain)},
		}, l)
		if err != nil {
			return nil, err
		}
		clients = append(clients, dd)
	}

	if cfg.PrometheusConfig.Enabled {
		pm, err := prometheus.NewPrometheusMetricsClient(&prometheus.PrometheusMetricsConfig{
			Metrics: metricsTypes.MetricTypes,
		}, l)
		if err != nil {
			return nil, err
		}
		clients = append(clients, pm)
	}

	return clients, nil
}
