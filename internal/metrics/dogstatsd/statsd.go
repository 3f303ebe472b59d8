package dogstatsd

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/Layr-Labs/agentpay/internal/metrics/metricsTypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const namespace = "agentpay."

type DogStatsdConfig struct {
	Url        string
	SampleRate float64
	// Tags are attached to every sample, e.g. "chain:base".
	Tags []string
}

type DogStatsdMetricsClient struct {
	client     statsd.ClientInterface
	logger     *zap.Logger
	sampleRate float64
}

func NewDogStatsdMetricsClient(cfg *DogStatsdConfig, l *zap.Logger) (*DogStatsdMetricsClient, error) {
	if cfg.Url == "" {
		return nil, errors.New("datadog.statsd.url is required when statsd is enabled")
	}
	s, err := statsd.New(cfg.Url,
		statsd.WithNamespace(namespace),
		statsd.WithTags(cfg.Tags),
		statsd.WithBufferFlushInterval(2*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create dogstatsd client")
	}
	return newWithClient(s, cfg.SampleRate, l), nil
}

func newWithClient(client statsd.ClientInterface, sampleRate float64, l *zap.Logger) *DogStatsdMetricsClient {
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1
	}
	return &DogStatsdMetricsClient{
		client:     client,
		logger:     l,
		sampleRate: sampleRate,
	}
}

func tags(labels []metricsTypes.MetricsLabel) []string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		out = append(out, label.Name+":"+label.Value)
	}
	return out
}

// Incr uses Count so multi-unit increments survive the sample rate.
func (s *DogStatsdMetricsClient) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	return s.client.Count(name, int64(value), tags(labels), s.sampleRate)
}

func (s *DogStatsdMetricsClient) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	return s.client.Gauge(name, value, tags(labels), s.sampleRate)
}

func (s *DogStatsdMetricsClient) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) error {
	return s.client.Timing(name, value, tags(labels), s.sampleRate)
}

func (s *DogStatsdMetricsClient) Flush() error {
	if err := s.client.Flush(); err != nil {
		s.logger.Sugar().Errorw("Failed to flush dogstatsd metrics client", zap.Error(err))
		return err
	}
	return nil
}
