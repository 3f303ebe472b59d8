package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_QuoteDecision   = "quote.decision"
	Metric_Incr_ExecutionStatus = "execution.status"
	Metric_Incr_IndexerTick     = "indexer.tick"
	Metric_Incr_TransferIndexed = "indexer.transfer"
	Metric_Incr_EventProcessed  = "kernel.event"
	Metric_Incr_ReceiptRecorded = "receipt.recorded"
	Metric_Incr_HttpRequest     = "rpc.http.request"
	Metric_Incr_EventDelivery   = "eventBus.delivery"

	Metric_Gauge_HeadBlock       = "chain.headBlock"
	Metric_Gauge_CursorBlock     = "indexer.cursorBlock"
	Metric_Gauge_RpcFreshness    = "rpc.freshness"
	Metric_Gauge_SpendPowerCents = "spendPower.cents"

	Metric_Timing_HttpDuration     = "rpc.http.duration"
	Metric_Timing_TickDuration     = "indexer.tick.duration"
	Metric_Timing_BroadcastLatency = "execution.broadcast.duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_QuoteDecision,
			Labels: []string{"decision"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_ExecutionStatus,
			Labels: []string{"status"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_IndexerTick,
			Labels: []string{"outcome"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_TransferIndexed,
			Labels: []string{"confirmed"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_EventProcessed,
			Labels: []string{"event_type"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_ReceiptRecorded,
			Labels: []string{"type"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_HttpRequest,
			Labels: []string{"route", "status"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_EventDelivery,
			Labels: []string{"event", "outcome"},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_HeadBlock,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Gauge_CursorBlock,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Gauge_RpcFreshness,
			Labels: []string{"provider"},
		},
		MetricsTypeConfig{
			Name:   Metric_Gauge_SpendPowerCents,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_HttpDuration,
			Labels: []string{"route"},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_TickDuration,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_BroadcastLatency,
			Labels: []string{},
		},
	},
}
