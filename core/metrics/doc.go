// Package metrics defines the recorders used to observe predictions and
// training runs. Sinks like PromSink and InfluxSink live in infra/metrics and
// can be combined with NewMultiSink. The factory helpers return a MultiSink
// automatically when multiple sinks are configured.
package metrics
