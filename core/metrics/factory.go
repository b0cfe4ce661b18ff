package metrics

import (
	"fmt"
	"io"

	"github.com/kilianp07/eta/core/factory"
)

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink makes a sink type available to NewMetricsSink.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// RegisteredSinks lists the sink types available to NewMetricsSink.
func RegisteredSinks() []string { return sinkRegistry.Names() }

// NewMetricsSink builds the configured sinks. No sink yields a NopSink and
// several are fanned out through a MultiSink. Sinks built before a failing
// one are closed.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	switch len(cfgs) {
	case 0:
		return NopSink{}, nil
	case 1:
		s, err := sinkRegistry.Create(cfgs[0])
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", cfgs[0].Type, err)
		}
		return s, nil
	}
	sinks := make([]MetricsSink, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			for _, built := range sinks {
				Close(built)
			}
			return nil, fmt.Errorf("sink %s: %w", c.Type, err)
		}
		sinks = append(sinks, s)
	}
	return NewMultiSink(sinks...), nil
}

// Close releases sinks holding connections, including those inside a
// MultiSink.
func Close(s MetricsSink) {
	switch v := s.(type) {
	case *MultiSink:
		for _, inner := range v.Sinks {
			Close(inner)
		}
	case interface{ Close() }:
		v.Close()
	case io.Closer:
		_ = v.Close()
	}
}
