package metrics

// MultiSink fanouts events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordPrediction forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordPrediction(ev PredictionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordPrediction(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordTraining forwards training events when supported by the sink.
func (m *MultiSink) RecordTraining(ev TrainingEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TrainingRecorder); ok {
			if err := rec.RecordTraining(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordModelLoaded forwards model information when supported by the sink.
func (m *MultiSink) RecordModelLoaded(info ModelInfo) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ModelRecorder); ok {
			if err := rec.RecordModelLoaded(info); err != nil {
				return err
			}
		}
	}
	return nil
}
