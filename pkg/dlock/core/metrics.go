package core

// MetricsRecorder receives protocol-level counters and gauges. The
// default is a no-op so metrics stay entirely off the blocking path
// unless a caller wires in a real recorder (see package metrics).
type MetricsRecorder interface {
	MessageSent(t string)
	MessageReceived(t string)
	ClockValue(v int32)
	QueueDepth(n int)
	RequestLatency(seconds float64)
}

// NoopMetricsRecorder discards everything.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) MessageSent(string)         {}
func (NoopMetricsRecorder) MessageReceived(string)     {}
func (NoopMetricsRecorder) ClockValue(int32)           {}
func (NoopMetricsRecorder) QueueDepth(int)             {}
func (NoopMetricsRecorder) RequestLatency(float64)     {}
