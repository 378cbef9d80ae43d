package phasorprotocols

// MetricsRecorder is an interface for tracking frame processing.
// RecordBytesReceived tracks the size of raw stream data received.
// RecordFrameParsed tracks each accepted frame by type and size.
// RecordFrameError tracks the type of frame error encountered.
// RecordCommand tracks the type of command being processed.
// RecordConfigurationChange tracks configuration change notifications.
type MetricsRecorder interface {
	RecordBytesReceived(size int)
	RecordFrameParsed(frameType string, size int)
	RecordFrameError(errorType string)
	RecordCommand(cmdType string)
	RecordConfigurationChange()
}

// NopMetrics discards everything it records
type NopMetrics struct{}

// RecordBytesReceived implements MetricsRecorder
func (NopMetrics) RecordBytesReceived(int) {}

// RecordFrameParsed implements MetricsRecorder
func (NopMetrics) RecordFrameParsed(string, int) {}

// RecordFrameError implements MetricsRecorder
func (NopMetrics) RecordFrameError(string) {}

// RecordCommand implements MetricsRecorder
func (NopMetrics) RecordCommand(string) {}

// RecordConfigurationChange implements MetricsRecorder
func (NopMetrics) RecordConfigurationChange() {}
