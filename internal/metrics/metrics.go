// Package metrics exports codec activity as Prometheus metrics
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	phasor "github.com/JSchlarb/phasorprotocols"
	"github.com/JSchlarb/phasorprotocols/ieeec37118"
)

var _ phasor.MetricsRecorder = (*Recorder)(nil)

// Recorder implements phasor.MetricsRecorder on a Prometheus registry
type Recorder struct {
	bytesReceived prometheus.Counter
	framesParsed  *prometheus.CounterVec
	frameBytes    *prometheus.CounterVec
	frameErrors   *prometheus.CounterVec
	commands      *prometheus.CounterVec
	configChanges prometheus.Counter
	streamInfo    *prometheus.GaugeVec
	channels      *prometheus.GaugeVec
	frequency     *prometheus.GaugeVec
	rocof         *prometheus.GaugeVec
	measurements  *prometheus.GaugeVec
	tickerSkew    prometheus.Gauge
	tickerDelay   prometheus.Gauge
	dataFrameRate prometheus.Gauge
	lastDataFrame prometheus.Gauge
}

// NewRecorder registers all metrics on reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		bytesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "c37118_bytes_received_total",
			Help: "Raw stream bytes handed to the frame parser",
		}),
		framesParsed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "c37118_frames_parsed_total",
			Help: "Accepted frames by frame type",
		}, []string{"frame_type"}),
		frameBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "c37118_frame_bytes_total",
			Help: "Bytes of accepted frames by frame type",
		}, []string{"frame_type"}),
		frameErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "c37118_frame_errors_total",
			Help: "Rejected frames by error type",
		}, []string{"error_type"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "c37118_commands_total",
			Help: "Processed command frames by command",
		}, []string{"command"}),
		configChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "c37118_configuration_changes_total",
			Help: "Configuration change notifications raised by data frames",
		}),
		streamInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "c37118_stream_info",
			Help: "Stream configuration information",
		}, []string{"id_code", "frame_type", "data_rate", "time_base", "num_pmu"}),
		channels: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "c37118_channels_configured",
			Help: "Number of configured channels by station and type",
		}, []string{"station", "type"}),
		frequency: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "c37118_frequency_hz",
			Help: "Last frequency value in Hz",
		}, []string{"station"}),
		rocof: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "c37118_rocof_hz_per_sec",
			Help: "Last rate of change of frequency in Hz/s",
		}, []string{"station"}),
		measurements: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "c37118_measurement_value",
			Help: "Last value of every measurement by key",
		}, []string{"key", "label"}),
		tickerSkew: f.NewGauge(prometheus.GaugeOpts{
			Name: "c37118_wall_ticker_skew",
			Help: "Wall ticker timing skew factor",
		}),
		tickerDelay: f.NewGauge(prometheus.GaugeOpts{
			Name: "c37118_wall_ticker_delay_seconds",
			Help: "Wall ticker next tick delay in seconds",
		}),
		dataFrameRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "c37118_data_frame_rate_hz",
			Help: "Configured data frame rate in Hz",
		}),
		lastDataFrame: f.NewGauge(prometheus.GaugeOpts{
			Name: "c37118_last_data_frame_timestamp_seconds",
			Help: "Timestamp of the last observed data frame",
		}),
	}
}

// RecordBytesReceived implements phasor.MetricsRecorder
func (r *Recorder) RecordBytesReceived(size int) {
	r.bytesReceived.Add(float64(size))
}

// RecordFrameParsed implements phasor.MetricsRecorder
func (r *Recorder) RecordFrameParsed(frameType string, size int) {
	r.framesParsed.WithLabelValues(frameType).Inc()
	r.frameBytes.WithLabelValues(frameType).Add(float64(size))
}

// RecordFrameError implements phasor.MetricsRecorder
func (r *Recorder) RecordFrameError(errorType string) {
	r.frameErrors.WithLabelValues(errorType).Inc()
}

// RecordCommand implements phasor.MetricsRecorder
func (r *Recorder) RecordCommand(cmdType string) {
	r.commands.WithLabelValues(cmdType).Inc()
}

// RecordConfigurationChange implements phasor.MetricsRecorder
func (r *Recorder) RecordConfigurationChange() {
	r.configChanges.Inc()
}

// SetConfiguration publishes the static description of a stream
func (r *Recorder) SetConfiguration(cfg *ieeec37118.ConfigurationFrame) {
	if cfg == nil {
		return
	}
	r.streamInfo.Reset()
	r.streamInfo.WithLabelValues(
		strconv.Itoa(int(cfg.IDCode)),
		cfg.FrameType.String(),
		strconv.Itoa(int(cfg.FrameRate)),
		strconv.FormatUint(uint64(cfg.TimeBase), 10),
		strconv.Itoa(len(cfg.Cells())),
	).Set(1)

	if interval := cfg.FrameInterval(); interval > 0 {
		r.dataFrameRate.Set(1 / interval.Seconds())
	}

	r.channels.Reset()
	for _, c := range cfg.Cells() {
		station := stationLabel(c.StationName(), c.IDCode)
		r.channels.WithLabelValues(station, "phasor").Set(float64(len(c.PhasorDefinitions())))
		r.channels.WithLabelValues(station, "analog").Set(float64(len(c.AnalogDefinitions())))
		r.channels.WithLabelValues(station, "digital").Set(float64(len(c.DigitalDefinitions())))
	}
}

// ObserveDataFrame publishes the values of a data frame
func (r *Recorder) ObserveDataFrame(df *ieeec37118.DataFrame) {
	if df == nil {
		return
	}
	for _, c := range df.Cells() {
		station := stationLabel(c.ConfigurationCell().StationName(), c.IDCode())
		r.frequency.WithLabelValues(station).Set(c.FrequencyValue().Frequency())
		r.rocof.WithLabelValues(station).Set(c.FrequencyValue().DfDt())
	}
	for _, m := range df.Measurements() {
		r.measurements.WithLabelValues(m.Key, m.Label).Set(m.Value)
	}
	r.lastDataFrame.Set(float64(df.Timestamp().UnixNano()) / 1e9)
}

// ObserveTicker publishes wall ticker timing
func (r *Recorder) ObserveTicker(skew float64, delay float64) {
	r.tickerSkew.Set(skew)
	r.tickerDelay.Set(delay)
}

func stationLabel(name string, idCode uint16) string {
	if name == "" {
		return fmt.Sprintf("PMU_%d", idCode)
	}
	return name
}

// WriteTextfile writes everything g gathers to path in the text exposition format
func WriteTextfile(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
