package ieeec37118

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// LogConfiguration writes a configuration frame to logger: the frame and each cell at Info,
// every channel at Debug
func LogConfiguration(logger *log.Logger, cfg *ConfigurationFrame) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg == nil {
		logger.Warn("No configuration available to log")
		return
	}

	logger.WithFields(log.Fields{
		"frame_type": cfg.FrameType.String(),
		"id_code":    cfg.IDCode,
		"time_base":  cfg.TimeBase,
		"data_rate":  cfg.FrameRate,
		"num_pmu":    len(cfg.cells),
	}).Info("Configuration frame")

	for i, cell := range cfg.cells {
		logger.WithFields(log.Fields{
			"index":             i,
			"station_name":      cell.stationName,
			"station_id":        cell.IDCode,
			"nominal_frequency": int(cell.nominalFrequency),
			"config_count":      cell.RevisionCount,
			"format": map[string]bool{
				"coord_polar":  cell.format&FormatPolar != 0,
				"phasor_float": cell.format&FormatPhasorFloat != 0,
				"analog_float": cell.format&FormatAnalogFloat != 0,
				"freq_float":   cell.format&FormatFreqFloat != 0,
			},
			"channels": map[string]int{
				"phasor":  len(cell.phasors),
				"analog":  len(cell.analogs),
				"digital": len(cell.digitals),
			},
		}).Info("PMU station configuration")

		for _, d := range cell.phasors {
			logger.WithFields(log.Fields{
				"station":           cell.stationName,
				"channel_type":      "phasor",
				"index":             d.index,
				"name":              d.label,
				"unit_type":         d.phasorType.String(),
				"scale_factor":      d.scalingValue,
				"conversion_factor": d.ConversionFactor(),
			}).Debug("Phasor channel configuration")
		}

		for _, d := range cell.analogs {
			logger.WithFields(log.Fields{
				"station":           cell.stationName,
				"channel_type":      "analog",
				"index":             d.index,
				"name":              d.label,
				"unit_type":         d.analogType.String(),
				"scale_factor":      d.scalingValue,
				"conversion_factor": d.ConversionFactor(),
			}).Debug("Analog channel configuration")
		}

		for _, d := range cell.digitals {
			names := make([]string, 0, DigitalLabelCount)
			for _, l := range d.labels {
				if l != "" {
					names = append(names, l)
				}
			}
			logger.WithFields(log.Fields{
				"station":      cell.stationName,
				"channel_type": "digital",
				"word_index":   d.index,
				"channels":     names,
				"normal_mask":  fmt.Sprintf("0x%04X", d.NormalStatusMask),
				"valid_mask":   fmt.Sprintf("0x%04X", d.ValidInputsMask),
			}).Debug("Digital channel configuration")
		}
	}
}
