package ieeec37118

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	phasor "github.com/JSchlarb/phasorprotocols"
)

// testSOC is 2001-09-09T01:46:40Z
const testSOC = 1000000000

// newTestConfiguration builds a single PMU configuration with two phasors, one analog and one digital word
func newTestConfiguration(t *testing.T, frameType FrameType) *ConfigurationFrame {
	t.Helper()

	cfg, err := NewConfigurationFrame(frameType, 7, 1000000, 30)
	require.NoError(t, err)
	cfg.SOC = testSOC

	cell, err := NewConfigurationCellWithID(cfg, 7, phasor.Hz60)
	require.NoError(t, err)
	require.NoError(t, cell.SetStationName("Station A"))
	cell.RevisionCount = 3

	_, err = cell.AddPhasor("VA", 915527, phasor.Voltage)
	require.NoError(t, err)
	_, err = cell.AddPhasor("IA", 45776, phasor.Current)
	require.NoError(t, err)
	_, err = cell.AddAnalog("ANALOG1", 1, phasor.SinglePointOnWave)
	require.NoError(t, err)
	_, err = cell.AddDigital([]string{"BREAKER 1", "BREAKER 2"}, 0x0000, 0xFFFF)
	require.NoError(t, err)

	require.NoError(t, cfg.AddCell(cell))
	return cfg
}

// newTestDataFrame fills a data frame for cfg with deterministic values
func newTestDataFrame(t *testing.T, cfg *ConfigurationFrame) *DataFrame {
	t.Helper()

	df, err := NewDataFrame(cfg, time.Unix(testSOC, 0))
	require.NoError(t, err)

	cell := df.Cells()[0]
	cell.PhasorValues()[0].SetPolar(0.5, 120000)
	cell.PhasorValues()[1].SetPolar(-0.25, 500)
	cell.FrequencyValue().Set(60.012, 0.25)
	cell.AnalogValues()[0].SetValue(100)
	cell.DigitalValues()[0].SetValue(0x0003)
	return df
}

// mustImage serializes a frame and fails the test on error
func mustImage(t *testing.T, f phasor.ChannelFrame) []byte {
	t.Helper()
	b, err := f.BinaryImage()
	require.NoError(t, err)
	return b
}

// resealed recomputes the checksum of a modified frame image
func resealed(frame []byte) []byte {
	body := append([]byte(nil), frame[:len(frame)-crcLength]...)
	return appendCRC(body)
}
