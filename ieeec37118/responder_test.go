package ieeec37118

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResponder(t *testing.T) (*Responder, *recordingMetrics) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	metrics := newRecordingMetrics()

	r, err := NewResponder(newTestConfiguration(t, FrameTypeCfg2), NewHeaderFrameWithData(7, "PMU 7"))
	require.NoError(t, err)
	r.SetLogger(logger)
	r.SetMetrics(metrics)
	return r, metrics
}

func TestResponderDataTransmission(t *testing.T) {
	r, metrics := newTestResponder(t)
	assert.False(t, r.DataEnabled())

	out, err := r.HandleCommand(NewCommandFrame(7, CmdStart, Version2005))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.True(t, r.DataEnabled())

	out, err = r.HandleCommand(NewCommandFrame(7, CmdStop, Version2005))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.False(t, r.DataEnabled())

	assert.Equal(t, 1, metrics.commands["START"])
	assert.Equal(t, 1, metrics.commands["STOP"])
}

func TestResponderFrameRequests(t *testing.T) {
	tests := []struct {
		name string
		cmd  DeviceCommand
		want FrameType
	}{
		{name: "cfg1", cmd: CmdCfg1, want: FrameTypeCfg1},
		{name: "cfg2", cmd: CmdCfg2, want: FrameTypeCfg2},
		{name: "cfg3", cmd: CmdCfg3, want: FrameTypeCfg3},
		{name: "header", cmd: CmdHeader, want: FrameTypeHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestResponder(t)
			before := time.Now().Unix()

			out, err := r.HandleCommand(NewCommandFrame(7, tt.cmd, Version2011))
			require.NoError(t, err)
			require.Len(t, out, 1)

			frame, err := ParseFrame(out[0], nil)
			require.NoError(t, err)
			h, err := ParseCommonFrameHeader(out[0])
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.FrameType)
			assert.Equal(t, uint16(7), h.IDCode)
			assert.GreaterOrEqual(t, int64(h.SOC), before)

			if cfg, ok := frame.(*ConfigurationFrame); ok {
				require.Len(t, cfg.Cells(), 1)
				assert.Equal(t, "Station A", cfg.Cells()[0].StationName())
			}
			if hf, ok := frame.(*HeaderFrame); ok {
				assert.Equal(t, "PMU 7", hf.Data)
			}
		})
	}
}

func TestResponderFragmentsConfiguration3(t *testing.T) {
	r, _ := newTestResponder(t)
	r.MaximumFrameLength = 128

	out, err := r.HandleCommand(NewCommandFrame(7, CmdCfg3, Version2011))
	require.NoError(t, err)
	require.Greater(t, len(out), 1)
	for _, img := range out {
		assert.LessOrEqual(t, len(img), 128)
	}

	cfg, err := ReassembleConfigurationFrame3(out)
	require.NoError(t, err)
	require.Len(t, cfg.Cells(), 1)
	assert.Equal(t, []string{"BREAKER 1", "BREAKER 2"}, cfg.Cells()[0].DigitalDefinitions()[0].BitLabels()[:2])
}

func TestResponderErrors(t *testing.T) {
	_, err := NewResponder(nil, nil)
	assert.ErrorIs(t, err, ErrNoConfiguration)

	r, metrics := newTestResponder(t)
	assert.ErrorIs(t, r.SetConfigurationFrame(nil), ErrNoConfiguration)
	_, err = r.HandleCommand(nil)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	r.ValidateIDCode = true
	_, err = r.HandleCommand(NewCommandFrame(8, CmdCfg2, Version2005))
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Equal(t, 1, metrics.errors["id_code"])

	image := mustImage(t, NewCommandFrame(7, CmdCfg2, Version2005))
	image[7] ^= 0x01
	_, err = r.HandleCommandImage(image)
	assert.ErrorIs(t, err, ErrCRCFailed)
	assert.Equal(t, 1, metrics.errors["crc"])

	out, err := r.HandleCommandImage(resealed(image))
	require.NoError(t, err)
	assert.Len(t, out, 1)

	// Extended and unknown commands need no answer
	for _, cmd := range []DeviceCommand{CmdExt, DeviceCommand(0x00FF)} {
		out, err := r.HandleCommand(NewCommandFrame(7, cmd, Version2005))
		require.NoError(t, err)
		assert.Empty(t, out)
	}
}

func TestResponderDefaultHeader(t *testing.T) {
	r, err := NewResponder(newTestConfiguration(t, FrameTypeCfg1), nil)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	r.SetLogger(logger)

	assert.Equal(t, FrameTypeCfg2, r.ConfigurationFrame(FrameTypeCfg2).FrameType)
	assert.Nil(t, r.ConfigurationFrame(FrameTypeData))

	out, err := r.HandleCommand(NewCommandFrame(7, CmdHeader, Version2005))
	require.NoError(t, err)
	require.Len(t, out, 1)
	hf, err := ParseHeaderFrame(out[0])
	require.NoError(t, err)
	assert.Empty(t, hf.Data)
	assert.Equal(t, uint16(7), hf.IDCode)
}
