package ieeec37118

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phasor "github.com/JSchlarb/phasorprotocols"
)

func TestAnalogDefinitionFromImage(t *testing.T) {
	cell := NewConfigurationCell(nil)
	buf := []byte("ANALOG1         ")

	d, n, err := NewAnalogDefinitionFromImage(cell, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, "ANALOG1", d.Label())
	assert.Equal(t, 1, d.ScalingValue())
	assert.Equal(t, 0.0, d.Offset())

	// ANUNIT: RMS with a scale of -2
	n, err = d.ParseConversionFactor([]byte{AnunitRMS, 0xFF, 0xFF, 0xFE}, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, phasor.RMS, d.AnalogType())
	assert.Equal(t, -2, d.ScalingValue())
	assert.Equal(t, []byte{AnunitRMS, 0xFF, 0xFF, 0xFE}, d.ConversionFactorImage())

	_, _, err = NewAnalogDefinitionFromImage(cell, buf[:15], 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, _, err = NewAnalogDefinitionFromImage(nil, buf, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestDigitalDefinitionFromImage(t *testing.T) {
	cell := NewConfigurationCell(nil)
	buf := make([]byte, MaximumDigitalLabelLength)
	copy(buf, "BREAKER 1")
	copy(buf[16:], "BREAKER 2")

	d, n, err := NewDigitalDefinitionFromImage(cell, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 256, n)

	label, err := d.BitLabel(1)
	require.NoError(t, err)
	assert.Equal(t, "BREAKER 2", label)
	_, err = d.BitLabel(16)
	assert.ErrorIs(t, err, ErrOutOfRange)

	n, err = d.ParseConversionFactor([]byte{0x00, 0x01, 0xFF, 0xFF}, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, uint16(0x0001), d.NormalStatusMask)
	assert.Equal(t, uint16(0xFFFF), d.ValidInputsMask)
	assert.Equal(t, 0x0001FFFF, d.ScalingValue())

	_, _, err = NewDigitalDefinitionFromImage(cell, buf[:255], 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestDigitalDefinitionLabels(t *testing.T) {
	cell := NewConfigurationCell(nil)
	d, err := NewDigitalDefinition(cell, []string{"A", "B"}, 0, 0x0003)
	require.NoError(t, err)

	assert.Equal(t, padLabel("A", 16)+"B", d.Label())
	assert.Len(t, d.BinaryImage(), MaximumDigitalLabelLength)

	require.NoError(t, d.SetLabel(padLabel("ONE", 16)+padLabel("TWO", 16)+"THREE"))
	assert.Equal(t, []string{"ONE", "TWO", "THREE"}, d.BitLabels()[:3])

	require.NoError(t, d.SetScalingValue(0x00FF0F0F))
	assert.Equal(t, uint16(0x00FF), d.NormalStatusMask)
	assert.Equal(t, uint16(0x0F0F), d.ValidInputsMask)
	assert.ErrorIs(t, d.SetScalingValue(-1), ErrOutOfRange)

	_, err = NewDigitalDefinition(cell, make([]string, 17), 0, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestPhasorDefinitionScaling(t *testing.T) {
	cell := NewConfigurationCell(nil)

	tests := []struct {
		name    string
		value   int
		wantErr bool
		clamped int
	}{
		{name: "zero", value: 0, clamped: 0},
		{name: "typical", value: 915527, clamped: 915527},
		{name: "maximum", value: MaximumPhasorScalingValue, clamped: MaximumPhasorScalingValue},
		{name: "above maximum", value: MaximumPhasorScalingValue + 1, wantErr: true, clamped: MaximumPhasorScalingValue},
		{name: "negative", value: -1, wantErr: true, clamped: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewPhasorDefinition(cell, "VA", 1, 0, phasor.Voltage)
			require.NoError(t, err)

			err = d.SetScalingValue(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutOfRange)
				assert.Equal(t, 1, d.ScalingValue())
			} else {
				require.NoError(t, err)
			}

			d.ClampScalingValue(tt.value)
			assert.Equal(t, tt.clamped, d.ScalingValue())
			assert.InDelta(t, float64(tt.clamped)*1e-5, d.ConversionFactor(), 1e-12)
		})
	}
}

func TestAnalogDefinitionScaling(t *testing.T) {
	cell := NewConfigurationCell(nil)
	d, err := NewAnalogDefinition(cell, "AN", 1, 0, phasor.SinglePointOnWave)
	require.NoError(t, err)

	assert.NoError(t, d.SetScalingValue(MinimumAnalogScalingValue))
	assert.ErrorIs(t, d.SetScalingValue(MaximumAnalogScalingValue+1), ErrOutOfRange)
	d.ClampScalingValue(MinimumAnalogScalingValue - 10)
	assert.Equal(t, MinimumAnalogScalingValue, d.ScalingValue())

	d.SetConversionFactor(0.25)
	assert.Equal(t, 0.25, d.ConversionFactor())
	assert.Equal(t, 0, d.ScalingValue())
}

func TestPhasorDefinitionConversionFactor(t *testing.T) {
	cell := NewConfigurationCell(nil)
	d, err := NewPhasorDefinition(cell, "IA", 45776, 0, phasor.Current)
	require.NoError(t, err)

	image := d.ConversionFactorImage()
	assert.Equal(t, []byte{PhunitCurrent, 0x00, 0xB2, 0xD0}, image)

	parsed, err := NewPhasorDefinition(cell, "IA", 1, 0, phasor.Voltage)
	require.NoError(t, err)
	n, err := parsed.ParseConversionFactor(image, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, phasor.Current, parsed.PhasorType())
	assert.Equal(t, 45776, parsed.ScalingValue())

	// A floating factor overrides the integer scale until the next SetScalingValue
	d.SetConversionFactor(0.123456)
	assert.Equal(t, 0.123456, d.ConversionFactor())
	assert.Equal(t, 12346, d.ScalingValue())
	require.NoError(t, d.SetScalingValue(100))
	assert.InDelta(t, 0.001, d.ConversionFactor(), 1e-12)
}

func TestDefinitionLabels(t *testing.T) {
	cell := NewConfigurationCell(nil)
	d, err := NewPhasorDefinition(cell, "VA", 1, 0, phasor.Voltage)
	require.NoError(t, err)

	assert.ErrorIs(t, d.SetLabel("SEVENTEEN CHARS!!"), ErrOutOfRange)
	assert.Equal(t, "VA", d.Label())
	require.NoError(t, d.setLabel("SEVENTEEN CHARS!!", MaximumExtendedLabelLength))
	assert.Equal(t, "SEVENTEEN CHARS!!", d.Label())
	assert.Equal(t, -1, d.Index())

	_, err = NewPhasorDefinition(nil, "VA", 1, 0, phasor.Voltage)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestFrequencyDefinition(t *testing.T) {
	cell := NewConfigurationCell(nil)
	d := cell.FrequencyDefinition()

	assert.Equal(t, "Frequency", d.Label())
	assert.Equal(t, DefaultFrequencyScalingValue, d.ScalingValue())
	assert.Equal(t, DefaultDfDtScalingValue, d.DfDtScalingValue)
	assert.Equal(t, 60.0, d.Offset())
	assert.Equal(t, []byte{0x00, 0x00}, d.BinaryImage())

	d.SetOffset(50)
	assert.Equal(t, phasor.Hz50, cell.NominalFrequency())
	assert.Equal(t, []byte{0x00, 0x01}, d.BinaryImage())

	parsed, n, err := NewFrequencyDefinitionFromImage(cell, []byte{0x00, 0x00}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 60.0, parsed.Offset())

	assert.ErrorIs(t, d.SetScalingValue(0), ErrOutOfRange)
	d.ClampScalingValue(0)
	assert.Equal(t, 1, d.ScalingValue())
}
