package ieeec37118

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phasor "github.com/JSchlarb/phasorprotocols"
)

func TestNewConfigurationFrame(t *testing.T) {
	tests := []struct {
		name      string
		frameType FrameType
		timeBase  uint32
		wantErr   error
		version   byte
	}{
		{name: "cfg1", frameType: FrameTypeCfg1, timeBase: 1000, version: Version2005},
		{name: "cfg2", frameType: FrameTypeCfg2, timeBase: 1000000, version: Version2005},
		{name: "cfg3", frameType: FrameTypeCfg3, timeBase: 0xFFFFFF, version: Version2011},
		{name: "data type", frameType: FrameTypeData, timeBase: 1000, wantErr: ErrInvalidParameter},
		{name: "zero time base", frameType: FrameTypeCfg2, timeBase: 0, wantErr: ErrOutOfRange},
		{name: "time base overflow", frameType: FrameTypeCfg2, timeBase: 0x1000000, wantErr: ErrOutOfRange},
		{name: "time base with flags", frameType: FrameTypeCfg2, timeBase: 0x01000000 | 1000000, version: Version2005},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfigurationFrame(tt.frameType, 1, tt.timeBase, 30)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, cfg.Version)
			assert.Equal(t, tt.timeBase, cfg.TimeBase)
			assert.Empty(t, cfg.Cells())
			assert.Equal(t, phasor.StateSerializable, cfg.ParseState())
		})
	}
}

func TestConfigurationFrameRoundTrip(t *testing.T) {
	for _, ft := range []FrameType{FrameTypeCfg1, FrameTypeCfg2} {
		t.Run(ft.String(), func(t *testing.T) {
			cfg := newTestConfiguration(t, ft)
			cell := cfg.Cells()[0]
			assert.Equal(t, 350, cell.BinaryLength())
			assert.Equal(t, 374, cfg.BinaryLength())

			image := mustImage(t, cfg)
			require.Len(t, image, cfg.BinaryLength())
			assert.Equal(t, uint16(len(image)), binary.BigEndian.Uint16(image[2:4]))

			parsed, err := ParseConfigurationFrame(image)
			require.NoError(t, err)
			assert.Equal(t, ft, parsed.FrameType)
			assert.Equal(t, uint16(7), parsed.IDCode)
			assert.Equal(t, uint32(1000000), parsed.TimeBase)
			assert.Equal(t, int16(30), parsed.FrameRate)
			assert.Equal(t, phasor.StateSerializable, parsed.ParseState())

			require.Len(t, parsed.Cells(), 1)
			pc := parsed.Cells()[0]
			assert.Equal(t, "Station A", pc.StationName())
			assert.Equal(t, uint16(3), pc.RevisionCount)
			assert.Equal(t, phasor.Hz60, pc.NominalFrequency())
			require.Len(t, pc.PhasorDefinitions(), 2)
			assert.Equal(t, "IA", pc.PhasorDefinitions()[1].Label())
			assert.Equal(t, 1, pc.PhasorDefinitions()[1].Index())
			assert.Equal(t, phasor.Current, pc.PhasorDefinitions()[1].PhasorType())
			assert.Equal(t, 45776, pc.PhasorDefinitions()[1].ScalingValue())
			require.Len(t, pc.AnalogDefinitions(), 1)
			assert.Equal(t, "ANALOG1", pc.AnalogDefinitions()[0].Label())
			require.Len(t, pc.DigitalDefinitions(), 1)
			assert.Equal(t, uint16(0xFFFF), pc.DigitalDefinitions()[0].ValidInputsMask)
			assert.Same(t, parsed, pc.Parent())

			assert.Equal(t, image, mustImage(t, parsed))
		})
	}
}

func TestConfigurationFrameCorruption(t *testing.T) {
	image := mustImage(t, newTestConfiguration(t, FrameTypeCfg2))

	// Every single byte flip in the body is caught by the checksum
	for i := CommonHeaderLength; i < len(image)-crcLength; i += 7 {
		corrupted := append([]byte(nil), image...)
		corrupted[i] ^= 0x01
		_, err := ParseConfigurationFrame(corrupted)
		require.ErrorIs(t, err, ErrCRCFailed, "byte %d", i)
	}
}

func TestParseConfigurationFrameErrors(t *testing.T) {
	image := mustImage(t, newTestConfiguration(t, FrameTypeCfg2))

	tests := []struct {
		name    string
		buf     func() []byte
		wantErr error
	}{
		{
			name: "extra bytes before the checksum",
			buf: func() []byte {
				b := append([]byte(nil), image[:len(image)-crcLength]...)
				b = append(b, 0x00, 0x00, 0x00, 0x00)
				binary.BigEndian.PutUint16(b[2:4], uint16(len(b)+crcLength))
				return appendCRC(b)
			},
			wantErr: ErrCellCountMismatch,
		},
		{
			name: "NUM_PMU larger than the body",
			buf: func() []byte {
				b := append([]byte(nil), image...)
				binary.BigEndian.PutUint16(b[18:20], 2)
				return resealed(b)
			},
			wantErr: ErrInvalidSize,
		},
		{
			name: "data frame type",
			buf: func() []byte {
				b := append([]byte(nil), image...)
				b[1] = 0x01
				return resealed(b)
			},
			wantErr: ErrInvalidFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfigurationFrame(tt.buf())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var pe *phasor.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, phasor.ConfigurationFrame, pe.FrameType)
		})
	}
}

func TestConfigurationFrameAddCell(t *testing.T) {
	cfg := newTestConfiguration(t, FrameTypeCfg2)
	other, err := NewConfigurationFrame(FrameTypeCfg2, 9, 1000, 30)
	require.NoError(t, err)

	foreign, err := NewConfigurationCellWithID(other, 8, phasor.Hz50)
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.AddCell(foreign), ErrSchemaBinding)

	duplicate, err := NewConfigurationCellWithID(nil, 7, phasor.Hz60)
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.AddCell(duplicate), ErrInvalidParameter)

	orphan, err := NewConfigurationCellWithID(nil, 8, phasor.Hz50)
	require.NoError(t, err)
	require.NoError(t, cfg.AddCell(orphan))
	assert.Same(t, cfg, orphan.Parent())
	assert.Same(t, orphan, cfg.CellByIDCode(8))
	assert.Nil(t, cfg.CellByIDCode(99))

	assert.ErrorIs(t, cfg.AddCell(nil), ErrInvalidParameter)

	_, err = NewConfigurationCellWithID(nil, 1, phasor.LineFrequency(55))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestConfigurationCellFormat(t *testing.T) {
	cell := NewConfigurationCell(nil)
	assert.Equal(t, FormatFlags(0), cell.FormatFlags())
	assert.Equal(t, phasor.Rectangular, cell.PhasorCoordinateFormat())

	cell.SetFormat(true, false, true, true)
	assert.Equal(t, FormatFreqFloat|FormatPhasorFloat|FormatPolar, cell.FormatFlags())
	assert.Equal(t, phasor.FloatingPoint, cell.FrequencyDataFormat())
	assert.Equal(t, phasor.FixedInteger, cell.AnalogDataFormat())
	assert.Equal(t, phasor.FloatingPoint, cell.PhasorDataFormat())
	assert.Equal(t, phasor.Polar, cell.PhasorCoordinateFormat())

	cell.SetAnalogDataFormat(phasor.FloatingPoint)
	cell.SetPhasorCoordinateFormat(phasor.Rectangular)
	assert.Equal(t, FormatFreqFloat|FormatPhasorFloat|FormatAnalogFloat, cell.FormatFlags())
}

func TestFrameInterval(t *testing.T) {
	cfg, err := NewConfigurationFrame(FrameTypeCfg2, 1, 1000, 50)
	require.NoError(t, err)
	assert.Equal(t, "20ms", cfg.FrameInterval().String())

	cfg.FrameRate = -5
	assert.Equal(t, "5s", cfg.FrameInterval().String())

	cfg.FrameRate = 0
	assert.Zero(t, cfg.FrameInterval())
}

// newTestConfiguration3 extends the test configuration with CFG-3 only metadata and long labels
func newTestConfiguration3(t *testing.T) *ConfigurationFrame {
	t.Helper()
	cfg := newTestConfiguration(t, FrameTypeCfg3)
	cell := cfg.Cells()[0]

	require.NoError(t, cell.setStationName("Substation Alpha, feeder 12, bay 3", MaximumExtendedLabelLength))
	require.NoError(t, cell.PhasorDefinitions()[0].setLabel("Bus 1 phase A voltage", MaximumExtendedLabelLength))
	cell.PhasorDefinitions()[0].SetConversionFactor(9.155273)
	cell.PhasorDefinitions()[0].Component = PhasorComponent(1)
	cell.PhasorDefinitions()[1].SetOffset(0.5)
	cell.AnalogDefinitions()[0].SetConversionFactor(0.001)
	cell.GlobalPMUID = uuid.MustParse("6f1c1d3a-4f5e-4b6a-9c7d-8e9f0a1b2c3d")
	cell.Latitude = 47.6
	cell.Longitude = -122.3
	cell.Elevation = 56
	cell.ServiceClass = 'P'
	cell.Window = -20000
	cell.GroupDelay = 1500
	return cfg
}

func TestConfigurationFrame3RoundTrip(t *testing.T) {
	cfg := newTestConfiguration3(t)
	image := mustImage(t, cfg)
	require.Len(t, image, cfg.BinaryLength())
	assert.Equal(t, byte(0x52), image[1])
	assert.Equal(t, uint16(ContinuationNone), binary.BigEndian.Uint16(image[CommonHeaderLength:]))

	parsed, err := ParseConfigurationFrame(image)
	require.NoError(t, err)
	require.Len(t, parsed.Cells(), 1)

	cell := parsed.Cells()[0]
	assert.Equal(t, "Substation Alpha, feeder 12, bay 3", cell.StationName())
	assert.Equal(t, "Bus 1 phase A voltage", cell.PhasorDefinitions()[0].Label())
	assert.InDelta(t, 9.155273, cell.PhasorDefinitions()[0].ConversionFactor(), 1e-6)
	assert.Equal(t, PhasorComponent(1), cell.PhasorDefinitions()[0].Component)
	assert.Equal(t, phasor.Current, cell.PhasorDefinitions()[1].PhasorType())
	assert.Equal(t, 0.5, cell.PhasorDefinitions()[1].Offset())
	assert.InDelta(t, 0.001, cell.AnalogDefinitions()[0].ConversionFactor(), 1e-9)
	assert.Equal(t, "6f1c1d3a-4f5e-4b6a-9c7d-8e9f0a1b2c3d", cell.GlobalPMUID.String())
	assert.Equal(t, float32(47.6), cell.Latitude)
	assert.Equal(t, float32(-122.3), cell.Longitude)
	assert.Equal(t, byte('P'), cell.ServiceClass)
	assert.Equal(t, int32(-20000), cell.Window)
	assert.Equal(t, int32(1500), cell.GroupDelay)
	assert.Equal(t, []string{"BREAKER 1", "BREAKER 2"}, cell.DigitalDefinitions()[0].BitLabels()[:2])

	assert.Equal(t, image, mustImage(t, parsed))
}

func TestConfigurationFrame3DerivedGlobalPMUID(t *testing.T) {
	cfg := newTestConfiguration(t, FrameTypeCfg3)
	first := mustImage(t, cfg)
	second := mustImage(t, cfg)
	assert.Equal(t, first, second)

	parsed, err := ParseConfigurationFrame(first)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, parsed.Cells()[0].GlobalPMUID)
}

func TestConfigurationFrame3Fragmentation(t *testing.T) {
	cfg := newTestConfiguration3(t)
	for i := 0; i < 20; i++ {
		cell, err := NewConfigurationCellWithID(cfg, uint16(100+i), phasor.Hz50)
		require.NoError(t, err)
		require.NoError(t, cell.setStationName(strings.Repeat("S", 200), MaximumExtendedLabelLength))
		_, err = cell.AddPhasor("V1", 1000, phasor.Voltage)
		require.NoError(t, err)
		require.NoError(t, cfg.AddCell(cell))
	}

	whole := mustImage(t, cfg)
	const limit = 512
	images, err := cfg.BinaryImages(limit)
	require.NoError(t, err)
	require.Greater(t, len(images), 1)

	for i, img := range images {
		assert.LessOrEqual(t, len(img), limit)
		assert.NoError(t, verifyCRC(img, len(img)))
		idx := binary.BigEndian.Uint16(img[CommonHeaderLength:])
		if i == len(images)-1 {
			assert.Equal(t, uint16(ContinuationLast), idx)
		} else {
			assert.Equal(t, uint16(i+1), idx)
		}

		_, err := ParseConfigurationFrame(img)
		assert.ErrorIs(t, err, ErrContinuation)
	}

	joined, err := ReassembleConfigurationFrame3(images)
	require.NoError(t, err)
	assert.Len(t, joined.Cells(), 21)
	assert.Equal(t, whole, mustImage(t, joined))

	_, err = ReassembleConfigurationFrame3(images[1:])
	assert.ErrorIs(t, err, ErrInvalidFrame)
	_, err = ReassembleConfigurationFrame3(nil)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	single, err := cfg.BinaryImages(MaximumFrameLength)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{whole}, single)
}

func TestConfigurationFrameTooLarge(t *testing.T) {
	tests := []struct {
		name      string
		frameType FrameType
		wantErr   error
	}{
		{name: "cfg2", frameType: FrameTypeCfg2, wantErr: ErrInvalidSize},
		{name: "cfg3", frameType: FrameTypeCfg3, wantErr: ErrNotImpl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfigurationFrame(tt.frameType, 1, 1000, 30)
			require.NoError(t, err)
			for i := 0; i < 260; i++ {
				cell, err := NewConfigurationCellWithID(cfg, uint16(i), phasor.Hz60)
				require.NoError(t, err)
				require.NoError(t, cell.setStationName(strings.Repeat("S", 200), MaximumExtendedLabelLength))
				_, err = cell.AddDigital(nil, 0, 0)
				require.NoError(t, err)
				require.NoError(t, cfg.AddCell(cell))
			}
			require.Greater(t, cfg.BinaryLength(), MaximumFrameLength)

			_, err = cfg.BinaryImage()
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = cfg.BinaryImages(MaximumFrameLength)
			if tt.frameType == FrameTypeCfg3 {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSize)
			}
		})
	}
}

func TestConfigurationFrameAsType(t *testing.T) {
	cfg3 := newTestConfiguration3(t)

	cfg2, err := cfg3.AsType(FrameTypeCfg2)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeCfg2, cfg2.FrameType)
	assert.Equal(t, Version2005, cfg2.Version)
	cell := cfg2.Cells()[0]
	assert.Equal(t, "Substation Alpha", cell.StationName())
	assert.Equal(t, "Bus 1 phase A vo", cell.PhasorDefinitions()[0].Label())
	assert.Equal(t, 915527, cell.PhasorDefinitions()[0].ScalingValue())

	image := mustImage(t, cfg2)
	parsed, err := ParseConfigurationFrame(image)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeCfg2, parsed.FrameType)

	back, err := cfg2.AsType(FrameTypeCfg3)
	require.NoError(t, err)
	assert.Equal(t, Version2011, back.Version)
	assert.InDelta(t, 9.15527, back.Cells()[0].PhasorDefinitions()[0].ConversionFactor(), 1e-9)

	// The copy is independent of the source
	require.NoError(t, cell.SetStationName("Changed"))
	assert.Equal(t, "Substation Alpha, feeder 12, bay 3", cfg3.Cells()[0].StationName())

	_, err = cfg3.AsType(FrameTypeData)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestConfigurationFrameTimeBaseFlags(t *testing.T) {
	cfg := newTestConfiguration(t, FrameTypeCfg2)
	cfg.TimeBase = 0x01000000 | 1000000
	image := mustImage(t, cfg)

	parsed, err := ParseConfigurationFrame(image)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01000000|1000000), parsed.TimeBase)

	rebuilt, err := FrameFromDocument(parsed.Document(), nil)
	require.NoError(t, err)
	assert.Equal(t, image, mustImage(t, rebuilt))
}

func TestConfigurationFrame3NilGlobalPMUID(t *testing.T) {
	image := mustImage(t, newTestConfiguration(t, FrameTypeCfg3))
	offset := CommonHeaderLength + 2 + 4 + 2 + 1 + len("Station A") + 2
	copy(image[offset:offset+16], make([]byte, 16))
	image = resealed(image)

	parsed, err := ParseConfigurationFrame(image)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, parsed.Cells()[0].GlobalPMUID)
	assert.Equal(t, image, mustImage(t, parsed))

	doc := parsed.Document()
	assert.Equal(t, uuid.Nil.String(), doc.Cells[0].GlobalPMUID)
	rebuilt, err := FrameFromDocument(doc, nil)
	require.NoError(t, err)
	assert.Equal(t, image, mustImage(t, rebuilt))

	cfg2, err := parsed.AsType(FrameTypeCfg2)
	require.NoError(t, err)
	back, err := cfg2.AsType(FrameTypeCfg3)
	require.NoError(t, err)
	assert.Equal(t, image, mustImage(t, back))
}

func TestPhasorScaleUserFlags(t *testing.T) {
	tests := []struct {
		name      string
		kind      byte
		user      byte
		component PhasorComponent
		typ       phasor.PhasorType
	}{
		{name: "voltage", kind: 0x04, user: 0x00, component: ComponentPhaseA, typ: phasor.Voltage},
		{name: "current with user flags", kind: 0x09, user: 0x42, component: ComponentPositiveSequence, typ: phasor.Current},
		{name: "reserved kind bits", kind: 0x39, user: 0xFF, component: ComponentPositiveSequence, typ: phasor.Current},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, phasorScaleLength)
			binary.BigEndian.PutUint16(buf[0:2], 0x0102)
			buf[2] = tt.kind
			buf[3] = tt.user
			putFloat32(buf[4:8], 0.5)
			putFloat32(buf[8:12], 0.25)

			d := &PhasorDefinition{}
			n, err := d.parsePhaseScale(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, phasorScaleLength, n)
			assert.Equal(t, tt.user, d.UserFlags)
			assert.Equal(t, tt.component, d.Component)
			assert.Equal(t, tt.typ, d.PhasorType())
			assert.Equal(t, uint16(0x0102), d.Flags)
			assert.Equal(t, 0.5, d.ConversionFactor())
			assert.Equal(t, 0.25, d.Offset())
			assert.Equal(t, buf, d.phaseScaleImage())
		})
	}
}

func TestConfigurationFrame3UserFlagsRoundTrip(t *testing.T) {
	cfg := newTestConfiguration3(t)
	cfg.Cells()[0].PhasorDefinitions()[0].UserFlags = 0x42
	image := mustImage(t, cfg)

	parsed, err := ParseConfigurationFrame(image)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), parsed.Cells()[0].PhasorDefinitions()[0].UserFlags)
	assert.Equal(t, image, mustImage(t, parsed))

	doc, err := NewFrameDocument(parsed)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), doc.Cells[0].Phasors[0].UserFlags)
	rebuilt, err := FrameFromDocument(yamlRoundTrip(t, doc), nil)
	require.NoError(t, err)
	assert.Equal(t, image, mustImage(t, rebuilt))
}

func TestConfigurationFrameAsTypeKeepsWireLabels(t *testing.T) {
	image := mustImage(t, newTestConfiguration(t, FrameTypeCfg2))
	// A degree sign in the padding after "Station A"
	image[CommonHeaderLength+6+len("Station A")] = 0xB0
	image = resealed(image)

	parsed, err := ParseConfigurationFrame(image)
	require.NoError(t, err)
	assert.Equal(t, "Station A\xb0", parsed.Cells()[0].StationName())

	for _, ft := range []FrameType{FrameTypeCfg1, FrameTypeCfg3} {
		converted, err := parsed.AsType(ft)
		require.NoError(t, err, ft.String())
		assert.Equal(t, "Station A\xb0", converted.Cells()[0].StationName())
	}

	same, err := parsed.AsType(FrameTypeCfg2)
	require.NoError(t, err)
	assert.Equal(t, image, mustImage(t, same))

	r, err := NewResponder(parsed, nil)
	require.NoError(t, err)
	assert.Same(t, parsed, r.ConfigurationFrame(FrameTypeCfg2))
	assert.Equal(t, FrameTypeCfg1, r.ConfigurationFrame(FrameTypeCfg1).FrameType)
}
