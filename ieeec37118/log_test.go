package ieeec37118

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogConfiguration(t *testing.T) {
	cfg := newTestConfiguration(t, FrameTypeCfg2)

	t.Run("info", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		LogConfiguration(logger, cfg)

		entries := hook.AllEntries()
		require.Len(t, entries, 2)
		assert.Equal(t, "Configuration frame", entries[0].Message)
		assert.Equal(t, "cfg2", entries[0].Data["frame_type"])
		assert.Equal(t, 1, entries[0].Data["num_pmu"])
		assert.Equal(t, "PMU station configuration", entries[1].Message)
		assert.Equal(t, "Station A", entries[1].Data["station_name"])
		assert.Equal(t, map[string]int{"phasor": 2, "analog": 1, "digital": 1}, entries[1].Data["channels"])
	})

	t.Run("debug", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		logger.SetLevel(log.DebugLevel)
		LogConfiguration(logger, cfg)

		entries := hook.AllEntries()
		require.Len(t, entries, 6)
		assert.Equal(t, "Phasor channel configuration", entries[2].Message)
		assert.Equal(t, "VA", entries[2].Data["name"])
		assert.Equal(t, "Analog channel configuration", entries[4].Message)
		assert.Equal(t, "Digital channel configuration", entries[5].Message)
		assert.Equal(t, []string{"BREAKER 1", "BREAKER 2"}, entries[5].Data["channels"])
		assert.Equal(t, "0xFFFF", entries[5].Data["valid_mask"])
	})

	t.Run("nil configuration", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		LogConfiguration(logger, nil)
		require.Len(t, hook.AllEntries(), 1)
		assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
	})
}
