package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_StructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Info().Str("reference", "dep_1_ab").Msg("deposit initiated")

	var output map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &output), "logger output should be valid JSON")

	assert.Equal(t, "deposit initiated", output["message"])
	assert.Equal(t, "dep_1_ab", output["reference"])
	assert.Equal(t, "info", output["level"])
	assert.Equal(t, ServiceName, output["service"])
	assert.Contains(t, output, "time", "should include timestamp")
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level      string
		debugShown bool
		infoShown  bool
		warnShown  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"WARN", false, false, true},
		{"error", false, false, false},
		{"invalid", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(tt.level, &buf)

			log.Debug().Msg("d")
			assert.Equal(t, tt.debugShown, buf.Len() > 0)
			buf.Reset()

			log.Info().Msg("i")
			assert.Equal(t, tt.infoShown, buf.Len() > 0)
			buf.Reset()

			log.Warn().Msg("w")
			assert.Equal(t, tt.warnShown, buf.Len() > 0)
		})
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter("info", &buf), "reconciler")

	log.Info().Msg("tick")

	var output map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &output))
	assert.Equal(t, "reconciler", output["component"])
}

func TestNew_PrettyMode(t *testing.T) {
	log := New("info", true)
	log.Info().Msg("pretty mode test")
}
