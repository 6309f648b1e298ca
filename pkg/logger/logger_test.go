package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New("macros", "debug", &buf), "orchestrator")

	log.Info().Str("saga_id", "abc").Msg("шаг выполнен")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "macros", entry["service"])
	assert.Equal(t, "orchestrator", entry["component"])
	assert.Equal(t, "abc", entry["saga_id"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNewFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New("macros", "громко", &buf)

	log.Debug().Msg("не должно попасть в вывод")
	assert.Empty(t, buf.String())

	log.Info().Msg("попадает")
	assert.NotEmpty(t, buf.String())
}
