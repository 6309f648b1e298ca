package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("MACRO_TEST_INT", "42")
	t.Setenv("MACRO_TEST_BAD_INT", "сорок два")
	t.Setenv("MACRO_TEST_BOOL", "true")
	t.Setenv("MACRO_TEST_DURATION", "1500ms")

	assert.Equal(t, 42, GetEnvAsInt("MACRO_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvAsInt("MACRO_TEST_BAD_INT", 1))
	assert.True(t, GetEnvAsBool("MACRO_TEST_BOOL", false))
	assert.False(t, GetEnvAsBool("MACRO_TEST_MISSING", false))
	assert.Equal(t, 1500*time.Millisecond, GetEnvAsDuration("MACRO_TEST_DURATION", time.Second))
	assert.Equal(t, "default", GetEnv("MACRO_TEST_MISSING", "default"))

	t.Setenv("MACRO_TEST_SLICE", " 10.0.0.0/8, ,127.0.0.0/8")
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.0/8"}, GetEnvAsSlice("MACRO_TEST_SLICE", nil))
	assert.Equal(t, []string{"x"}, GetEnvAsSlice("MACRO_TEST_MISSING", []string{"x"}))
}

func TestLoadCommonConfigDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DB", "")
	t.Setenv("MESSAGING_WORKERS", "4")

	cfg := LoadCommonConfig("macros", "8080")

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, "", cfg.Postgres.DBName)
	assert.Equal(t, 4, cfg.Messaging.Workers)
	assert.Equal(t, "macro_saga_exchange", cfg.Messaging.Exchange)
}

func TestGenerateRandomKey(t *testing.T) {
	key := GenerateRandomKey(32)
	assert.Len(t, key, 32)
	assert.NotEqual(t, key, GenerateRandomKey(32))
}
