package runner

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.Pause)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.IOTimeout)
	assert.Equal(t, []int{5, 10, 15, 20, 25, 30, 35, 40, 45, 50}, cfg.Levels())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"host", func(c *Config) { c.Host = " " }},
		{"port", func(c *Config) { c.Port = 0 }},
		{"port", func(c *Config) { c.Port = 70000 }},
		{"start_workers", func(c *Config) { c.StartWorkers = 0 }},
		{"start_workers", func(c *Config) { c.StartWorkers = 60 }},
		{"max_workers", func(c *Config) { c.MaxWorkers = -1 }},
		{"step", func(c *Config) { c.Step = 0 }},
		{"step", func(c *Config) { c.Step = -5 }},
		{"units_per_stage", func(c *Config) { c.UnitsPerStage = 0 }},
		{"pause", func(c *Config) { c.Pause = -time.Second }},
		{"connect_timeout", func(c *Config) { c.ConnectTimeout = 0 }},
		{"io_timeout", func(c *Config) { c.IOTimeout = 0 }},
		{"progress_every", func(c *Config) { c.ProgressEvery = 0 }},
		{"conn_policy", func(c *Config) { c.ConnPolicy = "pooled" }},
		{"stop_success_rate", func(c *Config) { c.Thresholds.StopSuccessRate = 101 }},
		{"stable_success_rate", func(c *Config) { c.Thresholds.StableSuccessRate = -1 }},
		{"stop_conn_failures", func(c *Config) { c.Thresholds.StopConnFailures = -1 }},
		{"stable_conn_failures", func(c *Config) { c.Thresholds.StableConnFailures = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestConfig_ZeroPauseIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pause = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfig_LevelsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Step = 0
	assert.Nil(t, cfg.Levels())
}

func TestLevel_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Level `json:"a"`
		B Level `json:"b"`
	}{A: LevelOf(0), B: Level{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":0,"b":null}`, string(b))

	var got struct {
		A Level `json:"a"`
		B Level `json:"b"`
	}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, LevelOf(0), got.A)
	assert.Equal(t, Level{}, got.B)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "query_failure", StatusQueryFailure.String())
	assert.Equal(t, "connection_failure", StatusConnectionFailure.String())

	b, err := json.Marshal(QueryOutcome{QueryName: "q", Status: StatusConnectionFailure, Err: "reset"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"connection_failure"`)
}
