package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"loadceiling/internal/dummy"
	"loadceiling/internal/report"
	"loadceiling/internal/runner"
	"loadceiling/internal/stats"
	"loadceiling/internal/target"
)

func smallConfig() runner.Config {
	cfg := runner.DefaultConfig()
	cfg.StartWorkers = 2
	cfg.MaxWorkers = 4
	cfg.Step = 2
	cfg.UnitsPerStage = 20
	cfg.Pause = 0
	cfg.Seed = 1
	return cfg
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := Printer{W: &buf}

	p.StageStarted(5, 50)
	p.Progress(runner.Progress{Workers: 5, Completed: 10, Units: 50, SuccessRate: 100})
	p.StageFinished(stats.StageResult{Workers: 5, SuccessRate: 98, AvgSuccessDuration: 250 * time.Millisecond, ConnectionFailures: 1}, false)
	p.Pausing(2 * time.Second)
	p.Halted(runner.Breakpoint{Level: 10, LastGood: runner.LevelOf(5)})
	p.Halted(runner.Breakpoint{Level: 5})

	out := buf.String()
	assert.Contains(t, out, "Testing 5 concurrent connections")
	assert.Contains(t, out, "Progress: 10/50 | Success rate: 100.0%")
	assert.Contains(t, out, "Avg time: 0.250s")
	assert.Contains(t, out, "Failed connections: 1")
	assert.Contains(t, out, "Pausing 2s")
	assert.Contains(t, out, "BREAKING POINT REACHED at 10 workers!")
	assert.Contains(t, out, "Maximum stable load: ~5 workers")
	assert.Contains(t, out, "The first stage already failed")
}

func TestStart_DummyCompletes(t *testing.T) {
	var out bytes.Buffer
	sim := dummy.ServerConfig{MinLatency: time.Millisecond, MaxLatency: 2 * time.Millisecond}
	prefix := filepath.Join(t.TempDir(), "run")

	code, err := Start(context.Background(), Options{
		Config:    smallConfig(),
		Dummy:     &sim,
		OutPrefix: prefix,
		Stdout:    &out,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Equal(t, report.ExitStable, code)
	assert.Contains(t, out.String(), "STARTING LOAD TEST")
	assert.Contains(t, out.String(), "Maximum stable load: 4 concurrent workers")

	for _, ext := range []string{".json", ".csv"} {
		_, err := os.Stat(prefix + ext)
		assert.NoError(t, err)
	}
}

func TestStart_DummyOverloadJSON(t *testing.T) {
	var out bytes.Buffer
	sim := dummy.ServerConfig{MinLatency: 20 * time.Millisecond, MaxLatency: 20 * time.Millisecond, Knee: 1}
	cfg := smallConfig()
	cfg.UnitsPerStage = 40

	code, err := Start(context.Background(), Options{
		Config: cfg,
		Dummy:  &sim,
		JSON:   true,
		Stdout: &out,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Equal(t, report.ExitNoStable, code)

	var rep runner.RunReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Len(t, rep.Stages, 1)
	require.NotNil(t, rep.Breakpoint)
	assert.Equal(t, 2, rep.Breakpoint.Level)
	assert.False(t, rep.Breakpoint.LastGood.Found)
	assert.False(t, rep.MaxStable.Found)
}

func TestStart_SharedPolicy(t *testing.T) {
	var out bytes.Buffer
	sim := dummy.ServerConfig{MinLatency: time.Millisecond, MaxLatency: time.Millisecond}
	cfg := smallConfig()
	cfg.ConnPolicy = target.PolicyShared

	code, err := Start(context.Background(), Options{Config: cfg, Dummy: &sim, Stdout: &out})
	require.NoError(t, err)
	assert.Equal(t, report.ExitStable, code)
}

func TestStart_InvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Step = 0

	code, err := Start(context.Background(), Options{Config: cfg, Stdout: &bytes.Buffer{}})
	assert.True(t, errors.Is(err, runner.ErrInvalidConfig))
	assert.Equal(t, report.ExitError, code)
}

func TestStart_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := dummy.ServerConfig{MinLatency: time.Millisecond, MaxLatency: time.Millisecond}

	code, err := Start(ctx, Options{Config: smallConfig(), Dummy: &sim, Stdout: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, report.ExitInterrupted, code)
}

func TestNewRNG_Seeded(t *testing.T) {
	a, b := newRNG(42), newRNG(42)
	for range 10 {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}
