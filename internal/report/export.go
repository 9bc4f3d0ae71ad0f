package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"loadceiling/internal/runner"
)

// WriteJSON writes the full run report. max_stable_level is null when no
// stage qualified.
func WriteJSON(w io.Writer, r runner.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

var csvHeader = []string{
	"run_id", "workers", "total", "successful", "failed", "connection_failures",
	"success_rate", "avg_success_ms", "p50_ms", "p95_ms", "p99_ms", "max_ms",
	"elapsed_ms", "peak_in_flight", "stable", "stop", "partial",
}

// WriteCSV writes one row per stage in ascending worker order. Partial stages
// leave stable and stop empty.
func WriteCSV(w io.Writer, r runner.RunReport) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	th := r.Config.Thresholds
	for _, s := range sortedStages(r.Stages) {
		stable, stop := "", ""
		if !s.Partial {
			stable = strconv.FormatBool(runner.IsStable(s, th))
			stop = strconv.FormatBool(runner.ShouldStop(s, th))
		}
		record := []string{
			r.RunID,
			strconv.Itoa(s.Workers),
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Successful),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.ConnectionFailures),
			strconv.FormatFloat(s.SuccessRate, 'f', 2, 64),
			millis(s.AvgSuccessDuration.Seconds()),
			millis(s.P50.Seconds()),
			millis(s.P95.Seconds()),
			millis(s.P99.Seconds()),
			millis(s.MaxDuration.Seconds()),
			strconv.FormatInt(s.Elapsed.Milliseconds(), 10),
			strconv.Itoa(s.PeakInFlight),
			stable,
			stop,
			strconv.FormatBool(s.Partial),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func millis(sec float64) string {
	return strconv.FormatFloat(sec*1000, 'f', 3, 64)
}

// Export writes <prefix>.json and <prefix>.csv and returns the paths written.
func Export(prefix string, r runner.RunReport) ([]string, error) {
	if prefix == "" {
		return nil, nil
	}

	files := []struct {
		path  string
		write func(io.Writer, runner.RunReport) error
	}{
		{prefix + ".json", WriteJSON},
		{prefix + ".csv", WriteCSV},
	}

	var written []string
	for _, f := range files {
		if err := writeFile(f.path, r, f.write); err != nil {
			return written, err
		}
		written = append(written, f.path)
	}
	return written, nil
}

func writeFile(path string, r runner.RunReport, write func(io.Writer, runner.RunReport) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
