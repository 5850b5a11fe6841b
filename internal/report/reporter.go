package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/emmersive/akamai-cache-tester/internal/core"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CSVHeader is the fixed column set of the CSV export. Order and spelling
// are consumed by downstream spreadsheets; do not reorder.
var CSVHeader = []string{
	"URL",
	"Status Code",
	"Cache Status",
	"X-Cache",
	"X-Cache-Remote",
	"X-Check-Cacheable",
	"X-Cache-Key",
	"X-True-Cache-Key",
	"X-Served-By",
	"X-Timer",
	"Age",
	"Cache-Control",
	"Response Time (ms)",
	"Error",
}

// Reporter renders a completed run in the configured output format.
type Reporter struct {
	logger utils.Logger
}

func NewReporter(logger utils.Logger) *Reporter {
	return &Reporter{logger: logger}
}

// Generate writes the report to outputPath (empty means stdout) in the
// given format: text, json or csv.
func (r *Reporter) Generate(report *core.RunReport, outputPath string, format string) error {
	writer := os.Stdout
	if outputPath != "" {
		if err := utils.EnsureFilepathExists(outputPath); err != nil {
			return fmt.Errorf("preparing report path: %w", err)
		}
		file, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer file.Close()
		writer = file
	}

	var err error
	switch format {
	case "json":
		err = WriteJSON(writer, report)
	case "csv":
		err = WriteCSV(writer, report.Results)
	default:
		err = WriteText(writer, report)
	}
	if err != nil {
		return err
	}

	if outputPath != "" {
		r.logger.Infof("Report written to %s (%s)", outputPath, format)
	}
	return nil
}

// WriteJSON renders the full report as indented JSON.
func WriteJSON(w io.Writer, report *core.RunReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// WriteCSV renders one row per result under the fixed header, in run
// order.
func WriteCSV(w io.Writer, results []core.ProbeResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, result := range results {
		if err := cw.Write(csvRow(result)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(result core.ProbeResult) []string {
	return []string{
		result.URL,
		statusCell(result),
		string(result.CacheStatus),
		result.XCache,
		result.XCacheRemote,
		result.XCheckCacheable,
		result.XCacheKey,
		result.XTrueCacheKey,
		result.XServedBy,
		result.XTimer,
		result.Age,
		result.CacheControl,
		responseTimeCell(result),
		result.Error,
	}
}

func statusCell(result core.ProbeResult) string {
	if result.StatusCode <= 0 {
		return core.SentinelError
	}
	return strconv.Itoa(int(result.StatusCode))
}

func responseTimeCell(result core.ProbeResult) string {
	if result.ResponseTimeMS == nil {
		return ""
	}
	return strconv.Itoa(*result.ResponseTimeMS)
}

// WriteText renders the human-readable summary block plus one line per
// result.
func WriteText(w io.Writer, report *core.RunReport) error {
	s := report.Summary
	_, err := fmt.Fprintf(w, `Akamai cache test: run %s
Timestamp: %s

Summary
  Total URLs     %d
  Cache hits     %d (%d confirmed, %d inferred)
  Cache misses   %d (%d confirmed, %d inferred)
  Not cacheable  %d
  Unknown        %d
  Errors         %d
  AEM detected   %d
  Hit ratio      %.2f%% of %d cacheable

Results
`,
		report.RunID,
		report.Timestamp.Format(time.RFC3339),
		s.TotalURLs,
		s.CacheHits, s.ConfirmedHits, s.InferredHits,
		s.CacheMisses, s.ConfirmedMisses, s.InferredMisses,
		s.NotCacheable,
		s.Unknown,
		s.Errors,
		s.TotalAEMDetected,
		s.CacheHitRatio, s.CacheableTotal,
	)
	if err != nil {
		return err
	}

	for _, result := range report.Results {
		line := fmt.Sprintf("  %-29s %-5s %s", result.CacheStatus, statusCell(result), result.URL)
		if result.ResponseTimeMS != nil {
			line += fmt.Sprintf(" (%d ms)", *result.ResponseTimeMS)
		}
		if result.IsAEM != nil && *result.IsAEM {
			line += " [AEM]"
		}
		if result.Error != "" {
			line += " " + result.Error
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// ExportFilename names a CSV download after its creation moment, to
// second precision.
func ExportFilename(now time.Time) string {
	return "akamai_cache_test_" + now.Format("20060102_150405") + ".csv"
}
