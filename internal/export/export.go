package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vibhavm/logsage/internal/types"
)

// Format names one supported output encoding.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatSQLite Format = "sqlite"
)

// ParseFormat validates a format name from the command line.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatSQLite:
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("unknown output format %q (want csv, json or sqlite)", s)
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	switch f {
	case FormatSQLite:
		return "db"
	default:
		return string(f)
	}
}

// OutputPath builds a collision-free output file name inside dir. The
// original filename is only a hint for naming; concurrent requests each
// get a unique suffix.
func OutputPath(dir, hint string, format Format) string {
	base := strings.TrimSuffix(filepath.Base(hint), filepath.Ext(hint))
	if base == "" || base == "." {
		base = "logs"
	}
	suffix := uuid.NewString()[:8]
	return filepath.Join(dir, fmt.Sprintf("%s-analysis-%s.%s", base, suffix, format.Ext()))
}

// coreColumns is the fixed leading column order of the tabular export.
var coreColumns = []string{
	"line_number", "format", "parse_ok",
	"timestamp", "client_ip", "method", "path", "status_code", "bytes",
	"message", "user_agent", "browser", "is_bot",
	"severity", "category", "attack_signature", "is_anomaly", "anomaly_reasons",
}

// extraColumns returns pattern fields not covered by a core column, sorted
// for a stable layout.
func extraColumns(records []types.LabeledRecord) []string {
	core := make(map[string]bool, len(coreColumns))
	for _, c := range coreColumns {
		core[c] = true
	}
	// Fields already surfaced through canonical record columns.
	for _, c := range []string{"timestamp", "ip", "status", "bytes", "bytes_sent", "size", "method", "path", "url", "message", "user_agent"} {
		core[c] = true
	}
	seen := make(map[string]bool)
	for _, rec := range records {
		for k := range rec.Fields {
			if !core[k] && !seen[k] {
				seen[k] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// recordRow renders one record as strings under the given column layout.
// Null values render as empty cells; the columns themselves are always
// present.
func recordRow(rec types.LabeledRecord, extras []string) []string {
	row := []string{
		strconv.Itoa(rec.LineNumber),
		rec.Format,
		strconv.FormatBool(rec.ParseOK),
		formatTime(rec),
		rec.ClientIP,
		rec.Method,
		rec.Path,
		formatIntPtr(rec.StatusCode),
		formatInt64Ptr(rec.Bytes),
		rec.Message,
		rec.UserAgent,
		rec.Browser,
		strconv.FormatBool(rec.IsBot),
		string(rec.Severity),
		string(rec.Category),
		rec.Signature,
		strconv.FormatBool(rec.IsAnomaly),
		strings.Join(rec.AnomalyReasons, "; "),
	}
	for _, col := range extras {
		row = append(row, rec.Fields[col])
	}
	return row
}

// WriteCSV writes the labeled table in a stable column order.
func WriteCSV(w io.Writer, records []types.LabeledRecord) error {
	extras := extraColumns(records)
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, coreColumns...), extras...)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(recordRow(rec, extras)); err != nil {
			return fmt.Errorf("writing line %d: %w", rec.LineNumber, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonRecord mirrors the CSV layout as a field map per record.
func jsonRecord(rec types.LabeledRecord) map[string]any {
	m := map[string]any{
		"line_number":      rec.LineNumber,
		"format":           rec.Format,
		"parse_ok":         rec.ParseOK,
		"timestamp":        nullable(formatTime(rec)),
		"client_ip":        nullable(rec.ClientIP),
		"method":           nullable(rec.Method),
		"path":             nullable(rec.Path),
		"status_code":      rec.StatusCode,
		"bytes":            rec.Bytes,
		"message":          rec.Message,
		"user_agent":       nullable(rec.UserAgent),
		"browser":          nullable(rec.Browser),
		"is_bot":           rec.IsBot,
		"severity":         rec.Severity,
		"category":         rec.Category,
		"attack_signature": nullable(rec.Signature),
		"is_anomaly":       rec.IsAnomaly,
		"anomaly_reasons":  rec.AnomalyReasons,
	}
	for _, col := range extraColumns([]types.LabeledRecord{rec}) {
		m[col] = nullable(rec.Fields[col])
	}
	return m
}

// WriteJSON writes records plus the summary as one document.
func WriteJSON(w io.Writer, records []types.LabeledRecord, summary types.DashboardSummary) error {
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, jsonRecord(rec))
	}
	doc := struct {
		Records []map[string]any       `json:"records"`
		Summary types.DashboardSummary `json:"summary"`
	}{Records: rows, Summary: summary}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

func formatTime(rec types.LabeledRecord) string {
	if !rec.HasTimestamp {
		return ""
	}
	return rec.Timestamp.UTC().Format(time.RFC3339)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatInt64Ptr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
