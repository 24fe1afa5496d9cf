package export

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vibhavm/logsage/internal/types"
	_ "modernc.org/sqlite"
)

// WriteSQLite writes one run's records and summary as a self-contained
// SQLite artifact. Each run creates a fresh file; nothing is shared or
// appended across runs.
func WriteSQLite(path string, records []types.LabeledRecord, summary types.DashboardSummary) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE IF NOT EXISTS log_records (
		line_number INTEGER NOT NULL,
		format TEXT NOT NULL,
		parse_ok INTEGER NOT NULL,
		timestamp DATETIME,
		client_ip TEXT,
		method TEXT,
		path TEXT,
		status_code INTEGER,
		bytes INTEGER,
		message TEXT,
		severity TEXT NOT NULL,
		category TEXT NOT NULL,
		attack_signature TEXT,
		is_anomaly INTEGER NOT NULL,
		anomaly_reasons TEXT,
		fields TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_records_timestamp ON log_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_records_ip ON log_records(client_ip);
	CREATE TABLE IF NOT EXISTS run_summary (
		generated_at DATETIME NOT NULL,
		summary TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO log_records (line_number, format, parse_ok, timestamp, client_ip,
			method, path, status_code, bytes, message, severity, category,
			attack_signature, is_anomaly, anomaly_reasons, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			fieldsJSON = []byte("{}")
		}
		var ts any
		if rec.HasTimestamp {
			ts = rec.Timestamp.UTC()
		}
		_, err = stmt.Exec(
			rec.LineNumber, rec.Format, rec.ParseOK, ts, nullString(rec.ClientIP),
			nullString(rec.Method), nullString(rec.Path), nullInt(rec.StatusCode),
			nullInt64(rec.Bytes), rec.Message, string(rec.Severity), string(rec.Category),
			nullString(rec.Signature), rec.IsAnomaly,
			nullString(strings.Join(rec.AnomalyReasons, "; ")), string(fieldsJSON),
		)
		if err != nil {
			return fmt.Errorf("inserting line %d: %w", rec.LineNumber, err)
		}
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO run_summary (generated_at, summary) VALUES (?, ?)",
		time.Now().UTC(), string(summaryJSON),
	); err != nil {
		return fmt.Errorf("inserting summary: %w", err)
	}

	return tx.Commit()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
