package parser

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/vibhavm/logsage/internal/pattern"
	"github.com/vibhavm/logsage/internal/types"
)

func rawLines(texts ...string) []types.RawLine {
	out := make([]types.RawLine, len(texts))
	for i, s := range texts {
		out[i] = types.RawLine{Number: i + 1, Text: s}
	}
	return out
}

func TestParseCountMatchesNonBlankLines(t *testing.T) {
	p := New(zaptest.NewLogger(t))
	reg := pattern.NewRegistry()
	apache, _ := reg.Lookup(pattern.ApacheCombined)

	lines := rawLines(
		`192.168.1.1 - - [29/Aug/2026:10:00:00 +0000] "GET / HTTP/1.1" 200 100 "-" "curl/8.0"`,
		"",
		"   ",
		"this line does not match the pattern",
		`192.168.1.2 - - [29/Aug/2026:10:00:01 +0000] "GET /a HTTP/1.1" 404 0 "-" "curl/8.0"`,
	)

	records := p.Parse(lines, apache)
	if len(records) != 3 {
		t.Fatalf("expected 3 records for 3 non-blank lines, got %d", len(records))
	}
	if records[1].ParseOK {
		t.Error("unmatched line must have ParseOK false")
	}
	if records[1].Fields["message"] != "this line does not match the pattern" {
		t.Errorf("unmatched line must keep its text as message, got %q", records[1].Fields["message"])
	}
	// Declared fields stay present even on failure.
	if _, ok := records[1].Fields["status"]; !ok {
		t.Error("declared field status missing from failed record")
	}
	if records[2].LineNumber != 5 {
		t.Errorf("expected original line number 5, got %d", records[2].LineNumber)
	}
}

func TestParseJSONObjectAliases(t *testing.T) {
	p := New(zaptest.NewLogger(t))
	reg := pattern.NewRegistry()
	jsonPat, _ := reg.Lookup(pattern.JSONLog)

	records := p.Parse(rawLines(
		`{"ts":"2026-08-29T10:00:00Z","severity":"error","msg":"db down","status_code":503,"remote_addr":"10.0.0.9"}`,
	), jsonPat)

	if len(records) != 1 || !records[0].ParseOK {
		t.Fatalf("expected one parsed record, got %+v", records)
	}
	f := records[0].Fields
	if f["timestamp"] != "2026-08-29T10:00:00Z" {
		t.Errorf("ts alias not mapped to timestamp, got %q", f["timestamp"])
	}
	if f["level"] != "error" {
		t.Errorf("severity alias not mapped to level, got %q", f["level"])
	}
	if f["message"] != "db down" {
		t.Errorf("msg alias not mapped to message, got %q", f["message"])
	}
	if f["status"] != "503" {
		t.Errorf("status_code alias not mapped to status, got %q", f["status"])
	}
	if f["ip"] != "10.0.0.9" {
		t.Errorf("remote_addr alias not mapped to ip, got %q", f["ip"])
	}
	// Original keys survive alongside the canonical ones.
	if f["msg"] != "db down" {
		t.Errorf("original key msg lost, got %q", f["msg"])
	}
}

func TestParseJSONObjectIntegralNumbers(t *testing.T) {
	p := New(zaptest.NewLogger(t))
	reg := pattern.NewRegistry()
	jsonPat, _ := reg.Lookup(pattern.JSONLog)

	records := p.Parse(rawLines(`{"status":200,"bytes":1048576,"ratio":0.5}`), jsonPat)

	f := records[0].Fields
	if f["status"] != "200" {
		t.Errorf("expected status 200 without decimal point, got %q", f["status"])
	}
	if f["bytes"] != "1048576" {
		t.Errorf("expected bytes 1048576, got %q", f["bytes"])
	}
	if f["ratio"] != "0.5" {
		t.Errorf("expected ratio 0.5, got %q", f["ratio"])
	}
}

func TestParseJSONArrayPositions(t *testing.T) {
	p := New(zaptest.NewLogger(t))
	reg := pattern.NewRegistry()
	arrPat, _ := reg.Lookup(pattern.JSONArray)

	records := p.Parse(rawLines(
		`[1, "x", "2026-08-29T10:00:00Z", "203.0.113.7", 443, "curl/8.0", "en-US", "10.0.0.1", "extra"]`,
	), arrPat)

	f := records[0].Fields
	if f["timestamp"] != "2026-08-29T10:00:00Z" {
		t.Errorf("position 2 not mapped to timestamp, got %q", f["timestamp"])
	}
	if f["ip"] != "203.0.113.7" {
		t.Errorf("position 3 not mapped to ip, got %q", f["ip"])
	}
	if f["user_agent"] != "curl/8.0" {
		t.Errorf("position 5 not mapped to user_agent, got %q", f["user_agent"])
	}
	if f["field_8"] != "extra" {
		t.Errorf("unmapped position not kept as field_8, got %q", f["field_8"])
	}
}

func TestParseMalformedJSONFallsThrough(t *testing.T) {
	p := New(zaptest.NewLogger(t))
	reg := pattern.NewRegistry()
	jsonPat, _ := reg.Lookup(pattern.JSONLog)

	records := p.Parse(rawLines(`{"broken": `), jsonPat)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].ParseOK {
		t.Error("malformed JSON must not parse")
	}
	if records[0].Fields["message"] != `{"broken": ` {
		t.Errorf("raw text not preserved, got %q", records[0].Fields["message"])
	}
}
