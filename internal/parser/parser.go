package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vibhavm/logsage/internal/pattern"
	"github.com/vibhavm/logsage/internal/types"
)

// Parser applies one selected pattern to every input line. Blank lines are
// skipped; every non-blank line yields exactly one record, in input order.
type Parser struct {
	logger *zap.Logger
}

// New creates a Parser.
func New(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse runs the selected pattern over all lines. A line the pattern cannot
// match still produces a record: all declared fields empty, the whole line
// preserved in the message field, and ParseOK false.
func (p *Parser) Parse(lines []types.RawLine, pat *pattern.Pattern) []types.ParsedRecord {
	records := make([]types.ParsedRecord, 0, len(lines))
	parsed := 0
	for _, line := range lines {
		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		rec := p.parseLine(line, pat)
		if rec.ParseOK {
			parsed++
		}
		records = append(records, rec)
	}
	p.logger.Debug("parse complete",
		zap.String("format", pat.Name),
		zap.Int("records", len(records)),
		zap.Int("parsed", parsed))
	return records
}

func (p *Parser) parseLine(line types.RawLine, pat *pattern.Pattern) types.ParsedRecord {
	var fields map[string]string
	var ok bool
	switch pat.Name {
	case pattern.JSONLog:
		fields, ok = parseJSONObject(line.Text)
	case pattern.JSONArray:
		fields, ok = parseJSONArray(line.Text)
	default:
		fields, ok = pat.Capture(line.Text)
	}
	if !ok {
		fields = make(map[string]string, len(pat.Fields())+1)
		for _, name := range pat.Fields() {
			fields[name] = ""
		}
		fields["message"] = line.Text
	}
	return types.ParsedRecord{
		LineNumber: line.Number,
		Raw:        line.Text,
		Format:     pat.Name,
		Fields:     fields,
		ParseOK:    ok,
	}
}

// jsonAliases maps the canonical field name to the keys JSON logs commonly
// use for it, in lookup order.
var jsonAliases = map[string][]string{
	"timestamp":  {"timestamp", "time", "ts", "@timestamp"},
	"level":      {"level", "severity", "lvl"},
	"message":    {"message", "msg"},
	"status":     {"status", "status_code", "code"},
	"ip":         {"ip", "ip_address", "client_ip", "remote_addr"},
	"path":       {"path", "endpoint", "url", "uri"},
	"method":     {"method", "verb"},
	"bytes":      {"bytes", "bytes_sent", "size"},
	"user_agent": {"user_agent", "ua", "http_user_agent"},
}

func parseJSONObject(line string) (map[string]string, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, false
	}

	fields := make(map[string]string, len(raw)+len(jsonAliases))
	for canonical, aliases := range jsonAliases {
		fields[canonical] = ""
		for _, alias := range aliases {
			if v, ok := raw[alias]; ok && v != nil {
				fields[canonical] = stringify(v)
				break
			}
		}
	}
	// Keep every original key as well so no column is lost.
	for k, v := range raw {
		if _, taken := fields[k]; taken {
			continue
		}
		if v == nil {
			fields[k] = ""
			continue
		}
		fields[k] = stringify(v)
	}
	return fields, true
}

// arrayPositions maps well-known array positions to field names, following
// the export layout this tool most often receives.
var arrayPositions = map[int]string{
	2: "timestamp",
	3: "ip",
	4: "port",
	5: "user_agent",
	6: "language",
	7: "secondary_ip",
}

func parseJSONArray(line string) (map[string]string, bool) {
	var raw []any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, false
	}

	fields := make(map[string]string, len(raw))
	for _, name := range arrayPositions {
		fields[name] = ""
	}
	fields["message"] = ""
	for i, v := range raw {
		if v == nil {
			continue
		}
		if name, ok := arrayPositions[i]; ok {
			fields[name] = stringify(v)
		} else {
			fields[fmt.Sprintf("field_%d", i)] = stringify(v)
		}
	}
	return fields, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// Most JSON numbers in logs are integral; avoid the trailing .0.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
