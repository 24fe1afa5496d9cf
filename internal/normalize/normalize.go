package normalize

import (
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/mssola/user_agent"
	"go.uber.org/zap"

	"github.com/vibhavm/logsage/internal/types"
)

// timestampLayouts are tried in order. Comma decimal separators are
// rewritten to dots before matching, so one fractional layout covers both.
var timestampLayouts = []string{
	"02/Jan/2006:15:04:05 -0700", // Apache / Nginx bracketed
	"02/Jan/2006:15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
}

// syslogLayout has no year; the year is inferred relative to the run's
// reference time.
const syslogLayout = "Jan _2 15:04:05"

// Normalizer rewrites heterogeneous captured fields into canonical typed
// values. It never drops a record or a column; anything unparseable becomes
// a null (nil pointer / unset flag) with the raw string preserved.
type Normalizer struct {
	now    time.Time // reference time for syslog year inference
	logger *zap.Logger
}

// New creates a Normalizer. The reference time fixes year inference so that
// identical input always normalizes identically.
func New(now time.Time, logger *zap.Logger) *Normalizer {
	return &Normalizer{now: now, logger: logger}
}

// Normalize derives canonical fields for every parsed record.
func (n *Normalizer) Normalize(records []types.ParsedRecord) []types.Record {
	out := make([]types.Record, 0, len(records))
	for _, pr := range records {
		out = append(out, n.normalizeRecord(pr))
	}
	return out
}

func (n *Normalizer) normalizeRecord(pr types.ParsedRecord) types.Record {
	rec := types.Record{ParsedRecord: pr}

	if ts := pr.Field("timestamp"); ts != "" {
		if t, ok := n.parseTimestamp(ts); ok {
			rec.Timestamp = t
			rec.HasTimestamp = true
		}
	}

	rec.StatusCode = parseIntField(pr.Field("status"))
	rec.Bytes = parseBytesField(firstNonEmpty(pr.Field("bytes"), pr.Field("bytes_sent"), pr.Field("size")))

	rec.ClientIP = firstNonEmpty(pr.Field("ip"), pr.Field("secondary_ip"))
	if rec.ClientIP != "" {
		if _, err := netip.ParseAddr(rec.ClientIP); err == nil {
			rec.IPValid = true
		}
	}

	rec.Method = pr.Field("method")
	rec.Path = firstNonEmpty(pr.Field("path"), pr.Field("url"))
	rec.Message = pr.Field("message")

	if ua := pr.Field("user_agent"); ua != "" {
		rec.UserAgent = ua
		parsed := user_agent.New(ua)
		rec.Browser, _ = parsed.Browser()
		rec.IsBot = parsed.Bot()
	}

	return rec
}

func (n *Normalizer) parseTimestamp(raw string) (time.Time, bool) {
	cleaned := strings.Replace(strings.TrimSpace(raw), ",", ".", 1)

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.UTC(), true
		}
	}

	if t, err := time.Parse(syslogLayout, cleaned); err == nil {
		return n.inferSyslogYear(t), true
	}

	// Numeric unix timestamp, seconds or milliseconds.
	if v, err := strconv.ParseInt(cleaned, 10, 64); err == nil && v > 0 {
		if v > 1e12 {
			return time.UnixMilli(v).UTC(), true
		}
		return time.Unix(v, 0).UTC(), true
	}

	return time.Time{}, false
}

// inferSyslogYear picks the current year unless that would land in the
// future, in which case the prior year is used.
func (n *Normalizer) inferSyslogYear(t time.Time) time.Time {
	withYear := time.Date(n.now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	if withYear.After(n.now) {
		withYear = withYear.AddDate(-1, 0, 0)
	}
	return withYear
}

func parseIntField(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func parseBytesField(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
