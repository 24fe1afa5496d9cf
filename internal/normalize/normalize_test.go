package normalize

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/vibhavm/logsage/internal/types"
)

func parsedRecord(fields map[string]string) types.ParsedRecord {
	return types.ParsedRecord{LineNumber: 1, Fields: fields, ParseOK: true}
}

func TestNormalizeApacheTimestamp(t *testing.T) {
	n := New(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC), zaptest.NewLogger(t))

	recs := n.Normalize([]types.ParsedRecord{parsedRecord(map[string]string{
		"timestamp": "29/Aug/2026:10:15:30 +0000",
	})})

	if !recs[0].HasTimestamp {
		t.Fatal("apache timestamp not parsed")
	}
	want := time.Date(2026, 8, 29, 10, 15, 30, 0, time.UTC)
	if !recs[0].Timestamp.Equal(want) {
		t.Errorf("expected %v, got %v", want, recs[0].Timestamp)
	}
}

func TestNormalizeCommaMilliseconds(t *testing.T) {
	n := New(time.Now(), zaptest.NewLogger(t))

	recs := n.Normalize([]types.ParsedRecord{parsedRecord(map[string]string{
		"timestamp": "2026-08-29 10:15:30,123",
	})})

	if !recs[0].HasTimestamp {
		t.Fatal("comma-millisecond timestamp not parsed")
	}
	if recs[0].Timestamp.Nanosecond() != 123000000 {
		t.Errorf("expected 123ms, got %dns", recs[0].Timestamp.Nanosecond())
	}
}

func TestSyslogYearInference(t *testing.T) {
	// Reference date in March: an August syslog timestamp would be in the
	// future, so it belongs to the prior year.
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	n := New(now, zaptest.NewLogger(t))

	recs := n.Normalize([]types.ParsedRecord{
		parsedRecord(map[string]string{"timestamp": "Aug 29 10:15:30"}),
		parsedRecord(map[string]string{"timestamp": "Feb  1 10:15:30"}),
	})

	if got := recs[0].Timestamp.Year(); got != 2025 {
		t.Errorf("future month must roll back a year, got %d", got)
	}
	if got := recs[1].Timestamp.Year(); got != 2026 {
		t.Errorf("past month keeps the reference year, got %d", got)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	pr := parsedRecord(map[string]string{"timestamp": "Aug 29 10:15:30"})

	a := New(now, zaptest.NewLogger(t)).Normalize([]types.ParsedRecord{pr})
	b := New(now, zaptest.NewLogger(t)).Normalize([]types.ParsedRecord{pr})
	if !a[0].Timestamp.Equal(b[0].Timestamp) {
		t.Errorf("same reference time produced %v and %v", a[0].Timestamp, b[0].Timestamp)
	}
}

func TestNullableNumerics(t *testing.T) {
	n := New(time.Now(), zaptest.NewLogger(t))

	recs := n.Normalize([]types.ParsedRecord{
		parsedRecord(map[string]string{"status": "200", "bytes": "0"}),
		parsedRecord(map[string]string{"status": "", "bytes": "-"}),
		parsedRecord(map[string]string{"status": "abc", "bytes": "xyz"}),
	})

	if recs[0].StatusCode == nil || *recs[0].StatusCode != 200 {
		t.Error("valid status lost")
	}
	if recs[0].Bytes == nil || *recs[0].Bytes != 0 {
		t.Error("zero bytes must stay a value, not a null")
	}
	if recs[1].StatusCode != nil {
		t.Error("empty status must be null")
	}
	if recs[1].Bytes != nil {
		t.Error("dash bytes must be null")
	}
	if recs[2].StatusCode != nil || recs[2].Bytes != nil {
		t.Error("non-numeric values must be null")
	}
}

func TestIPValidation(t *testing.T) {
	n := New(time.Now(), zaptest.NewLogger(t))

	recs := n.Normalize([]types.ParsedRecord{
		parsedRecord(map[string]string{"ip": "192.168.1.1"}),
		parsedRecord(map[string]string{"ip": "2001:db8::1"}),
		parsedRecord(map[string]string{"ip": "999.999.999.999"}),
		parsedRecord(map[string]string{"ip": "not-an-ip"}),
	})

	if !recs[0].IPValid || !recs[1].IPValid {
		t.Error("valid addresses not recognized")
	}
	if recs[2].IPValid || recs[3].IPValid {
		t.Error("invalid addresses must not validate")
	}
	// The raw capture is preserved either way.
	if recs[3].ClientIP != "not-an-ip" {
		t.Errorf("raw capture lost, got %q", recs[3].ClientIP)
	}
}

func TestUserAgentEnrichment(t *testing.T) {
	n := New(time.Now(), zaptest.NewLogger(t))

	recs := n.Normalize([]types.ParsedRecord{
		parsedRecord(map[string]string{"user_agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"}),
		parsedRecord(map[string]string{"user_agent": "Googlebot/2.1 (+http://www.google.com/bot.html)"}),
	})

	if recs[0].Browser == "" {
		t.Error("browser not extracted from desktop user agent")
	}
	if !recs[1].IsBot {
		t.Error("crawler user agent not flagged as bot")
	}
}

func TestUnixTimestamps(t *testing.T) {
	n := New(time.Now(), zaptest.NewLogger(t))

	recs := n.Normalize([]types.ParsedRecord{
		parsedRecord(map[string]string{"timestamp": "1761732000"}),
		parsedRecord(map[string]string{"timestamp": "1761732000000"}),
	})

	if !recs[0].HasTimestamp || recs[0].Timestamp.Year() != 2025 {
		t.Errorf("unix seconds not parsed, got %v", recs[0].Timestamp)
	}
	if !recs[1].HasTimestamp || !recs[1].Timestamp.Equal(recs[0].Timestamp) {
		t.Errorf("unix milliseconds mismatch, got %v", recs[1].Timestamp)
	}
}
