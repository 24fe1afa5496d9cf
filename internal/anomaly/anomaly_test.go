package anomaly

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/vibhavm/logsage/internal/classify"
	"github.com/vibhavm/logsage/internal/types"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	return NewDetector(DefaultConfig(), zaptest.NewLogger(t))
}

func labeled(sev types.Severity, msg string) types.LabeledRecord {
	return types.LabeledRecord{
		Record: types.Record{
			ParsedRecord: types.ParsedRecord{Fields: map[string]string{}, ParseOK: true},
			Message:      msg,
		},
		Severity: sev,
		Category: types.CategoryApplication,
	}
}

func TestSignatureImpliesAnomaly(t *testing.T) {
	d := newTestDetector(t)

	rec := labeled(types.SeverityError, "GET /download?file=../../etc/passwd")
	rec.Signature = classify.SigPathTraversal

	out := d.Detect([]types.LabeledRecord{rec})
	if !out[0].IsAnomaly {
		t.Fatal("signature match must flag the record anomalous")
	}
	if out[0].AnomalyReasons[0] != classify.SigPathTraversal {
		t.Errorf("expected the signature name as reason, got %q", out[0].AnomalyReasons[0])
	}
}

func TestErrorCascade(t *testing.T) {
	d := newTestDetector(t)

	recs := []types.LabeledRecord{
		labeled(types.SeverityInfo, "ok"),
		labeled(types.SeverityError, "db timeout"),
		labeled(types.SeverityError, "db timeout"),
		labeled(types.SeverityCritical, "db gone"),
		labeled(types.SeverityInfo, "recovered"),
	}
	out := d.Detect(recs)

	for _, i := range []int{1, 2, 3} {
		if !hasReason(out[i], ReasonErrorCascade) {
			t.Errorf("record %d missing cascade reason", i)
		}
	}
	for _, i := range []int{0, 4} {
		if hasReason(out[i], ReasonErrorCascade) {
			t.Errorf("record %d wrongly in cascade", i)
		}
	}
}

func TestTwoErrorsAreNotACascade(t *testing.T) {
	d := newTestDetector(t)

	recs := []types.LabeledRecord{
		labeled(types.SeverityError, "one"),
		labeled(types.SeverityError, "two"),
		labeled(types.SeverityInfo, "ok"),
	}
	out := d.Detect(recs)

	for i := range out {
		if hasReason(out[i], ReasonErrorCascade) {
			t.Errorf("record %d wrongly flagged, run is below length three", i)
		}
	}
}

func TestDetectLeavesInputUntouched(t *testing.T) {
	d := newTestDetector(t)

	rec := labeled(types.SeverityError, "union select * from users")
	rec.Signature = classify.SigSQLInjection
	in := []types.LabeledRecord{rec}

	out := d.Detect(in)

	if !out[0].IsAnomaly || len(out[0].AnomalyReasons) == 0 {
		t.Fatal("signature record not flagged in the returned slice")
	}
	if in[0].IsAnomaly || in[0].AnomalyReasons != nil {
		t.Fatalf("input record modified: anomaly=%v reasons=%v",
			in[0].IsAnomaly, in[0].AnomalyReasons)
	}
}

func TestHighVolumeSpike(t *testing.T) {
	d := newTestDetector(t)
	base := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	// Twenty quiet hours of five requests each, then one hour with forty.
	// Mean is ~6.7 and sample stddev ~7.6, so only the loud bucket clears
	// mean plus three sigma.
	var recs []types.LabeledRecord
	for h := 0; h < 20; h++ {
		for i := 0; i < 5; i++ {
			rec := labeled(types.SeverityInfo, "steady traffic")
			rec.Timestamp = base.Add(time.Duration(h)*time.Hour + time.Duration(i)*time.Minute)
			rec.HasTimestamp = true
			recs = append(recs, rec)
		}
	}
	loudStart := len(recs)
	for i := 0; i < 40; i++ {
		rec := labeled(types.SeverityInfo, "flood traffic")
		rec.Timestamp = base.Add(20*time.Hour + time.Duration(i)*time.Minute)
		rec.HasTimestamp = true
		recs = append(recs, rec)
	}

	out := d.Detect(recs)

	for i := loudStart; i < len(out); i++ {
		if !hasReason(out[i], ReasonHighVolume) {
			t.Fatalf("record %d in the loud bucket missing the volume reason", i)
		}
	}
	for i := 0; i < loudStart; i++ {
		if hasReason(out[i], ReasonHighVolume) {
			t.Fatalf("record %d in a quiet bucket wrongly flagged", i)
		}
	}
}

func TestErrorRateSpike(t *testing.T) {
	d := newTestDetector(t)
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	var recs []types.LabeledRecord
	for i := 0; i < 10; i++ {
		rec := labeled(types.SeverityWarning, "request")
		status := 200
		if i < 4 { // 40% errors, above the 25% threshold
			status = 500
		}
		rec.StatusCode = &status
		rec.Timestamp = base.Add(time.Duration(i) * time.Minute)
		rec.HasTimestamp = true
		recs = append(recs, rec)
	}
	out := d.Detect(recs)

	if !hasReason(out[0], ReasonErrorRateSpike) {
		t.Error("bucket above error-rate threshold not flagged")
	}
}

func TestSparseBucketsExempt(t *testing.T) {
	d := newTestDetector(t)
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	// Three records in the bucket, all errors. Below MinBucketCount, so no
	// statistical flag despite the 100% error rate.
	var recs []types.LabeledRecord
	for i := 0; i < 3; i++ {
		rec := labeled(types.SeverityError, "boom")
		status := 500
		rec.StatusCode = &status
		rec.Timestamp = base.Add(time.Duration(i) * time.Minute)
		rec.HasTimestamp = true
		recs = append(recs, rec)
	}
	out := d.Detect(recs)

	for i := range out {
		if hasReason(out[i], ReasonErrorRateSpike) {
			t.Errorf("record %d flagged from a sparse bucket", i)
		}
	}
}

func TestRareMessagePattern(t *testing.T) {
	d := newTestDetector(t)

	var recs []types.LabeledRecord
	for i := 0; i < 40; i++ {
		recs = append(recs, labeled(types.SeverityInfo, fmt.Sprintf("request %d completed in %d ms", i, i*3)))
	}
	recs = append(recs, labeled(types.SeverityWarning, "unexpected segfault in worker thread"))
	out := d.Detect(recs)

	if !hasReason(out[len(out)-1], ReasonRareMessage) {
		t.Error("one-off message shape not flagged as rare")
	}
	if hasReason(out[0], ReasonRareMessage) {
		t.Error("common message shape wrongly flagged")
	}
}

func TestRareMessagesExemptSmallCorpus(t *testing.T) {
	d := newTestDetector(t)

	recs := []types.LabeledRecord{
		labeled(types.SeverityInfo, "alpha event"),
		labeled(types.SeverityInfo, "beta event occurred"),
		labeled(types.SeverityInfo, "gamma happened here"),
	}
	out := d.Detect(recs)

	for i := range out {
		if hasReason(out[i], ReasonRareMessage) {
			t.Errorf("record %d flagged in a corpus below the minimum size", i)
		}
	}
}

func TestEndpointScanning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScanPathThreshold = 10
	d := NewDetector(cfg, zaptest.NewLogger(t))

	var recs []types.LabeledRecord
	for i := 0; i < 12; i++ {
		rec := labeled(types.SeverityInfo, "probe")
		rec.ClientIP = "203.0.113.9"
		rec.IPValid = true
		rec.Path = fmt.Sprintf("/admin/page-%d", i)
		recs = append(recs, rec)
	}
	normal := labeled(types.SeverityInfo, "home")
	normal.ClientIP = "192.0.2.1"
	normal.IPValid = true
	normal.Path = "/"
	recs = append(recs, normal)

	out := d.Detect(recs)
	if !hasReason(out[0], ReasonScanning) {
		t.Error("address probing many distinct paths not flagged")
	}
	if hasReason(out[len(out)-1], ReasonScanning) {
		t.Error("single-path address wrongly flagged as scanner")
	}
}

func TestNoReasonsMeansNoAnomaly(t *testing.T) {
	d := newTestDetector(t)

	out := d.Detect([]types.LabeledRecord{labeled(types.SeverityInfo, "all quiet")})
	if out[0].IsAnomaly {
		t.Error("record with no reasons must not be anomalous")
	}
}

func hasReason(rec types.LabeledRecord, reason string) bool {
	for _, r := range rec.AnomalyReasons {
		if r == reason {
			return true
		}
	}
	return false
}
