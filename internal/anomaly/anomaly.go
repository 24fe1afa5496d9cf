package anomaly

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/vibhavm/logsage/internal/types"
)

// Reason strings attached to anomalous records. Signature-based flags reuse
// the signature name itself.
const (
	ReasonHighVolume     = "high request volume"
	ReasonErrorRateSpike = "error rate spike"
	ReasonErrorCascade   = "error cascade"
	ReasonRareMessage    = "rare message pattern"
	ReasonScanning       = "endpoint scanning"
)

// Config holds the statistical detection thresholds.
type Config struct {
	Bucket             time.Duration `yaml:"bucket"`
	ZScore             float64       `yaml:"z_score"`
	ErrorRateThreshold float64       `yaml:"error_rate_threshold"`
	MinBucketCount     int           `yaml:"min_bucket_count"`
	RareMinRecords     int           `yaml:"rare_min_records"`
	ScanPathThreshold  int           `yaml:"scan_path_threshold"`
}

// DefaultConfig returns the documented detection defaults.
func DefaultConfig() Config {
	return Config{
		Bucket:             time.Hour,
		ZScore:             3.0,
		ErrorRateThreshold: 0.25,
		MinBucketCount:     5,
		RareMinRecords:     20,
		ScanPathThreshold:  50,
	}
}

// Detector unions signature-based and statistical anomaly flags onto the
// labeled record set. Reasons accumulate in detection order; a record with
// no reasons is not anomalous.
type Detector struct {
	cfg    Config
	logger *zap.Logger
}

// NewDetector creates a Detector.
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	def := DefaultConfig()
	if cfg.Bucket <= 0 {
		cfg.Bucket = def.Bucket
	}
	if cfg.ZScore <= 0 {
		cfg.ZScore = def.ZScore
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = def.ErrorRateThreshold
	}
	if cfg.MinBucketCount <= 0 {
		cfg.MinBucketCount = def.MinBucketCount
	}
	if cfg.ScanPathThreshold <= 0 {
		cfg.ScanPathThreshold = def.ScanPathThreshold
	}
	return &Detector{cfg: cfg, logger: logger}
}

// Detect returns a new slice with anomaly annotations filled in. The input
// records are not modified. Each detection class appends its own reason, so
// one record can carry several.
func (d *Detector) Detect(input []types.LabeledRecord) []types.LabeledRecord {
	records := make([]types.LabeledRecord, len(input))
	copy(records, input)

	for i := range records {
		if records[i].Signature != "" {
			records[i].AnomalyReasons = append(records[i].AnomalyReasons, records[i].Signature)
		}
	}

	d.flagStatistical(records)
	d.flagErrorCascades(records)
	d.flagRareMessages(records)
	d.flagScanners(records)

	flagged := 0
	for i := range records {
		records[i].IsAnomaly = len(records[i].AnomalyReasons) > 0
		if records[i].IsAnomaly {
			flagged++
		}
	}
	d.logger.Debug("anomaly detection complete",
		zap.Int("records", len(records)),
		zap.Int("flagged", flagged))
	return records
}

// flagStatistical computes per-bucket volume and error-rate spikes. Sparse
// buckets are exempt to avoid false positives on thin data.
func (d *Detector) flagStatistical(records []types.LabeledRecord) {
	type bucketStats struct {
		total  int
		errors int
	}
	buckets := make(map[time.Time]*bucketStats)
	for _, rec := range records {
		if !rec.HasTimestamp {
			continue
		}
		key := rec.Timestamp.Truncate(d.cfg.Bucket)
		b := buckets[key]
		if b == nil {
			b = &bucketStats{}
			buckets[key] = b
		}
		b.total++
		if rec.StatusCode != nil && *rec.StatusCode >= 400 {
			b.errors++
		}
	}
	if len(buckets) == 0 {
		return
	}

	volumes := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		volumes = append(volumes, float64(b.total))
	}
	mean, _ := stats.Mean(volumes)
	stddev := 0.0
	if len(volumes) > 1 {
		stddev, _ = stats.StandardDeviationSample(volumes)
	}

	spiked := make(map[time.Time]bool)
	errorSpiked := make(map[time.Time]bool)
	for key, b := range buckets {
		if b.total < d.cfg.MinBucketCount {
			continue
		}
		if stddev > 0 && float64(b.total) > mean+d.cfg.ZScore*stddev {
			spiked[key] = true
		}
		if float64(b.errors)/float64(b.total) > d.cfg.ErrorRateThreshold {
			errorSpiked[key] = true
		}
	}
	if len(spiked) == 0 && len(errorSpiked) == 0 {
		return
	}

	for i := range records {
		if !records[i].HasTimestamp {
			continue
		}
		key := records[i].Timestamp.Truncate(d.cfg.Bucket)
		if spiked[key] {
			records[i].AnomalyReasons = append(records[i].AnomalyReasons, ReasonHighVolume)
		}
		if errorSpiked[key] {
			records[i].AnomalyReasons = append(records[i].AnomalyReasons, ReasonErrorRateSpike)
		}
	}
}

// flagErrorCascades marks every member of a run of three or more
// consecutive error-or-worse records.
func (d *Detector) flagErrorCascades(records []types.LabeledRecord) {
	const runLength = 3
	inCascade := make([]bool, len(records))
	run := 0
	for i := range records {
		if records[i].Severity.Rank() >= types.SeverityError.Rank() {
			run++
			if run >= runLength {
				for j := i - run + 1; j <= i; j++ {
					inCascade[j] = true
				}
			}
		} else {
			run = 0
		}
	}
	for i := range records {
		if inCascade[i] {
			records[i].AnomalyReasons = append(records[i].AnomalyReasons, ReasonErrorCascade)
		}
	}
}

var (
	reNumbers = regexp.MustCompile(`\d+`)
	reUUID    = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	reIP      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	reEmail   = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	rePath    = regexp.MustCompile(`/[\w/.-]+`)
)

// messageSignature collapses the variable parts of a message so that
// structurally identical lines hash alike.
func messageSignature(msg string) string {
	if msg == "" {
		return "empty"
	}
	cleaned := reUUID.ReplaceAllString(msg, "UUID")
	cleaned = reIP.ReplaceAllString(cleaned, "IP")
	cleaned = reEmail.ReplaceAllString(cleaned, "EMAIL")
	cleaned = rePath.ReplaceAllString(cleaned, "/PATH")
	cleaned = reNumbers.ReplaceAllString(cleaned, "NUM")
	sum := md5.Sum([]byte(cleaned))
	return fmt.Sprintf("%x", sum[:4])
}

// flagRareMessages marks records whose message shape sits in the bottom
// tail of the frequency distribution. Small corpora are exempt.
func (d *Detector) flagRareMessages(records []types.LabeledRecord) {
	if len(records) < d.cfg.RareMinRecords {
		return
	}
	sigs := make([]string, len(records))
	freq := make(map[string]int)
	for i := range records {
		sigs[i] = messageSignature(records[i].Message)
		freq[sigs[i]]++
	}
	if len(freq) < 2 {
		return
	}
	counts := make([]float64, 0, len(freq))
	uniform := true
	for _, c := range freq {
		counts = append(counts, float64(c))
		if c != freq[sigs[0]] {
			uniform = false
		}
	}
	// When every shape occurs equally often nothing is rare.
	if uniform {
		return
	}
	threshold, err := stats.Percentile(counts, 5)
	if err != nil || threshold < 1 {
		threshold = 1
	}
	for i := range records {
		if float64(freq[sigs[i]]) <= threshold {
			records[i].AnomalyReasons = append(records[i].AnomalyReasons, ReasonRareMessage)
		}
	}
}

// flagScanners marks every record from an address that touched an unusual
// number of distinct paths. Non-conformant addresses are excluded.
func (d *Detector) flagScanners(records []types.LabeledRecord) {
	paths := make(map[string]map[string]bool)
	for _, rec := range records {
		if !rec.IPValid || rec.Path == "" {
			continue
		}
		m := paths[rec.ClientIP]
		if m == nil {
			m = make(map[string]bool)
			paths[rec.ClientIP] = m
		}
		m[rec.Path] = true
	}
	scanners := make(map[string]bool)
	for ip, m := range paths {
		if len(m) > d.cfg.ScanPathThreshold {
			scanners[ip] = true
		}
	}
	if len(scanners) == 0 {
		return
	}
	for i := range records {
		if records[i].IPValid && scanners[records[i].ClientIP] {
			records[i].AnomalyReasons = append(records[i].AnomalyReasons, ReasonScanning)
		}
	}
}
