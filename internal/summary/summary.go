package summary

import (
	"net/netip"
	"sort"
	"time"

	"github.com/VividCortex/ewma"
	"go.uber.org/zap"

	"github.com/vibhavm/logsage/internal/classify"
	"github.com/vibhavm/logsage/internal/types"
)

// Meta carries run facts the aggregator reports but does not compute.
type Meta struct {
	Format     string
	Confidence float64
	ParseRate  float64
	Degraded   bool
}

// Aggregator rolls one run's labeled records and profiles into the
// DashboardSummary in a single scan.
type Aggregator struct {
	bucket time.Duration
	logger *zap.Logger
}

// NewAggregator creates an Aggregator. The bucket duration matches the
// anomaly detector's so the timeline lines up with its statistics.
func NewAggregator(bucket time.Duration, logger *zap.Logger) *Aggregator {
	if bucket <= 0 {
		bucket = time.Hour
	}
	return &Aggregator{bucket: bucket, logger: logger}
}

// Build produces the summary. Zero records yields a well-formed summary
// with every count at zero, never an error.
func (a *Aggregator) Build(records []types.LabeledRecord, attackers []types.IPProfile, meta Meta) types.DashboardSummary {
	s := types.DashboardSummary{
		TotalRecords:       len(records),
		FormatUsed:         meta.Format,
		Confidence:         meta.Confidence,
		ParseRate:          meta.ParseRate,
		DegradedConfidence: meta.Degraded,
		SeverityCounts:     make(map[types.Severity]int),
		CategoryCounts:     make(map[types.Category]int),
		StatusDistribution: make(map[int]int),
		TopAttackers:       attackers,
		OverallRiskLevel:   types.RiskLow,
	}

	uniqueIPs := make(map[string]bool)
	timeline := make(map[time.Time]*types.TimelineBucket)
	volumes := make(map[time.Time]int)
	bruteForce := false
	attackCount := 0
	errorCount := 0
	statusCount := 0
	timestamped := 0
	night := 0

	for _, rec := range records {
		if rec.ParseOK {
			s.ParsedRecords++
		}
		s.SeverityCounts[rec.Severity]++
		s.CategoryCounts[rec.Category]++
		if rec.IsAnomaly {
			s.AnomalyCount++
		}
		if rec.StatusCode != nil {
			s.StatusDistribution[*rec.StatusCode]++
			statusCount++
			if *rec.StatusCode >= 400 {
				errorCount++
			}
		}
		if rec.IPValid {
			uniqueIPs[rec.ClientIP] = true
		}
		if rec.Signature != "" {
			attackCount++
			if rec.Signature == classify.SigBruteForce {
				bruteForce = true
			}
		}
		if rec.HasTimestamp {
			timestamped++
			s.StatusHeatmap[int(rec.Timestamp.Weekday())][rec.Timestamp.Hour()]++
			if rec.Timestamp.Hour() < 6 {
				night++
			}
			hour := rec.Timestamp.Truncate(a.bucket)
			volumes[hour]++
			if rec.Signature != "" {
				tb := timeline[hour]
				if tb == nil {
					tb = &types.TimelineBucket{Hour: hour, ByType: make(map[string]int)}
					timeline[hour] = tb
				}
				tb.Total++
				tb.ByType[rec.Signature]++
			}
		}
	}

	s.UniqueIPs = len(uniqueIPs)
	s.AttackTimeline = sortTimeline(timeline)
	s.VolumeTrend = smoothVolumes(volumes)
	if timestamped > 0 {
		s.NightActivityShare = float64(night) / float64(timestamped)
	}
	s.PrivateIPs, s.PublicIPs = splitAddressSpace(uniqueIPs)

	if len(attackers) > 0 {
		// The headline score is the single worst attacker, not an
		// average: one severe actor must dominate.
		s.RiskScore = attackers[0].RiskScore
		for _, p := range attackers {
			if p.RiskLevel.Rank() > s.OverallRiskLevel.Rank() {
				s.OverallRiskLevel = p.RiskLevel
			}
		}
	}

	s.Recommendations = a.recommend(s, recommendationInput{
		bruteForce:  bruteForce,
		attackCount: attackCount,
		errorCount:  errorCount,
		statusCount: statusCount,
	})
	return s
}

type recommendationInput struct {
	bruteForce  bool
	attackCount int
	errorCount  int
	statusCount int
}

// recommend walks a fixed rule table in a fixed order.
func (a *Aggregator) recommend(s types.DashboardSummary, in recommendationInput) []string {
	var recs []string
	if in.bruteForce {
		recs = append(recs, "Rotate credentials and enable account lockout; brute-force activity detected")
	}
	if in.attackCount > 0 {
		recs = append(recs, "Review firewall and WAF rules; attack signatures were matched in the traffic")
	}
	if in.statusCount > 0 && float64(in.errorCount)/float64(in.statusCount) > 0.2 {
		recs = append(recs, "Investigate the elevated error rate for application or probing issues")
	}
	if s.TotalRecords > 0 && float64(s.AnomalyCount)/float64(s.TotalRecords) > 0.1 {
		recs = append(recs, "High anomaly rate; inspect the flagged records before trusting this traffic")
	}
	if s.Confidence > 0 && s.Confidence < 0.7 {
		recs = append(recs, "Low parsing confidence; standardize the log format for better coverage")
	}
	if s.TotalRecords > 0 && s.UniqueIPs > 0 && float64(s.UniqueIPs) > 0.8*float64(s.TotalRecords) {
		recs = append(recs, "Unusually many distinct client addresses; watch for distributed attacks")
	}
	if s.NightActivityShare > 0.3 {
		recs = append(recs, "Large share of traffic during night hours; review off-hours activity")
	}
	if s.DegradedConfidence {
		recs = append(recs, "External classifier unavailable; results are from local heuristics only")
	}
	return recs
}

func sortTimeline(buckets map[time.Time]*types.TimelineBucket) []types.TimelineBucket {
	out := make([]types.TimelineBucket, 0, len(buckets))
	for _, tb := range buckets {
		out = append(out, *tb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out
}

// smoothVolumes runs the chronological hourly volumes through a moving
// average; short runs that never warm the average up fall back to the
// plain mean.
func smoothVolumes(volumes map[time.Time]int) float64 {
	if len(volumes) == 0 {
		return 0
	}
	hours := make([]time.Time, 0, len(volumes))
	for h := range volumes {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	avg := ewma.NewMovingAverage()
	sum := 0.0
	for _, h := range hours {
		avg.Add(float64(volumes[h]))
		sum += float64(volumes[h])
	}
	if v := avg.Value(); v > 0 {
		return v
	}
	return sum / float64(len(volumes))
}

func splitAddressSpace(ips map[string]bool) (private, public int) {
	for ip := range ips {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			continue
		}
		if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
			private++
		} else {
			public++
		}
	}
	return private, public
}
