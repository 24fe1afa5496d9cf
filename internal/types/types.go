package types

import (
	"time"
)

// Severity is the fixed severity taxonomy for labeled records.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a member of the severity taxonomy.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities for escalation comparisons (info < warning < error < critical).
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// Category is the fixed log-type taxonomy.
type Category string

const (
	CategorySecurity    Category = "security"
	CategoryAccess      Category = "access"
	CategoryApplication Category = "application"
	CategorySystem      Category = "system"
	CategoryUnknown     Category = "unknown"
)

// Valid reports whether c is a member of the category taxonomy.
func (c Category) Valid() bool {
	switch c {
	case CategorySecurity, CategoryAccess, CategoryApplication, CategorySystem, CategoryUnknown:
		return true
	}
	return false
}

// RiskLevel categorizes a 0-100 risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Rank orders risk levels (Low < Medium < High).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return -1
}

// RawLine is one verbatim input line. Line numbers are 1-based and stable.
type RawLine struct {
	Number int
	Text   string
}

// ParsedRecord is the output of applying the selected pattern to one line.
// Fields holds every field the pattern declares; a field the line did not
// supply is present with an empty value so downstream stages and exports
// never drop columns.
type ParsedRecord struct {
	LineNumber int
	Raw        string
	Format     string
	Fields     map[string]string
	ParseOK    bool
}

// Field returns the captured value for name, or "" when absent.
func (p ParsedRecord) Field(name string) string {
	return p.Fields[name]
}

// Record is a ParsedRecord with canonical derived fields written by the
// normalizer. Nullable numerics are pointers so that zero stays a distinct
// valid value.
type Record struct {
	ParsedRecord

	Timestamp    time.Time // zero when HasTimestamp is false
	HasTimestamp bool
	StatusCode   *int
	Bytes        *int64
	ClientIP     string // as captured, possibly non-conformant
	IPValid      bool
	Method       string
	Path         string
	Message      string
	UserAgent    string
	Browser      string
	IsBot        bool
}

// LabeledRecord is a Record annotated with the classification and anomaly
// stages' output.
type LabeledRecord struct {
	Record

	Severity       Severity
	Category       Category
	Signature      string // primary matched attack signature, "" when none
	IsAnomaly      bool
	AnomalyReasons []string
}

// IPProfile aggregates one client address's behavior over a single run.
type IPProfile struct {
	Address      string    `json:"address"`
	RequestCount int       `json:"request_count"`
	ErrorCount   int       `json:"error_count"`
	ErrorRatio   float64   `json:"error_ratio"`
	AttackTypes  []string  `json:"attack_types"` // distinct matched signatures, sorted
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	RiskScore    int       `json:"risk_score"` // 0-100
	RiskLevel    RiskLevel `json:"risk_level"`
}

// TimelineBucket is one hour of the attack-type timeline.
type TimelineBucket struct {
	Hour   time.Time      `json:"hour"`
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

// DashboardSummary is the read-only aggregate over all labeled records of
// one run.
type DashboardSummary struct {
	TotalRecords  int     `json:"total_records"`
	UniqueIPs     int     `json:"unique_ips"`
	ParsedRecords int     `json:"parsed_records"`
	ParseRate     float64 `json:"parse_rate"` // percentage of non-blank lines the pattern matched
	FormatUsed    string  `json:"format_used"`
	Confidence    float64 `json:"confidence"` // fixed per-format parsing confidence

	SeverityCounts     map[Severity]int `json:"severity_counts"`
	CategoryCounts     map[Category]int `json:"category_counts"`
	StatusDistribution map[int]int      `json:"status_distribution"`

	AttackTimeline []TimelineBucket `json:"attack_timeline"`
	StatusHeatmap  [7][24]int       `json:"status_heatmap"` // day-of-week (Sunday=0) x hour-of-day request counts

	AnomalyCount int         `json:"anomaly_count"`
	TopAttackers []IPProfile `json:"top_attackers"`

	OverallRiskLevel RiskLevel `json:"overall_risk_level"`
	RiskScore        int       `json:"risk_score"` // score of the single highest-scoring profile

	VolumeTrend        float64 `json:"volume_trend"`         // smoothed hourly request volume
	NightActivityShare float64 `json:"night_activity_share"` // fraction of traffic between 00:00 and 05:59
	PrivateIPs         int     `json:"private_ips"`
	PublicIPs          int     `json:"public_ips"`

	Recommendations    []string `json:"recommendations"`
	DegradedConfidence bool     `json:"degraded_confidence"` // external classifier was wanted but unavailable
}
