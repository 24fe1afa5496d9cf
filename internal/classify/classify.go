package classify

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vibhavm/logsage/internal/aiclient"
	"github.com/vibhavm/logsage/internal/types"
)

// Attack signature names. These double as anomaly reasons.
const (
	SigSQLInjection     = "sql injection"
	SigXSS              = "xss"
	SigPathTraversal    = "path traversal"
	SigCommandInjection = "command injection"
	SigBruteForce       = "brute force"
)

// KnownSignatureCount is the size of the signature taxonomy, used as the
// denominator of the risk scorer's attack-diversity term.
const KnownSignatureCount = 5

// signature is one attack class: name plus the patterns that indicate it.
// The slice below is priority order; the first class to match a record is
// its primary signature.
type signature struct {
	name     string
	patterns []*regexp.Regexp
}

var signatures = []signature{
	{SigSQLInjection, compileAll(
		`(?i)(union\s+select|drop\s+table|insert\s+into|delete\s+from)`,
		`(?i)('|"|`+"`"+`)\s*(or|and)\s*('?\d+'?\s*=\s*'?\d+'?)`,
		`(?i)(select.+from|where.+=.*--)`,
	)},
	{SigXSS, compileAll(
		`(?i)<script[^>]*>`,
		`(?i)javascript:`,
		`(?i)on(load|error|click|mouseover)\s*=`,
	)},
	{SigPathTraversal, compileAll(
		`\.\./`,
		`\.\.\\`,
		`(?i)%2e%2e%2f`,
		`(?i)%2e%2e\\`,
	)},
	{SigCommandInjection, compileAll(
		`(?i)(;|\||&&)\s*(cat|ls|pwd|whoami|id|uname)\b`,
		`(?i)\b(system|exec|eval|popen)\s*\(`,
		`\$\([^)]*\)`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Config holds the labeling policy knobs.
type Config struct {
	BruteForceWindow    time.Duration `yaml:"brute_force_window"`
	BruteForceThreshold int           `yaml:"brute_force_threshold"`
	MaxAIConsults       int           `yaml:"max_ai_consults"`
}

// DefaultConfig returns the documented labeling defaults: five
// authentication failures inside sixty seconds flag brute force.
func DefaultConfig() Config {
	return Config{
		BruteForceWindow:    60 * time.Second,
		BruteForceThreshold: 5,
		MaxAIConsults:       50,
	}
}

// Labeler assigns severity, category and attack signatures to records.
type Labeler struct {
	cfg        Config
	classifier aiclient.Classifier
	logger     *zap.Logger
}

// NewLabeler creates a Labeler.
func NewLabeler(cfg Config, classifier aiclient.Classifier, logger *zap.Logger) *Labeler {
	def := DefaultConfig()
	if cfg.BruteForceWindow <= 0 {
		cfg.BruteForceWindow = def.BruteForceWindow
	}
	if cfg.BruteForceThreshold <= 0 {
		cfg.BruteForceThreshold = def.BruteForceThreshold
	}
	return &Labeler{cfg: cfg, classifier: classifier, logger: logger}
}

// Label classifies every record. The returned degraded flag is true when
// the external classifier was wanted for an ambiguous record but failed;
// local heuristics always stand in, so labeling itself never fails.
func (l *Labeler) Label(ctx context.Context, records []types.Record) ([]types.LabeledRecord, bool) {
	bruteForced := l.bruteForceHits(records)

	out := make([]types.LabeledRecord, 0, len(records))
	degraded := false
	consults := 0
	for i, rec := range records {
		matched := matchSignatures(rec)
		if bruteForced[i] {
			matched = append(matched, SigBruteForce)
		}

		lr := types.LabeledRecord{Record: rec}
		if len(matched) > 0 {
			lr.Signature = matched[0]
		}
		lr.Severity = deriveSeverity(rec, matched)
		lr.Category = deriveCategory(rec, lr.Signature)

		if l.ambiguous(lr) && (l.cfg.MaxAIConsults <= 0 || consults < l.cfg.MaxAIConsults) {
			consults++
			if ok := l.consultAI(ctx, &lr); !ok {
				degraded = true
			}
		}
		out = append(out, lr)
	}
	return out, degraded
}

// matchSignatures evaluates the content signature classes in priority
// order. Every matching class is returned; the caller keeps the first as
// the primary signature and escalates severity when more than one hits.
func matchSignatures(rec types.Record) []string {
	content := strings.ToLower(rec.Message + " " + rec.Path + " " + rec.UserAgent)
	var matched []string
	for _, sig := range signatures {
		for _, re := range sig.patterns {
			if re.MatchString(content) {
				matched = append(matched, sig.name)
				break
			}
		}
	}
	return matched
}

// bruteForceHits marks records that complete a run of authentication
// failures from one address inside the rolling window. Addresses that fail
// IP validation are excluded, as are records without a usable timestamp.
func (l *Labeler) bruteForceHits(records []types.Record) []bool {
	hits := make([]bool, len(records))
	windows := make(map[string][]time.Time)
	for i, rec := range records {
		if !isAuthFailure(rec) || !rec.IPValid || !rec.HasTimestamp {
			continue
		}
		w := windows[rec.ClientIP]
		w = append(w, rec.Timestamp)
		cutoff := rec.Timestamp.Add(-l.cfg.BruteForceWindow)
		for len(w) > 0 && w[0].Before(cutoff) {
			w = w[1:]
		}
		windows[rec.ClientIP] = w
		if len(w) >= l.cfg.BruteForceThreshold {
			hits[i] = true
		}
	}
	return hits
}

func isAuthFailure(rec types.Record) bool {
	return rec.StatusCode != nil && (*rec.StatusCode == 401 || *rec.StatusCode == 403)
}

func deriveSeverity(rec types.Record, matched []string) types.Severity {
	if len(matched) > 1 {
		return types.SeverityCritical
	}
	if len(matched) == 1 {
		return types.SeverityError
	}
	if rec.StatusCode != nil {
		switch {
		case *rec.StatusCode >= 500:
			return types.SeverityError
		case *rec.StatusCode >= 400:
			return types.SeverityWarning
		}
	}
	return severityFromLevel(rec)
}

func severityFromLevel(rec types.Record) types.Severity {
	level := strings.ToUpper(rec.Field("level"))
	if level == "" {
		level = levelFromMessage(rec.Message)
	}
	switch level {
	case "FATAL", "CRITICAL", "CRIT", "PANIC":
		return types.SeverityCritical
	case "ERROR", "ERR":
		return types.SeverityError
	case "WARN", "WARNING":
		return types.SeverityWarning
	default:
		return types.SeverityInfo
	}
}

func levelFromMessage(msg string) string {
	upper := strings.ToUpper(msg)
	for _, lvl := range []string{"FATAL", "CRITICAL", "ERROR", "WARNING", "WARN"} {
		if strings.Contains(upper, lvl) {
			return lvl
		}
	}
	return ""
}

var (
	stackMarkers  = []string{"exception", "traceback", "stack trace", "panic:", "stacktrace", "caused by:"}
	systemMarkers = []string{"kernel", "systemd", "sshd", "cron", "daemon", "init:"}
)

// deriveCategory walks a fixed decision table: attack signature, then
// HTTP-shaped records, then stack-trace markers, then kernel/daemon
// markers.
func deriveCategory(rec types.Record, sig string) types.Category {
	if sig != "" {
		return types.CategorySecurity
	}
	if rec.StatusCode != nil || rec.Method != "" {
		return types.CategoryAccess
	}
	lower := strings.ToLower(rec.Message)
	for _, m := range stackMarkers {
		if strings.Contains(lower, m) {
			return types.CategoryApplication
		}
	}
	for _, m := range systemMarkers {
		if strings.Contains(lower, m) {
			return types.CategorySystem
		}
	}
	if rec.Field("process") != "" || rec.Field("host") != "" {
		return types.CategorySystem
	}
	if rec.Field("logger") != "" {
		return types.CategoryApplication
	}
	return types.CategoryUnknown
}

// ambiguous reports whether local heuristics produced nothing better than
// the defaults, making an AI consult worthwhile.
func (l *Labeler) ambiguous(lr types.LabeledRecord) bool {
	return lr.Signature == "" &&
		lr.Severity == types.SeverityInfo &&
		lr.Category == types.CategoryUnknown &&
		strings.TrimSpace(lr.Message) != ""
}

// consultAI asks the external classifier for a "severity/category" pair.
// Answers outside the fixed taxonomies are discarded so the collaborator
// can never inject an invalid label.
func (l *Labeler) consultAI(ctx context.Context, lr *types.LabeledRecord) bool {
	answer, err := l.classifier.Classify(ctx, aiclient.TaskLabeling, lr.Message)
	if err != nil {
		return false
	}
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(answer)), "/", 2)
	if len(parts) != 2 {
		return true // answered, just unusable; local default stands
	}
	if sev := types.Severity(strings.TrimSpace(parts[0])); sev.Valid() {
		lr.Severity = sev
	}
	if cat := types.Category(strings.TrimSpace(parts[1])); cat.Valid() {
		lr.Category = cat
	}
	return true
}
