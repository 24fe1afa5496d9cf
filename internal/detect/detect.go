package detect

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/vibhavm/logsage/internal/aiclient"
	"github.com/vibhavm/logsage/internal/pattern"
	"github.com/vibhavm/logsage/internal/types"
)

// Config holds the detection policy knobs.
type Config struct {
	SampleSize    int     `yaml:"sample_size"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// DefaultConfig returns the documented detection defaults.
func DefaultConfig() Config {
	return Config{SampleSize: 20, MinConfidence: 0.5}
}

// Result is the outcome of format detection.
type Result struct {
	Pattern   *pattern.Pattern
	MatchRate float64 // best sample match rate, 0 when the AI or fallback chose
	UsedAI    bool
	Degraded  bool // AI was needed but unavailable; generic fallback in effect
}

// Detector selects the best-fitting registry pattern for a body of text.
// Detection is a pure function of the sample: the same lines always yield
// the same format.
type Detector struct {
	registry   *pattern.Registry
	classifier aiclient.Classifier
	cfg        Config
	logger     *zap.Logger
}

// NewDetector creates a Detector.
func NewDetector(registry *pattern.Registry, classifier aiclient.Classifier, cfg Config, logger *zap.Logger) *Detector {
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultConfig().SampleSize
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultConfig().MinConfidence
	}
	return &Detector{registry: registry, classifier: classifier, cfg: cfg, logger: logger}
}

// Detect scores each registered pattern against a sample of the input and
// picks the best one. When no pattern clears the confidence threshold it
// consults the external classifier, and when that is unavailable it falls
// back to the generic pattern. Detect never fails.
func (d *Detector) Detect(ctx context.Context, lines []types.RawLine) Result {
	sample := d.sample(lines)
	if len(sample) == 0 {
		return Result{Pattern: d.registry.Fallback()}
	}

	var best *pattern.Pattern
	var bestRate float64
	for _, p := range d.registry.Patterns() {
		// The generic pattern matches anything; scoring it would mask
		// every genuinely unknown format.
		if p.Name == pattern.Generic {
			continue
		}
		matched := 0
		for _, line := range sample {
			if p.Matches(line) {
				matched++
			}
		}
		rate := float64(matched) / float64(len(sample))
		if rate > bestRate {
			best, bestRate = p, rate
		}
	}

	if best != nil && bestRate >= d.cfg.MinConfidence {
		d.logger.Debug("format detected",
			zap.String("format", best.Name),
			zap.Float64("match_rate", bestRate))
		return Result{Pattern: best, MatchRate: bestRate}
	}

	if p, ok := d.consultAI(ctx, sample); ok {
		return Result{Pattern: p, UsedAI: true}
	}
	d.logger.Info("no confident format match, using generic fallback",
		zap.Float64("best_rate", bestRate))
	return Result{Pattern: d.registry.Fallback(), Degraded: true}
}

func (d *Detector) sample(lines []types.RawLine) []string {
	sample := make([]string, 0, d.cfg.SampleSize)
	for _, l := range lines {
		if strings.TrimSpace(l.Text) == "" {
			continue
		}
		sample = append(sample, l.Text)
		if len(sample) == d.cfg.SampleSize {
			break
		}
	}
	return sample
}

func (d *Detector) consultAI(ctx context.Context, sample []string) (*pattern.Pattern, bool) {
	answer, err := d.classifier.Classify(ctx, aiclient.TaskFormatDetection, strings.Join(sample, "\n"))
	if err != nil {
		return nil, false
	}
	// Any answer outside the registry is treated the same as a failure.
	answer = strings.ToLower(answer)
	for _, name := range d.registry.Names() {
		if strings.Contains(answer, name) {
			p, _ := d.registry.Lookup(name)
			d.logger.Info("format chosen by external classifier", zap.String("format", name))
			return p, true
		}
	}
	return nil, false
}
