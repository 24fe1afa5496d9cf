package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vibhavm/logsage/internal/aiclient"
	"github.com/vibhavm/logsage/internal/anomaly"
	"github.com/vibhavm/logsage/internal/classify"
	"github.com/vibhavm/logsage/internal/detect"
	"github.com/vibhavm/logsage/internal/normalize"
	"github.com/vibhavm/logsage/internal/parser"
	"github.com/vibhavm/logsage/internal/pattern"
	"github.com/vibhavm/logsage/internal/risk"
	"github.com/vibhavm/logsage/internal/summary"
	"github.com/vibhavm/logsage/internal/types"
)

// Config bundles every stage's policy constants. All values are tunable;
// the zero value of any section falls back to that stage's documented
// default.
type Config struct {
	Detect   detect.Config   `yaml:"detect"`
	Classify classify.Config `yaml:"classify"`
	Anomaly  anomaly.Config  `yaml:"anomaly"`
	Risk     risk.Config     `yaml:"risk"`
}

// DefaultConfig returns the documented defaults for every stage.
func DefaultConfig() Config {
	return Config{
		Detect:   detect.DefaultConfig(),
		Classify: classify.DefaultConfig(),
		Anomaly:  anomaly.DefaultConfig(),
		Risk:     risk.DefaultConfig(),
	}
}

// Result is one run's complete output.
type Result struct {
	Format    string
	MatchRate float64
	Records   []types.LabeledRecord
	Profiles  []types.IPProfile
	Summary   types.DashboardSummary
}

// Pipeline runs the full analysis sequence: detect, parse, normalize,
// label, flag anomalies, score and summarize. A Pipeline is safe for
// concurrent use; every run builds its state from scratch.
type Pipeline struct {
	cfg        Config
	registry   *pattern.Registry
	detector   *detect.Detector
	parser     *parser.Parser
	labeler    *classify.Labeler
	anomalies  *anomaly.Detector
	scorer     *risk.Scorer
	aggregator *summary.Aggregator
	logger     *zap.Logger
}

// New wires a pipeline. The classifier is the only external collaborator;
// pass aiclient.Disabled{} to run fully offline.
func New(cfg Config, classifier aiclient.Classifier, logger *zap.Logger) *Pipeline {
	registry := pattern.NewRegistry()
	return &Pipeline{
		cfg:        cfg,
		registry:   registry,
		detector:   detect.NewDetector(registry, classifier, cfg.Detect, logger),
		parser:     parser.New(logger),
		labeler:    classify.NewLabeler(cfg.Classify, classifier, logger),
		anomalies:  anomaly.NewDetector(cfg.Anomaly, logger),
		scorer:     risk.NewScorer(cfg.Risk, logger),
		aggregator: summary.NewAggregator(cfg.Anomaly.Bucket, logger),
		logger:     logger,
	}
}

// Run processes one artifact end to end. now anchors relative-year
// timestamp inference so that a fixed input and a fixed now always yield
// an identical result. Collaborator failures degrade; Run itself only
// reflects them in the summary.
func (p *Pipeline) Run(ctx context.Context, lines []types.RawLine, now time.Time) Result {
	detection := p.detector.Detect(ctx, lines)
	p.logger.Info("format selected",
		zap.String("format", detection.Pattern.Name),
		zap.Float64("match_rate", detection.MatchRate),
		zap.Bool("used_ai", detection.UsedAI))

	parsed := p.parser.Parse(lines, detection.Pattern)
	normalized := normalize.New(now, p.logger).Normalize(parsed)
	labeled, labelDegraded := p.labeler.Label(ctx, normalized)
	labeled = p.anomalies.Detect(labeled)

	profiles := p.scorer.Profiles(labeled)
	attackers := p.scorer.TopAttackers(profiles)

	meta := summary.Meta{
		Format:     detection.Pattern.Name,
		Confidence: detection.Pattern.Confidence,
		ParseRate:  parseRate(parsed),
		Degraded:   detection.Degraded || labelDegraded,
	}
	return Result{
		Format:    detection.Pattern.Name,
		MatchRate: detection.MatchRate,
		Records:   labeled,
		Profiles:  profiles,
		Summary:   p.aggregator.Build(labeled, attackers, meta),
	}
}

func parseRate(records []types.ParsedRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	ok := 0
	for _, r := range records {
		if r.ParseOK {
			ok++
		}
	}
	return 100 * float64(ok) / float64(len(records))
}
