package risk

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/vibhavm/logsage/internal/classify"
	"github.com/vibhavm/logsage/internal/types"
)

// Config holds the scoring policy: term weights and category boundaries.
// Weights are applied to error ratio, attack-type diversity and relative
// request frequency, in that order.
type Config struct {
	ErrorWeight     float64 `yaml:"error_weight"`
	DiversityWeight float64 `yaml:"diversity_weight"`
	FrequencyWeight float64 `yaml:"frequency_weight"`
	HighThreshold   int     `yaml:"high_threshold"`
	MediumThreshold int     `yaml:"medium_threshold"`
	TopN            int     `yaml:"top_n"`
}

// DefaultConfig returns the documented scoring defaults.
func DefaultConfig() Config {
	return Config{
		ErrorWeight:     0.3,
		DiversityWeight: 0.4,
		FrequencyWeight: 0.3,
		HighThreshold:   70,
		MediumThreshold: 40,
		TopN:            20,
	}
}

// Scorer derives per-address risk profiles from one run's labeled records.
// Profiles are recomputed from scratch every run; nothing persists.
type Scorer struct {
	cfg    Config
	logger *zap.Logger
}

// NewScorer creates a Scorer.
func NewScorer(cfg Config, logger *zap.Logger) *Scorer {
	def := DefaultConfig()
	if cfg.ErrorWeight <= 0 && cfg.DiversityWeight <= 0 && cfg.FrequencyWeight <= 0 {
		cfg.ErrorWeight = def.ErrorWeight
		cfg.DiversityWeight = def.DiversityWeight
		cfg.FrequencyWeight = def.FrequencyWeight
	}
	if cfg.HighThreshold <= 0 {
		cfg.HighThreshold = def.HighThreshold
	}
	if cfg.MediumThreshold <= 0 {
		cfg.MediumThreshold = def.MediumThreshold
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	return &Scorer{cfg: cfg, logger: logger}
}

// Profiles groups records by valid client address and scores each group.
// The result is sorted by risk score descending, then request count
// descending, then address ascending, so identical input always produces
// the same ordering.
func (s *Scorer) Profiles(records []types.LabeledRecord) []types.IPProfile {
	type accum struct {
		profile types.IPProfile
		attacks map[string]bool
	}
	byIP := make(map[string]*accum)
	for _, rec := range records {
		if !rec.IPValid {
			continue
		}
		a := byIP[rec.ClientIP]
		if a == nil {
			a = &accum{
				profile: types.IPProfile{Address: rec.ClientIP},
				attacks: make(map[string]bool),
			}
			byIP[rec.ClientIP] = a
		}
		a.profile.RequestCount++
		if rec.StatusCode != nil && *rec.StatusCode >= 400 {
			a.profile.ErrorCount++
		}
		if rec.Signature != "" {
			a.attacks[rec.Signature] = true
		}
		if rec.HasTimestamp {
			if a.profile.FirstSeen.IsZero() || rec.Timestamp.Before(a.profile.FirstSeen) {
				a.profile.FirstSeen = rec.Timestamp
			}
			if rec.Timestamp.After(a.profile.LastSeen) {
				a.profile.LastSeen = rec.Timestamp
			}
		}
	}
	if len(byIP) == 0 {
		return nil
	}

	maxRequests := 0
	for _, a := range byIP {
		if a.profile.RequestCount > maxRequests {
			maxRequests = a.profile.RequestCount
		}
	}

	profiles := make([]types.IPProfile, 0, len(byIP))
	for _, a := range byIP {
		p := a.profile
		p.ErrorRatio = float64(p.ErrorCount) / float64(p.RequestCount)
		p.AttackTypes = sortedKeys(a.attacks)

		diversity := float64(len(p.AttackTypes)) / float64(classify.KnownSignatureCount)
		frequency := float64(p.RequestCount) / float64(maxRequests)
		raw := s.cfg.ErrorWeight*p.ErrorRatio +
			s.cfg.DiversityWeight*diversity +
			s.cfg.FrequencyWeight*frequency
		p.RiskScore = int(math.Round(100 * clamp(raw, 0, 1)))
		p.RiskLevel = s.Level(p.RiskScore)
		profiles = append(profiles, p)
	}

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].RiskScore != profiles[j].RiskScore {
			return profiles[i].RiskScore > profiles[j].RiskScore
		}
		if profiles[i].RequestCount != profiles[j].RequestCount {
			return profiles[i].RequestCount > profiles[j].RequestCount
		}
		return profiles[i].Address < profiles[j].Address
	})
	return profiles
}

// TopAttackers truncates a sorted profile list to the configured top N.
func (s *Scorer) TopAttackers(profiles []types.IPProfile) []types.IPProfile {
	if len(profiles) > s.cfg.TopN {
		profiles = profiles[:s.cfg.TopN]
	}
	out := make([]types.IPProfile, len(profiles))
	copy(out, profiles)
	return out
}

// Level maps a 0-100 score onto a category. Boundaries are inclusive.
func (s *Scorer) Level(score int) types.RiskLevel {
	switch {
	case score >= s.cfg.HighThreshold:
		return types.RiskHigh
	case score >= s.cfg.MediumThreshold:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
