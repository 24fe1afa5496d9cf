package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/vibhavm/logsage/internal/aiclient"
	"github.com/vibhavm/logsage/internal/pipeline"
)

// Config is the full tool configuration: output handling, the optional
// external classifier, and every pipeline threshold. All of it can come
// from a YAML file or LOGSAGE_* environment variables.
type Config struct {
	Output struct {
		Dir    string `yaml:"dir"`
		Format string `yaml:"format"`
	} `yaml:"output"`
	AI struct {
		Enabled bool `yaml:"enabled"`
		aiclient.Config
	} `yaml:"ai"`
	Pipeline pipeline.Config `yaml:"pipeline"`
	LogLevel string          `yaml:"log_level"`
}

// Default returns the documented defaults.
func Default() Config {
	var cfg Config
	cfg.Output.Dir = "."
	cfg.Output.Format = "csv"
	cfg.AI.Enabled = false
	cfg.AI.Config = aiclient.DefaultConfig()
	cfg.Pipeline = pipeline.DefaultConfig()
	cfg.LogLevel = "info"
	return cfg
}

// Load reads configuration from path, or from .logsage.yaml in the
// working directory or home directory when path is empty. A missing file
// is not an error; defaults apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".logsage")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("logsage")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := Default()
	cfg.Output.Dir = v.GetString("output.dir")
	cfg.Output.Format = v.GetString("output.format")
	cfg.AI.Enabled = v.GetBool("ai.enabled")
	cfg.AI.BaseURL = v.GetString("ai.base_url")
	cfg.AI.Model = v.GetString("ai.model")
	cfg.AI.Timeout = v.GetDuration("ai.timeout")
	cfg.LogLevel = v.GetString("log_level")

	cfg.Pipeline.Detect.SampleSize = v.GetInt("detect.sample_size")
	cfg.Pipeline.Detect.MinConfidence = v.GetFloat64("detect.min_confidence")
	cfg.Pipeline.Classify.BruteForceWindow = v.GetDuration("classify.brute_force_window")
	cfg.Pipeline.Classify.BruteForceThreshold = v.GetInt("classify.brute_force_threshold")
	cfg.Pipeline.Classify.MaxAIConsults = v.GetInt("classify.max_ai_consults")
	cfg.Pipeline.Anomaly.Bucket = v.GetDuration("anomaly.bucket")
	cfg.Pipeline.Anomaly.ZScore = v.GetFloat64("anomaly.z_score")
	cfg.Pipeline.Anomaly.ErrorRateThreshold = v.GetFloat64("anomaly.error_rate_threshold")
	cfg.Pipeline.Anomaly.MinBucketCount = v.GetInt("anomaly.min_bucket_count")
	cfg.Pipeline.Anomaly.RareMinRecords = v.GetInt("anomaly.rare_min_records")
	cfg.Pipeline.Anomaly.ScanPathThreshold = v.GetInt("anomaly.scan_path_threshold")
	cfg.Pipeline.Risk.ErrorWeight = v.GetFloat64("risk.error_weight")
	cfg.Pipeline.Risk.DiversityWeight = v.GetFloat64("risk.diversity_weight")
	cfg.Pipeline.Risk.FrequencyWeight = v.GetFloat64("risk.frequency_weight")
	cfg.Pipeline.Risk.HighThreshold = v.GetInt("risk.high_threshold")
	cfg.Pipeline.Risk.MediumThreshold = v.GetInt("risk.medium_threshold")
	cfg.Pipeline.Risk.TopN = v.GetInt("risk.top_n")

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("output.dir", def.Output.Dir)
	v.SetDefault("output.format", def.Output.Format)
	v.SetDefault("ai.enabled", def.AI.Enabled)
	v.SetDefault("ai.base_url", def.AI.BaseURL)
	v.SetDefault("ai.model", def.AI.Model)
	v.SetDefault("ai.timeout", def.AI.Timeout)
	v.SetDefault("log_level", def.LogLevel)

	v.SetDefault("detect.sample_size", def.Pipeline.Detect.SampleSize)
	v.SetDefault("detect.min_confidence", def.Pipeline.Detect.MinConfidence)
	v.SetDefault("classify.brute_force_window", def.Pipeline.Classify.BruteForceWindow)
	v.SetDefault("classify.brute_force_threshold", def.Pipeline.Classify.BruteForceThreshold)
	v.SetDefault("classify.max_ai_consults", def.Pipeline.Classify.MaxAIConsults)
	v.SetDefault("anomaly.bucket", def.Pipeline.Anomaly.Bucket)
	v.SetDefault("anomaly.z_score", def.Pipeline.Anomaly.ZScore)
	v.SetDefault("anomaly.error_rate_threshold", def.Pipeline.Anomaly.ErrorRateThreshold)
	v.SetDefault("anomaly.min_bucket_count", def.Pipeline.Anomaly.MinBucketCount)
	v.SetDefault("anomaly.rare_min_records", def.Pipeline.Anomaly.RareMinRecords)
	v.SetDefault("anomaly.scan_path_threshold", def.Pipeline.Anomaly.ScanPathThreshold)
	v.SetDefault("risk.error_weight", def.Pipeline.Risk.ErrorWeight)
	v.SetDefault("risk.diversity_weight", def.Pipeline.Risk.DiversityWeight)
	v.SetDefault("risk.frequency_weight", def.Pipeline.Risk.FrequencyWeight)
	v.SetDefault("risk.high_threshold", def.Pipeline.Risk.HighThreshold)
	v.SetDefault("risk.medium_threshold", def.Pipeline.Risk.MediumThreshold)
	v.SetDefault("risk.top_n", def.Pipeline.Risk.TopN)
}

// AITimeout is a convenience for the HTTP classifier's timeout with the
// default applied.
func (c Config) AITimeout() time.Duration {
	if c.AI.Timeout <= 0 {
		return aiclient.DefaultConfig().Timeout
	}
	return c.AI.Timeout
}
