package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Task tells the classifier what kind of label is wanted.
type Task string

const (
	// TaskFormatDetection asks for one of the registry's format names.
	TaskFormatDetection Task = "format_detection"
	// TaskLabeling asks for a "severity/category" pair for one log message.
	TaskLabeling Task = "labeling"
)

// ErrUnavailable is returned when no external classifier is configured.
var ErrUnavailable = errors.New("aiclient: classifier unavailable")

// Classifier is the external classification collaborator. Implementations
// must treat failure as normal: callers always have a local fallback and
// never abort on an error from here.
type Classifier interface {
	Classify(ctx context.Context, task Task, sample string) (string, error)
}

// Config holds the connection settings for the HTTP classifier. The zero
// value disables it.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig points at a local LM Studio style endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:1234",
		Model:   "mistral-7b-instruct-v0.1",
		Timeout: 15 * time.Second,
	}
}

// HTTPClassifier talks to an OpenAI-compatible chat completions endpoint.
type HTTPClassifier struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewHTTPClassifier creates a classifier for the given endpoint.
func NewHTTPClassifier(cfg Config, logger *zap.Logger) *HTTPClassifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &HTTPClassifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify sends one prompt and returns the model's raw answer, trimmed.
// The caller validates the answer against its own taxonomy.
func (c *HTTPClassifier) Classify(ctx context.Context, task Task, sample string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: buildPrompt(task, sample)}},
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("classifier request failed", zap.String("task", string(task)), zap.Error(err))
		return "", fmt.Errorf("calling classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("classifier returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func buildPrompt(task Task, sample string) string {
	switch task {
	case TaskFormatDetection:
		return "Identify the log format of these lines.\n\n" + sample + "\n\n" +
			"Answer with exactly one of: apache_common, apache_combined, nginx_access, " +
			"syslog, application, json_log, json_array, error_log, custom_log, generic."
	case TaskLabeling:
		return "Classify this log message.\n\nMessage: " + sample + "\n\n" +
			"Answer with exactly \"severity/category\" where severity is one of " +
			"info, warning, error, critical and category is one of " +
			"security, access, application, system, unknown."
	default:
		return sample
	}
}

// Disabled is the always-failing stub used when no external classifier is
// configured. Pipelines built on it still produce complete results.
type Disabled struct{}

// Classify always reports the classifier as unavailable.
func (Disabled) Classify(context.Context, Task, string) (string, error) {
	return "", ErrUnavailable
}
