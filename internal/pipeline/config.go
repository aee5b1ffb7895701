package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/LambdaLabsML/agentbeats-submission-action/internal/scenario"
)

type Config struct {
	Role           string `json:"role" yaml:"role"`
	SubmissionPath string `json:"submission_path" yaml:"submission_path"`
	APIKey         Secret `json:"api_key" yaml:"api_key"`
	Endpoint       string `json:"submission_endpoint" yaml:"submission_endpoint"`
	RunTests       string `json:"run_tests" yaml:"run_tests"`
	Scenario       string `json:"scenario" yaml:"scenario"`
	PrintInfo      bool   `json:"print_info" yaml:"print_info"`

	ArtifactPath string `json:"artifact_path" yaml:"artifact_path"`
	ResultPath   string `json:"result_path" yaml:"result_path"`

	LLM      LLMConfig           `json:"llm" yaml:"llm"`
	Match    MatchSettings       `json:"match" yaml:"match"`
	Observer ObservabilityConfig `json:"observability" yaml:"observability"`
}

type LLMConfig struct {
	APIKey  Secret `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
}

type MatchSettings struct {
	TimeoutSec  int    `json:"timeout_sec" yaml:"timeout_sec"`
	MaxTurns    int    `json:"max_turns" yaml:"max_turns"`
	MaxParallel int    `json:"max_parallel" yaml:"max_parallel"`
	Entrypoint  string `json:"entrypoint" yaml:"entrypoint"`
	Python      string `json:"python" yaml:"python"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

func DefaultConfig() Config {
	return Config{
		RunTests:     "false",
		Scenario:     "all",
		ArtifactPath: "submission.zip",
		ResultPath:   "submission_result.json",
		LLM: LLMConfig{
			Model: "gpt-4o-mini",
		},
		Match: MatchSettings{
			TimeoutSec:  120,
			MaxTurns:    3,
			MaxParallel: 2,
		},
		Observer: ObservabilityConfig{
			ServiceName: "agentbeats-submit",
			SampleRatio: 1,
		},
	}
}

// LoadConfig reads an optional yaml or json config file over the
// defaults. An empty path just returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json config: %w", err)
		}
	default:
		var yamlErr error
		if yamlErr = yaml.Unmarshal(data, &cfg); yamlErr == nil {
			break
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.New("config format not recognized (expected yaml/json)")
		}
	}
	normalizeConfig(&cfg)
	return cfg, nil
}

func normalizeConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.RunTests) == "" {
		cfg.RunTests = "false"
	}
	if strings.TrimSpace(cfg.Scenario) == "" {
		cfg.Scenario = "all"
	}
	if strings.TrimSpace(cfg.ArtifactPath) == "" {
		cfg.ArtifactPath = "submission.zip"
	}
	if strings.TrimSpace(cfg.ResultPath) == "" {
		cfg.ResultPath = "submission_result.json"
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.Match.TimeoutSec <= 0 {
		cfg.Match.TimeoutSec = 120
	}
	if cfg.Match.MaxTurns <= 0 {
		cfg.Match.MaxTurns = 3
	}
	if cfg.Match.MaxParallel <= 0 {
		cfg.Match.MaxParallel = 2
	}
	if strings.TrimSpace(cfg.Observer.ServiceName) == "" {
		cfg.Observer.ServiceName = "agentbeats-submit"
	}
	if cfg.Observer.SampleRatio <= 0 || cfg.Observer.SampleRatio > 1 {
		cfg.Observer.SampleRatio = 1
	}
}

// Validate rejects configurations the pipeline cannot run with. These
// are usage errors: the caller reports them and exits before any
// pipeline stage starts.
func (c Config) Validate() error {
	if c.Role != "attacker" && c.Role != "defender" {
		return fmt.Errorf("role must be attacker or defender, got %q", c.Role)
	}
	if strings.TrimSpace(c.SubmissionPath) == "" {
		return errors.New("submission path is required")
	}
	if c.APIKey.Reveal() == "" {
		return errors.New("api key is required")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("submission endpoint is required")
	}
	mode, err := ParseTestMode(c.RunTests)
	if err != nil {
		return err
	}
	if _, err := scenario.Resolve(c.Scenario); err != nil {
		return err
	}
	if mode != TestModeOff {
		if c.LLM.APIKey.Reveal() == "" {
			return errors.New("openai api key is required when tests are enabled")
		}
		if strings.TrimSpace(c.LLM.BaseURL) == "" {
			return errors.New("openai base url is required when tests are enabled")
		}
	}
	return nil
}
