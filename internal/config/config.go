package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Upstream       UpstreamConfig       `yaml:"upstream"`
	Departments    DepartmentsConfig    `yaml:"departments"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        string   `yaml:"port"`
	CorsOrigins []string `yaml:"cors_origins"`
}

// UpstreamConfig describes the main tool-calling chat backend.
type UpstreamConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	Mode          string        `yaml:"mode"` // "stream" or "single_shot"
	SummaryPrompt string        `yaml:"summary_prompt"`
	MaxTurns      int           `yaml:"max_turns"`
	Timeout       time.Duration `yaml:"timeout"`
}

type DepartmentBackendConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

type DepartmentsConfig struct {
	Sports      DepartmentBackendConfig `yaml:"sports"`
	Electronics DepartmentBackendConfig `yaml:"electronics"`
	Travel      DepartmentBackendConfig `yaml:"travel"`
	Timeout     time.Duration           `yaml:"timeout"`
	CacheSize   int                     `yaml:"cache_size"`
	CacheTTL    time.Duration           `yaml:"cache_ttl"`
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ReportCaller bool   `yaml:"report_caller"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests"`
}

// LoadYAML loads configuration from YAML file with environment variable overrides
func LoadYAML(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	config := getDefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in YAML content
		expandedYAML := os.ExpandEnv(string(yamlFile))

		if err := yaml.Unmarshal([]byte(expandedYAML), config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		logrus.WithField("config_file", configPath).Info("Loaded configuration from YAML file")
	} else {
		logrus.WithField("config_file", configPath).Warn("Config file not found, using defaults and environment variables")
	}

	config = applyEnvironmentOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// getDefaultConfig returns a configuration with sensible defaults
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        "8080",
			CorsOrigins: []string{"*"},
		},
		Upstream: UpstreamConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o",
			Mode:          "stream",
			SummaryPrompt: "Summarize the current status of the customer's request so far.",
			MaxTurns:      5,
			Timeout:       60 * time.Second,
		},
		Departments: DepartmentsConfig{
			Timeout:   30 * time.Second,
			CacheSize: 256,
			CacheTTL:  2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "auto",
			ReportCaller: false,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          60 * time.Second,
			MaxRequests:      3,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(config *Config) *Config {
	// Server overrides
	if val := os.Getenv("HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		config.Server.Port = val
	}
	if val := os.Getenv("CORS_ORIGINS"); val != "" {
		config.Server.CorsOrigins = strings.Split(val, ",")
		for i := range config.Server.CorsOrigins {
			config.Server.CorsOrigins[i] = strings.TrimSpace(config.Server.CorsOrigins[i])
		}
	}

	// Upstream overrides
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		config.Upstream.APIKey = val
	}
	if val := os.Getenv("UPSTREAM_BASE_URL"); val != "" {
		config.Upstream.BaseURL = val
	}
	if val := os.Getenv("UPSTREAM_MODEL"); val != "" {
		config.Upstream.Model = val
	}
	if val := os.Getenv("CLASSIFIER_MODE"); val != "" {
		config.Upstream.Mode = val
	}
	if val := os.Getenv("SUMMARY_PROMPT"); val != "" {
		config.Upstream.SummaryPrompt = val
	}
	if val := os.Getenv("MAX_TURNS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Upstream.MaxTurns = i
		}
	}
	if val := os.Getenv("UPSTREAM_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Upstream.Timeout = d
		}
	}

	// Department overrides
	if val := os.Getenv("SPORTS_DEPT_URL"); val != "" {
		config.Departments.Sports.URL = val
	}
	if val := os.Getenv("SPORTS_DEPT_API_KEY"); val != "" {
		config.Departments.Sports.APIKey = val
	}
	if val := os.Getenv("ELECTRONICS_DEPT_URL"); val != "" {
		config.Departments.Electronics.URL = val
	}
	if val := os.Getenv("ELECTRONICS_DEPT_API_KEY"); val != "" {
		config.Departments.Electronics.APIKey = val
	}
	if val := os.Getenv("TRAVEL_DEPT_URL"); val != "" {
		config.Departments.Travel.URL = val
	}
	if val := os.Getenv("TRAVEL_DEPT_API_KEY"); val != "" {
		config.Departments.Travel.APIKey = val
	}
	if val := os.Getenv("DEPARTMENT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Departments.Timeout = d
		}
	}
	if val := os.Getenv("COMPLETION_CACHE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			config.Departments.CacheSize = i
		}
	}
	if val := os.Getenv("COMPLETION_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Departments.CacheTTL = d
		}
	}

	// Logging overrides
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("LOG_REPORT_CALLER"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.Logging.ReportCaller = b
		}
	}

	// Circuit breaker overrides
	if val := os.Getenv("CIRCUIT_BREAKER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			config.CircuitBreaker.Enabled = b
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.FailureThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_SUCCESS_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.SuccessThreshold = uint32(i)
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.CircuitBreaker.Timeout = d
		}
	}
	if val := os.Getenv("CIRCUIT_BREAKER_MAX_REQUESTS"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.CircuitBreaker.MaxRequests = uint32(i)
		}
	}

	return config
}

// validateConfig validates the configuration and returns errors for invalid values.
// Credentials are checked once here, at process entry, not per department call.
func validateConfig(config *Config) error {
	var errors []string

	if config.Upstream.APIKey == "" {
		errors = append(errors, "OPENAI_API_KEY is required for the main chat backend")
	}
	if config.Upstream.Mode != "stream" && config.Upstream.Mode != "single_shot" {
		errors = append(errors, fmt.Sprintf("CLASSIFIER_MODE must be 'stream' or 'single_shot' (current: %s)", config.Upstream.Mode))
	}
	if config.Upstream.MaxTurns < 1 {
		errors = append(errors, fmt.Sprintf("MAX_TURNS must be at least 1 (current: %d)", config.Upstream.MaxTurns))
	}

	departments := map[string]DepartmentBackendConfig{
		"sports":      config.Departments.Sports,
		"electronics": config.Departments.Electronics,
		"travel":      config.Departments.Travel,
	}
	for name, dept := range departments {
		if dept.URL == "" {
			errors = append(errors, fmt.Sprintf("%s department url is required (set %s_DEPT_URL)", name, strings.ToUpper(name)))
		}
		if dept.APIKey == "" {
			errors = append(errors, fmt.Sprintf("%s department api key is required (set %s_DEPT_API_KEY)", name, strings.ToUpper(name)))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Load is a convenience wrapper around LoadYAML with the default path.
func Load() (*Config, error) {
	return LoadYAML("")
}
