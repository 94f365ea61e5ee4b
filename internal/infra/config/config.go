package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in ai.provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// DefaultPersona is used when no persona is configured.
const DefaultPersona = "You are a strategic business assistant specializing in high-value real estate opportunities and professional networking. Identify leads and close deals with precision."

// Config holds all application configuration.
type Config struct {
	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`

	// Storage
	StorePath string `json:"store_path" yaml:"store_path"`

	Gateway    GatewayConfig    `json:"gateway" yaml:"gateway"`
	AI         AIConfig         `json:"ai" yaml:"ai"`
	Triage     TriageConfig     `json:"triage" yaml:"triage"`
	Enrichment EnrichmentConfig `json:"enrichment" yaml:"enrichment"`
	Sync       SyncConfig       `json:"sync" yaml:"sync"`
	API        APIConfig        `json:"api" yaml:"api"`
}

// GatewayConfig holds messaging gateway settings.
type GatewayConfig struct {
	URL          string           `json:"url" yaml:"url"`
	APIKey       string           `json:"api_key" yaml:"api_key"`
	Instances    []InstanceConfig `json:"instances" yaml:"instances"`
	Timeout      Duration         `json:"timeout" yaml:"timeout"`
	ReadAttempts int              `json:"read_attempts" yaml:"read_attempts"`
}

// InstanceConfig names one connected gateway session.
type InstanceConfig struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// AIConfig holds language-model backend settings.
type AIConfig struct {
	Provider string       `json:"provider" yaml:"provider"`
	OpenAI   OpenAIConfig `json:"openai" yaml:"openai"`
	Gemini   GeminiConfig `json:"gemini" yaml:"gemini"`
	Timeout  Duration     `json:"timeout" yaml:"timeout"`
}

// OpenAIConfig configures the token-metered chat-completion backend.
type OpenAIConfig struct {
	APIKey          string  `json:"api_key" yaml:"api_key"`
	BaseURL         string  `json:"base_url" yaml:"base_url"`
	Model           string  `json:"model" yaml:"model"`
	CostPer1KTokens float64 `json:"cost_per_1k_tokens" yaml:"cost_per_1k_tokens"`
}

// GeminiConfig configures the streaming backend. Usage is a fixed estimate per call.
type GeminiConfig struct {
	APIKey        string  `json:"api_key" yaml:"api_key"`
	Model         string  `json:"model" yaml:"model"`
	TokensPerCall int     `json:"tokens_per_call" yaml:"tokens_per_call"`
	CostPerCall   float64 `json:"cost_per_call" yaml:"cost_per_call"`
}

// TriageConfig holds the read-mostly scoring settings.
type TriageConfig struct {
	Persona      string `json:"persona" yaml:"persona"`
	ScoringRules string `json:"scoring_rules" yaml:"scoring_rules"`
	DraftStyle   string `json:"draft_style" yaml:"draft_style"`
	Threshold    int    `json:"threshold" yaml:"threshold"`
}

// EnrichmentConfig bounds enrichment spend.
type EnrichmentConfig struct {
	PaceEvery       int      `json:"pace_every" yaml:"pace_every"`
	PaceDelay       Duration `json:"pace_delay" yaml:"pace_delay"`
	MaxContextChars int      `json:"max_context_chars" yaml:"max_context_chars"`
}

// SyncConfig holds gateway reconciliation settings.
type SyncConfig struct {
	HistoryLimit int    `json:"history_limit" yaml:"history_limit"`
	SampleSize   int    `json:"sample_size" yaml:"sample_size"`
	Schedule     string `json:"schedule" yaml:"schedule"`
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

// Duration is a time.Duration that decodes from "1.5s" style strings or integer milliseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) parse(s string) error {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalJSON accepts a duration string or a number of milliseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	return d.parse(strings.Trim(string(b), `"`))
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML accepts a duration string or a number of milliseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultStore := filepath.Join(homeDir, ".syncnexus", "store")

	return &Config{
		LogLevel:  "INFO",
		StorePath: defaultStore,
		Gateway: GatewayConfig{
			Instances:    []InstanceConfig{{ID: 1, Name: "Unified"}},
			Timeout:      Duration(30 * time.Second),
			ReadAttempts: 2,
		},
		AI: AIConfig{
			Provider: ProviderOpenAI,
			OpenAI: OpenAIConfig{
				Model:           "gpt-5-mini",
				CostPer1KTokens: 0.001,
			},
			Gemini: GeminiConfig{
				Model:         "gemini-3-flash-preview",
				TokensPerCall: 450,
				CostPerCall:   0.0005,
			},
			Timeout: Duration(60 * time.Second),
		},
		Triage: TriageConfig{
			Persona: DefaultPersona,
			ScoringRules: "1. If message contains budget or investment amount, add +20 points\n" +
				"2. If user asks about specific property/project, add +30 points\n" +
				"3. If direct question to user, add +15 points\n" +
				"4. If generic hello or social pleasantries, subtract -20 points\n" +
				"5. If spam or unsolicited selling, score = 0",
			DraftStyle: "Professional, concise (1-2 sentences), always end with helpful follow-up question.",
			Threshold:  75,
		},
		Enrichment: EnrichmentConfig{
			PaceEvery:       5,
			PaceDelay:       Duration(1500 * time.Millisecond),
			MaxContextChars: 4000,
		},
		Sync: SyncConfig{
			HistoryLimit: 20,
			SampleSize:   1,
			Schedule:     "@every 30m",
		},
		API: APIConfig{
			Listen: ":8080",
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if file doesn't exist
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Load loads configuration from an optional file, then applies environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		loaded, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYNCNEXUS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SYNCNEXUS_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("EVOLUTION_API_URL"); v != "" {
		c.Gateway.URL = v
	}
	if v := os.Getenv("EVOLUTION_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("INSTANCE_NAME"); v != "" {
		c.setInstance(1, v)
	}
	if v := os.Getenv("INSTANCE_NAME_2"); v != "" {
		c.setInstance(2, v)
	}
	if v := os.Getenv("SYNCNEXUS_AI_PROVIDER"); v != "" {
		c.AI.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.AI.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.AI.OpenAI.Model = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.AI.Gemini.APIKey = v
	}
	if v := os.Getenv("SYNCNEXUS_THRESHOLD"); v != "" {
		if threshold, err := strconv.Atoi(v); err == nil {
			c.Triage.Threshold = threshold
		}
	}
	if v := os.Getenv("SYNCNEXUS_LISTEN"); v != "" {
		c.API.Listen = v
	}
}

func (c *Config) setInstance(id int, name string) {
	for i := range c.Gateway.Instances {
		if c.Gateway.Instances[i].ID == id {
			c.Gateway.Instances[i].Name = name
			return
		}
	}
	c.Gateway.Instances = append(c.Gateway.Instances, InstanceConfig{ID: id, Name: name})
}

// Validate rejects settings that can never work. Missing credentials are not
// checked here; they are reported by the operation that needs them.
func (c *Config) Validate() error {
	if c.Triage.Threshold < 0 || c.Triage.Threshold > 100 {
		return fmt.Errorf("triage.threshold must be within 0-100, got %d", c.Triage.Threshold)
	}
	switch c.AI.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	if c.Enrichment.PaceEvery <= 0 {
		return fmt.Errorf("enrichment.pace_every must be positive")
	}
	if c.Enrichment.MaxContextChars <= 0 {
		return fmt.Errorf("enrichment.max_context_chars must be positive")
	}
	if c.Sync.SampleSize < 0 {
		return fmt.Errorf("sync.sample_size must not be negative")
	}
	return nil
}

// Instance returns the instance with the given id.
func (c *Config) Instance(id int) (InstanceConfig, bool) {
	for _, inst := range c.Gateway.Instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return InstanceConfig{}, false
}

// InstanceNames returns the names of all configured instances, skipping blanks.
func (c *Config) InstanceNames() []string {
	names := make([]string, 0, len(c.Gateway.Instances))
	for _, inst := range c.Gateway.Instances {
		if inst.Name != "" {
			names = append(names, inst.Name)
		}
	}
	return names
}

// DBPath returns the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.StorePath, "syncnexus.db")
}

// EnsureStorePath creates the store directory if it doesn't exist.
func (c *Config) EnsureStorePath() error {
	return os.MkdirAll(c.StorePath, 0755)
}
