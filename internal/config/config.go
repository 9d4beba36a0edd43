// Package config loads and validates application configuration for the
// research engine from environment variables, an optional YAML file, and
// built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	Model     Model     `mapstructure:"model"`
	Search    Search    `mapstructure:"search"`
	Academic  Academic  `mapstructure:"academic"`
	Cache     Cache     `mapstructure:"cache"`
	IRE       IRE       `mapstructure:"ire"`
	Knowledge Knowledge `mapstructure:"knowledge"`
	Logging   Logging   `mapstructure:"logging"`
	CLI       CLI       `mapstructure:"cli"`
}

// App holds general application configuration.
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// Model holds the provider endpoints and model names used for chat
// completion, embedding, and tokenization (spec §6 external interfaces).
type Model struct {
	BaseURL         string  `mapstructure:"base_url"`        // LM_STUDIO_URL
	ResearchModel   string  `mapstructure:"research_model"`  // RESEARCH_MODEL
	SynthesisModel  string  `mapstructure:"synthesis_model"` // SYNTHESIS_MODEL
	EmbeddingModel  string  `mapstructure:"embedding_model"` // EMBEDDING_MODEL
	Temperature     float32 `mapstructure:"temperature"`
	Timeout         string  `mapstructure:"timeout"`
	EmbeddingDim    int     `mapstructure:"embedding_dim"`
	SynthesisMaxSec int     `mapstructure:"synthesis_max_seconds"`
}

// Search holds web search provider configuration.
type Search struct {
	SearchURL  string `mapstructure:"search_url"` // SEARCH_URL, GET {SEARCH_URL}{encoded_query}
	MaxResults int    `mapstructure:"max_results"`
	Timeout    string `mapstructure:"timeout"`
}

// Academic holds academic database provider configuration.
type Academic struct {
	Enabled []string `mapstructure:"enabled"` // comma-separated ENABLED env var: pubmed,hal,...
	Timeout string   `mapstructure:"timeout"` // per-provider timeout, 30s by spec
}

// Cache holds on-disk cache directories.
type Cache struct {
	Directory string `mapstructure:"directory"`
}

// Knowledge holds persistent knowledge-store configuration (spec §6).
type Knowledge struct {
	RootDir        string `mapstructure:"root_dir"` // ./DBs
	DefaultName    string `mapstructure:"default_name"`
	CleanupAfter   string `mapstructure:"cleanup_after"`
	MinLocalResult int    `mapstructure:"min_local_results"`
}

// IRE holds the engine's own tunable constants named throughout spec.md.
type IRE struct {
	MaxCycles                 int     `mapstructure:"max_cycles"`
	MinCycles                 int     `mapstructure:"min_cycles"`
	PDVFadeFraction           float64 `mapstructure:"pdv_fade_fraction"`
	GapFadeFraction           float64 `mapstructure:"gap_fade_fraction"`
	TrajectoryMomentum        float64 `mapstructure:"trajectory_momentum"`
	GapExplorationWeight      float64 `mapstructure:"gap_exploration_weight"`
	TransformWeightCap        float64 `mapstructure:"transform_weight_cap"`
	RepeatWindowFactor        float64 `mapstructure:"repeat_window_factor"`
	MaxResultTokens           int     `mapstructure:"max_result_tokens"`
	MinLocalSources           int     `mapstructure:"min_local_sources"`
	KeywordMultiplierPerMatch float64 `mapstructure:"keyword_multiplier_per_match"`
	MaxKeywordMultiplier      float64 `mapstructure:"max_keyword_multiplier"`
	LocalInfluenceRadius      int     `mapstructure:"local_influence_radius"`
	CompletedFractionExit     float64 `mapstructure:"completed_fraction_exit"`
}

// Logging holds logging configuration.
type Logging struct {
	Level string `mapstructure:"level"`
}

// CLI holds CLI-specific configuration.
type CLI struct {
	Interactive bool `mapstructure:"interactive"`
}

var globalConfig *Config

// Load loads the configuration from an optional file, the environment, and
// built-in defaults, in that precedence order (env wins).
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".ire")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(cfg); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the global configuration, loading it with defaults if necessary.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return cfg
	}
	return globalConfig
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".ire-cache")

	viper.SetDefault("model.base_url", "http://localhost:1234/v1")
	viper.SetDefault("model.research_model", "local-model")
	viper.SetDefault("model.synthesis_model", "local-model")
	viper.SetDefault("model.embedding_model", "local-embedding")
	viper.SetDefault("model.temperature", 0.7)
	viper.SetDefault("model.timeout", "30s")
	viper.SetDefault("model.embedding_dim", 768)
	viper.SetDefault("model.synthesis_max_seconds", 300)

	viper.SetDefault("search.search_url", "https://duckduckgo.com/html/?q=")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.timeout", "15s")

	viper.SetDefault("academic.enabled", []string{"pubmed", "arxiv", "crossref"})
	viper.SetDefault("academic.timeout", "30s")

	viper.SetDefault("cache.directory", ".ire-cache")

	viper.SetDefault("knowledge.root_dir", "./DBs")
	viper.SetDefault("knowledge.default_name", "research")
	viper.SetDefault("knowledge.cleanup_after", "720h")
	viper.SetDefault("knowledge.min_local_results", 3)

	viper.SetDefault("ire.max_cycles", 6)
	viper.SetDefault("ire.min_cycles", 2)
	viper.SetDefault("ire.pdv_fade_fraction", 1.0/3.0)
	viper.SetDefault("ire.gap_fade_fraction", 0.5)
	viper.SetDefault("ire.trajectory_momentum", 0.15)
	viper.SetDefault("ire.gap_exploration_weight", 0.2)
	viper.SetDefault("ire.transform_weight_cap", 0.8)
	viper.SetDefault("ire.repeat_window_factor", 0.5)
	viper.SetDefault("ire.max_result_tokens", 2000)
	viper.SetDefault("ire.min_local_sources", 3)
	viper.SetDefault("ire.keyword_multiplier_per_match", 1.05)
	viper.SetDefault("ire.max_keyword_multiplier", 1.5)
	viper.SetDefault("ire.local_influence_radius", 2)
	viper.SetDefault("ire.completed_fraction_exit", 0.7)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("cli.interactive", false)
}

// bindEnvironmentVariables binds the environment variables named in spec §6.
func bindEnvironmentVariables() {
	bindEnvKeys("model.base_url", []string{"LM_STUDIO_URL"})
	bindEnvKeys("model.research_model", []string{"RESEARCH_MODEL"})
	bindEnvKeys("model.synthesis_model", []string{"SYNTHESIS_MODEL"})
	bindEnvKeys("model.embedding_model", []string{"EMBEDDING_MODEL"})
	bindEnvKeys("search.search_url", []string{"SEARCH_URL"})
	bindEnvKeys("ire.max_cycles", []string{"MAX_CYCLES"})
	bindEnvKeys("model.temperature", []string{"TEMPERATURE"})
	bindEnvKeys("academic.enabled_csv", []string{"ENABLED"})
}

func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			if viperKey == "academic.enabled_csv" {
				viper.Set("academic.enabled", strings.Split(value, ","))
				return
			}
			viper.Set(viperKey, value)
			return
		}
	}
}

func postProcessConfig(cfg *Config) error {
	if cfg.Cache.Directory != "" {
		cfg.Cache.Directory = expandPath(cfg.Cache.Directory)
	}
	if cfg.Knowledge.RootDir != "" {
		cfg.Knowledge.RootDir = expandPath(cfg.Knowledge.RootDir)
	}
	if cfg.App.DataDir != "" {
		cfg.App.DataDir = expandPath(cfg.App.DataDir)
	}

	durations := map[string]string{
		"model.timeout":            cfg.Model.Timeout,
		"search.timeout":           cfg.Search.Timeout,
		"academic.timeout":         cfg.Academic.Timeout,
		"knowledge.cleanup_after":  cfg.Knowledge.CleanupAfter,
	}
	for key, d := range durations {
		if d != "" {
			if _, err := time.ParseDuration(d); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, d)
			}
		}
	}

	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func validateConfig(cfg *Config) error {
	var errs []string

	if cfg.Model.BaseURL == "" {
		errs = append(errs, "model base URL is required (set LM_STUDIO_URL or model.base_url)")
	}
	if cfg.IRE.MaxCycles < cfg.IRE.MinCycles {
		errs = append(errs, fmt.Sprintf("ire.max_cycles (%d) must be >= ire.min_cycles (%d)", cfg.IRE.MaxCycles, cfg.IRE.MinCycles))
	}
	validAcademic := map[string]bool{
		"pubmed": true, "hal": true, "openedition": true, "pepite": true,
		"theses": true, "cairn": true, "arxiv": true, "crossref": true,
	}
	for _, name := range cfg.Academic.Enabled {
		if !validAcademic[strings.TrimSpace(name)] {
			errs = append(errs, fmt.Sprintf("unknown academic provider: %s", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Reset clears the global configuration. Useful for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// Convenience getters, matching the teacher's accessor pattern.
func GetApp() App             { return Get().App }
func GetModel() Model         { return Get().Model }
func GetSearch() Search       { return Get().Search }
func GetAcademic() Academic   { return Get().Academic }
func GetCache() Cache         { return Get().Cache }
func GetIRE() IRE             { return Get().IRE }
func GetKnowledge() Knowledge { return Get().Knowledge }
func GetLogging() Logging     { return Get().Logging }
func GetCLI() CLI             { return Get().CLI }

func ModelTimeout() time.Duration {
	d, err := time.ParseDuration(Get().Model.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func SearchTimeout() time.Duration {
	d, err := time.ParseDuration(Get().Search.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

func AcademicTimeout() time.Duration {
	d, err := time.ParseDuration(Get().Academic.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
