package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      App      `mapstructure:"app"`
	AI       AI       `mapstructure:"ai"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Quality  Quality  `mapstructure:"quality"`
	QA       QA       `mapstructure:"qa"`
	Adjuster Adjuster `mapstructure:"adjuster"`
	Store    Store    `mapstructure:"store"`
	Media    Media    `mapstructure:"media"`
	Server   Server   `mapstructure:"server"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	LogLevel   string `mapstructure:"log_level"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds completion-oracle provider configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
	OpenAI OpenAIConfig `mapstructure:"openai"`

	// ProviderTimeout bounds each individual oracle call; a stage never
	// hangs waiting on a provider.
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// Pipeline holds stage-orchestration settings
type Pipeline struct {
	// Workers is the fixed pool size for per-article fan-out in the
	// outline/prewrite/generate stages.
	Workers int `mapstructure:"workers"`

	// PreviewBlocks caps how many blocks go into an oracle structural
	// preview; PreviewChars caps the text sample per block.
	PreviewBlocks int `mapstructure:"preview_blocks"`
	PreviewChars  int `mapstructure:"preview_chars"`
}

// Quality holds validator thresholds
type Quality struct {
	MinFidelityScore   float64 `mapstructure:"min_fidelity_score"`
	MinCoveragePercent float64 `mapstructure:"min_coverage_percent"`
	MinStylePercent    float64 `mapstructure:"min_style_percent"`
}

// QA holds cross-article QA settings
type QA struct {
	SimilarityThreshold float64           `mapstructure:"similarity_threshold"`
	Terminology         map[string]string `mapstructure:"terminology"` // variant → canonical
}

// Adjuster holds length-rebalancing settings
type Adjuster struct {
	MinArticleWords int `mapstructure:"min_article_words"`
	MaxSectionWords int `mapstructure:"max_section_words"`
	OptimalMinWords int `mapstructure:"optimal_min_words"`
	OptimalMaxWords int `mapstructure:"optimal_max_words"`
}

// Store holds artifact-store configuration
type Store struct {
	Directory string `mapstructure:"directory"`
}

// Media holds media-store collaborator configuration
type Media struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Server holds HTTP diagnostics API configuration
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSEnabled  bool          `mapstructure:"cors_enabled"`
}

var globalConfig *Config

// Load reads configuration from file, environment, and defaults.
// Precedence: env vars > config file > defaults.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".promptsupport")
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

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the loaded configuration, loading defaults if Load was never
// called (tests and library use).
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

// Reset clears the loaded configuration. Intended for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("app.data_dir", ".promptsupport")

	viper.SetDefault("ai.provider_timeout", 60*time.Second)
	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.max_tokens", 8192)
	viper.SetDefault("ai.gemini.temperature", 0.2)
	viper.SetDefault("ai.openai.model", "gpt-4o-mini")

	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.preview_blocks", 40)
	viper.SetDefault("pipeline.preview_chars", 280)

	viper.SetDefault("quality.min_fidelity_score", 0.9)
	viper.SetDefault("quality.min_coverage_percent", 100.0)
	viper.SetDefault("quality.min_style_percent", 80.0)

	viper.SetDefault("qa.similarity_threshold", 0.8)

	viper.SetDefault("adjuster.min_article_words", 300)
	viper.SetDefault("adjuster.max_section_words", 1200)
	viper.SetDefault("adjuster.optimal_min_words", 500)
	viper.SetDefault("adjuster.optimal_max_words", 2000)

	viper.SetDefault("store.directory", ".promptsupport")

	viper.SetDefault("media.region", "us-east-1")
	viper.SetDefault("media.bucket", "promptsupport-media")

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8787)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.cors_enabled", false)
}

func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{"GEMINI_API_KEY", "GOOGLE_AI_API_KEY"})
	bindEnvKeys("ai.openai.api_key", []string{"OPENAI_API_KEY"})
	bindEnvKeys("app.log_level", []string{"PROMPTSUPPORT_LOG_LEVEL"})
	bindEnvKeys("store.directory", []string{"PROMPTSUPPORT_DATA_DIR"})
	bindEnvKeys("media.endpoint", []string{"PROMPTSUPPORT_MEDIA_ENDPOINT"})
	bindEnvKeys("media.access_key", []string{"PROMPTSUPPORT_MEDIA_ACCESS_KEY"})
	bindEnvKeys("media.secret_key", []string{"PROMPTSUPPORT_MEDIA_SECRET_KEY"})
}

func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if err := viper.BindEnv(viperKey, envKey); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind %s: %v\n", envKey, err)
		}
	}
}

func validateConfig(config *Config) error {
	if config.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1, got %d", config.Pipeline.Workers)
	}
	if config.Quality.MinFidelityScore < 0 || config.Quality.MinFidelityScore > 1 {
		return fmt.Errorf("quality.min_fidelity_score must be in [0,1], got %f", config.Quality.MinFidelityScore)
	}
	if config.QA.SimilarityThreshold <= 0 || config.QA.SimilarityThreshold > 1 {
		return fmt.Errorf("qa.similarity_threshold must be in (0,1], got %f", config.QA.SimilarityThreshold)
	}
	if config.Adjuster.MinArticleWords >= config.Adjuster.MaxSectionWords {
		return fmt.Errorf("adjuster.min_article_words must be below adjuster.max_section_words")
	}
	return nil
}

// Convenience accessors

func GetApp() App           { return Get().App }
func GetAI() AI             { return Get().AI }
func GetPipeline() Pipeline { return Get().Pipeline }
func GetQuality() Quality   { return Get().Quality }
func GetQA() QA             { return Get().QA }
func GetAdjuster() Adjuster { return Get().Adjuster }
func GetStore() Store       { return Get().Store }
func GetMedia() Media       { return Get().Media }
func GetServer() Server     { return Get().Server }

func GetGeminiAPIKey() string { return Get().AI.Gemini.APIKey }
func GetOpenAIAPIKey() string { return Get().AI.OpenAI.APIKey }
func IsDebugMode() bool       { return Get().App.Debug }
