package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	BandMethodMinMax   = "minmax"
	BandMethodEnvelope = "envelope"

	SourceCSV      = "csv"
	SourceYahoo    = "yahoo"
	SourceLongport = "longport"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	ProjectDir   string `json:"project_dir"`
	DataDir      string `json:"data_dir"`
	DataCacheDir string `json:"data_cache_dir"`
	DBPath       string `json:"db_path"`
	SecretsFile  string `json:"secrets_file"`

	Ticker       string `json:"ticker"`
	DataFile     string `json:"data_file"`
	DataSource   string `json:"data_source"`
	LookbackDays int    `json:"lookback_days"`
	MaxChartRows int    `json:"max_chart_rows"`

	BandMethod      string  `json:"band_method"`
	BandWindow      int     `json:"band_window"`
	BandK           float64 `json:"band_k"`
	SignalThreshold float64 `json:"signal_threshold"`

	LLMProvider   string        `json:"llm_provider"`
	GeminiModel   string        `json:"gemini_model"`
	GeminiBaseURL string        `json:"gemini_base_url"`
	OpenAIBaseURL string        `json:"openai_base_url"`
	OpenAIModel   string        `json:"openai_model"`
	LLMTimeout    time.Duration `json:"llm_timeout"`
	MaxTokens     int           `json:"max_tokens"`

	ListenAddr string `json:"listen_addr"`
	LogLevel   string `json:"log_level"`
	LogFormat  string `json:"log_format"`
	Debug      bool   `json:"debug"`

	CacheEnabled bool `json:"cache_enabled"`

	// Secrets are never written to the config file.
	GeminiAPIKey        string `json:"-"`
	LongportAppKey      string `json:"-"`
	LongportAppSecret   string `json:"-"`
	LongportAccessToken string `json:"-"`
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()

	cfg := DefaultConfigWithRoot(currentDir)

	// Load environment variables from .env file
	_ = godotenv.Load()

	cfg.loadFromEnv()
	cfg.loadSecrets()

	return cfg
}

// DefaultConfigWithRoot returns the built-in defaults rooted at dir, without
// consulting the environment.
func DefaultConfigWithRoot(dir string) *Config {
	return &Config{
		ProjectDir:   dir,
		DataDir:      filepath.Join(dir, "data"),
		DataCacheDir: filepath.Join(dir, "data", "cache"),
		DBPath:       filepath.Join(dir, "data", "tsladash.db"),
		SecretsFile:  filepath.Join(dir, ".streamlit", "secrets.toml"),

		Ticker:       "TSLA",
		DataFile:     filepath.Join(dir, "TSLA_data.csv"),
		DataSource:   SourceCSV,
		LookbackDays: 365,
		MaxChartRows: 100,

		BandMethod:      BandMethodMinMax,
		BandWindow:      20,
		BandK:           2.0,
		SignalThreshold: 0.01,

		LLMProvider:   ProviderGemini,
		GeminiModel:   "gemini-1.5-pro-latest",
		GeminiBaseURL: "https://generativelanguage.googleapis.com/v1beta",
		OpenAIBaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
		OpenAIModel:   "gemini-1.5-pro",
		LLMTimeout:    60 * time.Second,
		MaxTokens:     1024,

		ListenAddr: ":8501",
		LogLevel:   "info",
		LogFormat:  "text",

		CacheEnabled: true,
	}
}

// ApplyEnv overlays the TSLADASH_* and related environment variables, so they
// outrank values read from a config file.
func (c *Config) ApplyEnv() {
	c.loadFromEnv()
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}
	if val := os.Getenv("TSLADASH_DB_PATH"); val != "" {
		c.DBPath = val
	}
	if val := os.Getenv("SECRETS_FILE"); val != "" {
		c.SecretsFile = val
	}

	if val := os.Getenv("TSLADASH_TICKER"); val != "" {
		c.Ticker = strings.ToUpper(strings.TrimSpace(val))
	}
	if val := os.Getenv("TSLADASH_DATA_FILE"); val != "" {
		c.DataFile = val
	}
	if val := os.Getenv("TSLADASH_DATA_SOURCE"); val != "" {
		c.DataSource = strings.ToLower(val)
	}
	if val := os.Getenv("TSLADASH_LOOKBACK_DAYS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.LookbackDays = v
		}
	}
	if val := os.Getenv("TSLADASH_MAX_CHART_ROWS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxChartRows = v
		}
	}

	if val := os.Getenv("TSLADASH_BAND_METHOD"); val != "" {
		c.BandMethod = strings.ToLower(val)
	}
	if val := os.Getenv("TSLADASH_BAND_WINDOW"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.BandWindow = v
		}
	}
	if val := os.Getenv("TSLADASH_BAND_K"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.BandK = v
		}
	}
	if val := os.Getenv("TSLADASH_SIGNAL_THRESHOLD"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.SignalThreshold = v
		}
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = strings.ToLower(val)
	}
	if val := os.Getenv("GEMINI_MODEL"); val != "" {
		c.GeminiModel = val
	}
	if val := os.Getenv("GEMINI_BASE_URL"); val != "" {
		c.GeminiBaseURL = val
	}
	if val := os.Getenv("OPENAI_BASE_URL"); val != "" {
		c.OpenAIBaseURL = val
	}
	if val := os.Getenv("OPENAI_MODEL"); val != "" {
		c.OpenAIModel = val
	}
	if val := os.Getenv("LLM_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.LLMTimeout = d
		}
	}

	if val := os.Getenv("TSLADASH_LISTEN_ADDR"); val != "" {
		c.ListenAddr = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.LogFormat = val
	}
	if val := os.Getenv("TSLADASH_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}

	if val := os.Getenv("GEMINI_API_KEY"); val != "" {
		c.GeminiAPIKey = val
	}
	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}
}

// secretsFile mirrors the keys accepted in .streamlit/secrets.toml.
type secretsFile struct {
	GeminiAPIKey        string `toml:"GEMINI_API_KEY"`
	LongportAppKey      string `toml:"LONGPORT_APP_KEY"`
	LongportAppSecret   string `toml:"LONGPORT_APP_SECRET"`
	LongportAccessToken string `toml:"LONGPORT_ACCESS_TOKEN"`
}

// loadSecrets fills secrets that the environment left empty.
func (c *Config) loadSecrets() {
	s, err := LoadSecretsFile(c.SecretsFile)
	if err != nil {
		return
	}
	if c.GeminiAPIKey == "" {
		c.GeminiAPIKey = s.GeminiAPIKey
	}
	if c.LongportAppKey == "" {
		c.LongportAppKey = s.LongportAppKey
	}
	if c.LongportAppSecret == "" {
		c.LongportAppSecret = s.LongportAppSecret
	}
	if c.LongportAccessToken == "" {
		c.LongportAccessToken = s.LongportAccessToken
	}
}

// LoadSecretsFile reads a TOML secrets file.
func LoadSecretsFile(path string) (*secretsFile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("secrets file path is empty")
	}
	var s secretsFile
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("decode secrets %s: %w", path, err)
	}
	s.GeminiAPIKey = strings.TrimSpace(s.GeminiAPIKey)
	return &s, nil
}

// CopySecrets carries credentials from src, which the JSON file never holds.
func (c *Config) CopySecrets(src *Config) {
	if src == nil {
		return
	}
	c.GeminiAPIKey = src.GeminiAPIKey
	c.LongportAppKey = src.LongportAppKey
	c.LongportAppSecret = src.LongportAppSecret
	c.LongportAccessToken = src.LongportAccessToken
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Ticker) == "" {
		return errors.New("ticker is required")
	}
	switch c.DataSource {
	case SourceCSV, SourceYahoo, SourceLongport:
	default:
		return fmt.Errorf("unknown data source %q", c.DataSource)
	}
	switch c.BandMethod {
	case BandMethodMinMax, BandMethodEnvelope:
	default:
		return fmt.Errorf("unknown band method %q", c.BandMethod)
	}
	if c.BandWindow < 2 {
		return fmt.Errorf("band window must be at least 2, got %d", c.BandWindow)
	}
	if c.BandK <= 0 {
		return fmt.Errorf("band k must be positive, got %g", c.BandK)
	}
	if c.SignalThreshold < 0 || c.SignalThreshold >= 1 {
		return fmt.Errorf("signal threshold must be in [0, 1), got %g", c.SignalThreshold)
	}
	if c.MaxChartRows < 1 {
		return fmt.Errorf("max chart rows must be positive, got %d", c.MaxChartRows)
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("lookback days must be positive, got %d", c.LookbackDays)
	}
	switch c.LLMProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.DataCacheDir, filepath.Dir(c.DBPath)}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

// Masked returns a copy with every credential reduced to a short hint.
func (c *Config) Masked() Config {
	out := *c
	out.GeminiAPIKey = MaskSecret(c.GeminiAPIKey)
	out.LongportAppKey = MaskSecret(c.LongportAppKey)
	out.LongportAppSecret = MaskSecret(c.LongportAppSecret)
	out.LongportAccessToken = MaskSecret(c.LongportAccessToken)
	return out
}

func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-2:]
}
