package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	LDAP       LDAPConfig       `yaml:"ldap"`
	Gradescope GradescopeConfig `yaml:"gradescope"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Redis      RedisConfig      `yaml:"redis"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

type LDAPConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	BaseDN       string `yaml:"base_dn"`
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`
	UserFilter   string `yaml:"user_filter"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// GradescopeConfig describes how to reach and authenticate against
// Gradescope.
type GradescopeConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Email          string  `yaml:"email"`
	Password       string  `yaml:"password"`
	CookieFile     string  `yaml:"cookie_file"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
}

// ClassifierConfig selects the zero-shot classifier backend.
type ClassifierConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic, ollama, gemini
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// AnalysisConfig holds run defaults. Parallelism must be positive; it is
// validated before any network work starts.
type AnalysisConfig struct {
	CacheDir       string `yaml:"cache_dir"`
	Parallelism    int    `yaml:"parallelism"`
	Classify       bool   `yaml:"classify"`
	MinRequests    int    `yaml:"min_requests"`
	Metric         string `yaml:"metric"` // total, unique
	RefreshCron    string `yaml:"refresh_cron"`
	HolidayCountry string `yaml:"holiday_country"`
}

// RedisConfig for the optional async task queue.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
		cfg = &fileCfg
	}

	cfg.overrideFromEnv()
	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "gradelens.db",
		},
		JWT: JWTConfig{
			Secret:     "gradelens-secret-key-change-in-production",
			ExpireHour: 24,
		},
		LDAP: LDAPConfig{
			Enabled:    false,
			Port:       389,
			UserFilter: "(uid=%s)",
		},
		Gradescope: GradescopeConfig{
			BaseURL:        "https://www.gradescope.com",
			CookieFile:     "cookies.json",
			TimeoutSeconds: 20,
			RequestsPerSec: 5,
		},
		Classifier: ClassifierConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
		},
		Analysis: AnalysisConfig{
			CacheDir:       "cache",
			Parallelism:    10,
			Classify:       true,
			MinRequests:    0,
			Metric:         "total",
			RefreshCron:    "",
			HolidayCountry: "US",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
	}
}

// Validate rejects configuration the pipeline cannot run with. This happens
// at load time, before any network or classification work.
func (c *Config) Validate() error {
	if c.Analysis.Parallelism <= 0 {
		return fmt.Errorf("analysis.parallelism must be a positive integer, got %d", c.Analysis.Parallelism)
	}
	if c.Analysis.Metric != "total" && c.Analysis.Metric != "unique" {
		return fmt.Errorf("analysis.metric must be \"total\" or \"unique\", got %q", c.Analysis.Metric)
	}
	if c.Gradescope.TimeoutSeconds <= 0 {
		return fmt.Errorf("gradescope.timeout_seconds must be positive, got %d", c.Gradescope.TimeoutSeconds)
	}
	return nil
}

// applyFallbacks fills zero values that a partial config file leaves behind.
func (c *Config) applyFallbacks() {
	def := DefaultConfig()
	if c.Gradescope.BaseURL == "" {
		c.Gradescope.BaseURL = def.Gradescope.BaseURL
	}
	if c.Gradescope.CookieFile == "" {
		c.Gradescope.CookieFile = def.Gradescope.CookieFile
	}
	if c.Gradescope.TimeoutSeconds == 0 {
		c.Gradescope.TimeoutSeconds = def.Gradescope.TimeoutSeconds
	}
	if c.Gradescope.RequestsPerSec == 0 {
		c.Gradescope.RequestsPerSec = def.Gradescope.RequestsPerSec
	}
	if c.Analysis.CacheDir == "" {
		c.Analysis.CacheDir = def.Analysis.CacheDir
	}
	if c.Analysis.Parallelism == 0 {
		c.Analysis.Parallelism = def.Analysis.Parallelism
	}
	if c.Analysis.Metric == "" {
		c.Analysis.Metric = def.Analysis.Metric
	}
	if c.Analysis.HolidayCountry == "" {
		c.Analysis.HolidayCountry = def.Analysis.HolidayCountry
	}
	if c.Server.Mode == "" {
		c.Server.Mode = def.Server.Mode
	}
	if c.Database.Driver == "" {
		c.Database = def.Database
	}
	if c.JWT.ExpireHour == 0 {
		c.JWT.ExpireHour = def.JWT.ExpireHour
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if email := os.Getenv("GRADESCOPE_EMAIL"); email != "" {
		c.Gradescope.Email = email
	}
	if password := os.Getenv("GRADESCOPE_PASSWORD"); password != "" {
		c.Gradescope.Password = password
	}
	if baseURL := os.Getenv("CLASSIFIER_BASE_URL"); baseURL != "" {
		c.Classifier.BaseURL = baseURL
	}
	if apiKey := os.Getenv("CLASSIFIER_API_KEY"); apiKey != "" {
		c.Classifier.APIKey = apiKey
	}
	if model := os.Getenv("CLASSIFIER_MODEL"); model != "" {
		c.Classifier.Model = model
	}
	if provider := os.Getenv("CLASSIFIER_PROVIDER"); provider != "" {
		c.Classifier.Provider = provider
	}
	if parallel := os.Getenv("ANALYSIS_PARALLELISM"); parallel != "" {
		if n, err := strconv.Atoi(parallel); err == nil {
			c.Analysis.Parallelism = n
		}
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = redisAddr
	}
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
