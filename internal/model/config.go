package model

import "time"

// Config is the complete scitrue configuration
type Config struct {
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Retriever   RetrieverConfig   `yaml:"retriever" mapstructure:"retriever"`
	Journal     JournalConfig     `yaml:"journal" mapstructure:"journal"`
	Activity    ActivityConfig    `yaml:"activity" mapstructure:"activity"`
	Limits      LimitsConfig      `yaml:"limits" mapstructure:"limits"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	User        UserConfig        `yaml:"user" mapstructure:"user"`
}

// LLMConfig selects the text generator and the refiner
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Refiner   string `yaml:"refiner" mapstructure:"refiner"` // llm, passthrough

	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// RetrieverConfig configures the evidence retrieval collaborator
type RetrieverConfig struct {
	Kind              string        `yaml:"kind" mapstructure:"kind"` // http, file
	BaseURL           string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey            string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	File              string        `yaml:"file,omitempty" mapstructure:"file"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size" mapstructure:"burst_size"`
}

// JournalConfig configures the journal metrics lookup
type JournalConfig struct {
	Kind          string        `yaml:"kind" mapstructure:"kind"` // csv, http, none
	CSVPath       string        `yaml:"csv_path,omitempty" mapstructure:"csv_path"`
	BaseURL       string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	CacheEnabled  bool          `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheDir      string        `yaml:"cache_dir" mapstructure:"cache_dir"`
	MemoryTTL     time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL       time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ActivityConfig selects the activity log backend
type ActivityConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend"` // file, sqlite, redis
	Path          string `yaml:"path" mapstructure:"path"`
	RedisAddr     string `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	RedisKey      string `yaml:"redis_key" mapstructure:"redis_key"`
}

// LimitsConfig holds the input and sufficiency thresholds
type LimitsConfig struct {
	MaxClaimLength   int `yaml:"max_claim_length" mapstructure:"max_claim_length"`
	MinRefinedLength int `yaml:"min_refined_length" mapstructure:"min_refined_length"` // refined queries this short or shorter are rejected
	MinEvidence      int `yaml:"min_evidence" mapstructure:"min_evidence"`             // fewer relevant items than this is insufficient
}

// ConcurrencyConfig controls batch parallelism (each run stays sequential)
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// UserConfig identifies who runs are logged under
type UserConfig struct {
	Name  string `yaml:"name" mapstructure:"name"`
	Email string `yaml:"email" mapstructure:"email"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o",
			Timeout:   120,
			MaxTokens: 4096,
			Refiner:   "llm",
		},
		Retriever: RetrieverConfig{
			Kind:              "http",
			BaseURL:           "http://localhost:8080",
			Timeout:           2 * time.Minute,
			RequestsPerSecond: 1,
			BurstSize:         1,
		},
		Journal: JournalConfig{
			Kind:          "csv",
			CSVPath:       "data/scimagojr.csv",
			UserAgent:     "SciTrue/0.1 (+https://github.com/ppiankov/scitrue)",
			Timeout:       10 * time.Second,
			RespectRobots: true,
			CacheEnabled:  true,
			CacheDir:      ".scitrue-cache",
			MemoryTTL:     time.Hour,
			DiskTTL:       30 * 24 * time.Hour,
		},
		Activity: ActivityConfig{
			Backend:  "file",
			Path:     "data/user_activity.json",
			RedisKey: "scitrue:activity",
		},
		Limits: LimitsConfig{
			MaxClaimLength:   DefaultMaxClaimLength,
			MinRefinedLength: 6,
			MinEvidence:      3,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 2,
		},
		Server: ServerConfig{
			Addr: ":8088",
		},
		User: UserConfig{
			Name:  "unknown@example.com",
			Email: "unknown@example.com",
		},
	}
}
