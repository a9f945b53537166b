package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

// Config holds the ragmail configuration. It is built once at start-up and
// passed into every client.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Source     SourceConfig     `yaml:"source"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Generation GenerationConfig `yaml:"generation"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Mail       MailConfig       `yaml:"mail"`
	Ops        OpsConfig        `yaml:"ops"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// SourceConfig locates the policy document and the system prompt.
type SourceConfig struct {
	DocumentPath     string `yaml:"document_path"`
	SystemPromptPath string `yaml:"system_prompt_path"`
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // only "openai" (any OpenAI-compatible endpoint)
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// Index drivers.
const (
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// IndexConfig holds vector store settings.
type IndexConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey, sqlite, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	Name             string   `yaml:"name"`
	KeyPrefix        string   `yaml:"key_prefix"`
	SQLitePath       string   `yaml:"sqlite_path"`
	TopK             int      `yaml:"top_k"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Generation APIs.
const (
	GenerationResponses = "responses"
	GenerationChat      = "chat"
)

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	API       string `yaml:"api"` // responses (default) or chat
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Indexing error policies.
const (
	PolicyContinue = "continue"
	PolicyAbort    = "abort"
)

// IndexingConfig controls the offline indexing run.
type IndexingConfig struct {
	ErrorPolicy string `yaml:"error_policy"` // continue (default) or abort
	Workers     int    `yaml:"workers"`
}

// PromptConfig controls prompt assembly.
type PromptConfig struct {
	EscapeDelimiters bool `yaml:"escape_delimiters"`
}

// MailConfig holds mailbox settings.
type MailConfig struct {
	IMAPAddr        string `yaml:"imap_addr"` // host:port, implicit TLS
	SMTPHost        string `yaml:"smtp_host"`
	SMTPPort        int    `yaml:"smtp_port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	From            string `yaml:"from"`
	Mailbox         string `yaml:"mailbox"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	LockFile        string `yaml:"lock_file"`
}

// PollInterval returns the configured poll interval.
func (m MailConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSec) * time.Second
}

// OpsConfig holds the ops HTTP server settings (health, metrics, ask).
type OpsConfig struct {
	Port            int      `yaml:"port"` // 0 disables the server
	APIKeys         []string `yaml:"api_keys"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from the given YAML file.
// A .env file next to the working directory is loaded first; process env wins.
func LoadFile(configPath string) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Source.DocumentPath == "" {
		c.Source.DocumentPath = filepath.Join("doc", "policy.txt")
	}
	if c.Source.SystemPromptPath == "" {
		c.Source.SystemPromptPath = filepath.Join("doc", "system_prompt.md")
	}
	// The default overlap only applies together with the default size;
	// an explicit chunk_size without chunk_overlap means no overlap.
	if c.Source.ChunkSize == 0 {
		c.Source.ChunkSize = domain.DefaultChunkSize
		if c.Source.ChunkOverlap == 0 {
			c.Source.ChunkOverlap = domain.DefaultChunkOverlap
		}
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = domain.DefaultEmbeddingModel
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = domain.DefaultDimensions
	}
	if c.Index.Driver == "" {
		c.Index.Driver = DriverRedis
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = domain.KeyPrefix
	}
	if c.Index.Name == "" {
		c.Index.Name = "policy"
	}
	if c.Index.SQLitePath == "" {
		c.Index.SQLitePath = "ragmail.db"
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = domain.DefaultTopK
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Index.ReadinessTimeout <= 0 {
		c.Index.ReadinessTimeout = 10
	}
	if c.Generation.API == "" {
		c.Generation.API = GenerationResponses
	}
	if c.Generation.Model == "" {
		c.Generation.Model = domain.DefaultGenerationModel
	}
	if c.Generation.APIKey == "" {
		c.Generation.APIKey = c.Embedding.APIKey
	}
	if c.Indexing.ErrorPolicy == "" {
		c.Indexing.ErrorPolicy = PolicyContinue
	}
	if c.Indexing.Workers <= 0 {
		c.Indexing.Workers = 1
	}
	if c.Mail.SMTPPort <= 0 {
		c.Mail.SMTPPort = 587
	}
	if c.Mail.Mailbox == "" {
		c.Mail.Mailbox = "INBOX"
	}
	if c.Mail.PollIntervalSec <= 0 {
		c.Mail.PollIntervalSec = 2
	}
	if c.Mail.From == "" {
		c.Mail.From = c.Mail.Username
	}
	if c.Ops.ReadTimeoutSec <= 0 {
		c.Ops.ReadTimeoutSec = 10
	}
	if c.Ops.WriteTimeoutSec <= 0 {
		c.Ops.WriteTimeoutSec = 120
	}
	if c.Ops.ShutdownSec <= 0 {
		c.Ops.ShutdownSec = 10
	}
	if c.Mail.LockFile == "" {
		c.Mail.LockFile = filepath.Join(os.TempDir(), "ragmail-poll.lock")
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.Source.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("source.chunk_size must be positive, got %d", c.Source.ChunkSize))
	}
	if c.Source.ChunkOverlap < 0 || c.Source.ChunkOverlap >= c.Source.ChunkSize {
		errs = append(errs, fmt.Errorf(
			"source.chunk_overlap must be in [0, chunk_size), got %d (chunk_size %d)",
			c.Source.ChunkOverlap, c.Source.ChunkSize,
		))
	}
	if c.Embedding.Provider != "openai" {
		errs = append(errs, fmt.Errorf("embedding.provider must be \"openai\", got %q", c.Embedding.Provider))
	}

	switch c.Index.Driver {
	case DriverRedis, DriverValkey:
		if len(c.Index.Addrs) == 0 {
			errs = append(errs, errors.New("index.addrs is required for driver "+c.Index.Driver))
		}
	case DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf(
			"index.driver must be one of redis, valkey, sqlite, memory, got %q", c.Index.Driver,
		))
	}

	switch c.Generation.API {
	case GenerationResponses, GenerationChat:
	default:
		errs = append(errs, fmt.Errorf(
			"generation.api must be \"responses\" or \"chat\", got %q", c.Generation.API,
		))
	}

	switch c.Indexing.ErrorPolicy {
	case PolicyContinue, PolicyAbort:
	default:
		errs = append(errs, fmt.Errorf(
			"indexing.error_policy must be \"continue\" or \"abort\", got %q", c.Indexing.ErrorPolicy,
		))
	}

	if c.Ops.Port < 0 || c.Ops.Port > 65535 {
		errs = append(errs, fmt.Errorf("ops.port must be between 0 and 65535, got %d", c.Ops.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}

// ValidateMail checks the settings required by the mailbox poller.
func (c *Config) ValidateMail() error {
	var missing []string
	if c.Mail.IMAPAddr == "" {
		missing = append(missing, "mail.imap_addr")
	}
	if c.Mail.SMTPHost == "" {
		missing = append(missing, "mail.smtp_host")
	}
	if c.Mail.Username == "" {
		missing = append(missing, "mail.username")
	}
	if c.Mail.Password == "" {
		missing = append(missing, "mail.password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", domain.ErrInvalidConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

func loadDotEnv() error {
	path := os.Getenv("RAGMAIL_DOTENV")
	if path == "" {
		path = ".env"
	}
	if !fileExists(path) {
		return nil
	}
	// godotenv.Load never overrides variables already present in the process env.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
