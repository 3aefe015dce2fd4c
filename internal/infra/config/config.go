package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM     LLMConfig         `yaml:"llm"`
	Gateway ToolGatewayConfig `yaml:"tool_gateway"`
	Skills  SkillsConfig      `yaml:"skills"`
	Store   StoreConfig       `yaml:"store"`
	HTTP    HTTPConfig        `yaml:"http"`
	Audit   AuditConfig       `yaml:"audit"`
	Logger  LoggerConfig      `yaml:"logger"`
	Tracer  TracerConfig      `yaml:"tracer"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ModelRuleConfig is one entry of a provider's model substitution table.
// All set predicates must hold for the rule to fire; the first matching rule
// in a table wins.
type ModelRuleConfig struct {
	ModelEmpty    bool     `yaml:"model_empty,omitempty"`
	ModelContains string   `yaml:"model_contains,omitempty"`
	AnySkill      []string `yaml:"any_skill,omitempty"`
	AnyTool       []string `yaml:"any_tool,omitempty"`
	Replace       string   `yaml:"replace"`
}

// PricingConfig is a per-million-token price pair.
type PricingConfig struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`

	// BlockedTools are refused on this backend even when installed.
	// nil keeps the backend default; an empty list blocks nothing.
	BlockedTools []string `yaml:"blocked_tools"`
	// ModelRules replaces the backend's default substitution table when set.
	ModelRules []ModelRuleConfig `yaml:"model_rules,omitempty"`
	Pricing    *PricingConfig    `yaml:"pricing,omitempty"`
}

// ToolGatewayConfig holds the remote tool gateway connection settings.
type ToolGatewayConfig struct {
	BaseURL      string        `yaml:"base_url"`
	TenantID     string        `yaml:"tenant_id"`
	AgentID      string        `yaml:"agent_id"`
	DiscoveryKey string        `yaml:"discovery_key"`
	InvokeKey    string        `yaml:"invoke_key"`
	Timeout      time.Duration `yaml:"timeout"`
	// DiscoverOnStart runs discovery once at startup; failure is logged only.
	DiscoverOnStart bool `yaml:"discover_on_start"`
	// ValidateArgs checks arguments against the discovered schema before invoking.
	ValidateArgs bool `yaml:"validate_args"`
	// InvokeRatePerMin caps outgoing invocations; 0 disables the limiter.
	InvokeRatePerMin int `yaml:"invoke_rate_per_min"`
}

// SkillsConfig holds skill catalog settings.
type SkillsConfig struct {
	// Dir holds extra skill definitions (*.yaml) merged after the built-ins.
	Dir string `yaml:"dir"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds the HTTP API listener settings.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// AuditConfig holds the activity log settings.
type AuditConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	MaxAge  time.Duration `yaml:"max_age"`
	MaxSize string        `yaml:"max_size"` // e.g. "100MB"; empty is unlimited
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings. SampleRatio is the fraction of root
// spans kept; zero keeps all.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// defaultDataDir returns the persistent data directory under $HOME/.foundry.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".foundry")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "gemini",
			Providers: []ProviderConfig{
				{Name: "gemini", Type: "gemini"},
				{Name: "openai", Type: "openai"},
				{Name: "ollama", Type: "ollama", BaseURL: "http://localhost:11434"},
			},
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Gateway: ToolGatewayConfig{
			BaseURL:          "http://localhost:8020",
			TenantID:         "20dbb818-6802-46f5-aa9e-8352fba88f1c",
			AgentID:          "agent_foundry_user",
			DiscoveryKey:     "dev_api_key_123",
			InvokeKey:        "kyx_dev_s-wX2vB1J6I4tgAp",
			Timeout:          30 * time.Second,
			DiscoverOnStart:  true,
			InvokeRatePerMin: 0,
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultDataDir(), "foundry.db"),
		},
		HTTP: HTTPConfig{
			Addr:           "127.0.0.1:8000",
			RequestsPerMin: 100,
			Burst:          20,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(defaultDataDir(), "audit.jsonl"),
			MaxAge:  30 * 24 * time.Hour,
			MaxSize: "100MB",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// envFiles are loaded, if present, before env overrides are applied.
// Variables already set in the process environment win.
var envFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads credential files from dir into the process environment.
func LoadEnvFiles(dir string) error {
	for _, name := range envFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if err := LoadEnvFiles(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("env files: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("FOUNDRY_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// credentialEnv lists the conventional API-key variables per provider type,
// consulted when no key was configured.
var credentialEnv = map[string][]string{
	"gemini": {"GEMINI_API_KEY", "VITE_GEMINI_API_KEY"},
	"openai": {"OPENAI_API_KEY", "VITE_OPENAI_API_KEY"},
}

// ApplyEnvOverrides maps FOUNDRY_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FOUNDRY_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("FOUNDRY_LLM_CIRCUIT_BREAKER_ENABLED"); v == "true" {
		cfg.LLM.CircuitBreaker.Enabled = true
	}
	if v := os.Getenv("FOUNDRY_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("FOUNDRY_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("FOUNDRY_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("FOUNDRY_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("FOUNDRY_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("FOUNDRY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("FOUNDRY_SKILLS_DIR"); v != "" {
		cfg.Skills.Dir = v
	}
	if v := os.Getenv("FOUNDRY_AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = v == "true"
	}
	if v := os.Getenv("FOUNDRY_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}

	if v := os.Getenv("FOUNDRY_TOOL_GATEWAY_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("FOUNDRY_TOOL_GATEWAY_TENANT_ID"); v != "" {
		cfg.Gateway.TenantID = v
	}
	if v := os.Getenv("FOUNDRY_TOOL_GATEWAY_AGENT_ID"); v != "" {
		cfg.Gateway.AgentID = v
	}
	if v := os.Getenv("FOUNDRY_TOOL_GATEWAY_DISCOVERY_KEY"); v != "" {
		cfg.Gateway.DiscoveryKey = v
	}
	if v := os.Getenv("FOUNDRY_TOOL_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.InvokeKey = v
	}
	if v := os.Getenv("FOUNDRY_TOOL_GATEWAY_VALIDATE_ARGS"); v != "" {
		cfg.Gateway.ValidateArgs = v == "true"
	}
	if v := os.Getenv("FOUNDRY_TOOL_GATEWAY_RATE_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Gateway.InvokeRatePerMin = n
		}
	}

	// Per-provider overrides: FOUNDRY_LLM_PROVIDER_<NAME>_{API_KEY,BASE_URL,MODEL}
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		prefix := "FOUNDRY_LLM_PROVIDER_" + strings.ToUpper(p.Name) + "_"
		if v := os.Getenv(prefix + "API_KEY"); v != "" {
			p.APIKey = v
		}
		if v := os.Getenv(prefix + "BASE_URL"); v != "" {
			p.BaseURL = v
		}
		if v := os.Getenv(prefix + "MODEL"); v != "" {
			p.Model = v
		}
		if p.APIKey == "" {
			for _, name := range credentialEnv[p.Type] {
				if v := os.Getenv(name); v != "" {
					p.APIKey = v
					break
				}
			}
		}
	}
}

// decryptSecrets finds "enc:..." values in provider API keys and gateway keys and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}

	for name, fp := range map[string]*string{
		"discovery_key": &cfg.Gateway.DiscoveryKey,
		"invoke_key":    &cfg.Gateway.InvokeKey,
	} {
		if !strings.HasPrefix(*fp, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("tool_gateway %s: %w", name, err)
		}
		*fp = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	// Argon2id, 64 MiB, 4 threads, 32-byte key.
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// validatePermissions checks the config file is not writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

// Provider returns the provider config with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
