package genform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	defaults "github.com/Paranoid-AF/genform/default"
)

// DefaultMaxLength caps the total generated length (prompt included) in tokens.
const DefaultMaxLength = 200

// Config represents the genform configuration.
type Config struct {
	Version    int              `toml:"version" json:"version"`
	Model      ModelConfig      `toml:"model" json:"model"`
	Generation GenerationConfig `toml:"generation" json:"generation"`
	Device     DeviceConfig     `toml:"device" json:"device"`
	Server     ServerConfig     `toml:"server" json:"server"`
}

// ModelConfig identifies the model and the backend serving it.
type ModelConfig struct {
	ID         string `toml:"id" json:"id"`
	APIBaseURL string `toml:"api_base_url" json:"api_base_url"`
	HubBaseURL string `toml:"hub_base_url" json:"hub_base_url"`
}

// GenerationConfig holds the fixed generation parameters.
type GenerationConfig struct {
	MaxLength int `toml:"max_length" json:"max_length"`
}

// DeviceConfig controls accelerator detection.
type DeviceConfig struct {
	// Force is "cuda", "cpu", or empty to probe.
	Force string `toml:"force" json:"force"`
	// ProbeCommand exits 0 when an accelerator is available.
	ProbeCommand string `toml:"probe_command" json:"probe_command"`
}

// ServerConfig holds web host settings.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
}

// Secrets mirrors secrets.toml.
type Secrets struct {
	HuggingFace struct {
		Token string `toml:"token"`
	} `toml:"huggingface"`
}

// ErrNoCredential is returned when neither the secrets file nor the
// environment provides a token.
var ErrNoCredential = errors.New("huggingface.token not found in secrets")

// ConfigDir returns the config directory path.
// Resolution order: $GENFORM_CONFIG_DIR > $XDG_CONFIG_HOME/genform > ~/.config/genform
func ConfigDir() string {
	if dir := os.Getenv("GENFORM_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "genform")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "genform-config")
	}
	return filepath.Join(home, ".config", "genform")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// SecretsPath returns the full path to the secrets file.
func SecretsPath() string {
	return filepath.Join(ConfigDir(), "secrets.toml")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if err := toml.Unmarshal(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("genform: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile loads config from path, layering it over the defaults.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Zero values in the file fall back to defaults.
	def := DefaultConfig()
	if cfg.Model.ID == "" {
		cfg.Model.ID = def.Model.ID
	}
	if cfg.Model.APIBaseURL == "" {
		cfg.Model.APIBaseURL = def.Model.APIBaseURL
	}
	if cfg.Model.HubBaseURL == "" {
		cfg.Model.HubBaseURL = def.Model.HubBaseURL
	}
	if cfg.Generation.MaxLength == 0 {
		cfg.Generation.MaxLength = def.Generation.MaxLength
	}
	if cfg.Device.ProbeCommand == "" {
		cfg.Device.ProbeCommand = def.Device.ProbeCommand
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	return cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if cfg.Generation.MaxLength < 0 {
		warnings = append(warnings, "generation.max_length is negative; using 200")
	}
	switch strings.ToLower(cfg.Device.Force) {
	case "", "cuda", "cpu":
	default:
		warnings = append(warnings, fmt.Sprintf("device.force %q is not one of cuda, cpu; probing instead", cfg.Device.Force))
	}
	return warnings
}

// ResolveModel returns the model identifier.
// Priority: $GENFORM_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv("GENFORM_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Model.ID
	}
	return ""
}

// ResolveAPIBaseURL returns the inference API base URL.
// Priority: $GENFORM_API_BASE_URL env > config value.
func ResolveAPIBaseURL(cfg *Config) string {
	if url := os.Getenv("GENFORM_API_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Model.APIBaseURL
	}
	return ""
}

// ResolveHubBaseURL returns the model hub base URL.
// Priority: $GENFORM_HUB_BASE_URL env > config value.
func ResolveHubBaseURL(cfg *Config) string {
	if url := os.Getenv("GENFORM_HUB_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Model.HubBaseURL
	}
	return ""
}

// ResolveDevice returns the forced device name, or empty to probe.
// Priority: $GENFORM_DEVICE env > config value.
func ResolveDevice(cfg *Config) string {
	if dev := os.Getenv("GENFORM_DEVICE"); dev != "" {
		return strings.ToLower(dev)
	}
	if cfg != nil {
		return strings.ToLower(cfg.Device.Force)
	}
	return ""
}

// ResolveAddr returns the listen address.
// Priority: $GENFORM_ADDR env > config value.
func ResolveAddr(cfg *Config) string {
	if addr := os.Getenv("GENFORM_ADDR"); addr != "" {
		return addr
	}
	if cfg != nil {
		return cfg.Server.Addr
	}
	return ""
}

// SecretStore reads the access token from secrets.toml, falling back to
// $HF_TOKEN. EnvFiles are loaded into the environment first; variables that
// are already set are not overridden.
type SecretStore struct {
	Path     string
	EnvFiles []string
}

// DefaultSecretStore reads secrets.toml from the config dir and .env files
// from the config dir and the working directory.
func DefaultSecretStore() *SecretStore {
	return &SecretStore{
		Path:     SecretsPath(),
		EnvFiles: []string{filepath.Join(ConfigDir(), ".env"), ".env"},
	}
}

// Token returns the huggingface token.
func (s *SecretStore) Token() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read secrets: %w", err)
	}
	if err == nil {
		var sec Secrets
		if err := toml.Unmarshal(data, &sec); err != nil {
			return "", fmt.Errorf("parse secrets %s: %w", s.Path, err)
		}
		if sec.HuggingFace.Token != "" {
			return sec.HuggingFace.Token, nil
		}
	}

	for _, f := range s.EnvFiles {
		if _, statErr := os.Stat(f); statErr != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return "", fmt.Errorf("load %s: %w", f, err)
		}
	}
	if tok := os.Getenv("HF_TOKEN"); tok != "" {
		return tok, nil
	}
	return "", ErrNoCredential
}
