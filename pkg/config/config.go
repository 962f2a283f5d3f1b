// Package config provides configuration management for the safer CLI tool
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kjlockhart/safer/pkg/crypto/kdf"
	"github.com/kjlockhart/safer/pkg/crypto/safer"
)

// DeltaProfile is the built-in profile matching Delta Controls equipment.
const DeltaProfile = "delta-sk128"

var (
	ErrProfileNotFound  = errors.New("config: profile not found")
	ErrBuiltinProfile   = errors.New("config: built-in profile cannot be changed")
	ErrInvalidRounds    = errors.New("config: rounds out of range")
	ErrPassphraseLength = errors.New("config: passphrase too short")
)

// Config represents the main configuration structure
type Config struct {
	Version  string          `json:"version"`
	Defaults DefaultSettings `json:"defaults"`
	Security SecurityConfig  `json:"security"`
	UI       UIConfig        `json:"ui"`
	Storage  StorageConfig   `json:"storage"`
}

// DefaultSettings contains default values for cipher operations
type DefaultSettings struct {
	Rounds       int        `json:"rounds"`       // Default: 11
	Strengthened bool       `json:"strengthened"` // Default: true
	KDF          kdf.Method `json:"kdf"`          // Default: legacy
	Armor        bool       `json:"armor"`        // base64 for encrypt/decrypt without --armor
	Profile      string     `json:"profile"`      // Applied when no flags override it
}

type SecurityConfig struct {
	RequirePassphrase   bool       `json:"require_passphrase"`
	MinPassphraseLength int        `json:"min_passphrase_length"`
	KDFParams           kdf.Params `json:"kdf_params"`
}

type UIConfig struct {
	UseColor bool `json:"use_color"`
}

type StorageConfig struct {
	KeyFile string `json:"key_file"` // Default --out for keygen
}

// Profile is a named preset of cipher parameters.
type Profile struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Rounds       int        `json:"rounds"`
	Strengthened bool       `json:"strengthened"`
	KDF          kdf.Method `json:"kdf"`
	Salt         string     `json:"salt,omitempty"` // hex
	Tags         []string   `json:"tags,omitempty"`
}

// Options are the cipher parameters a command runs with once config,
// profile and flags have been merged.
type Options struct {
	Rounds       int
	Strengthened bool
	KDF          kdf.Method
	Salt         string
	Passphrase   string
}

// ConfigManager manages configuration loading and saving
type ConfigManager struct {
	config     *Config
	configPath string
	profiles   map[string]*Profile
}

// NewConfigManager loads the configuration from the default location,
// falling back to defaults when no file exists. Nothing is written until
// SaveConfig is called.
func NewConfigManager() (*ConfigManager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewConfigManagerAt(configPath)
}

// NewConfigManagerAt is NewConfigManager with an explicit config path.
func NewConfigManagerAt(configPath string) (*ConfigManager, error) {
	cm := &ConfigManager{
		configPath: configPath,
		profiles:   make(map[string]*Profile),
	}

	if err := cm.LoadConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cm.config = DefaultConfig()
	}

	if err := cm.LoadProfiles(); err != nil {
		return nil, err
	}

	return cm, nil
}

// NewDefaultConfigManager returns a manager holding the default configuration
// for path without reading anything from disk.
func NewDefaultConfigManager(path string) *ConfigManager {
	return &ConfigManager{
		config:     DefaultConfig(),
		configPath: path,
		profiles:   make(map[string]*Profile),
	}
}

// DefaultPath resolves the config file location from the environment.
func DefaultPath() (string, error) {
	return getConfigPath()
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Defaults: DefaultSettings{
			Rounds:       safer.SK128Rounds,
			Strengthened: true,
			KDF:          kdf.MethodLegacy,
			Armor:        false,
		},
		Security: SecurityConfig{
			RequirePassphrase:   false,
			MinPassphraseLength: 0,
			KDFParams:           kdf.DefaultParams(),
		},
		UI: UIConfig{
			UseColor: true,
		},
	}
}

func builtinProfiles() map[string]*Profile {
	return map[string]*Profile{
		DeltaProfile: {
			Name:         DeltaProfile,
			Description:  "SAFER SK-128, 11 rounds, legacy reset-filter key derivation",
			Rounds:       safer.SK128Rounds,
			Strengthened: true,
			KDF:          kdf.MethodLegacy,
			Tags:         []string{"builtin"},
		},
	}
}

// LoadConfig loads the configuration from disk
func (cm *ConfigManager) LoadConfig() error {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	cm.config = config
	return nil
}

// SaveConfig saves the configuration to disk
func (cm *ConfigManager) SaveConfig() error {
	configDir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

func (cm *ConfigManager) Path() string {
	return cm.configPath
}

func (cm *ConfigManager) profilesPath() string {
	return filepath.Join(filepath.Dir(cm.configPath), "profiles.json")
}

// LoadProfiles loads user profiles. A missing file is not an error.
func (cm *ConfigManager) LoadProfiles() error {
	data, err := os.ReadFile(cm.profilesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	profiles := make(map[string]*Profile)
	if err := json.Unmarshal(data, &profiles); err != nil {
		return fmt.Errorf("failed to parse profiles: %w", err)
	}

	for name := range builtinProfiles() {
		delete(profiles, name)
	}
	cm.profiles = profiles
	return nil
}

func (cm *ConfigManager) SaveProfiles() error {
	if err := os.MkdirAll(filepath.Dir(cm.configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cm.profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}

	if err := os.WriteFile(cm.profilesPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}

	return nil
}

func (cm *ConfigManager) AddProfile(profile *Profile) error {
	if profile.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if _, ok := builtinProfiles()[profile.Name]; ok {
		return fmt.Errorf("%w: %s", ErrBuiltinProfile, profile.Name)
	}
	if profile.Rounds < 1 || profile.Rounds > safer.MaxRounds {
		return fmt.Errorf("%w: %d", ErrInvalidRounds, profile.Rounds)
	}
	if _, err := kdf.ParseMethod(string(profile.KDF)); err != nil {
		return err
	}

	cm.profiles[profile.Name] = profile
	return cm.SaveProfiles()
}

// GetProfile looks up a user profile, then the built-ins.
func (cm *ConfigManager) GetProfile(name string) (*Profile, error) {
	if profile, ok := cm.profiles[name]; ok {
		return profile, nil
	}
	if profile, ok := builtinProfiles()[name]; ok {
		return profile, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// ListProfiles returns built-in and user profiles sorted by name.
func (cm *ConfigManager) ListProfiles() []*Profile {
	all := builtinProfiles()
	for name, p := range cm.profiles {
		all[name] = p
	}

	profiles := make([]*Profile, 0, len(all))
	for _, profile := range all {
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles
}

func (cm *ConfigManager) DeleteProfile(name string) error {
	if _, ok := builtinProfiles()[name]; ok {
		return fmt.Errorf("%w: %s", ErrBuiltinProfile, name)
	}
	if _, exists := cm.profiles[name]; !exists {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	delete(cm.profiles, name)
	return cm.SaveProfiles()
}

func getConfigPath() (string, error) {
	if customPath := os.Getenv("SAFER_CONFIG"); customPath != "" {
		return customPath, nil
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "safer", "config.json"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "safer", "config.json"), nil
}

// ApplyDefaults fills unset fields of opts from the named profile, or from the
// configured defaults when profile is empty. Strengthened is a force flag: a
// caller that leaves it false gets the profile's schedule variant, even when
// it sets Rounds.
func (cm *ConfigManager) ApplyDefaults(opts *Options, profile string) error {
	if profile == "" {
		profile = cm.config.Defaults.Profile
	}

	rounds := cm.config.Defaults.Rounds
	strengthened := cm.config.Defaults.Strengthened
	method := cm.config.Defaults.KDF
	salt := ""

	if profile != "" {
		p, err := cm.GetProfile(profile)
		if err != nil {
			return err
		}
		rounds, strengthened, method, salt = p.Rounds, p.Strengthened, p.KDF, p.Salt
	}

	if opts.Rounds == 0 {
		opts.Rounds = rounds
	}
	if !opts.Strengthened {
		opts.Strengthened = strengthened
	}
	if opts.KDF == "" {
		opts.KDF = method
	}
	if opts.Salt == "" {
		opts.Salt = salt
	}
	return nil
}

// ValidateOptions checks merged options against the security policy.
func (cm *ConfigManager) ValidateOptions(opts *Options) error {
	if opts.Rounds < 1 || opts.Rounds > safer.MaxRounds {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidRounds, opts.Rounds, safer.MaxRounds)
	}

	if _, err := kdf.ParseMethod(string(opts.KDF)); err != nil {
		return err
	}

	if cm.config.Security.RequirePassphrase && opts.Passphrase == "" {
		return fmt.Errorf("%w: passphrase is required by security policy", ErrPassphraseLength)
	}

	if len(opts.Passphrase) < cm.config.Security.MinPassphraseLength {
		return fmt.Errorf("%w: must be at least %d characters",
			ErrPassphraseLength, cm.config.Security.MinPassphraseLength)
	}

	return nil
}
