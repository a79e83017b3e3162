package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const currentConfigVersion = "1.0"

// configVersionConstraint accepts every config written for this major
// version.
const configVersionConstraint = ">= 1.0, < 2.0"

var (
	ErrConfigNotFound      = errors.New("config file not found")
	ErrUnsupportedVersion  = errors.New("unsupported configVersion")
	ErrInvalidSourcemapOpt = errors.New("sourcemap must be one of none, inline, external")
)

var configFileName = "external-globals.config.json"

// config file names in lookup order
var configFileNames = []string{
	configFileName,
	"external-globals.config.jsonc",
	"external-globals.config.yaml",
	"external-globals.config.yml",
}

const (
	SourcemapNone     = "none"
	SourcemapInline   = "inline"
	SourcemapExternal = "external"
)

type GlobalsConfig struct {
	Schema         string            `json:"$schema,omitempty" yaml:"$schema,omitempty"`
	ConfigVersion  string            `json:"configVersion" yaml:"configVersion"`
	Globals        map[string]string `json:"globals" yaml:"globals"`
	Include        []string          `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude        []string          `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	DynamicWrapper string            `json:"dynamicWrapper,omitempty" yaml:"dynamicWrapper,omitempty"`
	ConstBindings  bool              `json:"constBindings,omitempty" yaml:"constBindings,omitempty"`
	Sourcemap      string            `json:"sourcemap,omitempty" yaml:"sourcemap,omitempty"`
}

// findConfigFile returns the first known config file in dir.
func findConfigFile(dir string) (string, error) {
	for _, name := range configFileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", dir, ErrConfigNotFound)
}

// LoadConfig loads the configuration from configPath, which is either a
// config file or a directory containing one.
func LoadConfig(configPath string) (*GlobalsConfig, string, error) {
	fileInfo, err := os.Stat(configPath)
	if err != nil {
		return nil, "", err
	}

	actualPath := configPath
	if fileInfo.IsDir() {
		actualPath, err = findConfigFile(configPath)
		if err != nil {
			return nil, "", err
		}
	}

	content, err := os.ReadFile(actualPath)
	if err != nil {
		return nil, "", err
	}

	var config *GlobalsConfig
	switch strings.ToLower(filepath.Ext(actualPath)) {
	case ".yaml", ".yml":
		config, err = ParseYamlConfig(content)
	default:
		config, err = ParseConfig(content)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", actualPath, err)
	}
	return config, actualPath, nil
}

// ParseConfig parses a JSON config. Comments and trailing commas are
// accepted.
func ParseConfig(content []byte) (*GlobalsConfig, error) {
	var config GlobalsConfig
	if err := json.Unmarshal(jsonc.ToJSON(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func ParseYamlConfig(content []byte) (*GlobalsConfig, error) {
	var config GlobalsConfig
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks every field that can be checked without touching
// sources. Errors name the offending field.
func (c *GlobalsConfig) Validate() error {
	if err := validateConfigVersion(c.ConfigVersion); err != nil {
		return fmt.Errorf("config.configVersion: %w", err)
	}
	// globals may come from --global flags as well, so an empty map is only
	// rejected once both are merged
	for id, name := range c.Globals {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("config.globals[%q]: %w", id, ErrEmptyGlobalName)
		}
	}
	for i, p := range c.Include {
		if err := validatePattern(p); err != nil {
			return fmt.Errorf("config.include[%d]: %w", i, err)
		}
	}
	for i, p := range c.Exclude {
		if err := validatePattern(p); err != nil {
			return fmt.Errorf("config.exclude[%d]: %w", i, err)
		}
	}
	if _, err := NewTemplateDynamicWrapper(c.DynamicWrapper); err != nil {
		return fmt.Errorf("config.dynamicWrapper: %w", err)
	}
	if err := validateSourcemap(c.Sourcemap); err != nil {
		return fmt.Errorf("config.sourcemap: %w", err)
	}
	return nil
}

func validateConfigVersion(version string) error {
	if version == "" {
		return fmt.Errorf("missing, expected %s: %w", configVersionConstraint, ErrUnsupportedVersion)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%q: %w", version, err)
	}
	constraint, err := semver.NewConstraint(configVersionConstraint)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%q does not satisfy %s: %w", version, configVersionConstraint, ErrUnsupportedVersion)
	}
	return nil
}

func validateSourcemap(mode string) error {
	switch mode {
	case "", SourcemapNone, SourcemapInline, SourcemapExternal:
		return nil
	}
	return fmt.Errorf("%q: %w", mode, ErrInvalidSourcemapOpt)
}

func validatePattern(pattern string) error {
	if len(pattern) >= 3 && pattern[0] == '.' && pattern[1] == '.' && (pattern[2] == '/' || pattern[2] == '\\') {
		return fmt.Errorf("pattern '%s' starts with '../' or '..\\', which is not allowed. Patterns are relative to the working directory", pattern)
	}
	if filepath.IsAbs(pattern) {
		return fmt.Errorf("pattern '%s' is absolute, which is not allowed. Patterns are relative to the working directory", pattern)
	}
	return nil
}

// initConfigFileCore writes a starter config into cwd and returns its path.
func initConfigFileCore(cwd string) (string, error) {
	if existing, err := findConfigFile(cwd); err == nil {
		return "", fmt.Errorf("config file already exists at %s", existing)
	}

	config := GlobalsConfig{
		ConfigVersion: currentConfigVersion,
		Globals: map[string]string{
			"react":     "React",
			"react-dom": "ReactDOM",
		},
		Include:   []string{"src/**/*"},
		Exclude:   []string{"**/*.test.*"},
		Sourcemap: SourcemapInline,
	}

	configJSON, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := filepath.Join(cwd, configFileName)
	if err := os.WriteFile(configPath, append(configJSON, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return configPath, nil
}
