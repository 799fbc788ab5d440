package config

import (
	"fmt"
	"os"
	"strings"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads configDir/pipeline.yaml (if present), expands ${VAR}/$VAR
// references against the process environment, and layers it over Builtin's
// defaults with mergo so the on-disk document only needs to name what it
// overrides. It first loads configDir/.env (if present) into the process
// environment, ahead of YAML parsing.
func Load(configDir string) (*Config, error) {
	envPath := joinPath(configDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	}

	cfg := Builtin()

	yamlPath := joinPath(configDir, "pipeline.yaml")
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, NewLoadError(yamlPath, err)
		}
		data = nil
	}

	if data != nil {
		data = ExpandEnv(data)

		var override Config
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, NewLoadError(yamlPath, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}

		if err := mergo.Merge(cfg, override, mergo.WithOverride); err != nil {
			return nil, NewLoadError(yamlPath, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return cfg, nil
}

func joinPath(dir, file string) string {
	if dir == "" {
		return file
	}
	return strings.TrimRight(dir, "/") + "/" + file
}
