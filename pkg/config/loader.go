package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig merges base.yaml, <env>.yaml and secrets.env from configDir into one map.
// Values in the environment file win over base; ${VAR} placeholders are filled from
// secrets.env first and the process environment second.
func LoadConfig(env string, configDir string) (map[string]interface{}, error) {
	if configDir == "" {
		configDir = "config"
	}

	baseConfig, err := loadYAMLFile(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load base.yaml: %w", err)
	}

	envConfig := make(map[string]interface{})
	if env != "" && env != "base" {
		envFile := filepath.Join(configDir, fmt.Sprintf("%s.yaml", env))
		if _, err := os.Stat(envFile); err == nil {
			envConfig, err = loadYAMLFile(envFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s.yaml: %w", env, err)
			}
		}
	}

	merged := mergeMaps(baseConfig, envConfig)

	secrets := make(map[string]string)
	secretsFile := filepath.Join(configDir, "secrets.env")
	if _, err := os.Stat(secretsFile); err == nil {
		secrets, err = loadEnvFile(secretsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load secrets.env: %w", err)
		}
	}

	return substituteEnvVars(merged, secrets), nil
}

// Decode loads the layered config and decodes it into out (a pointer to a yaml-tagged struct).
func Decode(env, configDir string, out interface{}) error {
	cfgMap, err := LoadConfig(env, configDir)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func loadYAMLFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config map[string]interface{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if config == nil {
		config = make(map[string]interface{})
	}
	return config, nil
}

// loadEnvFile reads KEY=VALUE lines, skipping blanks and # comments.
func loadEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	env := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		value = strings.Trim(value, `'`)
		env[strings.TrimSpace(key)] = value
	}

	return env, nil
}

// mergeMaps returns dst overlaid with src; nested maps are merged recursively.
func mergeMaps(dst, src map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(dst))
	for k, v := range dst {
		result[k] = v
	}

	for k, v := range src {
		dstMap, dstOK := result[k].(map[string]interface{})
		srcMap, srcOK := v.(map[string]interface{})
		if dstOK && srcOK {
			result[k] = mergeMaps(dstMap, srcMap)
			continue
		}
		result[k] = v
	}

	return result
}

func substituteEnvVars(config map[string]interface{}, env map[string]string) map[string]interface{} {
	result := make(map[string]interface{}, len(config))
	for k, v := range config {
		switch val := v.(type) {
		case string:
			result[k] = substituteString(val, env)
		case map[string]interface{}:
			result[k] = substituteEnvVars(val, env)
		default:
			result[k] = v
		}
	}
	return result
}

// substituteString expands ${VAR}; unknown variables expand to the empty string.
func substituteString(s string, env map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(key string) string {
		if value, ok := env[key]; ok {
			return value
		}
		return os.Getenv(key)
	})
}

// GetEnv returns the variable or defaultValue when unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv returns CONFIG_ENV, defaulting to local.
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
