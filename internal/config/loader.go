package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for evalgate.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("evalgate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: EVALGATE_WORKER_MAX_CONCURRENT
	viper.SetEnvPrefix("EVALGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an evalgate config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".evalgate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "evalgate"))
		}
	} else {
		paths = append(paths, "/etc/evalgate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for evalgate.yaml or
// .yml. Returns the full path of the first match, or empty string.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "evalgate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the scalar config keys for environment variable
// support. Arrays (evals, policy_files) are file-only.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("store.path")
	_ = viper.BindEnv("baselines.path")

	_ = viper.BindEnv("worker.max_concurrent")
	_ = viper.BindEnv("worker.poll_interval")
	_ = viper.BindEnv("worker.task_timeout")

	_ = viper.BindEnv("logging.level")
	_ = viper.BindEnv("logging.format")

	_ = viper.BindEnv("tracing.enabled")
}

// LoadConfig reads the configuration file, applies environment overrides
// and defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or an
// empty string when running on environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
