package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

// DefaultServerURL is used when no configuration names a server.
const DefaultServerURL = "http://localhost:8000"

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/trials/)
// 2. Project config (.trials/ under the given directory)
// 3. TRIALS_CONFIG file
// 4. .env file in the given directory
// 5. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		ServerURL: DefaultServerURL,
		LogLevel:  "INFO",
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "trials.json"))
	loadOnce(filepath.Join(globalPath, "trials.jsonc"))

	// 2. Project config
	if directory != "" {
		loadOnce(filepath.Join(directory, "trials.json"))
		loadOnce(filepath.Join(directory, "trials.jsonc"))
		loadOnce(ProjectConfigPath(directory))

		// .env sits beside the project config; values it sets are
		// picked up by the env overrides below. godotenv never
		// overwrites variables already present in the environment.
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	// 3. TRIALS_CONFIG file override
	if configPath := os.Getenv("TRIALS_CONFIG"); configPath != "" {
		loadOnce(configPath)
	}

	// 4. Environment variables (highest priority)
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	// Apply interpolation
	data = interpolate(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate processes {env:VAR} placeholders.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})
}

// mergeConfig merges source config into target. Later sources win.
func mergeConfig(target, source *types.Config) {
	if source.ServerURL != "" {
		target.ServerURL = source.ServerURL
	}
	if source.APIKey != "" {
		target.APIKey = source.APIKey
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if url := os.Getenv("TRIALS_SERVER_URL"); url != "" {
		config.ServerURL = url
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && config.APIKey == "" {
		config.APIKey = key
	}
	if key := os.Getenv("TRIALS_API_KEY"); key != "" {
		config.APIKey = key
	}
	if dir := os.Getenv("TRIALS_DATA_DIR"); dir != "" {
		config.DataDir = dir
	}
	if level := os.Getenv("TRIALS_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// DataDir resolves the storage directory: the configured override when
// set, otherwise the standard data path.
func DataDir(config *types.Config) string {
	if config.DataDir != "" {
		return config.DataDir
	}
	return GetPaths().StoragePath()
}
