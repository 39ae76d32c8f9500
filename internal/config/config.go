// Package config loads server configuration from flags, environment variables and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Server   ServerConfig
	Dispatch DispatchConfig
	Plugins  PluginConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig locates server state on disk.
type DataConfig struct {
	// BasePath holds server state (default: ~/Lumen).
	BasePath string
	// LibraryList is the persisted library-list document (default: {data}/libraries.json).
	LibraryList string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        // default: 8080
	PublicURL      string        // base for public file/thumb URLs; empty disables them
	ReadTimeout    time.Duration // default: 15s
	WriteTimeout   time.Duration // default: 60s
	IdleTimeout    time.Duration // default: 120s
	MaxConnections int           // 0 = unlimited
	AllowedOrigins []string      // CORS and websocket origins; empty allows any
}

// DispatchConfig throttles dispatch calls per client.
type DispatchConfig struct {
	// Rate is the sustained dispatch calls per second per client (default: 50).
	Rate float64
	// Burst is the bucket size (default: 100).
	Burst int
	// ImportRoots are the server directories file.import may read from
	// (default: {data}/imports).
	ImportRoots []string
}

// PluginConfig lists plugins loaded into every library session.
type PluginConfig struct {
	Default []string
}

// Load reads configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("lumen", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for server state")
	libraryList := fs.String("library-list", "", "Path to the library list (.json or .toml)")
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	publicURL := fs.String("public-url", "", "Public base URL used for file and thumbnail links")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 60s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 120s)")
	maxConns := fs.String("max-connections", "", "Maximum concurrent connections (default: unlimited)")
	dispatchRate := fs.String("dispatch-rate", "", "Dispatch calls per second per client (default: 50)")
	importRoots := fs.String("import-roots", "", "Comma-separated directories clients may import from (default: {data}/imports)")
	defaultPlugins := fs.String("default-plugins", "", "Comma-separated plugins loaded per library")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath:    getConfigValue(*dataPath, "DATA_PATH", ""),
			LibraryList: getConfigValue(*libraryList, "LIBRARY_LIST", ""),
		},
		Server: ServerConfig{
			Port:           getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			PublicURL:      strings.TrimRight(getConfigValue(*publicURL, "PUBLIC_URL", ""), "/"),
			MaxConnections: getIntConfigValue(*maxConns, "MAX_CONNECTIONS", 0),
			AllowedOrigins: splitList(getConfigValue("", "CORS_ORIGINS", "")),
		},
		Dispatch: DispatchConfig{
			Rate:        getFloatConfigValue(*dispatchRate, "DISPATCH_RATE", 50),
			Burst:       getIntConfigValue("", "DISPATCH_BURST", 100),
			ImportRoots: splitList(getConfigValue(*importRoots, "IMPORT_ROOTS", "")),
		},
		Plugins: PluginConfig{
			Default: splitList(getConfigValue(*defaultPlugins, "DEFAULT_PLUGINS", "thumbnail,search")),
		},
	}

	var err error
	if cfg.Server.ReadTimeout, err = getDurationConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = getDurationConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = getDurationConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "120s"); err != nil {
		return nil, err
	}

	if err := cfg.expandDataPaths(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	ext := strings.ToLower(filepath.Ext(c.Data.LibraryList))
	if ext != ".json" && ext != ".toml" {
		return fmt.Errorf("library list must be a .json or .toml file, got %q", c.Data.LibraryList)
	}

	if c.Server.PublicURL != "" && !strings.HasPrefix(c.Server.PublicURL, "http://") &&
		!strings.HasPrefix(c.Server.PublicURL, "https://") {
		return fmt.Errorf("public url must start with http:// or https://, got %q", c.Server.PublicURL)
	}

	if c.Server.MaxConnections < 0 {
		return errors.New("max connections cannot be negative")
	}

	if c.Dispatch.Rate <= 0 || c.Dispatch.Burst <= 0 {
		return errors.New("dispatch rate and burst must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPaths resolves the data directory, the library list inside it and the
// import roots.
func (c *Config) expandDataPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	base, err := expandPath(c.Data.BasePath, filepath.Join(homeDir, "Lumen"))
	if err != nil {
		return err
	}
	c.Data.BasePath = base

	list, err := expandPath(c.Data.LibraryList, filepath.Join(base, "libraries.json"))
	if err != nil {
		return err
	}
	c.Data.LibraryList = list

	if len(c.Dispatch.ImportRoots) == 0 {
		c.Dispatch.ImportRoots = []string{filepath.Join(base, "imports")}
		return nil
	}
	for i, root := range c.Dispatch.ImportRoots {
		if c.Dispatch.ImportRoots[i], err = expandPath(root, ""); err != nil {
			return err
		}
	}
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	raw := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", strings.ToLower(envKey), raw, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real env vars win over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
