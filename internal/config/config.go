package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHost                  = "127.0.0.1"
	defaultPort                  = "8090"
	defaultDataDir               = ".data"
	defaultDBFile                = "console.db"
	defaultBackupDirName         = ".backups"
	defaultDeactivationThreshold = 10
	defaultAttemptTimeout        = 90 * time.Second
	defaultShellTimeout          = 60 * time.Second
	defaultHealthSchedule        = "@every 10s"
	defaultGeminiModel           = "gemini-2.5-flash"
	defaultOpenRouterBaseURL     = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel       = "google/gemini-2.5-flash"
	defaultDeepSeekBaseURL       = "https://api.deepseek.com/v1"
	defaultDeepSeekModel         = "deepseek-chat"
)

var (
	DefaultProtectedPaths = []string{"server", "internal/review", "*AICore*"}
	DefaultShellAllowlist = []string{
		"npm", "npx", "node", "git", "ls", "cat", "pwd", "echo", "go", "make",
		"df", "du", "uptime", "whoami", "tail", "head", "grep",
	}
)

type Config struct {
	Host                  string
	Port                  string
	DataDir               string
	DBPath                string
	APIKey                string
	ProjectRoot           string
	BackupDir             string
	ProtectedPaths        []string
	DeactivationThreshold int
	AttemptTimeout        time.Duration
	ShellTimeout          time.Duration
	ShellAllowlist        []string
	HealthSchedule        string
	GeminiModel           string
	OpenRouterBaseURL     string
	OpenRouterModel       string
	DeepSeekBaseURL       string
	DeepSeekModel         string
}

// fileConfig mirrors the optional YAML file. Empty values leave defaults alone.
type fileConfig struct {
	Host                  string   `yaml:"host"`
	Port                  string   `yaml:"port"`
	DataDir               string   `yaml:"data_dir"`
	DBPath                string   `yaml:"db_path"`
	ProjectRoot           string   `yaml:"project_root"`
	BackupDir             string   `yaml:"backup_dir"`
	ProtectedPaths        []string `yaml:"protected_paths"`
	DeactivationThreshold int      `yaml:"deactivation_threshold"`
	AttemptTimeoutSeconds int      `yaml:"attempt_timeout_seconds"`
	ShellTimeoutSeconds   int      `yaml:"shell_timeout_seconds"`
	ShellAllowlist        []string `yaml:"shell_allowlist"`
	HealthSchedule        string   `yaml:"health_schedule"`
	Models                struct {
		Gemini     string `yaml:"gemini"`
		OpenRouter string `yaml:"openrouter"`
		DeepSeek   string `yaml:"deepseek"`
	} `yaml:"models"`
	BaseURLs struct {
		OpenRouter string `yaml:"openrouter"`
		DeepSeek   string `yaml:"deepseek"`
	} `yaml:"base_urls"`
}

func Defaults() Config {
	return Config{
		Host:                  defaultHost,
		Port:                  defaultPort,
		DataDir:               defaultDataDir,
		ProjectRoot:           ".",
		ProtectedPaths:        append([]string(nil), DefaultProtectedPaths...),
		DeactivationThreshold: defaultDeactivationThreshold,
		AttemptTimeout:        defaultAttemptTimeout,
		ShellTimeout:          defaultShellTimeout,
		ShellAllowlist:        append([]string(nil), DefaultShellAllowlist...),
		HealthSchedule:        defaultHealthSchedule,
		GeminiModel:           defaultGeminiModel,
		OpenRouterBaseURL:     defaultOpenRouterBaseURL,
		OpenRouterModel:       defaultOpenRouterModel,
		DeepSeekBaseURL:       defaultDeepSeekBaseURL,
		DeepSeekModel:         defaultDeepSeekModel,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONSOLE_CONFIG_FILE (if any), then CONSOLE_* environment variables.
func Load() (Config, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONSOLE_CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	finalize(&cfg)
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	setString(&cfg.Host, fc.Host)
	setString(&cfg.Port, fc.Port)
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.ProjectRoot, fc.ProjectRoot)
	setString(&cfg.BackupDir, fc.BackupDir)
	setString(&cfg.HealthSchedule, fc.HealthSchedule)
	setString(&cfg.GeminiModel, fc.Models.Gemini)
	setString(&cfg.OpenRouterModel, fc.Models.OpenRouter)
	setString(&cfg.DeepSeekModel, fc.Models.DeepSeek)
	setString(&cfg.OpenRouterBaseURL, fc.BaseURLs.OpenRouter)
	setString(&cfg.DeepSeekBaseURL, fc.BaseURLs.DeepSeek)
	if len(fc.ProtectedPaths) > 0 {
		cfg.ProtectedPaths = cleanList(fc.ProtectedPaths)
	}
	if len(fc.ShellAllowlist) > 0 {
		cfg.ShellAllowlist = cleanList(fc.ShellAllowlist)
	}
	if fc.DeactivationThreshold > 0 {
		cfg.DeactivationThreshold = fc.DeactivationThreshold
	}
	if fc.AttemptTimeoutSeconds > 0 {
		cfg.AttemptTimeout = time.Duration(fc.AttemptTimeoutSeconds) * time.Second
	}
	if fc.ShellTimeoutSeconds > 0 {
		cfg.ShellTimeout = time.Duration(fc.ShellTimeoutSeconds) * time.Second
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Host, os.Getenv("CONSOLE_HOST"))
	setString(&cfg.Port, os.Getenv("CONSOLE_PORT"))
	setString(&cfg.DataDir, os.Getenv("CONSOLE_DATA_DIR"))
	setString(&cfg.DBPath, os.Getenv("CONSOLE_DB_PATH"))
	setString(&cfg.APIKey, os.Getenv("CONSOLE_API_KEY"))
	setString(&cfg.ProjectRoot, os.Getenv("CONSOLE_PROJECT_ROOT"))
	setString(&cfg.BackupDir, os.Getenv("CONSOLE_BACKUP_DIR"))
	setString(&cfg.HealthSchedule, os.Getenv("CONSOLE_HEALTH_SCHEDULE"))
	setString(&cfg.GeminiModel, os.Getenv("CONSOLE_GEMINI_MODEL"))
	setString(&cfg.OpenRouterModel, os.Getenv("CONSOLE_OPENROUTER_MODEL"))
	setString(&cfg.OpenRouterBaseURL, os.Getenv("CONSOLE_OPENROUTER_BASE_URL"))
	setString(&cfg.DeepSeekModel, os.Getenv("CONSOLE_DEEPSEEK_MODEL"))
	setString(&cfg.DeepSeekBaseURL, os.Getenv("CONSOLE_DEEPSEEK_BASE_URL"))
	if raw := strings.TrimSpace(os.Getenv("CONSOLE_PROTECTED_PATHS")); raw != "" {
		cfg.ProtectedPaths = cleanList(strings.Split(raw, ","))
	}
	if raw := strings.TrimSpace(os.Getenv("CONSOLE_SHELL_ALLOWLIST")); raw != "" {
		cfg.ShellAllowlist = cleanList(strings.Split(raw, ","))
	}

	threshold, err := readIntEnv("CONSOLE_DEACTIVATION_THRESHOLD", cfg.DeactivationThreshold, false)
	if err != nil {
		return err
	}
	cfg.DeactivationThreshold = threshold

	attempt, err := readDurationSecondsEnv("CONSOLE_ATTEMPT_TIMEOUT_SECONDS", cfg.AttemptTimeout, true)
	if err != nil {
		return err
	}
	cfg.AttemptTimeout = attempt

	shellTimeout, err := readDurationSecondsEnv("CONSOLE_SHELL_TIMEOUT_SECONDS", cfg.ShellTimeout, false)
	if err != nil {
		return err
	}
	cfg.ShellTimeout = shellTimeout
	return nil
}

func finalize(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, defaultDBFile)
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(cfg.ProjectRoot, defaultBackupDirName)
	}
}

// ReservedPaths lists the on-disk database locations that file operations
// must never reach. The data directory is included whole; when it is the
// project root only the database file and its sqlite sidecars are listed.
func (c Config) ReservedPaths() []string {
	dbPath := strings.TrimSpace(c.DBPath)
	if dbPath == "" || dbPath == ":memory:" || strings.HasPrefix(dbPath, "file:") {
		return nil
	}
	out := []string{filepath.Dir(dbPath)}
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		out = append(out, dbPath+suffix)
	}
	return out
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func readIntEnv(key string, fallback int, allowZero bool) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	if value < 0 || (!allowZero && value == 0) {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return value, nil
}

func readDurationSecondsEnv(key string, fallback time.Duration, allowZero bool) (time.Duration, error) {
	seconds, err := readIntEnv(key, int(fallback/time.Second), allowZero)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}
