package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG_FILE", "")
	t.Setenv("CONSOLE_PORT", "")
	t.Setenv("CONSOLE_PROJECT_ROOT", "")
	t.Setenv("CONSOLE_DEACTIVATION_THRESHOLD", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Port != defaultPort {
		t.Fatalf("port=%q want=%q", cfg.Port, defaultPort)
	}
	if cfg.DeactivationThreshold != 10 {
		t.Fatalf("threshold=%d want=10", cfg.DeactivationThreshold)
	}
	if cfg.AttemptTimeout != 90*time.Second {
		t.Fatalf("attempt timeout=%s want=90s", cfg.AttemptTimeout)
	}
	if cfg.BackupDir != filepath.Join(".", ".backups") {
		t.Fatalf("backup dir=%q", cfg.BackupDir)
	}
	if cfg.DBPath != filepath.Join(".data", "console.db") {
		t.Fatalf("db path=%q", cfg.DBPath)
	}
	if !reflect.DeepEqual(cfg.ShellAllowlist, DefaultShellAllowlist) {
		t.Fatalf("allowlist=%v", cfg.ShellAllowlist)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "console.yaml")
	body := `port: "9000"
project_root: /srv/app
deactivation_threshold: 3
shell_allowlist: [git, ls]
models:
  gemini: gemini-pro
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONSOLE_CONFIG_FILE", path)
	t.Setenv("CONSOLE_PORT", "9100")
	t.Setenv("CONSOLE_PROJECT_ROOT", "")
	t.Setenv("CONSOLE_DEACTIVATION_THRESHOLD", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Port != "9100" {
		t.Fatalf("port=%q want=9100", cfg.Port)
	}
	if cfg.ProjectRoot != "/srv/app" {
		t.Fatalf("project root=%q", cfg.ProjectRoot)
	}
	if cfg.BackupDir != filepath.Join("/srv/app", ".backups") {
		t.Fatalf("backup dir=%q", cfg.BackupDir)
	}
	if cfg.DeactivationThreshold != 3 {
		t.Fatalf("threshold=%d want=3", cfg.DeactivationThreshold)
	}
	if !reflect.DeepEqual(cfg.ShellAllowlist, []string{"git", "ls"}) {
		t.Fatalf("allowlist=%v", cfg.ShellAllowlist)
	}
	if cfg.GeminiModel != "gemini-pro" {
		t.Fatalf("gemini model=%q", cfg.GeminiModel)
	}
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG_FILE", "")
	t.Setenv("CONSOLE_DEACTIVATION_THRESHOLD", "zero")

	if _, err := Load(); err == nil {
		t.Fatalf("expected invalid threshold error")
	}
}

func TestLoadAttemptTimeoutAllowsZero(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG_FILE", "")
	t.Setenv("CONSOLE_DEACTIVATION_THRESHOLD", "")
	t.Setenv("CONSOLE_ATTEMPT_TIMEOUT_SECONDS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.AttemptTimeout != 0 {
		t.Fatalf("attempt timeout=%s want=0", cfg.AttemptTimeout)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Setenv("CONSOLE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatalf("expected missing config file error")
	}
}

func TestReservedPaths(t *testing.T) {
	cases := []struct {
		name   string
		dbPath string
		want   []string
	}{
		{name: "memory", dbPath: ":memory:"},
		{name: "uri", dbPath: "file:console.db?cache=shared"},
		{
			name:   "data dir",
			dbPath: filepath.Join(".data", "console.db"),
			want: []string{
				".data",
				filepath.Join(".data", "console.db"),
				filepath.Join(".data", "console.db-journal"),
				filepath.Join(".data", "console.db-wal"),
				filepath.Join(".data", "console.db-shm"),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Config{DBPath: tc.dbPath}.ReservedPaths()
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("paths=%v want=%v", got, tc.want)
			}
		})
	}
}
