package domain

import "strings"

const (
	DefaultDeactivationThreshold = 10

	FileTypeFile      = "FILE"
	FileTypeDirectory = "DIRECTORY"
)

type APIErrorBody struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type Provider string

const (
	ProviderGemini      Provider = "GEMINI"
	ProviderOpenRouter  Provider = "OPENROUTER"
	ProviderHuggingFace Provider = "HUGGINGFACE"
	ProviderDeepSeek    Provider = "DEEPSEEK"
	ProviderOther       Provider = "OTHER"
)

// KnownProviders lists the provider tags the console ships with. Tags outside
// this list are accepted and stored; they simply have no driver.
var KnownProviders = []Provider{
	ProviderGemini,
	ProviderOpenRouter,
	ProviderHuggingFace,
	ProviderDeepSeek,
	ProviderOther,
}

func NormalizeProvider(raw string) Provider {
	return Provider(strings.ToUpper(strings.TrimSpace(raw)))
}

type Credential struct {
	ID         int64    `json:"id"`
	Provider   Provider `json:"provider"`
	KeyValue   string   `json:"key_value"`
	Label      string   `json:"label"`
	Priority   int      `json:"priority"`
	IsActive   bool     `json:"is_active"`
	UsageCount int64    `json:"usage_count"`
	ErrorCount int64    `json:"error_count"`
	CreatedAt  string   `json:"created_at,omitempty"`
	UpdatedAt  string   `json:"updated_at,omitempty"`
}

type CredentialPatch struct {
	KeyValue *string `json:"key_value,omitempty"`
	Label    *string `json:"label,omitempty"`
	Priority *int    `json:"priority,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type FileEdit struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type FileNode struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	IsProtected bool   `json:"isProtected"`
}

type Snapshot struct {
	Name       string `json:"name"`
	SourcePath string `json:"source_path"`
	BackupPath string `json:"backup_path"`
	CapturedAt string `json:"captured_at"`
}

type ShellResult struct {
	Command  string `json:"command"`
	Output   string `json:"output"`
	Error    string `json:"error"`
	ExitCode int    `json:"exitCode"`
	Blocked  bool   `json:"blocked,omitempty"`
}

type HealthStatus struct {
	Status        string `json:"status"`
	DB            string `json:"db"`
	OS            string `json:"os"`
	UptimeSeconds int64  `json:"uptime"`
	ActiveKeys    int    `json:"active_keys"`
	ProjectRoot   string `json:"project_root"`
	CheckedAt     string `json:"checked_at"`
}
