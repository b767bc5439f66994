package provider

import (
	"strings"

	"siecore/apps/console/internal/domain"
)

// Overrides replaces catalog defaults per provider; empty fields keep the default.
type Overrides struct {
	BaseURL map[domain.Provider]string
	Model   map[domain.Provider]string
}

func ResolveBaseURL(id domain.Provider, overrides Overrides) string {
	if v := strings.TrimSpace(overrides.BaseURL[id]); v != "" {
		return strings.TrimRight(v, "/")
	}
	return ResolveProvider(id).DefaultBaseURL
}

func ResolveModel(id domain.Provider, overrides Overrides) string {
	if v := strings.TrimSpace(overrides.Model[id]); v != "" {
		return v
	}
	return ResolveProvider(id).DefaultModel
}

func MaskKey(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "***"
	}
	return s[:3] + "***" + s[len(s)-3:]
}

func MaskCredential(cred domain.Credential) domain.Credential {
	cred.KeyValue = MaskKey(cred.KeyValue)
	return cred
}
