package provider

import (
	"sort"
	"strings"

	"siecore/apps/console/internal/domain"
)

const (
	AdapterGemini           = "gemini"
	AdapterOpenAICompatible = "openai-compatible"
	AdapterUnsupported      = "unsupported"
)

type ProviderSpec struct {
	ID             domain.Provider `json:"id"`
	Name           string          `json:"name"`
	Adapter        string          `json:"adapter"`
	DefaultBaseURL string          `json:"default_base_url,omitempty"`
	DefaultModel   string          `json:"default_model,omitempty"`
}

var builtinProviders = map[domain.Provider]ProviderSpec{
	domain.ProviderGemini: {
		ID:           domain.ProviderGemini,
		Name:         "Google Gemini",
		Adapter:      AdapterGemini,
		DefaultModel: "gemini-2.5-flash",
	},
	domain.ProviderOpenRouter: {
		ID:             domain.ProviderOpenRouter,
		Name:           "OpenRouter",
		Adapter:        AdapterOpenAICompatible,
		DefaultBaseURL: "https://openrouter.ai/api/v1",
		DefaultModel:   "google/gemini-2.5-flash",
	},
	domain.ProviderDeepSeek: {
		ID:             domain.ProviderDeepSeek,
		Name:           "DeepSeek",
		Adapter:        AdapterOpenAICompatible,
		DefaultBaseURL: "https://api.deepseek.com/v1",
		DefaultModel:   "deepseek-chat",
	},
	domain.ProviderHuggingFace: {
		ID:      domain.ProviderHuggingFace,
		Name:    "Hugging Face",
		Adapter: AdapterUnsupported,
	},
	domain.ProviderOther: {
		ID:      domain.ProviderOther,
		Name:    "Other",
		Adapter: AdapterUnsupported,
	},
}

// ResolveProvider returns the builtin spec for id. Unknown tags resolve to an
// unsupported spec carrying the tag itself.
func ResolveProvider(id domain.Provider) ProviderSpec {
	id = domain.NormalizeProvider(string(id))
	if spec, ok := builtinProviders[id]; ok {
		return spec
	}
	return ProviderSpec{ID: id, Name: strings.ToLower(string(id)), Adapter: AdapterUnsupported}
}

func ListProviders() []ProviderSpec {
	out := make([]ProviderSpec, 0, len(builtinProviders))
	for _, spec := range builtinProviders {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}
