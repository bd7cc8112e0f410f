package config

import "time"

// defaultProviderTimeout bounds a single model call when a provider entry
// omits its own timeout.
const defaultProviderTimeout = 60 * time.Second

// ProvidersConfig is the providers.yaml document: one client definition per
// upstream provider, keyed by the qualifier used in catalog model ids
// ("openai/gpt-4o" resolves through the "openai" entry).
type ProvidersConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one upstream provider client. Type selects the
// wire dialect; unknown types fall back to the OpenAI dialect. APIVersion is
// only consulted by the Anthropic dialect. Headers are sent verbatim on
// every request.
type ProviderConfig struct {
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	APIVersion    string            `yaml:"api_version,omitempty"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

// ClientTimeout is the per-call timeout for this provider, defaulted when
// the entry leaves it unset.
func (p ProviderConfig) ClientTimeout() time.Duration {
	if p.Timeout <= 0 {
		return defaultProviderTimeout
	}
	return p.Timeout
}
