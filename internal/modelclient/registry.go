package modelclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/af-corp/quorum-engine/internal/config"
)

// providerModelName strips the provider qualifier from a catalog id:
// "openai/gpt-4o" becomes "gpt-4o".
func providerModelName(modelID string) string {
	if i := strings.IndexByte(modelID, '/'); i >= 0 {
		return modelID[i+1:]
	}
	return modelID
}

// providerOf extracts the provider qualifier from a catalog id.
func providerOf(modelID string) (string, bool) {
	if i := strings.IndexByte(modelID, '/'); i > 0 {
		return modelID[:i], true
	}
	return "", false
}

// Registry holds one client per provider.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]ModelClient
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]ModelClient)}
}

func (r *Registry) Register(name string, client ModelClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
}

// ReplaceFrom swaps in another registry's client set, used on provider
// config reload so held references keep working.
func (r *Registry) ReplaceFrom(other *Registry) {
	other.mu.RLock()
	clients := other.clients
	other.mu.RUnlock()
	r.mu.Lock()
	r.clients = clients
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (ModelClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

// BuildFromConfig builds provider clients from the providers config.
func BuildFromConfig(provCfg *config.ProvidersConfig, prices PriceLookup) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		client := &http.Client{
			Timeout: cfg.ClientTimeout(),
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var mc ModelClient
		switch cfg.Type {
		case "anthropic":
			mc = NewAnthropicClient(cfg, client, prices)
		case "openai":
			mc = NewOpenAIClient(cfg, client, prices)
		default:
			// Fall back to OpenAI-compatible for unknown types
			mc = NewOpenAIClient(cfg, client, prices)
		}
		registry.Register(name, mc)
	}
	return registry
}

// Mux routes each call to the client registered for the model's provider,
// so the failover engine sees a single ModelClient for all candidates.
type Mux struct {
	registry *Registry
}

func NewMux(registry *Registry) *Mux {
	return &Mux{registry: registry}
}

func (m *Mux) resolve(modelID string) (ModelClient, error) {
	provider, ok := providerOf(modelID)
	if !ok {
		return nil, fmt.Errorf("model id %q is not provider-qualified", modelID)
	}
	client, ok := m.registry.Get(provider)
	if !ok {
		return nil, fmt.Errorf("no client registered for provider %q", provider)
	}
	return client, nil
}

func (m *Mux) Probe(ctx context.Context, modelID string) error {
	client, err := m.resolve(modelID)
	if err != nil {
		return err
	}
	return client.Probe(ctx, modelID)
}

func (m *Mux) Invoke(ctx context.Context, modelID, prompt, roleContext string) (*Result, error) {
	client, err := m.resolve(modelID)
	if err != nil {
		return nil, err
	}
	return client.Invoke(ctx, modelID, prompt, roleContext)
}
