package policy

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/af-corp/quorum-engine/internal/config"
)

// Input is the data sent to OPA when admitting a consensus request.
type Input struct {
	Org  InputOrg  `json:"org"`
	Req  InputReq  `json:"request"`
	Time InputTime `json:"time"`
}

type InputOrg struct {
	ID    string `json:"id"`
	Level string `json:"level"`
}

type InputReq struct {
	Tier             int     `json:"tier"`
	Domain           string  `json:"domain"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

type InputTime struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Gate admits consensus requests via OPA. Evaluation fails closed: no
// loaded policies or an evaluation error both deny.
type Gate struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
}

// NewGate creates an admission gate. Call Load to compile policies.
func NewGate(cfg func() config.PolicyConfig) *Gate {
	return &Gate{cfg: cfg}
}

func (g *Gate) Enabled() bool { return g.cfg().Enabled }

// Load compiles Rego modules from the bundle path.
func (g *Gate) Load() error {
	cfg := g.cfg()
	modules, err := loadRegoModules(os.DirFS(cfg.BundlePath))
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	return g.LoadFromModules(modules)
}

// loadRegoModules collects the .rego sources at the top level of fsys,
// keyed by file name.
func loadRegoModules(fsys fs.FS) (map[string]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	modules := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		src, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(src)
	}
	return modules, nil
}

// LoadFromModules compiles policies from provided module sources (useful for testing).
func (g *Gate) LoadFromModules(modules map[string]string) error {
	r := rego.New(
		rego.Query("[data.quorum.policy.allow, data.quorum.policy.reason]"),
		func() func(*rego.Rego) {
			mods := make([]func(*rego.Rego), 0, len(modules))
			for name, src := range modules {
				mods = append(mods, rego.Module(name, src))
			}
			return func(r *rego.Rego) {
				for _, m := range mods {
					m(r)
				}
			}
		}(),
	)

	prepared, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	g.mu.Lock()
	g.prepared = &prepared
	g.mu.Unlock()
	slog.Info("opa policies loaded", "modules", len(modules))
	return nil
}

// Evaluate runs the policy against the given input. Result is [allow, reason].
func (g *Gate) Evaluate(ctx context.Context, input Input) (bool, string, error) {
	g.mu.RLock()
	prepared := g.prepared
	g.mu.RUnlock()

	if prepared == nil {
		return false, "no policies loaded", nil
	}

	cfg := g.cfg()
	timeout := cfg.EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}

	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Sprintf("policy evaluation error: %v", err), err
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "no policy result", nil
	}

	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return false, "unexpected policy result format", nil
	}

	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return allowed, reason, nil
}

// Admit evaluates one consensus request and reports whether it may proceed.
func (g *Gate) Admit(ctx context.Context, orgID, orgLevel string, tier int, domain string, estimatedCostUSD float64) (bool, string) {
	now := time.Now().UTC()
	input := Input{
		Org: InputOrg{ID: orgID, Level: orgLevel},
		Req: InputReq{Tier: tier, Domain: domain, EstimatedCostUSD: estimatedCostUSD},
		Time: InputTime{
			Hour: now.Hour(),
			Day:  now.Weekday().String(),
		},
	}

	allowed, reason, err := g.Evaluate(ctx, input)
	if err != nil {
		slog.Error("policy evaluation failed", "error", err)
		return false, "policy evaluation failed"
	}
	if !allowed {
		return false, reason
	}
	return true, ""
}
