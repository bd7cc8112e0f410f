package band

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/af-corp/quorum-engine/internal/config"
)

// PerformanceBand is one rung of the performance-tier ladder: a record whose
// composite score reaches MinScore (and no higher rung) gets the label.
type PerformanceBand struct {
	Label    string  `yaml:"label"`
	MinScore float64 `yaml:"min_score"`
}

// OrgCriteria holds the score thresholds for senior and executive
// eligibility. Everything classifiable is at least junior-eligible.
type OrgCriteria struct {
	SeniorMinScore    float64 `yaml:"senior_min_score"`
	ExecutiveMinScore float64 `yaml:"executive_min_score"`
}

// Criteria is the externally supplied threshold table that turns catalog
// records into band labels. Changing criteria re-labels the whole catalog
// without touching any record.
type Criteria struct {
	Version             int               `yaml:"version"`
	EconomyMaxInputCost float64           `yaml:"economy_max_input_cost"`
	Performance         []PerformanceBand `yaml:"performance"`
	Org                 OrgCriteria       `yaml:"org_eligibility"`
}

// Validate checks the criteria are usable: at least one performance band and
// a band with min_score 0 so every well-formed record gets a label.
func (c *Criteria) Validate() error {
	if c.EconomyMaxInputCost <= 0 {
		return fmt.Errorf("economy_max_input_cost must be positive, got %v", c.EconomyMaxInputCost)
	}
	if len(c.Performance) == 0 {
		return fmt.Errorf("at least one performance band is required")
	}
	floor := c.Performance[0].MinScore
	for _, b := range c.Performance {
		if b.Label == "" {
			return fmt.Errorf("performance band with min_score %v has empty label", b.MinScore)
		}
		if b.MinScore < floor {
			floor = b.MinScore
		}
	}
	if floor > 0 {
		return fmt.Errorf("performance ladder needs a band with min_score 0 (lowest is %v)", floor)
	}
	return nil
}

// ladder returns performance bands sorted by MinScore descending, so the
// first matching rung is the highest the record qualifies for.
func (c *Criteria) ladder() []PerformanceBand {
	sorted := make([]PerformanceBand, len(c.Performance))
	copy(sorted, c.Performance)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinScore > sorted[j].MinScore })
	return sorted
}

// PerformanceRank returns the rung index of a label, 0 being the lowest
// band. Used for "minimum performance" filters.
func (c *Criteria) PerformanceRank(label string) (int, bool) {
	ladder := c.ladder()
	for i := len(ladder) - 1; i >= 0; i-- {
		if ladder[i].Label == label {
			return len(ladder) - 1 - i, true
		}
	}
	return 0, false
}

// DefaultCriteria mirrors the shipped criteria.yaml and is used when no
// criteria file is configured.
func DefaultCriteria() *Criteria {
	return &Criteria{
		Version:             1,
		EconomyMaxInputCost: 1.0,
		Performance: []PerformanceBand{
			{Label: "frontier", MinScore: 80},
			{Label: "capable", MinScore: 60},
			{Label: "basic", MinScore: 0},
		},
		Org: OrgCriteria{
			SeniorMinScore:    60,
			ExecutiveMinScore: 80,
		},
	}
}

// CriteriaSource loads the criteria file and swaps it atomically on reload,
// following the same discipline as the catalog source.
type CriteriaSource struct {
	path   string
	mu     sync.RWMutex
	crit   *Criteria
	logger *slog.Logger
}

func NewCriteriaSource(path string, logger *slog.Logger) *CriteriaSource {
	return &CriteriaSource{path: path, logger: logger}
}

func (s *CriteriaSource) Load() error {
	crit := &Criteria{}
	if err := config.LoadFile(s.path, crit); err != nil {
		return fmt.Errorf("load criteria: %w", err)
	}
	if err := crit.Validate(); err != nil {
		return fmt.Errorf("validate criteria: %w", err)
	}

	s.mu.Lock()
	s.crit = crit
	s.mu.Unlock()

	s.logger.Info("band criteria loaded", "path", s.path, "version", crit.Version)
	return nil
}

func (s *CriteriaSource) Criteria() *Criteria {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.crit
}

func (s *CriteriaSource) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch criteria file %s: %w", s.path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					s.logger.Info("criteria file changed, reloading", "file", event.Name)
					if err := s.Load(); err != nil {
						s.logger.Error("criteria reload failed, keeping previous table", "error", err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}
