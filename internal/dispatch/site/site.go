// Package site composes executor pools, selection and scaling configuration
// for named compute sites. A site is looked up by the configured computeSite
// name; its kind decides which implementation provisions the workers.
package site

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/G-Research/hpcdispatch/internal/dispatch/configuration"
	"github.com/G-Research/hpcdispatch/internal/dispatch/directive"
	"github.com/G-Research/hpcdispatch/internal/dispatch/executor"
	"github.com/G-Research/hpcdispatch/pkg/api"
)

// Site is the whole extension contract. Concrete sites are values implementing
// these two operations; everything else is configuration threaded through at
// construction.
type Site interface {
	// Executors returns the executors to register with the workflow
	// runtime. Built once; repeated calls return the same logical set.
	Executors() ([]executor.Descriptor, error)
	// SelectExecutor names the executor that should run a job with the
	// given resource request. Must be pure and deterministic so retries
	// land on the same resource class.
	SelectExecutor(spec api.ResourceSpec) string
}

// Factory builds a site from its configuration.
type Factory func(name string, cfg *configuration.SiteConfig, workflowName string) (Site, error)

var (
	factoriesMu sync.Mutex
	factories   = map[string]Factory{}
)

// Register makes a site kind available to FromConfig. Built-in kinds register
// themselves; plugins may add more before configuration is loaded.
func Register(kind string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = factory
}

// Kinds lists the registered site kinds, sorted.
func Kinds() []string {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	kinds := make([]string, 0, len(factories))
	for kind := range factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// FromConfig resolves the configured compute site and builds it.
func FromConfig(config *configuration.DispatcherConfig) (Site, error) {
	siteCfg, ok := config.Site()
	if !ok {
		return nil, errors.Errorf("no configuration for compute site %q", config.ComputeSite)
	}
	siteCfg.ApplyDefaults()
	if err := siteCfg.Validate(config.ComputeSite); err != nil {
		return nil, err
	}
	factoriesMu.Lock()
	factory, ok := factories[siteCfg.Kind]
	factoriesMu.Unlock()
	if !ok {
		return nil, errors.Errorf("site %s: unknown kind %q (registered: %v)", config.ComputeSite, siteCfg.Kind, Kinds())
	}
	return factory(config.ComputeSite, siteCfg, config.WorkflowName())
}

// CommandPrefix assembles the shell fragment run before every job command on
// a worker: the configured prefix plus, when requested, commands replicating
// the submitting shell's environment.
func CommandPrefix(cfg *configuration.SiteConfig) string {
	prefix := cfg.CommandPrefix
	if cfg.Environment {
		if prefix != "" {
			prefix += "\n"
		}
		prefix += directive.ExportEnvironment()
	}
	return prefix
}

// poolSite is the shared shape of the built-in sites: a memoised executor
// pool plus selection by delegation.
type poolSite struct {
	name  string
	build func() (*executor.Pool, error)

	once sync.Once
	pool *executor.Pool
	err  error
}

func (s *poolSite) Executors() ([]executor.Descriptor, error) {
	s.once.Do(func() {
		s.pool, s.err = s.build()
	})
	if s.err != nil {
		return nil, s.err
	}
	return s.pool.Executors(), nil
}

func (s *poolSite) SelectExecutor(spec api.ResourceSpec) string {
	if _, err := s.Executors(); err != nil {
		// Executor construction failures surface from Executors at
		// workflow submission time; selection still answers with the
		// site's own name so callers get a stable value.
		return s.name
	}
	return s.pool.Select(spec)
}
