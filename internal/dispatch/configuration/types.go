package configuration

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

type DispatcherConfig struct {
	// Name of the site to dispatch onto; must be a key of Sites.
	ComputeSite string
	// Root directory for workflow outputs and job logs.
	SubmitPath string
	MetricsPort uint16

	// Project and Campaign (or Operator when no campaign is set) identify
	// the workflow; their join names batch allocations.
	Project  string
	Campaign string
	Operator string

	Sites map[string]*SiteConfig
}

// SiteConfig is the flat per-site configuration namespace. Fields are pointers
// where "unset" is meaningful and must not be coerced: an unset CoresPerNode
// or MemPerNodeGB means the batch scheduler's own defaults apply.
type SiteConfig struct {
	// Which site implementation to build, e.g. "slurm", "tieredslurm",
	// "local", "allocation". Registered kinds are listed by site.Kinds().
	Kind string

	// Shape of one batch allocation. Nodes is nodes per allocation.
	Nodes        int
	CoresPerNode *int
	MemPerNodeGB *int
	// Scratch disk per node, schedulable by the bin packer for jobs that
	// declare a disk request.
	DiskPerNodeGB *int
	Walltime      time.Duration
	Qos          string
	Constraint   string
	Partition    string
	Account      string
	// Allow only one allocation of ours to run at a time; the rest wait in
	// the batch queue.
	Singleton bool
	// Raw lines prepended verbatim to the submission script.
	SchedulerOptions []string

	// Core count for the local thread-pool site.
	Cores int

	// Elastic scaling bounds. Allocation shape is fixed; only the number of
	// concurrent allocations varies, up to MaxBlocks.
	MaxBlocks    int
	InitBlocks   int
	MinBlocks    int
	BlockRetries int

	// Shell fragment run before every job command on a worker.
	CommandPrefix string
	// Replicate the submitting shell's environment on the workers.
	Environment bool
	// Per-job retries performed by the workflow runtime.
	Retries int

	// Axis along which executor tiers are ordered and selected.
	SelectionAxis string
	// Ordered tier definitions for tiered sites. Declaration order is
	// significant: ceilings must not decrease, and equal ceilings pick the
	// earlier tier.
	Tiers []TierConfig

	MonitorEnable   bool
	MonitorInterval time.Duration
	MonitorFilename string
}

type TierConfig struct {
	Name string
	// Resource ceiling for this tier along the selection axis.
	Memory   *resource.Quantity
	Cores    int
	Walltime time.Duration
	// Per-tier overrides of the site-wide values.
	MaxBlocks int
	Qos       string
	Partition string
}

// WorkflowName joins project and campaign into the name used for batch
// allocations. The operator stands in when no campaign is configured.
func (c *DispatcherConfig) WorkflowName() string {
	project := c.Project
	if project == "" {
		project = DefaultProject
	}
	campaign := c.Campaign
	if campaign == "" {
		campaign = c.Operator
	}
	if campaign == "" {
		return project
	}
	return project + "." + campaign
}

// Site returns the configuration for the configured compute site.
func (c *DispatcherConfig) Site() (*SiteConfig, bool) {
	site, ok := c.Sites[c.ComputeSite]
	return site, ok
}
