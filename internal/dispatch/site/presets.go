package site

import (
	"time"

	"github.com/G-Research/hpcdispatch/internal/dispatch/configuration"
)

func init() {
	Register("frontier", newFrontierSite)
}

// newFrontierSite is a preset for the Frontier cluster: one allocation of
// four fat nodes at a time holds a spot in line while another runs
// (singleton with max_blocks=2), and a short walltime keeps us inside the
// fast-turnaround QoS. All values can still be overridden per site config.
func newFrontierSite(name string, cfg *configuration.SiteConfig, workflowName string) (Site, error) {
	preset := *cfg
	if preset.Nodes == 0 {
		preset.Nodes = 4
	}
	if preset.CoresPerNode == nil {
		cores := 56
		preset.CoresPerNode = &cores
	}
	if preset.Walltime == 0 {
		preset.Walltime = 5 * time.Hour
	}
	if preset.MemPerNodeGB == nil {
		// Whole-node memory less a reservation for OS services, so the
		// scheduler considers every node.
		mem := 480
		preset.MemPerNodeGB = &mem
	}
	if preset.MaxBlocks < 2 {
		preset.MaxBlocks = 2
	}
	if preset.InitBlocks == 0 {
		preset.InitBlocks = 1
	}
	if preset.MinBlocks == 0 {
		preset.MinBlocks = 1
	}
	preset.Singleton = true
	return newSlurmSite(name, &preset, workflowName)
}
