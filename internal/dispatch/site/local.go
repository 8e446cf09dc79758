package site

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/hpcdispatch/internal/dispatch/configuration"
	"github.com/G-Research/hpcdispatch/internal/dispatch/directive"
	"github.com/G-Research/hpcdispatch/internal/dispatch/executor"
)

func init() {
	Register("local", newLocalSite)
	Register("allocation", newAllocationSite)
}

// newLocalSite builds a site with a single executor running jobs on the
// submitting machine. Only the core count is required; a walltime is valid
// but ignored.
func newLocalSite(name string, cfg *configuration.SiteConfig, workflowName string) (Site, error) {
	if cfg.Cores < 1 {
		return nil, errors.Errorf("site %s: cores is required for a local site", name)
	}
	return &poolSite{
		name: name,
		build: func() (*executor.Pool, error) {
			cores := cfg.Cores
			descriptor := executor.Descriptor{
				Name: name,
				Kind: executor.KindLocal,
				Settings: directive.Settings{
					Site:                 name,
					Scheduler:            directive.SchedulerNone,
					JobName:              workflowName,
					CommandPrefix:        cfg.CommandPrefix,
					ReplicateEnvironment: cfg.Environment,
				},
				Request: directive.BlockRequest{
					Nodes:         1,
					CoresPerNode:  &cores,
					MemPerNodeGB:  cfg.MemPerNodeGB,
					DiskPerNodeGB: cfg.DiskPerNodeGB,
				},
				Retries: cfg.Retries,
			}
			return executor.NewPool(executor.AxisMemory, descriptor)
		},
	}, nil
}

// newAllocationSite builds a site whose single executor bin-packs jobs onto
// the nodes of an allocation the process already holds. No batch submission
// happens; node-local launch goes through the node-parallel launcher when the
// allocation spans more than one node.
func newAllocationSite(name string, cfg *configuration.SiteConfig, workflowName string) (Site, error) {
	nodes := cfg.Nodes
	if nodes < 1 {
		nodes = 1
	}
	return &poolSite{
		name: name,
		build: func() (*executor.Pool, error) {
			descriptor := executor.Descriptor{
				Name: name,
				Kind: executor.KindAllocation,
				Settings: directive.Settings{
					Site:                 name,
					Scheduler:            directive.SchedulerNone,
					JobName:              workflowName,
					CommandPrefix:        cfg.CommandPrefix,
					ReplicateEnvironment: cfg.Environment,
				},
				Request: directive.BlockRequest{
					Nodes:         nodes,
					CoresPerNode:  cfg.CoresPerNode,
					MemPerNodeGB:  cfg.MemPerNodeGB,
					DiskPerNodeGB: cfg.DiskPerNodeGB,
				},
				Retries: cfg.Retries,
			}
			return executor.NewPool(executor.AxisMemory, descriptor)
		},
	}, nil
}

// Compressed node list syntax used by SLURM_JOB_NODELIST, e.g.
// "worker[01-03],head01".
var nodeRangeRegex = regexp.MustCompile(`^(.*)\[(\d+)-(\d+)\]$`)

// AllocationNodes names the nodes of the currently held allocation. It reads
// the scheduler's node list from the environment and falls back to the local
// hostname for single-node use.
func AllocationNodes() ([]string, error) {
	nodelist := os.Getenv("SLURM_JOB_NODELIST")
	if nodelist == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return []string{hostname}, nil
	}
	return ExpandNodeList(nodelist)
}

// ExpandNodeList expands a comma-separated, possibly range-compressed node
// list into individual node names.
func ExpandNodeList(nodelist string) ([]string, error) {
	var result []string
	for _, entry := range strings.Split(nodelist, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		match := nodeRangeRegex.FindStringSubmatch(entry)
		if match == nil {
			result = append(result, entry)
			continue
		}
		prefix, lo, hi := match[1], match[2], match[3]
		start, _ := strconv.Atoi(lo)
		end, _ := strconv.Atoi(hi)
		if end < start {
			return nil, errors.Errorf("invalid node range %q", entry)
		}
		width := len(lo)
		for i := start; i <= end; i++ {
			result = append(result, fmt.Sprintf("%s%0*d", prefix, width, i))
		}
	}
	if len(result) == 0 {
		return nil, errors.Errorf("empty node list %q", nodelist)
	}
	return result, nil
}
