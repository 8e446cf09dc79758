package directive

import (
	"fmt"
	"strings"

	"github.com/G-Research/hpcdispatch/internal/common/config"
)

// Script renders the submission script prologue for the target batch system:
// the configured scheduler options verbatim, followed by the generated
// directive lines. SchedulerNone yields an empty script.
func (d *Directives) Script() string {
	switch d.Scheduler {
	case SchedulerSlurm:
		return d.slurmScript()
	case SchedulerTorque:
		return d.torqueScript()
	default:
		return ""
	}
}

func (d *Directives) slurmScript() string {
	var b strings.Builder
	for _, line := range d.SchedulerOptions {
		fmt.Fprintln(&b, line)
	}
	fmt.Fprintf(&b, "#SBATCH --job-name=%s\n", d.JobName)
	fmt.Fprintf(&b, "#SBATCH --nodes=%d\n", d.Nodes)
	if d.CoresPerNode != nil {
		fmt.Fprintf(&b, "#SBATCH --ntasks-per-node=%d\n", *d.CoresPerNode)
	}
	if d.MemPerNodeGB != nil {
		fmt.Fprintf(&b, "#SBATCH --mem=%dG\n", *d.MemPerNodeGB)
	}
	if d.DiskPerNodeGB != nil {
		fmt.Fprintf(&b, "#SBATCH --tmp=%dG\n", *d.DiskPerNodeGB)
	}
	fmt.Fprintf(&b, "#SBATCH --time=%s\n", config.FormatWalltime(d.Walltime))
	if d.Qos != "" {
		fmt.Fprintf(&b, "#SBATCH --qos=%s\n", d.Qos)
	}
	if d.Constraint != "" {
		fmt.Fprintf(&b, "#SBATCH --constraint=%s\n", d.Constraint)
	}
	if d.Partition != "" {
		fmt.Fprintf(&b, "#SBATCH --partition=%s\n", d.Partition)
	}
	if d.Account != "" {
		fmt.Fprintf(&b, "#SBATCH --account=%s\n", d.Account)
	}
	if d.Singleton {
		// Only a single allocation with our job name runs at once; the next
		// one saves a spot in the scheduler queue.
		fmt.Fprintln(&b, "#SBATCH --dependency=singleton")
	}
	return b.String()
}

func (d *Directives) torqueScript() string {
	var b strings.Builder
	for _, line := range d.SchedulerOptions {
		fmt.Fprintln(&b, line)
	}
	fmt.Fprintf(&b, "#PBS -N %s\n", d.JobName)
	if d.Partition != "" {
		fmt.Fprintf(&b, "#PBS -q %s\n", d.Partition)
	}
	if d.CoresPerNode != nil {
		fmt.Fprintf(&b, "#PBS -l nodes=%d:ppn=%d\n", d.Nodes, *d.CoresPerNode)
	} else {
		fmt.Fprintf(&b, "#PBS -l nodes=%d\n", d.Nodes)
	}
	if d.MemPerNodeGB != nil {
		fmt.Fprintf(&b, "#PBS -l mem=%dgb\n", *d.MemPerNodeGB)
	}
	fmt.Fprintf(&b, "#PBS -l walltime=%s\n", config.FormatWalltime(d.Walltime))
	if d.Account != "" {
		fmt.Fprintf(&b, "#PBS -A %s\n", d.Account)
	}
	return b.String()
}
