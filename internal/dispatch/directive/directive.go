// Package directive translates a site's configuration and a block request
// into the submission parameters understood by the batch scheduler. Building
// is pure: network submission is the batch client's job.
package directive

import (
	"fmt"
	"time"
)

// Scheduler identifies the batch system dialect the directives are rendered
// for. SchedulerNone is used by purely local sites, which need a command
// prefix but no submission script.
type Scheduler string

const (
	SchedulerSlurm  Scheduler = "slurm"
	SchedulerTorque Scheduler = "torque"
	SchedulerNone   Scheduler = "none"
)

// ErrMissingField reports a directive field required by the target batch
// system that the site configuration does not supply. This is fatal at
// workflow submission time, before any job runs.
type ErrMissingField struct {
	Site  string
	Field string
}

func (err *ErrMissingField) Error() string {
	return fmt.Sprintf("site %s: required directive field %q is not set", err.Site, err.Field)
}

// Settings is the site-level part of directive building, fixed per executor.
type Settings struct {
	// Site name, used in error messages only.
	Site string
	// Batch system dialect to render for.
	Scheduler Scheduler
	// Name for the batch allocation, typically the workflow name.
	JobName string

	Qos        string
	Constraint string
	Partition  string
	Account    string
	// Only one allocation with our job name runs at a time; further
	// allocations wait in the scheduler queue.
	Singleton bool
	// Raw lines prepended verbatim to the submission script. Opaque to this
	// layer.
	SchedulerOptions []string

	// Shell fragment run before every job command on a worker.
	CommandPrefix string
	// Capture the current process environment at build time and emit
	// commands that reconstruct it on the worker.
	ReplicateEnvironment bool
}

// BlockRequest is the per-block part: the shape of one worker allocation.
type BlockRequest struct {
	Nodes int
	// Nil means the directive is omitted and the scheduler's node defaults
	// apply.
	CoresPerNode  *int
	MemPerNodeGB  *int
	DiskPerNodeGB *int
	Walltime      time.Duration
}

// Directives is the generated submission description for one block. It applies
// to the worker allocation as a whole; individual job resource needs never
// reach the batch layer.
type Directives struct {
	Scheduler Scheduler
	JobName   string

	Nodes         int
	CoresPerNode  *int
	MemPerNodeGB  *int
	DiskPerNodeGB *int
	Walltime      time.Duration

	Qos              string
	Constraint       string
	Partition        string
	Account          string
	Singleton        bool
	SchedulerOptions []string

	// Commands run on each worker before any job command, including the
	// environment replication block when requested.
	WorkerInit string
}

// Build translates settings plus a block request into submission directives.
// It fails rather than coerce when a field the target batch system requires is
// absent: a walltime is mandatory for every batch-backed site, but valid to
// omit for SchedulerNone.
func Build(settings Settings, request BlockRequest) (*Directives, error) {
	if settings.Scheduler != SchedulerNone {
		if request.Walltime <= 0 {
			return nil, &ErrMissingField{Site: settings.Site, Field: "walltime"}
		}
		if request.Nodes < 1 {
			return nil, &ErrMissingField{Site: settings.Site, Field: "nodes"}
		}
	}
	if request.CoresPerNode != nil && *request.CoresPerNode < 1 {
		return nil, &ErrMissingField{Site: settings.Site, Field: "coresPerNode"}
	}
	if request.MemPerNodeGB != nil && *request.MemPerNodeGB < 1 {
		return nil, &ErrMissingField{Site: settings.Site, Field: "memPerNodeGB"}
	}
	if request.DiskPerNodeGB != nil && *request.DiskPerNodeGB < 1 {
		return nil, &ErrMissingField{Site: settings.Site, Field: "diskPerNodeGB"}
	}

	workerInit := settings.CommandPrefix
	if settings.ReplicateEnvironment {
		if workerInit != "" {
			workerInit += "\n"
		}
		workerInit += ExportEnvironment()
	}

	return &Directives{
		Scheduler:        settings.Scheduler,
		JobName:          settings.JobName,
		Nodes:            request.Nodes,
		CoresPerNode:     request.CoresPerNode,
		MemPerNodeGB:     request.MemPerNodeGB,
		DiskPerNodeGB:    request.DiskPerNodeGB,
		Walltime:         request.Walltime,
		Qos:              settings.Qos,
		Constraint:       settings.Constraint,
		Partition:        settings.Partition,
		Account:          settings.Account,
		Singleton:        settings.Singleton,
		SchedulerOptions: append([]string(nil), settings.SchedulerOptions...),
		WorkerInit:       workerInit,
	}, nil
}
