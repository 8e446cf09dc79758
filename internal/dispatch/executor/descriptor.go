// Package executor defines the named worker pools a site exposes and the
// policy that routes a job's resource request to one of them.
package executor

import (
	"github.com/G-Research/hpcdispatch/internal/dispatch/directive"
	"github.com/G-Research/hpcdispatch/internal/dispatch/scaling"
	"github.com/G-Research/hpcdispatch/pkg/api"
)

// Kind states how an executor's workers are provisioned.
type Kind string

const (
	// Workers acquired through batch allocations, elastically scaled.
	KindBatch Kind = "batch"
	// Workers are threads of the submitting process.
	KindLocal Kind = "local"
	// Workers bin-packed onto nodes of an allocation the process already
	// holds; no further batch submission.
	KindAllocation Kind = "allocation"
)

// Descriptor describes one executor: its name, the largest request it is
// provisioned to satisfy, and everything needed to acquire its workers.
type Descriptor struct {
	Name string
	Kind Kind

	// Largest resource request this executor's workers can satisfy. Unset
	// fields mean unbounded; a single-executor pool typically has no
	// ceiling at all.
	Ceiling api.ResourceSpec

	// How to provision one worker allocation for this executor.
	Settings directive.Settings
	Request  directive.BlockRequest
	Scaling  scaling.Settings

	// Per-job retry count handed to the workflow runtime.
	Retries int
}
