package executor

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/hpcdispatch/internal/common"
	"github.com/G-Research/hpcdispatch/pkg/api"
)

// Axis is the resource dimension along which a pool's executors are tiered.
// Exactly one axis is authoritative per pool, so tie-breaking stays
// unambiguous.
type Axis string

const (
	AxisMemory   Axis = "memory"
	AxisCores    Axis = "cores"
	AxisWalltime Axis = "walltime"
)

func ParseAxis(value string) (Axis, error) {
	switch Axis(value) {
	case AxisMemory, AxisCores, AxisWalltime:
		return Axis(value), nil
	}
	return "", errors.Errorf("unknown selection axis %q", value)
}

// Pool owns the executors of one site, ordered by increasing ceiling along
// the selection axis. The ordering is established at construction and never
// changes, which is what makes selection deterministic across retries.
type Pool struct {
	axis      Axis
	executors []Descriptor
}

func NewPool(axis Axis, executors ...Descriptor) (*Pool, error) {
	var result *multierror.Error
	if len(executors) == 0 {
		result = multierror.Append(result, errors.New("pool needs at least one executor"))
	}
	seen := map[string]bool{}
	for _, e := range executors {
		if e.Name == "" {
			result = multierror.Append(result, errors.New("executor with empty name"))
			continue
		}
		if seen[e.Name] {
			result = multierror.Append(result, errors.Errorf("duplicate executor name %q", e.Name))
		}
		seen[e.Name] = true
	}
	if len(executors) > 1 {
		previous := -1.0
		for _, e := range executors {
			ceiling, bounded := axisCeiling(e, axis)
			if !bounded {
				result = multierror.Append(result,
					errors.Errorf("executor %q has no %s ceiling; every executor in a tiered pool needs one", e.Name, axis))
				continue
			}
			if ceiling < previous {
				result = multierror.Append(result,
					errors.Errorf("executor %q breaks the increasing %s ceiling order", e.Name, axis))
			}
			previous = ceiling
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &Pool{axis: axis, executors: executors}, nil
}

func (p *Pool) Executors() []Descriptor {
	return p.executors
}

func (p *Pool) Lookup(name string) (Descriptor, bool) {
	for _, e := range p.executors {
		if e.Name == name {
			return e, true
		}
	}
	return Descriptor{}, false
}

// axisCeiling returns the executor's ceiling along the axis, and whether it is
// bounded at all.
func axisCeiling(e Descriptor, axis Axis) (float64, bool) {
	switch axis {
	case AxisCores:
		return float64(e.Ceiling.Cores), e.Ceiling.Cores > 0
	case AxisWalltime:
		return e.Ceiling.Walltime.Seconds(), e.Ceiling.Walltime > 0
	default:
		if e.Ceiling.Memory == nil {
			return 0, false
		}
		return common.QuantityAsFloat64(*e.Ceiling.Memory), true
	}
}

// axisRequest returns the job's request along the axis, after defaulting.
func axisRequest(spec api.ResourceSpec, axis Axis) float64 {
	switch axis {
	case AxisCores:
		return float64(spec.Cores)
	case AxisWalltime:
		return spec.Walltime.Seconds()
	default:
		return common.QuantityAsFloat64(spec.MemoryOrZero())
	}
}
