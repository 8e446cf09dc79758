package api

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

// ResourceSpec is the normalized resource request for a single job. A zero
// value is valid and resolves to a schedulable request once site defaults have
// been applied with WithDefaults. Specs are treated as immutable after the job
// has been handed to the dispatcher; all methods return copies.
type ResourceSpec struct {
	// Number of cores the job needs. Always at least 1 after defaulting.
	Cores int
	// Memory the job needs. Nil means "whatever the site default is".
	Memory *resource.Quantity
	// Scratch disk the job needs. Nil means no particular requirement.
	Disk *resource.Quantity
	// Wall-clock limit for the job. Zero means unset.
	Walltime time.Duration
	// Advisory priority hint. Higher is more urgent. Never affects
	// correctness, only the order of otherwise-equal waiters.
	Priority int
}

// WithDefaults returns a copy of the spec with unset fields filled in from
// the site defaults. Cores defaults to 1 even if the site supplies nothing.
func (s ResourceSpec) WithDefaults(defaults ResourceSpec) ResourceSpec {
	result := s.DeepCopy()
	if result.Cores <= 0 {
		result.Cores = defaults.Cores
	}
	if result.Cores <= 0 {
		result.Cores = 1
	}
	if result.Memory == nil && defaults.Memory != nil {
		q := defaults.Memory.DeepCopy()
		result.Memory = &q
	}
	if result.Disk == nil && defaults.Disk != nil {
		q := defaults.Disk.DeepCopy()
		result.Disk = &q
	}
	if result.Walltime == 0 {
		result.Walltime = defaults.Walltime
	}
	return result
}

func (s ResourceSpec) DeepCopy() ResourceSpec {
	result := s
	if s.Memory != nil {
		q := s.Memory.DeepCopy()
		result.Memory = &q
	}
	if s.Disk != nil {
		q := s.Disk.DeepCopy()
		result.Disk = &q
	}
	return result
}

// MemoryOrZero returns the requested memory, or a zero quantity when unset.
func (s ResourceSpec) MemoryOrZero() resource.Quantity {
	if s.Memory == nil {
		return resource.Quantity{}
	}
	return s.Memory.DeepCopy()
}

// DiskOrZero returns the requested disk, or a zero quantity when unset.
func (s ResourceSpec) DiskOrZero() resource.Quantity {
	if s.Disk == nil {
		return resource.Quantity{}
	}
	return s.Disk.DeepCopy()
}

// MustParseQuantity is a convenience wrapper for building specs in tests and
// site presets.
func MustParseQuantity(value string) *resource.Quantity {
	q := resource.MustParse(value)
	return &q
}
