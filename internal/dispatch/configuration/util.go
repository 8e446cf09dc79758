package configuration

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ApplyDefaults fills unset optional fields in place. Required fields are
// left alone; Validate reports them.
func (s *SiteConfig) ApplyDefaults() {
	if s.MaxBlocks == 0 {
		s.MaxBlocks = DefaultMaxBlocks
	}
	if s.BlockRetries == 0 {
		s.BlockRetries = DefaultBlockRetries
	}
	if s.Retries == 0 {
		s.Retries = DefaultRetries
	}
	if s.MonitorInterval == 0 {
		s.MonitorInterval = DefaultMonitorInterval
	}
	if s.MonitorFilename == "" {
		s.MonitorFilename = DefaultMonitorFilename
	}
	if s.SelectionAxis == "" {
		s.SelectionAxis = DefaultSelectionAxis
	}
	for i := range s.Tiers {
		if s.Tiers[i].MaxBlocks == 0 {
			s.Tiers[i].MaxBlocks = s.MaxBlocks
		}
		if s.Tiers[i].Walltime == 0 {
			s.Tiers[i].Walltime = s.Walltime
		}
		if s.Tiers[i].Qos == "" {
			s.Tiers[i].Qos = s.Qos
		}
		if s.Tiers[i].Partition == "" {
			s.Tiers[i].Partition = s.Partition
		}
	}
}

// Validate reports structural problems that must stop the workflow before any
// job runs. Site kinds perform their own additional validation when building
// executors.
func (s *SiteConfig) Validate(name string) error {
	var result *multierror.Error
	if s.Kind == "" {
		result = multierror.Append(result, errors.Errorf("site %s: kind is required", name))
	}
	if s.MaxBlocks < 1 {
		result = multierror.Append(result, errors.Errorf("site %s: maxBlocks must be at least 1", name))
	}
	if s.InitBlocks > s.MaxBlocks {
		result = multierror.Append(result, errors.Errorf("site %s: initBlocks %d exceeds maxBlocks %d", name, s.InitBlocks, s.MaxBlocks))
	}
	if s.MinBlocks > s.MaxBlocks {
		result = multierror.Append(result, errors.Errorf("site %s: minBlocks %d exceeds maxBlocks %d", name, s.MinBlocks, s.MaxBlocks))
	}
	for _, tier := range s.Tiers {
		if tier.Name == "" {
			result = multierror.Append(result, errors.Errorf("site %s: tier with empty name", name))
		}
	}
	return result.ErrorOrNil()
}
