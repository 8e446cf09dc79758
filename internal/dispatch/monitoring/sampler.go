// Package monitoring samples the resource usage of running jobs on a fixed
// cadence and appends the observations to a persisted store. Only the
// sampling hook lives here; what reads the store is someone else's concern.
package monitoring

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/hpcdispatch/internal/common/task"
	"github.com/G-Research/hpcdispatch/internal/common/util"
)

// UsageSource measures the current resource usage of one process.
type UsageSource interface {
	Sample(pid int32) (cpuPercent float64, memoryBytes uint64, diskBytes uint64, err error)
}

// ProcessUsageSource reads usage from the operating system's process tables.
type ProcessUsageSource struct{}

func (s *ProcessUsageSource) Sample(pid int32) (float64, uint64, uint64, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return 0, 0, 0, err
	}
	cpu, err := proc.CPUPercent()
	if err != nil {
		return 0, 0, 0, err
	}
	var memory uint64
	if info, err := proc.MemoryInfo(); err == nil && info != nil {
		memory = info.RSS
	}
	var disk uint64
	if counters, err := proc.IOCounters(); err == nil && counters != nil {
		disk = counters.ReadBytes + counters.WriteBytes
	}
	return cpu, memory, disk, nil
}

// Sampler tracks the processes of running jobs and appends one usage row per
// job per interval.
type Sampler struct {
	store  Store
	source UsageSource
	clock  util.Clock

	mu      sync.Mutex
	tracked map[string]int32

	manager *task.BackgroundTaskManager
}

func NewSampler(store Store, source UsageSource, interval time.Duration) *Sampler {
	s := &Sampler{
		store:   store,
		source:  source,
		clock:   &util.DefaultClock{},
		tracked: map[string]int32{},
		manager: task.NewBackgroundTaskManager("hpcdispatch_"),
	}
	s.manager.Register(s.sample, interval, "resource_monitor")
	return s
}

// Track starts sampling the given job's process. Untrack stops it; rows for
// a finished process would only be noise.
func (s *Sampler) Track(jobId string, pid int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[jobId] = pid
}

func (s *Sampler) Untrack(jobId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracked, jobId)
}

func (s *Sampler) sample() {
	s.mu.Lock()
	snapshot := make(map[string]int32, len(s.tracked))
	for jobId, pid := range s.tracked {
		snapshot[jobId] = pid
	}
	s.mu.Unlock()

	now := s.clock.Now()
	for jobId, pid := range snapshot {
		cpu, memory, disk, err := s.source.Sample(pid)
		if err != nil {
			// The process may simply have finished between snapshot and
			// sample.
			log.Debugf("could not sample job %s (pid %d): %v", jobId, pid, err)
			continue
		}
		row := Row{Timestamp: now, JobId: jobId, CpuPercent: cpu, MemoryBytes: memory, DiskBytes: disk}
		if err := s.store.Append(row); err != nil {
			log.Errorf("could not append monitor row for job %s: %v", jobId, err)
		}
	}
}

// Stop halts sampling and closes the store.
func (s *Sampler) Stop(timeout time.Duration) {
	if timedOut := s.manager.StopAll(timeout); timedOut {
		log.Warn("resource monitor did not stop within timeout")
	}
	if err := s.store.Close(); err != nil {
		log.Errorf("could not close monitor store: %v", err)
	}
}
