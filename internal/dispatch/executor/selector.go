package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/hpcdispatch/pkg/api"
)

var oversubscribedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hpcdispatch_oversubscribed_selections_total",
		Help: "Number of jobs whose request exceeded every executor ceiling and were routed to the largest tier",
	},
	[]string{"executor"},
)

// Select picks the executor that should run a job with the given resource
// request: the lowest-ceiling executor whose ceiling covers the request along
// the pool's axis. Ties between equal ceilings fall to declaration order.
//
// A request larger than every ceiling does not fail; it is routed to the
// highest tier and logged, so the job is oversubscribed but still runs.
//
// Selection is pure and referentially stable: the same spec against an
// unchanged pool always yields the same name, so the workflow runtime can
// route retries to the same resource class.
func (p *Pool) Select(spec api.ResourceSpec) string {
	need := axisRequest(spec, p.axis)
	for _, e := range p.executors {
		ceiling, bounded := axisCeiling(e, p.axis)
		if !bounded || need <= ceiling {
			return e.Name
		}
	}
	largest := p.executors[len(p.executors)-1]
	log.Warnf("request of %g %s exceeds every executor ceiling; oversubscribing executor %q", need, p.axis, largest.Name)
	oversubscribedCounter.WithLabelValues(largest.Name).Inc()
	return largest.Name
}
