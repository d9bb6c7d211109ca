// Package metrics exposes Zero OS's runtime counters through
// github.com/docker/go-metrics, in the same style as the teacher's
// core/metrics/cgroups collector: a Namespace registered once at startup,
// subscribed to the commit Exchange so every counter update rides the
// same commit stream the CommitLog and zosctl events subcommand observe,
// never the Axiom mutation path itself.
package metrics

import (
	"context"

	dockermetrics "github.com/docker/go-metrics"

	"github.com/zeroos/zeroos/core/commit"
	"github.com/zeroos/zeroos/core/events"
)

// Collector owns the registered counters/gauges and the subscription
// driving them.
type Collector struct {
	ns *dockermetrics.Namespace

	commitsByKind dockermetrics.LabeledCounter
	liveProcesses dockermetrics.Gauge
	liveEndpoints dockermetrics.Gauge
	messagesSent  dockermetrics.Counter
	callsTimedOut dockermetrics.Counter
}

// New registers a "zeroos" namespace with docker/go-metrics and returns a
// Collector ready to be driven by Run.
func New() *Collector {
	ns := dockermetrics.NewNamespace("zeroos", "", nil)
	c := &Collector{
		ns:            ns,
		commitsByKind: ns.NewLabeledCounter("commits", "kernel commits appended, by kind", "kind"),
		liveProcesses: ns.NewGauge("processes", "live (non-zombie) process count", dockermetrics.Total),
		liveEndpoints: ns.NewGauge("endpoints", "live endpoint count", dockermetrics.Total),
		messagesSent:  ns.NewCounter("messages_sent", "total MessageSent commits observed"),
		callsTimedOut: ns.NewCounter("calls_timed_out", "total CallTimedOut commits observed"),
	}
	dockermetrics.Register(ns)
	return c
}

// Run subscribes to exch and updates counters for every commit observed
// until ctx is canceled or the subscription closes. processCount and
// endpointCount are polled once per commit rather than recomputed from the
// commit stream itself, since the live counts are kernel.Interior queries
// the collector has no reason to duplicate.
func (c *Collector) Run(ctx context.Context, exch *events.Exchange, processCount, endpointCount func() int) {
	sub := exch.Subscribe()
	defer sub.Close()

	ch := sub.C()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			c.observe(entry)
			c.liveProcesses.Set(float64(processCount()))
			c.liveEndpoints.Set(float64(endpointCount()))
		}
	}
}

func (c *Collector) observe(entry commit.Entry) {
	c.commitsByKind.WithValues(entry.Commit.Kind.String()).Inc(1)
	switch entry.Commit.Kind {
	case commit.KindMessageSent:
		c.messagesSent.Inc(1)
	case commit.KindCallTimedOut:
		c.callsTimedOut.Inc(1)
	}
}
