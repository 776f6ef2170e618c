// Package metrics exposes dispatch and deployment metrics to prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conduit-lang/weft/pkg/capability"
)

const namespace = "weft"

// Collector records dispatch and deployment metrics in its own registry
type Collector struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	deployedHandlers *prometheus.GaugeVec
	deploymentsTotal *prometheus.CounterVec
}

// New creates a collector. Go runtime and process collectors are registered
// alongside the weft metrics.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Requests dispatched, by handler and final state",
			},
			[]string{"handler", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent running the request pipeline",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handler"},
		),
		deployedHandlers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "deployed_handlers",
				Help:      "Handlers in the live deployment, by kind",
			},
			[]string{"kind"},
		),
		deploymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Deployment attempts, by result",
			},
			[]string{"result"},
		),
	}

	c.registry.MustRegister(
		c.dispatchTotal,
		c.dispatchDuration,
		c.deployedHandlers,
		c.deploymentsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveDispatch implements dispatch.Observer
func (c *Collector) ObserveDispatch(handler, outcome string, elapsed time.Duration) {
	c.dispatchTotal.WithLabelValues(handler, outcome).Inc()
	c.dispatchDuration.WithLabelValues(handler).Observe(elapsed.Seconds())
}

// ObserveDeploy records a deployment attempt. A successful one replaces the
// handler gauges with the counts in set.
func (c *Collector) ObserveDeploy(set capability.Set, err error) {
	if err != nil {
		c.deploymentsTotal.WithLabelValues("failure").Inc()
		return
	}
	c.deploymentsTotal.WithLabelValues("success").Inc()
	c.deployedHandlers.WithLabelValues(capability.KindController.String()).Set(float64(len(set.Controllers)))
	c.deployedHandlers.WithLabelValues(capability.KindInterceptor.String()).Set(float64(len(set.Interceptors)))
	c.deployedHandlers.WithLabelValues(capability.KindInitializer.String()).Set(float64(len(set.Initializers)))
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
