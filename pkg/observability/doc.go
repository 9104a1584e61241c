// Package observability exports decision loop activity as Prometheus metrics.
//
// A Collector turns LifecycleHooks events and audit write observations into
// counters and histograms:
//
//	c, err := observability.NewCollector(prometheus.DefaultRegisterer, reg.Names())
//	v, err := attest.New(
//		attest.WithLifecycleHooks(c.Hooks()),
//		attest.WithAppendObserver(c.ObserveAppend),
//	)
package observability
