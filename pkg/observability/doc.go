/*
Package observability turns runtime lifecycle events into Prometheus metrics and
structured log records.

Both are delivered as domain.LifecycleHooks so they can be merged and passed to
parley.WithHooks:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	rt, err := parley.New(bot, parley.WithHooks(metrics.Hooks()), parley.WithHooks(observability.LogHooks(logger)))
*/
package observability
