/*
Package observability turns engine lifecycle events into Prometheus metrics.

Metrics.Hooks returns domain.LifecycleHooks; combine them with other hooks
through domain.Combine and pass the result to settle.WithLifecycleHooks.
*/
package observability
