/*
Package observability turns executor lifecycle hooks into metrics and logs.

Metrics registers Prometheus collectors and exposes them through Hooks; Combine
merges several domain.LifecycleHooks so metrics, logging and caller hooks can be
installed together.
*/
package observability
