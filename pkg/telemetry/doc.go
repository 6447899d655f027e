// telemetry counts and times the steps of a release.
// Supported metrics includes:
// - steps started (reml_step_started_total)
// - steps handled by status (reml_step_handled_total)
// - step latency histogram (reml_step_handling_seconds_bucket)
//
// Metrics are pushed to a Prometheus Pushgateway at the end of a run, since reml is a short-lived command.
package telemetry
