// Package health is the Health Monitor: it periodically probes every
// running instance by executing the engine adapter's health-check
// command inside the instance's container, classifies the result into
// one of four statuses (healthy, degraded, unhealthy, unknown), and
// writes an append-only HealthSample per probe.
//
// A Status per instance applies hysteresis on top of the raw per-probe
// classification: a healthy<->unhealthy transition is only emitted
// after Retries consecutive samples confirm it, so a single transient
// probe failure doesn't flap the instance's perceived health or fire
// an unwarranted automatic restart.
package health
