// Package infra holds the technical adapters behind the core interfaces:
// the MQTT transport, Prometheus and InfluxDB sinks, Sentry reporting and
// the zerolog logger.
package infra
