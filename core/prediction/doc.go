// Package prediction serves delivery time estimates from a fitted pipeline.
// Transports (HTTP, MQTT, CLI) share one Engine.
package prediction
