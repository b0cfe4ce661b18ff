// Package mqtt defines the request/response contract used to serve
// predictions over an MQTT broker.
package mqtt
