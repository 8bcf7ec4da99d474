// Package telemetry samples runtime performance and raises warnings.
//
// A Monitor reads a set of optional sensors every few seconds: frame rate,
// process memory, battery state and network class. Sensors that are
// missing or failing degrade to defaults that describe a capable device on
// a fast connection. Render and image-load durations are reported by the
// components that measure them and turned into warnings when they exceed
// one frame budget or two seconds respectively.
//
// Samples and warnings are delivered to subscribers and, when configured,
// exported as Prometheus metrics.
package telemetry
