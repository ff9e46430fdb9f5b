// Package flowmesh provides shared types for the flowmesh FBP substrate.
package flowmesh

import "time"

const Version = "0.1.0"

// Info identifies a capability-bearing object.  Every service-level
// object (channels, endpoints, gateways) answers an info request with
// one of these.
type Info struct {
	ID          string
	Name        string
	Description string
}

func (info Info) Loggable() map[string]any {
	return map[string]any{
		"id":   info.ID,
		"name": info.Name,
	}
}

// NameOrID favors the human-readable name, falling back to the id for
// anonymous objects.
func (info Info) NameOrID() string {
	if info.Name != "" {
		return info.Name
	}

	return info.ID
}

// Metrics is a minimal statsd-style metrics facade.
type Metrics interface {
	Incr(bucket string)
	Decr(bucket string)
	Count(bucket string, n int)
	Gauge(bucket string, n int)
	Duration(bucket string, d time.Duration)
	WithPrefix(prefix string) Metrics
}

// NopMetrics discards all measurements.  It is the default sink of a
// channel built without WithMetrics, and the fallback when statsd
// setup fails.
type NopMetrics struct{}

func (NopMetrics) Incr(string)                    {}
func (NopMetrics) Decr(string)                    {}
func (NopMetrics) Count(string, int)              {}
func (NopMetrics) Gauge(string, int)              {}
func (NopMetrics) Duration(string, time.Duration) {}
func (NopMetrics) WithPrefix(string) Metrics      { return NopMetrics{} }
