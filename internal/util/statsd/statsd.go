package statsdutil

import (
	"time"

	"github.com/lthibault/log"
	"gopkg.in/alexcesaro/statsd.v2"

	"github.com/flowmesh/flowmesh"
)

type Env interface {
	Bool(string) bool
	IsSet(string) bool
	String(string) string
}

// Metrics wraps a statsd client and satisfies the flowmesh
// metrics interface.
type Metrics struct{ *statsd.Client }

// New statsd client.
func New(env Env, log log.Logger) flowmesh.Metrics {
	m, err := statsd.New(
		addr(env),
		muted(env),
		logger(env, log),
		statsd.Prefix("flowmesh"),
		statsd.SampleRate(.1),
		statsd.FlushPeriod(time.Millisecond*250))
	if err != nil {
		log.WithError(err).
			Warn("setup failed for statsd metrics")
		return flowmesh.NopMetrics{}
	}

	return Metrics{m}
}

func (m Metrics) Incr(bucket string) {
	m.Client.Count(bucket, 1)
}

func (m Metrics) Decr(bucket string) {
	m.Client.Count(bucket, -1)
}

func (m Metrics) Count(bucket string, n int) {
	m.Client.Count(bucket, n)
}

func (m Metrics) Gauge(bucket string, n int) {
	m.Client.Gauge(bucket, n)
}

func (m Metrics) Duration(bucket string, d time.Duration) {
	m.Client.Timing(bucket, d.Milliseconds())
}

func (m Metrics) WithPrefix(prefix string) flowmesh.Metrics {
	return Metrics{
		Client: m.Client.Clone(statsd.Prefix(prefix)),
	}
}

func addr(env Env) statsd.Option {
	if env.IsSet("metrics") {
		return statsd.Address(env.String("metrics"))
	}

	return statsd.Address(":8125")
}

func logger(env Env, log log.Logger) statsd.Option {
	return statsd.ErrorHandler(func(err error) {
		log.WithError(err).
			WithField("addr", env.String("metrics")).
			Warn("failed to send metrics")
	})
}

func muted(env Env) statsd.Option {
	return statsd.Mute(!env.IsSet("metrics"))
}
