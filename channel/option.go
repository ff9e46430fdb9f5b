package channel

import (
	"github.com/google/uuid"
	"github.com/lthibault/log"

	"github.com/flowmesh/flowmesh"
	"github.com/flowmesh/flowmesh/vat"
)

// Option configures a Channel.
type Option func(*Channel)

// WithName sets the channel's human-readable name.
func WithName(name string) Option {
	return func(ch *Channel) {
		ch.info.Name = name
	}
}

// WithDescription sets the channel's description.
func WithDescription(desc string) Option {
	return func(ch *Channel) {
		ch.info.Description = desc
	}
}

// WithBufferSize sets the initial buffer size to max(1, n).
func WithBufferSize(n int) Option {
	if n < 1 {
		n = 1
	}

	return func(ch *Channel) {
		ch.bufSize = n
	}
}

// WithCloseSemantics sets the initial close semantics.
func WithCloseSemantics(cs CloseSemantics) Option {
	return func(ch *Channel) {
		ch.semantics = cs
	}
}

// WithLogger sets the channel's logger.
//
// If unset, a default logger is used.
func WithLogger(l log.Logger) Option {
	if l == nil {
		l = log.New()
	}

	return func(ch *Channel) {
		ch.log = l
	}
}

// WithMetrics sets the channel's metrics sink.
//
// If unset, measurements are discarded.
func WithMetrics(m flowmesh.Metrics) Option {
	if m == nil {
		m = flowmesh.NopMetrics{}
	}

	return func(ch *Channel) {
		ch.metrics = m
	}
}

// WithRestorer sets the restorer used by Save.
func WithRestorer(r vat.Restorer) Option {
	return func(ch *Channel) {
		ch.restorer = r
	}
}

func withDefault(opt []Option) []Option {
	return append([]Option{
		func(ch *Channel) {
			ch.info.ID = uuid.New().String()
		},
		WithLogger(nil),
		WithMetrics(nil),
	}, opt...)
}
