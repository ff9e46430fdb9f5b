package gateway

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/lthibault/jitterbug/v2"
)

// Heartbeat is a capability handed to registrants.  Beating it keeps
// the registration alive across GC sweeps.
type Heartbeat struct {
	count atomic.Int32
}

func newHeartbeat() *Heartbeat {
	hb := new(Heartbeat)
	hb.count.Store(1)
	return hb
}

// Beat marks the registration as alive for the next sweep.
func (hb *Heartbeat) Beat() {
	hb.count.Store(1)
}

// tick consumes one unit of liveness and reports whether the
// registration has expired.
func (hb *Heartbeat) tick() bool {
	return hb.count.Add(-1) < 0
}

// Beater is the client-side face of a heartbeat, possibly remote.
type Beater interface {
	Beat()
}

// BeatLoop beats hb on a jittered ticker until ctx ends.  The period
// is half the advertised keep-alive interval, so a single missed beat
// does not expire the registration.
func BeatLoop(ctx context.Context, hb Beater, interval time.Duration) {
	ticker := jitterbug.New(interval/2, jitterbug.Uniform{
		Min:    interval / 4,
		Source: rand.New(rand.NewSource(time.Now().UnixNano())),
	})
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hb.Beat()

		case <-ctx.Done():
			return
		}
	}
}
