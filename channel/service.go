package channel

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lthibault/log"
	"github.com/thejerf/suture/v4"

	"github.com/flowmesh/flowmesh"
	"github.com/flowmesh/flowmesh/vat"
)

// DefaultExitTimeout is the sweep interval for the exit watcher.
const DefaultExitTimeout = 3 * time.Second

// Snapshot holds the sturdy refs issued for a channel and its
// endpoints.
type Snapshot struct {
	Channel vat.SturdyRef
	Readers []vat.SturdyRef
	Writers []vat.SturdyRef
}

// Service hosts a set of live channels.  It implements
// suture.Service: each sweep removes closed channels, and the service
// terminates once none remain.
type Service struct {
	Log         log.Logger
	Metrics     flowmesh.Metrics
	Restorer    vat.Restorer
	ExitTimeout time.Duration

	mu       sync.Mutex
	channels map[string]*Channel
}

// Register adds ch to the live set and issues sturdy refs for the
// channel plus one reader per reader token and one writer per writer
// token.  An empty token yields a random one.
func (s *Service) Register(ctx context.Context, ch *Channel, readerTokens, writerTokens []string) (Snapshot, error) {
	s.mu.Lock()
	if s.channels == nil {
		s.channels = make(map[string]*Channel)
	}
	s.channels[ch.Info().ID] = ch
	n := len(s.channels)
	s.mu.Unlock()

	if s.Metrics != nil {
		s.Metrics.Gauge("channel.channels", n)
	}

	var snap Snapshot

	ref, _, err := s.Restorer.Save(ctx, ch)
	if err != nil {
		return Snapshot{}, fmt.Errorf("save channel: %w", err)
	}
	snap.Channel = ref

	for _, token := range readerTokens {
		ref, _, err = s.Restorer.Save(ctx, ch.Reader(), vat.WithToken(token))
		if err != nil {
			return Snapshot{}, fmt.Errorf("save reader: %w", err)
		}

		snap.Readers = append(snap.Readers, ref)
	}

	for _, token := range writerTokens {
		ref, _, err = s.Restorer.Save(ctx, ch.Writer(), vat.WithToken(token))
		if err != nil {
			return Snapshot{}, fmt.Errorf("save writer: %w", err)
		}

		snap.Writers = append(snap.Writers, ref)
	}

	return snap, nil
}

// WriteRefs prints a snapshot's sturdy-ref URLs, one per line, in the
// form consumed by downstream process launchers.
func (s *Service) WriteRefs(w io.Writer, snap Snapshot) {
	fmt.Fprintf(w, "channelSR=%s\n", s.Restorer.URL(snap.Channel))

	for _, ref := range snap.Readers {
		fmt.Fprintf(w, "\treaderSR=%s\n", s.Restorer.URL(ref))
	}

	for _, ref := range snap.Writers {
		fmt.Fprintf(w, "\twriterSR=%s\n", s.Restorer.URL(ref))
	}
}

// Len reports the number of live channels.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.channels)
}

// Serve sweeps the live set every ExitTimeout, dropping channels that
// have closed.  It returns when the set empties or ctx ends.
func (s *Service) Serve(ctx context.Context) error {
	interval := s.ExitTimeout
	if interval < time.Second {
		interval = DefaultExitTimeout
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.sweep() == 0 {
				s.Log.Info("all channels closed")
				return suture.ErrTerminateSupervisorTree
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.channels {
		if ch.State() == Closed {
			delete(s.channels, id)
			s.Log.With(ch.Info()).Debug("removed closed channel")
		}
	}

	if s.Metrics != nil {
		s.Metrics.Gauge("channel.channels", len(s.channels))
	}

	return len(s.channels)
}
