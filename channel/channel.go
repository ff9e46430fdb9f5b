package channel

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/lthibault/log"

	"github.com/flowmesh/flowmesh"
	"github.com/flowmesh/flowmesh/vat"
)

var (
	// ErrAlreadyClosed is returned when an endpoint is used after it
	// was closed or deregistered.
	ErrAlreadyClosed = errors.New("already closed")
)

// CloseSemantics selects how the channel reacts when its last writer
// deregisters.
type CloseSemantics uint8

const (
	// FBP ends the stream once the last writer deregisters (by Done,
	// Close or a canceled write): after the buffer drains, pending and
	// future reads receive Done.  The channel's State stays Open; only
	// Close moves it to Closed.
	FBP CloseSemantics = iota

	// Manual leaves the channel open until Close is called.
	Manual
)

func (cs CloseSemantics) String() string {
	if cs == Manual {
		return "manual"
	}

	return "fbp"
}

// State is the channel's shutdown phase.
type State uint8

const (
	// Open accepts reads and writes.
	Open State = iota

	// DrainingThenClose rejects new writes and lets readers empty the
	// buffer.  The read that empties it closes the channel.
	DrainingThenClose

	// Closed accepts nothing.  Reads observe Done.
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case DrainingThenClose:
		return "draining"
	}

	return "closed"
}

// Channel is a buffered multi-producer multi-consumer message channel.
// Messages are delivered in FIFO order per writer; readers and writers
// suspended on a full or empty buffer are woken oldest-first.
type Channel struct {
	mu sync.Mutex

	info     flowmesh.Info
	log      log.Logger
	metrics  flowmesh.Metrics
	restorer vat.Restorer

	semantics CloseSemantics
	state     State

	// Latched when the last writer deregisters under FBP semantics or
	// when a draining close begins.  Never cleared.
	sendCloseOnEmptyBuffer bool

	bufSize int
	buffer  list.List // msgs; newest at front, oldest at back

	readers map[string]*Reader
	writers map[string]*Writer

	// Suspended operations.  New waiters push to the front; wake-ups
	// pop from the back, so the oldest waiter wins.  At most one of
	// the two queues is non-empty at any instant.
	readWaiters  list.List
	writeWaiters list.List
}

type readWaiter struct {
	done chan struct{}
	msg  Msg
}

type writeWaiter struct {
	done chan struct{}
	msg  Msg
}

// New allocates an open channel with a buffer of one message.
func New(opt ...Option) *Channel {
	ch := &Channel{
		bufSize: 1,
		readers: make(map[string]*Reader),
		writers: make(map[string]*Writer),
	}

	for _, option := range withDefault(opt) {
		option(ch)
	}

	ch.log = ch.log.With(ch.info)

	return ch
}

// Info identifies the channel.
func (ch *Channel) Info() flowmesh.Info {
	return ch.info
}

// State reports the current shutdown phase.
func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.state
}

// Reader registers a new read endpoint.
func (ch *Channel) Reader() *Reader {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	r := &Reader{
		id: uuid.New().String(),
		ch: ch,
	}
	ch.readers[r.id] = r

	ch.log.WithField("reader", r.id).Debug("registered reader")

	return r
}

// Writer registers a new write endpoint.
func (ch *Channel) Writer() *Writer {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	w := &Writer{
		id: uuid.New().String(),
		ch: ch,
	}
	ch.writers[w.id] = w

	ch.log.WithField("writer", w.id).Debug("registered writer")

	return w
}

// Endpoints registers a reader and a writer in one step.
func (ch *Channel) Endpoints() (*Reader, *Writer) {
	return ch.Reader(), ch.Writer()
}

// SetBufferSize resizes the buffer to max(1, n).  Growing admits
// suspended writers immediately; shrinking takes effect as readers
// drain, with no message dropped.
func (ch *Channel) SetBufferSize(n int) {
	if n < 1 {
		n = 1
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.bufSize = n
	ch.admitWriters()

	ch.log.WithField("buffer_size", n).Debug("resized buffer")
}

// SetAutoCloseSemantics switches between FBP and Manual behavior for
// future writer deregistrations.
func (ch *Channel) SetAutoCloseSemantics(cs CloseSemantics) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.semantics = cs

	ch.log.WithField("semantics", cs.String()).Debug("set close semantics")
}

// Close shuts the channel down.  With waitForEmptyBuffer set and a
// non-empty buffer, the channel enters DrainingThenClose and the read
// that empties the buffer completes the close.  Otherwise buffered
// messages are discarded and the channel closes immediately.  Closing
// a closed channel is a no-op.
func (ch *Channel) Close(waitForEmptyBuffer bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.state == Closed {
		return
	}

	// Suspended writes cannot complete once shutdown begins; they are
	// released and their messages dropped.
	ch.releaseWriters()

	if waitForEmptyBuffer && ch.buffer.Len() > 0 {
		ch.state = DrainingThenClose
		ch.sendCloseOnEmptyBuffer = true
		ch.log.Info("draining before close")
		return
	}

	ch.closeLocked()
}

// closeLocked flips the channel to Closed and wakes every suspended
// reader with Done.  Callers must hold mu.
func (ch *Channel) closeLocked() {
	ch.state = Closed
	ch.buffer.Init()
	ch.broadcastDone()

	ch.log.Info("closed")
}

// broadcastDone wakes all suspended readers with Done, oldest first.
// Callers must hold mu.
func (ch *Channel) broadcastDone() {
	for e := ch.readWaiters.Back(); e != nil; e = ch.readWaiters.Back() {
		w := e.Value.(*readWaiter)
		w.msg = NewDone()
		close(w.done)
		ch.readWaiters.Remove(e)
	}
}

// releaseWriters wakes all suspended writers without delivering their
// messages.  Callers must hold mu.
func (ch *Channel) releaseWriters() {
	for e := ch.writeWaiters.Back(); e != nil; e = ch.writeWaiters.Back() {
		w := e.Value.(*writeWaiter)
		close(w.done)
		ch.writeWaiters.Remove(e)
	}
}

// admitWriters moves suspended writers' messages into the buffer while
// space remains.  Callers must hold mu.
func (ch *Channel) admitWriters() {
	for ch.buffer.Len() < ch.bufSize {
		e := ch.writeWaiters.Back()
		if e == nil {
			return
		}

		w := e.Value.(*writeWaiter)
		ch.writeWaiters.Remove(e)
		ch.buffer.PushFront(w.msg)
		close(w.done)
	}
}

// read implements Read and ReadIfMsg for an endpoint.  When block is
// false an empty channel yields NoMsg instead of suspending.
func (ch *Channel) read(ctx context.Context, r *Reader, block bool) (Msg, error) {
	ch.mu.Lock()

	if r.closed {
		ch.mu.Unlock()
		return Msg{}, ErrAlreadyClosed
	}

	if ch.state == Closed {
		ch.mu.Unlock()
		return NewDone(), nil
	}

	if e := ch.buffer.Back(); e != nil {
		msg := ch.buffer.Remove(e).(Msg)

		// Hand the freed slot to the oldest suspended writer.  During
		// a draining close no refill happens; the buffer only shrinks.
		if ch.state == Open {
			ch.admitWriters()
		}

		if ch.buffer.Len() == 0 && ch.state == DrainingThenClose {
			ch.closeLocked()
		}

		if ch.metrics != nil {
			ch.metrics.Incr("channel.msg.read")
		}

		ch.mu.Unlock()
		return msg, nil
	}

	// Buffer empty.
	if ch.sendCloseOnEmptyBuffer {
		r.closed = true
		delete(ch.readers, r.id)
		ch.broadcastDone()
		ch.mu.Unlock()
		return NewDone(), nil
	}

	if !block {
		ch.mu.Unlock()
		return Msg{Which: NoMsg}, nil
	}

	w := &readWaiter{done: make(chan struct{})}
	elem := ch.readWaiters.PushFront(w)
	ch.mu.Unlock()

	select {
	case <-w.done:
		if ch.metrics != nil && w.msg.Which == Value {
			ch.metrics.Incr("channel.msg.read")
		}

		return w.msg, nil

	case <-ctx.Done():
		ch.mu.Lock()
		defer ch.mu.Unlock()

		select {
		case <-w.done:
			// Fulfilled while we were canceling; deliver anyway.
			return w.msg, nil

		default:
			// The endpoint's transport is gone; deregister it.
			ch.readWaiters.Remove(elem)
			r.closed = true
			delete(ch.readers, r.id)

			ch.log.WithField("reader", r.id).
				WithError(ctx.Err()).
				Error("suspended read canceled")

			return Msg{}, ctx.Err()
		}
	}
}

// write implements Write and WriteIfSpace for an endpoint.  When block
// is false a full buffer yields ok=false instead of suspending.
func (ch *Channel) write(ctx context.Context, w *Writer, msg Msg, block bool) (bool, error) {
	ch.mu.Lock()

	if w.closed {
		ch.mu.Unlock()
		return false, ErrAlreadyClosed
	}

	if ch.state != Open {
		// Writes during shutdown are dropped without error.
		ch.mu.Unlock()
		return true, nil
	}

	if msg.Which == Done {
		ch.deregisterWriter(w)
		ch.mu.Unlock()
		return true, nil
	}

	// Direct hand-off to the oldest suspended reader.
	if e := ch.readWaiters.Back(); e != nil {
		rw := e.Value.(*readWaiter)
		rw.msg = msg
		close(rw.done)
		ch.readWaiters.Remove(e)

		if ch.metrics != nil {
			ch.metrics.Incr("channel.msg.write")
		}

		ch.mu.Unlock()
		return true, nil
	}

	if ch.buffer.Len() < ch.bufSize {
		ch.buffer.PushFront(msg)

		if ch.metrics != nil {
			ch.metrics.Incr("channel.msg.write")
		}

		ch.mu.Unlock()
		return true, nil
	}

	if !block {
		ch.mu.Unlock()
		return false, nil
	}

	ww := &writeWaiter{done: make(chan struct{}), msg: msg}
	elem := ch.writeWaiters.PushFront(ww)
	ch.mu.Unlock()

	select {
	case <-ww.done:
		if ch.metrics != nil {
			ch.metrics.Incr("channel.msg.write")
		}

		return true, nil

	case <-ctx.Done():
		ch.mu.Lock()
		defer ch.mu.Unlock()

		select {
		case <-ww.done:
			return true, nil

		default:
			ch.writeWaiters.Remove(elem)
			w.closed = true
			delete(ch.writers, w.id)
			ch.checkLastWriter()

			ch.log.WithField("writer", w.id).
				WithError(ctx.Err()).
				Error("suspended write canceled")

			return false, ctx.Err()
		}
	}
}

// deregisterWriter removes w from the live set and applies the FBP
// last-writer rule.  Callers must hold mu.
func (ch *Channel) deregisterWriter(w *Writer) {
	w.closed = true
	delete(ch.writers, w.id)

	ch.log.WithField("writer", w.id).Debug("deregistered writer")

	ch.checkLastWriter()
}

// checkLastWriter latches the close-on-empty flag when the last writer
// is gone under FBP semantics.  Callers must hold mu.
func (ch *Channel) checkLastWriter() {
	if ch.semantics != FBP || len(ch.writers) > 0 || ch.state != Open {
		return
	}

	ch.sendCloseOnEmptyBuffer = true
	ch.log.Debug("last writer gone")

	if ch.buffer.Len() == 0 {
		ch.broadcastDone()
	}
}

// deregisterReader removes r from the live set.  Callers must hold mu.
func (ch *Channel) deregisterReader(r *Reader) {
	r.closed = true
	delete(ch.readers, r.id)

	ch.log.WithField("reader", r.id).Debug("deregistered reader")
}

// Save persists the channel through the configured restorer.
func (ch *Channel) Save(ctx context.Context) (vat.SturdyRef, error) {
	if ch.restorer == nil {
		return "", errors.New("no restorer")
	}

	ref, _, err := ch.restorer.Save(ctx, ch)
	return ref, err
}
