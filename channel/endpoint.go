package channel

import (
	"context"
	"errors"

	"github.com/flowmesh/flowmesh"
	"github.com/flowmesh/flowmesh/vat"
)

// Reader is a read endpoint.  Readers are not safe for concurrent use
// by multiple goroutines; register one reader per consumer instead.
type Reader struct {
	id     string
	ch     *Channel
	closed bool
}

// Read returns the next message, suspending until one arrives.  A
// closed or draining-out channel yields Done.
func (r *Reader) Read(ctx context.Context) (Msg, error) {
	return r.ch.read(ctx, r, true)
}

// ReadIfMsg returns the next message if one is immediately available,
// or a NoMsg message otherwise.
func (r *Reader) ReadIfMsg(ctx context.Context) (Msg, error) {
	return r.ch.read(ctx, r, false)
}

// Close deregisters the reader.  Subsequent reads fail with
// ErrAlreadyClosed.
func (r *Reader) Close(ctx context.Context) error {
	r.ch.mu.Lock()
	defer r.ch.mu.Unlock()

	if r.closed {
		return ErrAlreadyClosed
	}

	r.ch.deregisterReader(r)
	return nil
}

// Info identifies the endpoint within its channel.
func (r *Reader) Info() flowmesh.Info {
	return flowmesh.Info{
		ID:   r.id,
		Name: r.ch.info.NameOrID() + "::" + r.id,
	}
}

// Save persists the reader through the channel's restorer.
func (r *Reader) Save(ctx context.Context) (vat.SturdyRef, error) {
	if r.ch.restorer == nil {
		return "", errors.New("no restorer")
	}

	ref, _, err := r.ch.restorer.Save(ctx, r)
	return ref, err
}

// Writer is a write endpoint.  Writers are not safe for concurrent use
// by multiple goroutines; register one writer per producer instead.
type Writer struct {
	id     string
	ch     *Channel
	closed bool
}

// Write delivers msg, suspending while the buffer is full.  Writing
// Done deregisters the writer.  Writes to a channel that has begun
// shutdown are dropped without error.
func (w *Writer) Write(ctx context.Context, msg Msg) error {
	_, err := w.ch.write(ctx, w, msg, true)
	return err
}

// WriteIfSpace delivers msg if the buffer has room, reporting whether
// the message was accepted.  Done is always accepted.
func (w *Writer) WriteIfSpace(ctx context.Context, msg Msg) (bool, error) {
	return w.ch.write(ctx, w, msg, false)
}

// Close deregisters the writer, applying the channel's close
// semantics as if Done had been written.
func (w *Writer) Close(ctx context.Context) error {
	w.ch.mu.Lock()
	defer w.ch.mu.Unlock()

	if w.closed {
		return ErrAlreadyClosed
	}

	w.ch.deregisterWriter(w)
	return nil
}

// Info identifies the endpoint within its channel.
func (w *Writer) Info() flowmesh.Info {
	return flowmesh.Info{
		ID:   w.id,
		Name: w.ch.info.NameOrID() + "::" + w.id,
	}
}

// Save persists the writer through the channel's restorer.
func (w *Writer) Save(ctx context.Context) (vat.SturdyRef, error) {
	if w.ch.restorer == nil {
		return "", errors.New("no restorer")
	}

	ref, _, err := w.ch.restorer.Save(ctx, w)
	return ref, err
}
