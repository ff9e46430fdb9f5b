// Package ports maintains a process's named-port directory.  Ports
// are declared by id and name; connecting binds each name to a channel
// endpoint resolved from a sturdy ref.
package ports

import (
	"context"

	"github.com/lthibault/log"

	"github.com/flowmesh/flowmesh/channel"
	"github.com/flowmesh/flowmesh/vat"
)

// Decl declares a component's ports as id-to-name maps.  Ids are
// stable identifiers used by the component's code; names are the
// labels seen in configuration and port infos.
type Decl struct {
	In  map[string]string
	Out map[string]string
}

// Connector resolves declared ports to live channel endpoints.  It is
// not safe for concurrent use; connect before starting workers.
type Connector struct {
	log      log.Logger
	resolver vat.Resolver

	inNames  map[string]string // id -> name
	outNames map[string]string
	inIDs    map[string]string // name -> id
	outIDs   map[string]string

	in  map[string]*channel.Reader
	out map[string]*channel.Writer

	arrOut          map[string][]*channel.Writer
	arrOutConnected map[string][]bool
}

// New builds a connector with all declared ports disconnected.
func New(resolver vat.Resolver, decl Decl, logger log.Logger) *Connector {
	if logger == nil {
		logger = log.New()
	}

	c := &Connector{
		log:      logger,
		resolver: resolver,

		inNames:  make(map[string]string, len(decl.In)),
		outNames: make(map[string]string, len(decl.Out)),
		inIDs:    make(map[string]string, len(decl.In)),
		outIDs:   make(map[string]string, len(decl.Out)),

		in:  make(map[string]*channel.Reader),
		out: make(map[string]*channel.Writer),

		arrOut:          make(map[string][]*channel.Writer),
		arrOutConnected: make(map[string][]bool),
	}

	for id, name := range decl.In {
		c.inNames[id] = name
		c.inIDs[name] = id
	}

	for id, name := range decl.Out {
		c.outNames[id] = name
		c.outIDs[name] = id
	}

	return c
}

// In returns the reader bound to id, or nil while disconnected.
func (c *Connector) In(id string) *channel.Reader {
	return c.in[id]
}

// Out returns the writer bound to id, or nil while disconnected.
func (c *Connector) Out(id string) *channel.Writer {
	return c.out[id]
}

// ArrOut returns the idx-th writer of array out-port id, or nil.
func (c *Connector) ArrOut(id string, idx int) *channel.Writer {
	ws := c.arrOut[id]
	if idx < 0 || idx >= len(ws) {
		return nil
	}

	return ws[idx]
}

// ArrOutLen reports the number of slots in array out-port id.
func (c *Connector) ArrOutLen(id string) int {
	return len(c.arrOut[id])
}

// IsInConnected reports whether in-port id is bound.
func (c *Connector) IsInConnected(id string) bool {
	return c.in[id] != nil
}

// IsOutConnected reports whether out-port id is bound.
func (c *Connector) IsOutConnected(id string) bool {
	return c.out[id] != nil
}

// IsArrOutConnected reports whether slot idx of array out-port id is
// bound.
func (c *Connector) IsArrOutConnected(id string, idx int) bool {
	flags := c.arrOutConnected[id]
	return idx >= 0 && idx < len(flags) && flags[idx]
}

// SetInDisconnected drops the binding for in-port id.  The component
// calls this once the port's stream has delivered Done.
func (c *Connector) SetInDisconnected(id string) {
	delete(c.in, id)
}

// CloseOutPorts deregisters every connected out-port writer, scalar
// and array, signalling downstream components that this process is
// finished.
func (c *Connector) CloseOutPorts(ctx context.Context) {
	for id, w := range c.out {
		if err := w.Close(ctx); err != nil {
			c.log.WithField("port", c.outNames[id]).
				WithError(err).
				Warn("close out-port failed")
		}

		delete(c.out, id)
	}

	for id, ws := range c.arrOut {
		for i, w := range ws {
			if w == nil {
				continue
			}

			if err := w.Close(ctx); err != nil {
				c.log.WithField("port", c.outNames[id]).
					WithField("index", i).
					WithError(err).
					Warn("close out-port failed")
			}

			ws[i] = nil
			c.arrOutConnected[id][i] = false
		}
	}
}

// connectIn binds the named in-port to the reader behind sr.  Failures
// are logged and leave the port disconnected.
func (c *Connector) connectIn(ctx context.Context, name, sr string) {
	id, ok := c.inIDs[name]
	if !ok {
		return
	}

	obj, err := c.resolver.Resolve(ctx, vat.SturdyRef(sr))
	if err != nil {
		c.log.WithField("port", name).
			WithError(err).
			Warn("in-port resolve failed")
		return
	}

	r, ok := obj.(*channel.Reader)
	if !ok {
		c.log.WithField("port", name).
			Warn("in-port sturdy ref is not a reader")
		return
	}

	c.in[id] = r
	c.log.WithField("port", name).Debug("connected in-port")
}

// connectOut binds the named scalar out-port to the writer behind sr.
func (c *Connector) connectOut(ctx context.Context, name, sr string) {
	id, ok := c.outIDs[name]
	if !ok {
		return
	}

	w := c.resolveWriter(ctx, name, sr)
	if w == nil {
		return
	}

	c.out[id] = w
	c.log.WithField("port", name).Debug("connected out-port")
}

// connectArrOut appends one slot per sturdy ref to the named array
// out-port.  A failed slot stays in place, disconnected, so indices
// line up with the refs that produced them.
func (c *Connector) connectArrOut(ctx context.Context, name string, srs []string) {
	id, ok := c.outIDs[name]
	if !ok {
		return
	}

	for _, sr := range srs {
		w := c.resolveWriter(ctx, name, sr)
		c.arrOut[id] = append(c.arrOut[id], w)
		c.arrOutConnected[id] = append(c.arrOutConnected[id], w != nil)
	}

	c.log.WithField("port", name).
		WithField("slots", len(c.arrOut[id])).
		Debug("connected array out-port")
}

func (c *Connector) resolveWriter(ctx context.Context, name, sr string) *channel.Writer {
	obj, err := c.resolver.Resolve(ctx, vat.SturdyRef(sr))
	if err != nil {
		c.log.WithField("port", name).
			WithError(err).
			Warn("out-port resolve failed")
		return nil
	}

	w, ok := obj.(*channel.Writer)
	if !ok {
		c.log.WithField("port", name).
			Warn("out-port sturdy ref is not a writer")
		return nil
	}

	return w
}
