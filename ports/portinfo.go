package ports

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/flowmesh/flowmesh/channel"
	"github.com/flowmesh/flowmesh/vat"
)

// PortInfo names one port binding.  Out-ports may carry several refs,
// turning the port into an array out-port with one slot per ref.
type PortInfo struct {
	Name string   `cbor:"name"`
	SR   string   `cbor:"sr,omitempty"`
	SRs  []string `cbor:"srs,omitempty"`
}

// PortInfos is the wire form of a component's port bindings, sent as
// a CBOR payload through a bootstrap channel.
type PortInfos struct {
	InPorts  []PortInfo `cbor:"inPorts"`
	OutPorts []PortInfo `cbor:"outPorts"`
}

// ConnectFromPortInfos reads one PortInfos message from the channel
// behind sr and binds every declared port it names.  Unknown names
// are ignored; per-port failures leave just that port disconnected.
func (c *Connector) ConnectFromPortInfos(ctx context.Context, sr string) error {
	obj, err := c.resolver.Resolve(ctx, vat.SturdyRef(sr))
	if err != nil {
		return fmt.Errorf("resolve port infos: %w", err)
	}

	r, ok := obj.(*channel.Reader)
	if !ok {
		return fmt.Errorf("port infos sturdy ref is not a reader")
	}
	defer r.Close(ctx)

	msg, err := r.Read(ctx)
	if err != nil {
		return fmt.Errorf("read port infos: %w", err)
	}

	if msg.Which != channel.Value {
		return fmt.Errorf("port infos stream ended before delivery")
	}

	var infos PortInfos
	if err = cbor.Unmarshal(msg.Data(), &infos); err != nil {
		return fmt.Errorf("decode port infos: %w", err)
	}

	c.bind(ctx, infos)
	return nil
}

func (c *Connector) bind(ctx context.Context, infos PortInfos) {
	for _, info := range infos.InPorts {
		c.connectIn(ctx, info.Name, info.SR)
	}

	for _, info := range infos.OutPorts {
		if len(info.SRs) > 0 {
			c.connectArrOut(ctx, info.Name, info.SRs)
			continue
		}

		c.connectOut(ctx, info.Name, info.SR)
	}
}
